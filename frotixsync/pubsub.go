package frotixsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
	"bitbucket.org/mmdatafocus/fleetsync_backend/utils"
)

// PublishSyncTrigger puts one sync request on the worker topic.
func PublishSyncTrigger(ctx context.Context, payload SyncTriggerPayload) error {
	topicName := strings.TrimSpace(os.Getenv("FROTIX_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "frotix-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if config.EnvBoolDefault("FROTIX_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler executes sync triggers delivered by a push
// subscription. Malformed messages are acked with 204 so Pub/Sub never
// redelivers garbage forever.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_FROTIX_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncTriggerPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}

		mode, err := ParseMode(payload.Mode)
		if err != nil {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}
		if payload.TriggeredBy != "" {
			ctx = utils.SetTriggeredByInContext(ctx, payload.TriggeredBy)
		}

		opts := Options{
			Mode:        mode,
			NoDetails:   payload.NoDetails,
			MaxRecords:  payload.MaxRecords,
			TriggeredBy: payload.TriggeredBy,
		}
		if _, err := RunLocked(ctx, engine, opts); err != nil {
			config.LogError(config.GetLogger(), "FrotixSync", "PubSubPushHandler", "sync run", payload, err)
		}
		c.Status(204)
	}
}
