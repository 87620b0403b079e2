package frotixsync

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
	"bitbucket.org/mmdatafocus/fleetsync_backend/utils"
)

var validate = validator.New()

// StatusHandler reports the current sync state row.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := NewGormStore(config.GetDB())
		state, err := store.LoadState(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "FrotixSync", "StatusHandler", "load sync state", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load sync state"})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Phase:              state.Phase,
			Status:             state.Status,
			HighestProcessedID: state.HighestProcessedID,
			LastProcessedID:    state.LastProcessedID,
			HeadersInserted:    state.HeadersInserted,
			HeadersSkipped:     state.HeadersSkipped,
			DetailsSynced:      state.DetailsSynced,
			DetailsFailed:      state.DetailsFailed,
			LastError:          state.LastError,
			StartedAt:          formatTime(state.StartedAt),
			FinishedAt:         formatTime(state.FinishedAt),
		})
	}
}

// TriggerSyncHandler accepts a sync request and hands it to the worker via
// Pub/Sub. The run itself happens in the push handler, so the HTTP caller
// gets an immediate 202.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Mode == "" {
			req.Mode = string(ModeIncremental)
		}

		ctx := c.Request.Context()
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

		payload := SyncTriggerPayload{
			Mode:          req.Mode,
			NoDetails:     req.NoDetails,
			MaxRecords:    req.MaxRecords,
			TriggeredBy:   models.SyncTriggeredManual,
			CorrelationId: correlationId,
		}
		if err := PublishSyncTrigger(ctx, payload); err != nil {
			config.LogError(config.GetLogger(), "FrotixSync", "TriggerSyncHandler", "publish sync trigger", payload, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not schedule sync"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"scheduled":     true,
			"mode":          req.Mode,
			"correlationId": correlationId,
		})
	}
}

// StopSyncHandler flips the cooperative stop flag on the running engine.
func StopSyncHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine.Stop()
		c.JSON(http.StatusAccepted, gin.H{"stopping": true})
	}
}

// SyncRunsHandler lists recent runs from the audit log, newest first.
func SyncRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
				limit = parsed
			}
		}

		store := NewGormStore(config.GetDB())
		entries, err := store.RecentAuditEntries(c.Request.Context(), limit)
		if err != nil {
			config.LogError(config.GetLogger(), "FrotixSync", "SyncRunsHandler", "load audit entries", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load sync history"})
			return
		}

		items := make([]SyncRunResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, SyncRunResponse{
				ID:          entry.ID,
				Operation:   entry.Operation,
				RecordCount: entry.RecordCount,
				Status:      entry.Status,
				Error:       entry.Error,
				StartedAt:   formatTime(entry.StartedAt),
				FinishedAt:  formatTime(entry.FinishedAt),
			})
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

// SyncRunDetailHandler returns one audit entry by id.
func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var entry models.AuditLogEntry
		err = config.GetDB().WithContext(c.Request.Context()).
			First(&entry, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunResponse{
			ID:          entry.ID,
			Operation:   entry.Operation,
			RecordCount: entry.RecordCount,
			Status:      entry.Status,
			Error:       entry.Error,
			StartedAt:   formatTime(entry.StartedAt),
			FinishedAt:  formatTime(entry.FinishedAt),
		})
	}
}

// VehicleExpensesHandler returns the aggregate rollup for one plate.
func VehicleExpensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plate := normalizePlate(c.Param("plate"))
		if plate == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plate is required"})
			return
		}

		var aggregate models.VehicleExpenseAggregate
		err := config.GetDB().WithContext(c.Request.Context()).
			First(&aggregate, "plate = ?", *plate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no expenses for plate"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, aggregate)
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}
