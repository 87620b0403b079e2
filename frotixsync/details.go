package frotixsync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

const defaultDetailPause = 250 * time.Millisecond

// DetailPhase drains the enrichment queue: for each pending header it
// fetches the full order and replaces the local item lines. One bad order
// never stops the batch; persistence failures do.
type DetailPhase struct {
	catalog Catalog
	store   Store
	logger  *logrus.Logger
	stopped func() bool
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewDetailPhase(catalog Catalog, store Store, logger *logrus.Logger, stopped func() bool) *DetailPhase {
	if stopped == nil {
		stopped = func() bool { return false }
	}
	return &DetailPhase{
		catalog: catalog,
		store:   store,
		logger:  logger,
		stopped: stopped,
		pause:   defaultDetailPause,
		sleep:   sleepContext,
	}
}

type detailPhaseResult struct {
	Synced int
	Failed int
	Items  int
}

func (p *DetailPhase) Run(ctx context.Context, opts Options, state *models.SyncState) (detailPhaseResult, error) {
	var result detailPhaseResult

	pending, err := p.store.PendingHeaderIDs(ctx, opts.detailBatchSize())
	if err != nil {
		return result, err
	}

	p.logger.WithField("pending", len(pending)).Info("detail phase started")

	for i, headerID := range pending {
		if p.stopped() {
			return result, ErrStopRequested
		}
		if i > 0 {
			if err := p.sleep(ctx, p.pause); err != nil {
				return result, err
			}
		}

		payload, err := p.catalog.FetchOrderDetail(ctx, headerID)
		if err == nil && payload == nil {
			err = fmt.Errorf("order %d not found on remote", headerID)
		}
		if err != nil {
			result.Failed++
			state.DetailsFailed++
			p.logger.WithField("header_id", headerID).
				WithError(err).Warn("detail fetch failed, will retry next run")
			if markErr := p.store.MarkDetailFailed(ctx, headerID, err); markErr != nil {
				return result, markErr
			}
			continue
		}

		items, header := computeItems(headerID, payload)
		if err := p.store.ReplaceItems(ctx, headerID, items, header); err != nil {
			return result, err
		}

		result.Synced++
		result.Items += len(items)
		state.DetailsSynced++
	}

	if err := p.store.SaveState(ctx, state); err != nil {
		return result, err
	}
	return result, nil
}

// computeItems converts a detail payload into item rows plus the header
// fields the detail phase owns. The header total is derived from the lines
// rather than trusted from the list payload, so header and items can never
// disagree.
func computeItems(headerID int, payload *OrderPayload) ([]models.ServiceOrderItem, models.ServiceOrderHeader) {
	now := time.Now()
	items := make([]models.ServiceOrderItem, 0, len(payload.Items))
	total := decimal.Zero

	for idx, line := range payload.Items {
		itemNumber := intFromNumber(line.ItemNumber)
		if itemNumber <= 0 {
			itemNumber = idx + 1
		}
		unitPrice := decimalFromNumber(line.UnitPrice)
		quantity := decimalFromNumber(line.Quantity)
		total = total.Add(unitPrice.Mul(quantity).Round(2))

		items = append(items, models.ServiceOrderItem{
			HeaderID:   headerID,
			ItemNumber: itemNumber,
			UnitPrice:  unitPrice,
			Quantity:   quantity,
			SyncedAt:   now,
		})
	}

	header := models.ServiceOrderHeader{
		ID:         headerID,
		TotalValue: total,
		ItemCount:  len(items),
	}
	return items, header
}
