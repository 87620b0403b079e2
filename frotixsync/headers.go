package frotixsync

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

// HeaderPhase walks the remote catalog page by page and lands new order
// headers locally. It never touches item lines; orders it inserts are queued
// for the detail phase.
type HeaderPhase struct {
	catalog Catalog
	store   Store
	logger  *logrus.Logger
	stopped func() bool
}

func NewHeaderPhase(catalog Catalog, store Store, logger *logrus.Logger, stopped func() bool) *HeaderPhase {
	if stopped == nil {
		stopped = func() bool { return false }
	}
	return &HeaderPhase{catalog: catalog, store: store, logger: logger, stopped: stopped}
}

type headerPhaseResult struct {
	Pages    int
	Inserted int
	Skipped  int
}

// Run executes the header phase, mutating counters on state and persisting
// it after every page so an interrupted run loses at most one page of
// progress.
func (p *HeaderPhase) Run(ctx context.Context, opts Options, state *models.SyncState) (headerPhaseResult, error) {
	var result headerPhaseResult

	known, err := p.store.KnownHeaderIDs(ctx)
	if err != nil {
		return result, err
	}

	threshold := 0
	switch opts.Mode {
	case ModeIncremental:
		threshold, err = p.store.MaxHeaderID(ctx)
		if err != nil {
			return result, err
		}
	case ModeResume:
		threshold = state.LastProcessedID
	}

	p.logger.WithFields(logrus.Fields{
		"mode":      string(opts.Mode),
		"known_ids": len(known),
		"threshold": threshold,
	}).Info("header phase started")

	pageSize := opts.pageSize()
	for page := 1; ; page++ {
		if p.stopped() {
			return result, ErrStopRequested
		}

		orders, err := p.catalog.FetchOrdersPage(ctx, page, pageSize)
		if err != nil {
			return result, err
		}
		if len(orders) == 0 {
			break
		}

		room := 0
		if opts.MaxRecords > 0 {
			room = opts.MaxRecords - result.Inserted
		}
		batch, refresh, skipped, maxSeen, lastSeen := p.selectHeaders(orders, known, threshold, room, opts)
		result.Skipped += skipped
		state.HeadersSkipped += skipped

		if len(refresh) > 0 {
			if err := p.store.RefreshHeaders(ctx, refresh); err != nil {
				return result, err
			}
		}

		if len(batch) > 0 {
			inserted, err := p.store.InsertHeaders(ctx, batch)
			if err != nil {
				return result, err
			}
			if err := p.store.EnsureVehicles(ctx, platesOf(batch)); err != nil {
				return result, err
			}
			if err := p.store.EnqueueDetails(ctx, idsOf(batch)); err != nil {
				return result, err
			}
			result.Inserted += inserted
			state.HeadersInserted += inserted
		}

		result.Pages++
		state.PagesFetched++

		if maxSeen > 0 {
			if err := p.store.AdvanceHighestProcessed(ctx, maxSeen); err != nil {
				return result, err
			}
			if maxSeen > state.HighestProcessedID {
				state.HighestProcessedID = maxSeen
			}
		}
		if lastSeen > 0 {
			if err := p.store.SetLastProcessed(ctx, lastSeen); err != nil {
				return result, err
			}
			state.LastProcessedID = lastSeen
		}
		if err := p.store.SaveState(ctx, state); err != nil {
			return result, err
		}

		p.logger.WithFields(logrus.Fields{
			"page":     page,
			"received": len(orders),
			"inserted": result.Inserted,
			"skipped":  result.Skipped,
		}).Info("header page processed")

		if opts.MaxRecords > 0 && result.Inserted >= opts.MaxRecords {
			break
		}
		if len(orders) < pageSize {
			break
		}
	}

	return result, nil
}

// selectHeaders converts one page of payloads into rows to insert, applying
// the id threshold, the known-id set and the optional date window. In full
// mode, already-known orders come back in refresh so remote edits to their
// descriptive columns still land. Once the new-record cap (room > 0) is
// filled, the rest of the page is left untouched so the watermarks never
// advance past records that were not inserted; the next run picks them up.
func (p *HeaderPhase) selectHeaders(orders []OrderPayload, known map[int]struct{}, threshold, room int, opts Options) (batch, refresh []models.ServiceOrderHeader, skipped, maxSeen, lastSeen int) {
	now := time.Now()
	for _, payload := range orders {
		if room > 0 && len(batch) >= room {
			break
		}
		id := intFromNumber(payload.ID)
		if id <= 0 {
			skipped++
			continue
		}
		if id > maxSeen {
			maxSeen = id
		}
		lastSeen = id

		if id <= threshold {
			skipped++
			continue
		}

		openDate := parseDate(payload.OpenDate)
		if opts.OpenedAfter != nil && (openDate == nil || openDate.Before(*opts.OpenedAfter)) {
			skipped++
			continue
		}
		if opts.OpenedBefore != nil && openDate != nil && openDate.After(*opts.OpenedBefore) {
			skipped++
			continue
		}

		header := models.ServiceOrderHeader{
			ID:             id,
			CompanyCode:    intFromNumber(payload.CompanyCode),
			UnitCode:       intFromNumber(payload.UnitCode),
			OpenDate:       openDate,
			VehiclePlate:   normalizePlate(payload.VehiclePlate),
			SupplierCode:   strings.TrimSpace(payload.SupplierCode),
			DocumentNumber: strings.TrimSpace(payload.DocumentNumber),
			TotalValue:     decimalFromNumber(payload.TotalValue),
			SyncedAt:       now,
		}

		if _, ok := known[id]; ok {
			skipped++
			if opts.Mode == ModeFull {
				refresh = append(refresh, header)
			}
			continue
		}

		known[id] = struct{}{}
		batch = append(batch, header)
	}
	return batch, refresh, skipped, maxSeen, lastSeen
}

func normalizePlate(raw string) *string {
	plate := strings.ToUpper(strings.TrimSpace(raw))
	plate = strings.ReplaceAll(plate, "-", "")
	plate = strings.ReplaceAll(plate, " ", "")
	if plate == "" {
		return nil
	}
	return &plate
}

func idsOf(headers []models.ServiceOrderHeader) []int {
	ids := make([]int, 0, len(headers))
	for _, h := range headers {
		ids = append(ids, h.ID)
	}
	return ids
}

func platesOf(headers []models.ServiceOrderHeader) []string {
	seen := map[string]struct{}{}
	for _, h := range headers {
		if h.VehiclePlate != nil {
			seen[*h.VehiclePlate] = struct{}{}
		}
	}
	plates := make([]string, 0, len(seen))
	for plate := range seen {
		plates = append(plates, plate)
	}
	sort.Strings(plates)
	return plates
}
