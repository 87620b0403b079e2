package frotixsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeCatalog serves scripted pages and details without a network.
type fakeCatalog struct {
	pages       [][]OrderPayload
	details     map[int]*OrderPayload
	detailErrs  map[int]error
	pageCalls   int
	detailCalls int
	onFetchPage func(page int)
}

func (f *fakeCatalog) FetchOrdersPage(ctx context.Context, page, pageSize int) ([]OrderPayload, error) {
	f.pageCalls++
	if f.onFetchPage != nil {
		f.onFetchPage(page)
	}
	if page < 1 || page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeCatalog) FetchOrderDetail(ctx context.Context, orderID int) (*OrderPayload, error) {
	f.detailCalls++
	if err, ok := f.detailErrs[orderID]; ok {
		return nil, err
	}
	return f.details[orderID], nil
}

// fakeStore is an in-memory Store so the phases run without a database.
type fakeStore struct {
	headers       map[int]models.ServiceOrderHeader
	items         map[int][]models.ServiceOrderItem
	queue         map[int]*models.SyncQueueEntry
	vehicles      map[string]bool
	state         models.SyncState
	audit         []models.AuditLogEntry
	refreshed     []int
	aggregateRuns int

	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		headers:  map[int]models.ServiceOrderHeader{},
		items:    map[int][]models.ServiceOrderItem{},
		queue:    map[int]*models.SyncQueueEntry{},
		vehicles: map[string]bool{},
		state: models.SyncState{
			ID:     models.SyncStateSingletonID,
			Phase:  models.SyncPhaseHeaders,
			Status: models.SyncStatusIdle,
		},
	}
}

func (f *fakeStore) TouchRateLimit(ctx context.Context, endpoint string, limited bool, resetAt *time.Time) error {
	return nil
}

func (f *fakeStore) KnownHeaderIDs(ctx context.Context) (map[int]struct{}, error) {
	known := make(map[int]struct{}, len(f.headers))
	for id := range f.headers {
		known[id] = struct{}{}
	}
	return known, nil
}

func (f *fakeStore) MaxHeaderID(ctx context.Context) (int, error) {
	max := 0
	for id := range f.headers {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeStore) InsertHeaders(ctx context.Context, headers []models.ServiceOrderHeader) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	inserted := 0
	for _, h := range headers {
		if _, ok := f.headers[h.ID]; ok {
			continue
		}
		f.headers[h.ID] = h
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) RefreshHeaders(ctx context.Context, headers []models.ServiceOrderHeader) error {
	for _, h := range headers {
		existing, ok := f.headers[h.ID]
		if !ok {
			f.headers[h.ID] = h
			continue
		}
		existing.CompanyCode = h.CompanyCode
		existing.UnitCode = h.UnitCode
		existing.OpenDate = h.OpenDate
		existing.VehiclePlate = h.VehiclePlate
		existing.SupplierCode = h.SupplierCode
		existing.DocumentNumber = h.DocumentNumber
		f.headers[h.ID] = existing
		f.refreshed = append(f.refreshed, h.ID)
	}
	return nil
}

func (f *fakeStore) EnsureVehicles(ctx context.Context, plates []string) error {
	for _, plate := range plates {
		f.vehicles[plate] = true
	}
	return nil
}

func (f *fakeStore) EnqueueDetails(ctx context.Context, headerIDs []int) error {
	for _, id := range headerIDs {
		if _, ok := f.queue[id]; !ok {
			f.queue[id] = &models.SyncQueueEntry{HeaderID: id}
		}
	}
	return nil
}

func (f *fakeStore) PendingHeaderIDs(ctx context.Context, limit int) ([]int, error) {
	ids := make([]int, 0, len(f.queue))
	for id := range f.queue {
		if header, ok := f.headers[id]; ok && !header.DetailsSynced {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) ReplaceItems(ctx context.Context, headerID int, items []models.ServiceOrderItem, header models.ServiceOrderHeader) error {
	existing, ok := f.headers[headerID]
	if !ok {
		return fmt.Errorf("header %d not found", headerID)
	}
	f.items[headerID] = items
	existing.TotalValue = header.TotalValue
	existing.ItemCount = header.ItemCount
	existing.DetailsSynced = true
	existing.SyncError = nil
	f.headers[headerID] = existing
	delete(f.queue, headerID)
	return nil
}

func (f *fakeStore) MarkDetailFailed(ctx context.Context, headerID int, cause error) error {
	message := cause.Error()
	if header, ok := f.headers[headerID]; ok {
		header.SyncError = &message
		f.headers[headerID] = header
	}
	if entry, ok := f.queue[headerID]; ok {
		entry.Attempts++
		entry.LastError = &message
	}
	return nil
}

func (f *fakeStore) LoadState(ctx context.Context) (*models.SyncState, error) {
	state := f.state
	return &state, nil
}

func (f *fakeStore) SaveState(ctx context.Context, state *models.SyncState) error {
	f.state = *state
	return nil
}

func (f *fakeStore) AdvanceHighestProcessed(ctx context.Context, id int) error {
	if id > f.state.HighestProcessedID {
		f.state.HighestProcessedID = id
	}
	return nil
}

func (f *fakeStore) SetLastProcessed(ctx context.Context, id int) error {
	f.state.LastProcessedID = id
	return nil
}

func (f *fakeStore) RecomputeVehicleAggregates(ctx context.Context) (int, error) {
	f.aggregateRuns++
	plates := map[string]bool{}
	for _, header := range f.headers {
		if header.DetailsSynced && header.VehiclePlate != nil {
			plates[*header.VehiclePlate] = true
		}
	}
	return len(plates), nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	entry.ID = uint(len(f.audit) + 1)
	f.audit = append(f.audit, *entry)
	return nil
}

func orderPayload(id int, plate string, total string) OrderPayload {
	return OrderPayload{
		ID:           json.Number(fmt.Sprintf("%d", id)),
		CompanyCode:  "1",
		UnitCode:     "10",
		OpenDate:     "2026-03-15",
		VehiclePlate: plate,
		SupplierCode: "SUP01",
		TotalValue:   json.Number(total),
	}
}

func orderItem(number int, unitPrice, quantity string) OrderItemPayload {
	return OrderItemPayload{
		ItemNumber: json.Number(fmt.Sprintf("%d", number)),
		UnitPrice:  json.Number(unitPrice),
		Quantity:   json.Number(quantity),
	}
}
