package frotixsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

func pendingStore(ids ...int) *fakeStore {
	store := newFakeStore()
	plate := "ABC1D23"
	for _, id := range ids {
		store.headers[id] = models.ServiceOrderHeader{ID: id, VehiclePlate: &plate}
		store.queue[id] = &models.SyncQueueEntry{HeaderID: id}
	}
	return store
}

func noPausePhase(catalog Catalog, store Store) *DetailPhase {
	phase := NewDetailPhase(catalog, store, testLogger(), nil)
	phase.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return phase
}

func TestDetailPhaseDerivesTotalsFromItems(t *testing.T) {
	store := pendingStore(1)
	catalog := &fakeCatalog{
		details: map[int]*OrderPayload{
			1: {
				ID: "1",
				Items: []OrderItemPayload{
					orderItem(1, "100.00", "2"),
					orderItem(2, "50.00", "3"),
				},
			},
		},
	}
	phase := noPausePhase(catalog, store)
	state, _ := store.LoadState(context.Background())

	result, err := phase.Run(context.Background(), Options{}, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Synced != 1 || result.Items != 2 {
		t.Fatalf("synced=%d items=%d, want 1 and 2", result.Synced, result.Items)
	}

	header := store.headers[1]
	if !header.TotalValue.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("total = %s, want 350", header.TotalValue)
	}
	if header.ItemCount != 2 {
		t.Fatalf("item count = %d, want 2", header.ItemCount)
	}
	if !header.DetailsSynced {
		t.Fatal("header not marked enriched")
	}
	if len(store.queue) != 0 {
		t.Fatalf("queue still holds %d entries", len(store.queue))
	}
}

func TestDetailPhaseIsolatesPerOrderFailures(t *testing.T) {
	store := pendingStore(1, 2, 3)
	catalog := &fakeCatalog{
		details: map[int]*OrderPayload{
			1: {ID: "1", Items: []OrderItemPayload{orderItem(1, "10.00", "1")}},
			3: {ID: "3", Items: []OrderItemPayload{orderItem(1, "20.00", "1")}},
		},
		detailErrs: map[int]error{
			2: fmt.Errorf("remote returned status 502"),
		},
	}
	phase := noPausePhase(catalog, store)
	state, _ := store.LoadState(context.Background())

	result, err := phase.Run(context.Background(), Options{}, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Synced != 2 || result.Failed != 1 {
		t.Fatalf("synced=%d failed=%d, want 2 and 1", result.Synced, result.Failed)
	}

	entry, ok := store.queue[2]
	if !ok {
		t.Fatal("failed order should stay queued for the next run")
	}
	if entry.Attempts != 1 || entry.LastError == nil {
		t.Fatalf("failure not recorded on queue entry: %+v", entry)
	}
	if store.headers[2].SyncError == nil {
		t.Fatal("failure not recorded on header")
	}
	if !store.headers[3].DetailsSynced {
		t.Fatal("order after the failure should still have been enriched")
	}
}

func TestDetailPhaseMissingRemoteOrderCountsAsFailure(t *testing.T) {
	store := pendingStore(7)
	catalog := &fakeCatalog{details: map[int]*OrderPayload{}}
	phase := noPausePhase(catalog, store)
	state, _ := store.LoadState(context.Background())

	result, err := phase.Run(context.Background(), Options{}, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Failed)
	}
}

func TestDetailPhaseStops(t *testing.T) {
	store := pendingStore(1, 2)
	catalog := &fakeCatalog{
		details: map[int]*OrderPayload{
			1: {ID: "1", Items: []OrderItemPayload{orderItem(1, "10.00", "1")}},
			2: {ID: "2", Items: []OrderItemPayload{orderItem(1, "20.00", "1")}},
		},
	}
	calls := 0
	phase := NewDetailPhase(catalog, store, testLogger(), func() bool {
		calls++
		return calls > 1
	})
	phase.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	state, _ := store.LoadState(context.Background())

	result, err := phase.Run(context.Background(), Options{}, state)
	if !errors.Is(err, ErrStopRequested) {
		t.Fatalf("err = %v, want ErrStopRequested", err)
	}
	if result.Synced != 1 {
		t.Fatalf("synced = %d, want 1 before the stop", result.Synced)
	}
}

func TestComputeItemsAssignsMissingItemNumbers(t *testing.T) {
	payload := &OrderPayload{
		ID: "5",
		Items: []OrderItemPayload{
			{UnitPrice: "10.00", Quantity: "1"},
			{UnitPrice: "20.00", Quantity: "1"},
		},
	}
	items, header := computeItems(5, payload)
	if items[0].ItemNumber != 1 || items[1].ItemNumber != 2 {
		t.Fatalf("item numbers = %d, %d; want positional fallback", items[0].ItemNumber, items[1].ItemNumber)
	}
	if !header.TotalValue.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("total = %s, want 30", header.TotalValue)
	}
}
