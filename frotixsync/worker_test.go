package frotixsync

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

func testEngine(catalog Catalog, store Store) *Engine {
	engine := NewEngine(catalog, store, testLogger())
	return engine
}

func runEngine(t *testing.T, engine *Engine, opts Options) SyncResult {
	t.Helper()
	return engine.Run(context.Background(), opts)
}

func TestEngineFullRunEndToEnd(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]OrderPayload{
			{orderPayload(1, "ABC1D23", "0"), orderPayload(2, "XYZ9Z99", "0")},
		},
		details: map[int]*OrderPayload{
			1: {ID: "1", Items: []OrderItemPayload{orderItem(1, "100.00", "2")}},
			2: {ID: "2", Items: []OrderItemPayload{orderItem(1, "30.00", "1")}},
		},
	}
	store := newFakeStore()
	engine := testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeFull, PageSize: 10})
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	if result.HeadersInserted != 2 || result.DetailsSynced != 2 {
		t.Fatalf("headers=%d details=%d, want 2 and 2", result.HeadersInserted, result.DetailsSynced)
	}
	if result.VehiclesUpdated != 2 {
		t.Fatalf("vehicles updated = %d, want 2", result.VehiclesUpdated)
	}
	if store.aggregateRuns != 1 {
		t.Fatalf("aggregate recomputed %d times, want 1", store.aggregateRuns)
	}

	if store.state.Status != models.SyncStatusIdle || store.state.Phase != models.SyncPhaseComplete {
		t.Fatalf("final state = %s/%s, want idle/complete", store.state.Status, store.state.Phase)
	}
	if store.state.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
	if len(store.audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(store.audit))
	}
	if store.audit[0].Status != "success" {
		t.Fatalf("audit status = %s, want success", store.audit[0].Status)
	}
}

func TestEngineDetailsOnlySkipsHeaderPhase(t *testing.T) {
	store := pendingStore(1)
	catalog := &fakeCatalog{
		details: map[int]*OrderPayload{
			1: {ID: "1", Items: []OrderItemPayload{orderItem(1, "10.00", "1")}},
		},
	}
	engine := testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeDetailsOnly})
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	if catalog.pageCalls != 0 {
		t.Fatalf("header pages fetched = %d, want 0", catalog.pageCalls)
	}
	if result.DetailsSynced != 1 {
		t.Fatalf("details synced = %d, want 1", result.DetailsSynced)
	}
}

func TestEngineNoDetailsSkipsDetailPhaseAndAggregation(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]OrderPayload{{orderPayload(1, "ABC1D23", "10.00")}},
	}
	store := newFakeStore()
	engine := testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeFull, NoDetails: true})
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	if catalog.detailCalls != 0 {
		t.Fatalf("detail calls = %d, want 0", catalog.detailCalls)
	}
	if store.aggregateRuns != 0 {
		t.Fatalf("aggregates recomputed without items written")
	}
	if _, ok := store.queue[1]; !ok {
		t.Fatal("header should stay queued for a later details run")
	}
}

func TestEngineStopLeavesStatePaused(t *testing.T) {
	store := newFakeStore()
	catalog := &fakeCatalog{
		pages: [][]OrderPayload{
			{orderPayload(1, "A", "1.00"), orderPayload(2, "B", "2.00")},
			{orderPayload(3, "C", "3.00"), orderPayload(4, "D", "4.00")},
		},
	}
	var engine *Engine
	catalog.onFetchPage = func(page int) {
		engine.Stop()
	}
	engine = testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeFull, PageSize: 2})
	if result.Success {
		t.Fatal("stopped run reported success")
	}
	if !errors.Is(result.Err, ErrStopRequested) {
		t.Fatalf("err = %v, want ErrStopRequested", result.Err)
	}
	if store.state.Status != models.SyncStatusPaused {
		t.Fatalf("state = %s, want paused", store.state.Status)
	}
	if store.state.FinishedAt != nil {
		t.Fatal("paused run should not set finished_at")
	}
}

func TestEngineResumeKeepsCounters(t *testing.T) {
	store := newFakeStore()
	store.state.Status = models.SyncStatusPaused
	store.state.HeadersInserted = 4
	store.state.LastProcessedID = 4
	for id := 1; id <= 4; id++ {
		store.headers[id] = models.ServiceOrderHeader{ID: id, DetailsSynced: true}
	}

	catalog := &fakeCatalog{
		pages: [][]OrderPayload{
			{orderPayload(3, "A", "3.00"), orderPayload(4, "B", "4.00"), orderPayload(5, "C", "5.00")},
		},
		details: map[int]*OrderPayload{
			5: {ID: "5", Items: []OrderItemPayload{orderItem(1, "5.00", "1")}},
		},
	}
	engine := testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeResume, PageSize: 10})
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	if result.HeadersInserted != 1 {
		t.Fatalf("inserted = %d, want only the order above the resume point", result.HeadersInserted)
	}
	if store.state.HeadersInserted != 5 {
		t.Fatalf("cumulative inserted = %d, want prior 4 plus 1", store.state.HeadersInserted)
	}
}

func TestEngineFailureRecordsStateAndAudit(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection lost")
	catalog := &fakeCatalog{
		pages: [][]OrderPayload{{orderPayload(1, "A", "1.00")}},
	}
	engine := testEngine(catalog, store)

	result := runEngine(t, engine, Options{Mode: ModeFull})
	if result.Success {
		t.Fatal("failed run reported success")
	}
	if store.state.Status != models.SyncStatusFailed {
		t.Fatalf("state = %s, want failed", store.state.Status)
	}
	if store.state.LastError == nil {
		t.Fatal("last_error not recorded")
	}
	if len(store.audit) != 1 || store.audit[0].Error == nil {
		t.Fatal("audit entry missing failure details")
	}
}

func TestRunLockedSurfacesLockerUnavailable(t *testing.T) {
	engine := testEngine(&fakeCatalog{}, newFakeStore())

	result, err := RunLocked(context.Background(), engine, Options{Mode: ModeIncremental})
	if err == nil {
		t.Fatal("want an error when the run lock is unavailable")
	}
	if errors.Is(err, ErrSyncAlreadyRunning) {
		t.Fatalf("err = %v; an unavailable locker is not a concurrent run", err)
	}
	if result.Err != nil {
		t.Fatalf("result.Err = %v, want a zero result when the engine never ran", result.Err)
	}
}
