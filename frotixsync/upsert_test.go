package frotixsync

import "testing"

func TestHeaderConflictClauseLeavesDetailColumnsAlone(t *testing.T) {
	oc := headerConflictClause()
	if len(oc.Columns) != 1 || oc.Columns[0].Name != "id" {
		t.Fatalf("conflict target = %+v, want the id column", oc.Columns)
	}
	if oc.DoNothing {
		t.Fatal("header upsert must update conflicting rows, not ignore them")
	}

	assigned := map[string]bool{}
	for _, a := range oc.DoUpdates {
		assigned[a.Column.Name] = true
	}
	for _, col := range []string{"total_value", "item_count", "details_synced", "sync_error"} {
		if assigned[col] {
			t.Fatalf("%s is owned by the detail phase and must not be overwritten on conflict", col)
		}
	}
	for _, col := range headerRefreshColumns {
		if !assigned[col] {
			t.Fatalf("%s missing from the conflict assignments", col)
		}
	}
	if !assigned["synced_at"] {
		t.Fatal("synced_at must be restamped on conflict")
	}
}

func TestChunkRecords(t *testing.T) {
	records := make([]int, 250)
	chunks := chunkRecords(records, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Fatalf("chunk sizes = %d/%d/%d, want 100/100/50", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	if got := chunkRecords([]int{}, 100); got != nil {
		t.Fatalf("empty input produced %d chunks", len(got))
	}
	if got := chunkRecords([]int{1, 2}, 0); got != nil {
		t.Fatal("non-positive chunk size should produce no chunks")
	}

	exact := chunkRecords(make([]int, 200), 100)
	if len(exact) != 2 {
		t.Fatalf("exact multiple produced %d chunks, want 2", len(exact))
	}
}
