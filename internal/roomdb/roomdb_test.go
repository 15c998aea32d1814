package roomdb_test

import (
	"path/filepath"
	"testing"
	"time"

	"roomdex/internal/roomdb"
)

func openTestDB(t *testing.T) *roomdb.DB {
	t.Helper()
	db, err := roomdb.Open(filepath.Join(t.TempDir(), "history", "roomdex.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMergeHistoryRoundTrip(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := roomdb.MergeRecord{
			ID:          string(rune('a' + i)),
			RoomID:      "demo",
			At:          base.Add(time.Duration(i) * time.Minute),
			Applied:     true,
			ItemsBefore: 10 + i,
			ItemsAfter:  11 + i,
			Summary:     "applied",
		}
		if err := db.RecordMerge(rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	recs, err := db.MergeHistory("demo", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d", len(recs))
	}
	// Newest first.
	if recs[0].ID != "c" || recs[1].ID != "b" {
		t.Fatalf("order = %s, %s", recs[0].ID, recs[1].ID)
	}
	if recs[0].ItemsBefore != 12 || !recs[0].Applied {
		t.Fatalf("record = %+v", recs[0])
	}

	// Other rooms stay invisible.
	other, err := db.MergeHistory("elsewhere", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("leaked records: %v", other)
	}
}

func TestUpsertRoomAndIndexRecord(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertRoom("demo", "/data/demo", 5, 2); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Second upsert replaces, not duplicates.
	if err := db.UpsertRoom("demo", "/data/demo", 6, 2); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	rec := roomdb.IndexRecord{
		RoomID: "demo",
		At:     time.Now().UTC(),
		Path:   "/data/demo/room_index.md",
		Items:  6,
		Quests: 2,
		Bytes:  1234,
	}
	if err := db.RecordIndex(rec); err != nil {
		t.Fatalf("record index: %v", err)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var db *roomdb.DB
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.RecordMerge(roomdb.MergeRecord{}); err != nil {
		t.Fatalf("record: %v", err)
	}
	recs, err := db.MergeHistory("demo", 5)
	if err != nil || recs != nil {
		t.Fatalf("history: %v, %v", recs, err)
	}
}
