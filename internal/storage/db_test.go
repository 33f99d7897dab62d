package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMetadataRoundtrip(t *testing.T) {
	db := openTestDB(t)

	value, err := db.GetMetadata("warehouse.access_token")
	if err != nil {
		t.Fatal(err)
	}
	if value != nil {
		t.Fatalf("expected nil for missing key, got %q", *value)
	}

	if err := db.SetMetadata("warehouse.access_token", "tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("warehouse.access_token", "tok-2"); err != nil {
		t.Fatal(err)
	}

	value, err = db.GetMetadata("warehouse.access_token")
	if err != nil {
		t.Fatal(err)
	}
	if value == nil || *value != "tok-2" {
		t.Fatalf("value=%v", value)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	db := openTestDB(t)

	payload, fetchedAt, err := db.GetSnapshot("shop_sales")
	if err != nil {
		t.Fatal(err)
	}
	if payload != nil || fetchedAt != nil {
		t.Fatal("expected empty result for missing snapshot")
	}

	if err := db.SaveSnapshot("shop_sales", []byte(`[{"sku":"SKU-A"}]`)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSnapshot("shop_sales", []byte(`[{"sku":"SKU-B"}]`)); err != nil {
		t.Fatal(err)
	}

	payload, fetchedAt, err = db.GetSnapshot("shop_sales")
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != `[{"sku":"SKU-B"}]` {
		t.Fatalf("payload=%s", payload)
	}
	if fetchedAt == nil {
		t.Fatal("expected fetchedAt")
	}
}

func TestInsertRun(t *testing.T) {
	db := openTestDB(t)

	err := db.InsertRun("po-push", time.Now(), 1500*time.Millisecond, map[string]int{"synced": 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
}
