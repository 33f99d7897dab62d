package pipeline

import (
	"testing"

	"replenish/internal"
)

func TestAggregateIncoming(t *testing.T) {
	items := []internal.OpsLineItem{
		{SKU: "SKU-A", Ordered: 10, Received: 4},
		{SKU: "SKU-A", Ordered: 5, Received: 0},
		{SKU: "SKU-B", Ordered: 3, Received: 8},
		{SKU: "", Ordered: 100, Received: 0},
	}

	incoming := AggregateIncoming(items)
	if len(incoming) != 2 {
		t.Fatalf("len=%d", len(incoming))
	}
	if incoming["SKU-A"] != 11 {
		t.Fatalf("SKU-A incoming=%d", incoming["SKU-A"])
	}
	if incoming["SKU-B"] != -5 {
		t.Fatalf("SKU-B incoming=%d", incoming["SKU-B"])
	}
}

func TestMergeStockLevels(t *testing.T) {
	const location = "gid://shopify/Location/71392264438"

	levels := []internal.WarehouseStockLevel{
		{ID: "wh-1", SKU: "SKU-A", OnHand: 10, Available: 99, Backorder: 99},
		{ID: "wh-2", SKU: "SKU-B", OnHand: 2},
		{ID: "wh-3", SKU: "SKU-C", OnHand: 7},
	}
	incoming := map[string]int{"SKU-A": 11, "SKU-Z": 50}
	variants := []internal.InventoryVariant{
		{ID: "var-1", SKU: "SKU-A"},
		{ID: "var-2", SKU: "SKU-B"},
	}
	committed := []internal.InventoryLevel{
		{VariantID: "var-1", LocationID: location, Committed: 4},
		{VariantID: "var-2", LocationID: location, Committed: 6},
		{VariantID: "var-2", LocationID: "gid://shopify/Location/other", Committed: 100},
	}

	records := MergeStockLevels(levels, incoming, variants, committed, location)
	if len(records) != 3 {
		t.Fatalf("len=%d", len(records))
	}

	byHand := map[string]internal.StockRecord{}
	for _, r := range records {
		byHand[r.SKU] = r
	}

	a := byHand["SKU-A"]
	if a.OnHand != 10 || a.Committed != 4 || a.Incoming != 11 {
		t.Fatalf("SKU-A: %+v", a)
	}
	// Availability is recomputed, not copied from the warehouse.
	if a.Available != 6 || a.Backorder != 0 {
		t.Fatalf("SKU-A availability: %+v", a)
	}

	b := byHand["SKU-B"]
	if b.Committed != 6 {
		t.Fatalf("SKU-B committed=%d, other-location counts must not leak in", b.Committed)
	}
	if b.Available != 0 || b.Backorder != -4 {
		t.Fatalf("SKU-B availability: %+v", b)
	}

	c := byHand["SKU-C"]
	if c.Incoming != 0 || c.Committed != 0 || c.Available != 7 || c.Backorder != 0 {
		t.Fatalf("SKU-C defaults: %+v", c)
	}

	for _, r := range records {
		if r.Available+r.Backorder != r.OnHand-r.Committed {
			t.Fatalf("availability identity broken for %s: %+v", r.SKU, r)
		}
	}
}

func TestMergeStockLevelsEmptySource(t *testing.T) {
	records := MergeStockLevels(nil, map[string]int{"SKU-A": 1}, nil, nil, "loc")
	if records != nil {
		t.Fatalf("expected nil, got %+v", records)
	}
}
