package pipeline

import (
	"testing"
	"time"

	"replenish/internal"
)

func TestWeekBuckets(t *testing.T) {
	// A Wednesday; the most recent Sunday is Aug 23.
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)

	buckets := WeekBuckets(now)
	if len(buckets) != 8 {
		t.Fatalf("len=%d", len(buckets))
	}

	first := buckets[0]
	if !first.End.Equal(time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 1 end=%s", first.End)
	}
	if !first.Start.Equal(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 1 start=%s", first.Start)
	}
	if first.Label != "sales_1_weeks_ago_Aug23" {
		t.Fatalf("week 1 label=%s", first.Label)
	}

	last := buckets[7]
	if !last.End.Equal(time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 8 end=%s", last.End)
	}
	if last.Label != "sales_8_weeks_ago_Jul05" {
		t.Fatalf("week 8 label=%s", last.Label)
	}

	for i := 1; i < len(buckets); i++ {
		if buckets[i].Index != i+1 {
			t.Fatalf("bucket %d index=%d", i, buckets[i].Index)
		}
		if !buckets[i].End.AddDate(0, 0, 7).Equal(buckets[i-1].End) {
			t.Fatalf("buckets %d and %d not contiguous", i-1, i)
		}
	}
}

func TestWeekBucketsOnSunday(t *testing.T) {
	// When today is a Sunday, today closes week 1.
	now := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	buckets := WeekBuckets(now)
	if !buckets[0].End.Equal(time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 1 end=%s", buckets[0].End)
	}
}

func TestWeekBucketsOnMonday(t *testing.T) {
	// On a Monday the just-started week is excluded.
	now := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	buckets := WeekBuckets(now)
	if !buckets[0].End.Equal(time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 1 end=%s", buckets[0].End)
	}
	if !buckets[0].Start.Equal(time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week 1 start=%s", buckets[0].Start)
	}
}

func TestBuildSalesMatrix(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	records := []internal.SalesRecord{
		// Week 1 order with two line items for the same SKU.
		{ID: "order-1", Name: "#1001", CreatedAt: time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)},
		{ID: "li-1", ParentID: "order-1", SKU: "SKU-A", Quantity: 2},
		{ID: "li-2", ParentID: "order-1", SKU: "SKU-A", Quantity: 3},
		{ID: "li-3", ParentID: "order-1", SKU: "SKU-B", Quantity: 1},
		// Week 3 order.
		{ID: "order-2", Name: "#1002", CreatedAt: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)},
		{ID: "li-4", ParentID: "order-2", SKU: "SKU-A", Quantity: 5},
		// Order inside the current partial week: excluded.
		{ID: "order-3", Name: "#1003", CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)},
		{ID: "li-5", ParentID: "order-3", SKU: "SKU-A", Quantity: 100},
		// Line item with no SKU: dropped.
		{ID: "li-6", ParentID: "order-1", SKU: "", Quantity: 9},
		// Line item with an unknown parent: dropped.
		{ID: "li-7", ParentID: "order-404", SKU: "SKU-A", Quantity: 9},
	}

	matrix := BuildSalesMatrix(records, now)
	if len(matrix.Labels) != 8 {
		t.Fatalf("labels=%d", len(matrix.Labels))
	}
	if matrix.Labels[0] != "sales_1_weeks_ago_Aug23" {
		t.Fatalf("label[0]=%s", matrix.Labels[0])
	}
	if len(matrix.BySKU) != 2 {
		t.Fatalf("skus=%d", len(matrix.BySKU))
	}

	a := matrix.BySKU["SKU-A"]
	if len(a) != 8 {
		t.Fatalf("SKU-A columns=%d", len(a))
	}
	if a[0] != 5 {
		t.Fatalf("SKU-A week 1=%d", a[0])
	}
	if a[2] != 5 {
		t.Fatalf("SKU-A week 3=%d", a[2])
	}
	for i, qty := range a {
		if i != 0 && i != 2 && qty != 0 {
			t.Fatalf("SKU-A week %d=%d, expected zero fill", i+1, qty)
		}
	}

	b := matrix.BySKU["SKU-B"]
	if b[0] != 1 {
		t.Fatalf("SKU-B week 1=%d", b[0])
	}
}

func TestBuildSalesMatrixWeekBoundary(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	records := []internal.SalesRecord{
		// Sunday 23:59 closes week 1.
		{ID: "order-sun", CreatedAt: time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)},
		{ID: "li-sun", ParentID: "order-sun", SKU: "SKU-SUN", Quantity: 1},
		// Monday 00:00 opens the current partial week and is excluded.
		{ID: "order-mon", CreatedAt: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{ID: "li-mon", ParentID: "order-mon", SKU: "SKU-MON", Quantity: 1},
		// Monday 00:00 a week earlier opens week 1.
		{ID: "order-prev-mon", CreatedAt: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)},
		{ID: "li-prev-mon", ParentID: "order-prev-mon", SKU: "SKU-PREV", Quantity: 1},
	}

	matrix := BuildSalesMatrix(records, now)
	sun := matrix.BySKU["SKU-SUN"]
	if sun[0] != 1 {
		t.Fatalf("sunday order week 1=%d", sun[0])
	}
	for i := 1; i < len(sun); i++ {
		if sun[i] != 0 {
			t.Fatalf("sunday order leaked into week %d", i+1)
		}
	}
	if _, ok := matrix.BySKU["SKU-MON"]; ok {
		t.Fatal("current partial week order must be excluded")
	}
	if matrix.BySKU["SKU-PREV"][0] != 1 {
		t.Fatalf("prior monday order week 1=%d", matrix.BySKU["SKU-PREV"][0])
	}
}

func TestBuildSalesMatrixIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	records := []internal.SalesRecord{
		{ID: "order-1", CreatedAt: time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)},
		{ID: "li-1", ParentID: "order-1", SKU: "SKU-A", Quantity: 2},
	}

	first := BuildSalesMatrix(records, now)
	second := BuildSalesMatrix(records, now)
	if first.BySKU["SKU-A"][0] != second.BySKU["SKU-A"][0] {
		t.Fatal("rebuilding from the same records changed the result")
	}
}
