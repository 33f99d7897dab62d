package pipeline

import (
	"testing"
	"time"

	"replenish/internal"
)

func testSalesMatrix() internal.SalesMatrix {
	labels := make([]string, 8)
	for i, b := range WeekBuckets(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)) {
		labels[i] = b.Label
	}
	return internal.SalesMatrix{
		Labels: labels,
		BySKU:  map[string][]int{"SKU-A": {5, 0, 3, 0, 0, 0, 0, 1}},
	}
}

func TestBuildReplenishmentTable(t *testing.T) {
	now := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

	stock := []internal.StockRecord{
		{SKU: "SKU-A", OnHand: 10, Committed: 4, Available: 6, Backorder: 0, Incoming: 11},
		{SKU: "SKU-B", OnHand: 2, Committed: 6, Available: 0, Backorder: -4},
		{SKU: "SKU-NO-META", OnHand: 1},
	}
	metadata := []internal.MetadataRow{
		{SKU: "SKU-B", ProductName: "['Tee, Black']", ProductNum: "200", DecorationGroup: "B Group", Position: "1"},
		{SKU: "SKU-A", ProductName: "Hat", ProductNum: "100", DecorationGroup: "A Group", Position: "2"},
		{SKU: "SKU-ONLY-META", ProductName: "Ghost", ProductNum: "300"},
	}

	table, err := BuildReplenishmentTable(stock, testSalesMatrix(), metadata, now)
	if err != nil {
		t.Fatal(err)
	}

	if len(table.Columns) != 13+8+5+1 {
		t.Fatalf("columns=%d", len(table.Columns))
	}
	if table.Columns[0] != "sku" || table.Columns[13] != "sales_1_weeks_ago_Aug23" || table.Columns[21] != "on_hand" {
		t.Fatalf("column order: %v", table.Columns)
	}
	if table.Columns[len(table.Columns)-1] != "updated_at" {
		t.Fatalf("last column: %s", table.Columns[len(table.Columns)-1])
	}
	for _, column := range table.Columns {
		if column == "position" {
			t.Fatal("position must not be emitted")
		}
	}

	// Inner join: only SKUs in both stock and metadata survive.
	if len(table.Rows) != 2 {
		t.Fatalf("rows=%d", len(table.Rows))
	}

	// Sorted by decoration group: A Group before B Group.
	if table.Rows[0][0] != "SKU-A" || table.Rows[1][0] != "SKU-B" {
		t.Fatalf("row order: %v, %v", table.Rows[0][0], table.Rows[1][0])
	}

	rowA := table.Rows[0]
	if rowA[13] != 5 || rowA[15] != 3 || rowA[20] != 1 {
		t.Fatalf("SKU-A sales cells: %v", rowA[13:21])
	}
	if rowA[21] != 10 || rowA[22] != 4 || rowA[23] != 6 || rowA[24] != 0 || rowA[25] != 11 {
		t.Fatalf("SKU-A stock cells: %v", rowA[21:26])
	}
	if rowA[26] != "2026-08-26 14:00:00" {
		t.Fatalf("updated_at=%v", rowA[26])
	}

	// SKU-B has no sales history: zero filled.
	rowB := table.Rows[1]
	for i := 13; i < 21; i++ {
		if rowB[i] != 0 {
			t.Fatalf("SKU-B sales cell %d=%v", i, rowB[i])
		}
	}
	// Bracket and quote characters are stripped from list-shaped values.
	if rowB[3] != "Tee, Black" {
		t.Fatalf("product_name=%v", rowB[3])
	}
}

func TestBuildReplenishmentTableEmptyInputs(t *testing.T) {
	now := time.Now()
	sales := testSalesMatrix()

	// A quiet source is an empty table, not an error.
	table, err := BuildReplenishmentTable(nil, sales, []internal.MetadataRow{{SKU: "A"}}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("empty stock: rows=%d", len(table.Rows))
	}
	if len(table.Columns) != 13+8+5+1 {
		t.Fatalf("empty stock: columns=%d", len(table.Columns))
	}

	table, err = BuildReplenishmentTable([]internal.StockRecord{{SKU: "A"}}, sales, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("empty metadata: rows=%d", len(table.Rows))
	}
	if len(table.Columns) != 13+8+5+1 {
		t.Fatalf("empty metadata: columns=%d", len(table.Columns))
	}

	// A metadata row without its join key is still a defect.
	if _, err := BuildReplenishmentTable([]internal.StockRecord{{SKU: "A"}}, sales, []internal.MetadataRow{{SKU: ""}}, now); err == nil {
		t.Fatal("expected error for metadata row without SKU")
	}
}

func TestBuildReplenishmentTableDuplicateMetadata(t *testing.T) {
	now := time.Now()
	stock := []internal.StockRecord{{SKU: "SKU-A", OnHand: 1}}
	metadata := []internal.MetadataRow{
		{SKU: "SKU-A", ProductName: "First"},
		{SKU: "SKU-A", ProductName: "Second"},
	}

	table, err := BuildReplenishmentTable(stock, testSalesMatrix(), metadata, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows=%d", len(table.Rows))
	}
	if table.Rows[0][3] != "First" {
		t.Fatalf("first metadata occurrence must win, got %v", table.Rows[0][3])
	}
}
