package pipeline

import (
	"errors"
	"sort"
	"strings"
	"time"

	"replenish/internal"
)

var metadataColumns = []string{
	"sku", "option1_value", "cost_production_total", "product_name",
	"category", "subcategory", "product_num", "product_type_internal",
	"supplier", "status_shopify", "stocked_status", "decoration_group",
	"artwork_title",
}

var stockColumns = []string{"on_hand", "committed", "available", "backorder", "incoming"}

// BuildReplenishmentTable joins stock records with product metadata and the
// weekly sales matrix into the final review table. Stock and metadata join
// inner on SKU, so rows exist only for SKUs present in both; sales join left,
// zero-filled. Rows sort by decoration group, internal product type, product
// number and variant position; position itself is a sort key only and is not
// emitted. When the same SKU appears more than once in the metadata, the
// first occurrence wins. An empty stock or metadata source yields a table
// with columns and zero rows; there is simply nothing to replenish.
func BuildReplenishmentTable(stock []internal.StockRecord, sales internal.SalesMatrix, metadata []internal.MetadataRow, now time.Time) (internal.Table, error) {
	columns := make([]string, 0, len(metadataColumns)+len(sales.Labels)+len(stockColumns)+1)
	columns = append(columns, metadataColumns...)
	columns = append(columns, sales.Labels...)
	columns = append(columns, stockColumns...)
	columns = append(columns, "updated_at")

	if len(stock) == 0 || len(metadata) == 0 {
		return internal.Table{Columns: columns}, nil
	}

	metaBySKU := make(map[string]internal.MetadataRow, len(metadata))
	for _, row := range metadata {
		if row.SKU == "" {
			return internal.Table{}, errors.New("product metadata row with empty SKU")
		}
		if _, seen := metaBySKU[row.SKU]; !seen {
			metaBySKU[row.SKU] = row
		}
	}

	type joined struct {
		meta  internal.MetadataRow
		stock internal.StockRecord
		sales []int
	}

	zeroSales := make([]int, len(sales.Labels))
	rows := make([]joined, 0, len(stock))
	for _, record := range stock {
		meta, ok := metaBySKU[record.SKU]
		if !ok {
			continue
		}
		weekly := sales.BySKU[record.SKU]
		if weekly == nil {
			weekly = zeroSales
		}
		rows = append(rows, joined{meta: meta, stock: record, sales: weekly})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].meta, rows[j].meta
		if a.DecorationGroup != b.DecorationGroup {
			return a.DecorationGroup < b.DecorationGroup
		}
		if a.ProductTypeInternal != b.ProductTypeInternal {
			return a.ProductTypeInternal < b.ProductTypeInternal
		}
		if a.ProductNum != b.ProductNum {
			return a.ProductNum < b.ProductNum
		}
		return a.Position < b.Position
	})

	updatedAt := now.Format("2006-01-02 15:04:05")
	out := internal.Table{Columns: columns, Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		cells := make([]any, 0, len(columns))
		cells = append(cells,
			sanitize(row.meta.SKU),
			sanitize(row.meta.Option1Value),
			sanitize(row.meta.CostProductionTotal),
			sanitize(row.meta.ProductName),
			sanitize(row.meta.Category),
			sanitize(row.meta.Subcategory),
			sanitize(row.meta.ProductNum),
			sanitize(row.meta.ProductTypeInternal),
			sanitize(row.meta.Supplier),
			sanitize(row.meta.StatusShopify),
			sanitize(row.meta.StockedStatus),
			sanitize(row.meta.DecorationGroup),
			sanitize(row.meta.ArtworkTitle),
		)
		for _, qty := range row.sales {
			cells = append(cells, qty)
		}
		cells = append(cells,
			row.stock.OnHand,
			row.stock.Committed,
			row.stock.Available,
			row.stock.Backorder,
			row.stock.Incoming,
			updatedAt,
		)
		out.Rows = append(out.Rows, cells)
	}

	return out, nil
}

var sanitizer = strings.NewReplacer("[", "", "]", "", "'", "", `"`, "")

// sanitize strips bracket and quote characters left over from list-valued
// source fields.
func sanitize(value string) string {
	return sanitizer.Replace(value)
}
