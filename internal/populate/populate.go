package populate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"replenish/internal/logger"
	"replenish/internal/opsdb"
)

var sheetHeaders = []string{"product_num", "sku", "To Order Qty", "Total Units to Order for this Product"}

// SheetSource reads the reviewed replenishment worksheet.
type SheetSource interface {
	ReadColumns(ctx context.Context, worksheet string, headers []string) ([]map[string]string, error)
}

// OpsWriter creates purchase order and line item records in the ops database.
type OpsWriter interface {
	LatestActivePONumber(ctx context.Context) (int, error)
	RecordIDsByField(ctx context.Context, table, field string, values []string) (map[string]string, error)
	CreatePurchaseOrders(ctx context.Context, fieldSets []map[string]any) (map[string]string, error)
	CreateLineItems(ctx context.Context, fieldSets []map[string]any) error
}

type Populator struct {
	sheet     SheetSource
	ops       OpsWriter
	worksheet string
}

func NewPopulator(sheet SheetSource, ops OpsWriter, worksheet string) *Populator {
	return &Populator{sheet: sheet, ops: ops, worksheet: worksheet}
}

type orderLine struct {
	productNum string
	sku        string
	qty        int
}

type Report struct {
	PurchaseOrders int
	LineItems      int
}

// Run reads reviewed order quantities from the worksheet and turns them into
// new purchase orders, one per distinct product number in sheet order, with a
// line item per SKU. PO numbers continue from the highest number in the
// Active view.
func (p *Populator) Run(ctx context.Context) (Report, error) {
	rows, err := p.sheet.ReadColumns(ctx, p.worksheet, sheetHeaders)
	if err != nil {
		return Report{}, err
	}

	var lines []orderLine
	for _, row := range rows {
		total := strings.TrimSpace(row["Total Units to Order for this Product"])
		if total == "" || total == "0" {
			continue
		}
		lines = append(lines, orderLine{
			productNum: row["product_num"],
			sku:        row["sku"],
			qty:        CoerceQuantity(row["To Order Qty"]),
		})
	}
	if len(lines) == 0 {
		logger.Infow("no order quantities in worksheet", "worksheet", p.worksheet)
		return Report{}, nil
	}

	var productNums, skus []string
	seenProduct := map[string]bool{}
	seenSKU := map[string]bool{}
	for _, line := range lines {
		if !seenProduct[line.productNum] {
			seenProduct[line.productNum] = true
			productNums = append(productNums, line.productNum)
		}
		if !seenSKU[line.sku] {
			seenSKU[line.sku] = true
			skus = append(skus, line.sku)
		}
	}

	variantIDs, err := p.ops.RecordIDsByField(ctx, opsdb.TableVariants, "SKU", skus)
	if err != nil {
		return Report{}, err
	}
	productIDs, err := p.ops.RecordIDsByField(ctx, opsdb.TableProducts, "Product Number", productNums)
	if err != nil {
		return Report{}, err
	}

	latest, err := p.ops.LatestActivePONumber(ctx)
	if err != nil {
		return Report{}, err
	}

	poFieldSets := make([]map[string]any, 0, len(productNums))
	poNumberByProduct := make(map[string]string, len(productNums))
	for _, productNum := range productNums {
		productID, ok := productIDs[productNum]
		if !ok {
			return Report{}, fmt.Errorf("no product record for product number %q", productNum)
		}
		latest++
		poNumber := strconv.Itoa(latest)
		poNumberByProduct[productNum] = poNumber
		poFieldSets = append(poFieldSets, map[string]any{
			opsdb.PONumberField(): poNumber,
			"Product":             []string{productID},
		})
	}

	poRecordIDs, err := p.ops.CreatePurchaseOrders(ctx, poFieldSets)
	if err != nil {
		return Report{}, err
	}

	itemFieldSets := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		variantID, ok := variantIDs[line.sku]
		if !ok {
			return Report{}, fmt.Errorf("no variant record for sku %q", line.sku)
		}
		poRecordID, ok := poRecordIDs[poNumberByProduct[line.productNum]]
		if !ok {
			return Report{}, fmt.Errorf("created purchase order for product %q not returned", line.productNum)
		}
		itemFieldSets = append(itemFieldSets, map[string]any{
			"Purchase Order":   []string{poRecordID},
			"Variant":          []string{variantID},
			"Quantity Ordered": line.qty,
		})
	}
	if err := p.ops.CreateLineItems(ctx, itemFieldSets); err != nil {
		return Report{}, err
	}

	logger.Infow("populated purchase orders",
		"purchase_orders", len(poFieldSets), "line_items", len(itemFieldSets))
	return Report{PurchaseOrders: len(poFieldSets), LineItems: len(itemFieldSets)}, nil
}

// CoerceQuantity parses a sheet cell as a whole quantity. Blank or unparsable
// cells count as zero; fractional values truncate.
func CoerceQuantity(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f)
	}
	return 0
}
