package pipeline

import (
	"replenish/internal"
)

// AggregateIncoming sums ordered-minus-received per SKU across open purchase
// order line items. Over-received lines stay negative so the surplus offsets
// other open lines for the same SKU.
func AggregateIncoming(items []internal.OpsLineItem) map[string]int {
	incoming := map[string]int{}
	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		incoming[item.SKU] += item.Ordered - item.Received
	}
	return incoming
}

// MergeStockLevels joins warehouse stock, incoming quantities and shop
// committed counts into one record per SKU. The warehouse set anchors the
// join: SKUs absent from it never appear, and SKUs missing from the other
// sources default to zero. Committed counts only from the fulfillment
// location; availability is recomputed from on-hand minus committed rather
// than trusted from the warehouse.
func MergeStockLevels(levels []internal.WarehouseStockLevel, incoming map[string]int, variants []internal.InventoryVariant, committedLevels []internal.InventoryLevel, locationID string) []internal.StockRecord {
	if len(levels) == 0 {
		return nil
	}

	skuByVariant := make(map[string]string, len(variants))
	for _, v := range variants {
		skuByVariant[v.ID] = v.SKU
	}

	committedBySKU := map[string]int{}
	for _, level := range committedLevels {
		if level.LocationID != locationID {
			continue
		}
		sku, ok := skuByVariant[level.VariantID]
		if !ok || sku == "" {
			continue
		}
		committedBySKU[sku] += level.Committed
	}

	out := make([]internal.StockRecord, 0, len(levels))
	for _, level := range levels {
		committed := committedBySKU[level.SKU]
		net := level.OnHand - committed

		record := internal.StockRecord{
			SKU:       level.SKU,
			OnHand:    level.OnHand,
			Incoming:  incoming[level.SKU],
			Committed: committed,
			Available: max(0, net),
			Backorder: min(0, net),
		}
		out = append(out, record)
	}
	return out
}
