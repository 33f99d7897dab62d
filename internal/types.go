package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus tracks the forward push of a purchase order to the warehouse system.
type SyncStatus string

const (
	SyncQueued SyncStatus = "Queued"
	SyncSynced SyncStatus = "Synced"
	SyncFailed SyncStatus = "Failed"
)

// WarehouseStockLevel is a warehouse_products node in the warehouse system's
// native shape.
type WarehouseStockLevel struct {
	ID        string
	SKU       string
	OnHand    int
	Allocated int
	Available int
	Backorder int
}

// StockRecord is the merged per-SKU stock position. Available and Backorder
// are always recomputed from OnHand and Committed, never copied from a source.
type StockRecord struct {
	SKU       string
	OnHand    int
	Incoming  int
	Committed int
	Available int
	Backorder int
}

// OpsLineItem is an ops-database purchase order line item.
type OpsLineItem struct {
	RecordID    string
	PONumber    string
	POStatus    string
	SKU         string
	Name        string
	Position    int
	Ordered     int
	Received    int
	UnitCost    decimal.Decimal
	SyncStatus  SyncStatus
	WarehouseID string
}

// PurchaseOrder is an ops-database purchase order record. WarehouseID is empty
// until the forward sync has created the counterpart in the warehouse system.
type PurchaseOrder struct {
	RecordID          string
	PONumber          string
	VendorID          string
	WarehouseID       string
	InternalStatus    string
	FulfillmentStatus string
	SyncStatus        SyncStatus
	CreatedAt         time.Time
	LineItems         []OpsLineItem
}

// WarehousePurchaseOrder is a purchase order in the warehouse system's shape.
type WarehousePurchaseOrder struct {
	ID                string
	PONumber          string
	FulfillmentStatus string
	LineItems         []WarehouseLineItem
}

type WarehouseLineItem struct {
	ID       string
	SKU      string
	Quantity int
	Received int
}

// SalesRecord is one line of the e-commerce sales export: an order when
// ParentID is empty, otherwise a line item referencing its parent order.
type SalesRecord struct {
	ID        string
	ParentID  string
	Name      string
	CreatedAt time.Time
	SKU       string
	Quantity  int
}

// InventoryVariant and InventoryLevel come from the e-commerce inventory
// export. Levels reference their variant through VariantID; only the committed
// quantity at the designated fulfillment location feeds the stock merge.
type InventoryVariant struct {
	ID  string
	SKU string
}

type InventoryLevel struct {
	VariantID  string
	LocationID string
	Committed  int
}

// MetadataRow is one SKU-variant of ops-database product metadata. List-valued
// source fields are already unwrapped to scalars at the adapter boundary.
type MetadataRow struct {
	SKU                 string
	Option1Value        string
	Position            string
	CostProductionTotal string
	ProductName         string
	Category            string
	Subcategory         string
	ProductNum          string
	ProductTypeInternal string
	Supplier            string
	StatusShopify       string
	StockedStatus       string
	DecorationGroup     string
	ArtworkTitle        string
}

// SalesMatrix is the pivoted per-SKU weekly sales table. Labels are ordered
// most recent week first and every row is aligned to them, zero-filled.
type SalesMatrix struct {
	Labels []string
	BySKU  map[string][]int
}

// Table is a materialized tabular result with a fixed column order, consumed
// by the spreadsheet and XLSX sinks.
type Table struct {
	Columns []string
	Rows    [][]any
}
