package opsdb

import (
	"context"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"replenish/internal"
	"replenish/internal/config"
)

const (
	TablePurchaseOrders = "Purchase Orders"
	TableLineItems      = "Line Items"
	TableVariants       = "Variants"
	TableProducts       = "Products"
)

const (
	fieldPONumber          = "PO #"
	fieldPOStatus          = "PO Status"
	fieldSyncStatus        = "Warehouse Sync Status"
	fieldVendorID          = "Warehouse Vendor ID"
	fieldWarehouseID       = "warehouse_id"
	fieldFulfillmentStatus = "Status (Warehouse)"
	fieldSKU               = "sku"
	fieldPosition          = "Position"
	fieldQtyOrdered        = "Quantity Ordered"
	fieldQtyReceived       = "Quantity Received"
	fieldWarehouseQty      = "Order Quantity (Warehouse)"
	fieldWarehouseReceived = "Quantity Received (Warehouse)"
	fieldUnitCost          = "Total Unit Cost (active)"
)

// Service exposes the ops database in the canonical record shapes the
// pipeline and sync layers consume.
type Service struct {
	client *Client
	cfg    config.Config
}

func NewService(cfg config.Config) *Service {
	return &Service{client: NewClient(cfg), cfg: cfg}
}

// IncomingLineItems returns line items on purchase orders still being
// received, the input of the incoming-stock aggregation.
func (s *Service) IncomingLineItems(ctx context.Context) ([]internal.OpsLineItem, error) {
	records, err := s.client.ListRecords(ctx, TableLineItems, ListQuery{
		Fields: []string{fieldSKU, fieldQtyOrdered, fieldQtyReceived},
		Where:  []Where{{Field: fieldPOStatus, AnyOf: []string{"Open", "Draft"}}},
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.OpsLineItem, 0, len(records))
	for _, record := range records {
		out = append(out, internal.OpsLineItem{
			RecordID: record.ID,
			SKU:      stringField(record.Fields, fieldSKU),
			Ordered:  intField(record.Fields, fieldQtyOrdered),
			Received: intField(record.Fields, fieldQtyReceived),
		})
	}
	return out, nil
}

var metadataFields = []string{
	"SKU", "product_num", "Product Name", "Option1 Value", "Position",
	"Supplier (Plain Text)", "Status Shopify (Shopify)", "Stocked Status",
	"Decoration Group (Plain Text)", "Artwork (Title)", "Cost-Production: Total",
	"Category", "Subcategory", "Product Type (Internal)",
}

func (s *Service) ProductMetadata(ctx context.Context) ([]internal.MetadataRow, error) {
	records, err := s.client.ListRecords(ctx, TableVariants, ListQuery{
		View:   s.cfg.OpsDBMetadataView,
		Fields: metadataFields,
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.MetadataRow, 0, len(records))
	for _, record := range records {
		out = append(out, internal.MetadataRow{
			SKU:                 stringField(record.Fields, "SKU"),
			Option1Value:        stringField(record.Fields, "Option1 Value"),
			Position:            stringField(record.Fields, "Position"),
			CostProductionTotal: stringField(record.Fields, "Cost-Production: Total"),
			ProductName:         stringField(record.Fields, "Product Name"),
			Category:            stringField(record.Fields, "Category"),
			Subcategory:         stringField(record.Fields, "Subcategory"),
			ProductNum:          stringField(record.Fields, "product_num"),
			ProductTypeInternal: stringField(record.Fields, "Product Type (Internal)"),
			Supplier:            stringField(record.Fields, "Supplier (Plain Text)"),
			StatusShopify:       stringField(record.Fields, "Status Shopify (Shopify)"),
			StockedStatus:       stringField(record.Fields, "Stocked Status"),
			DecorationGroup:     stringField(record.Fields, "Decoration Group (Plain Text)"),
			ArtworkTitle:        stringField(record.Fields, "Artwork (Title)"),
		})
	}
	return out, nil
}

// QueuedPurchaseOrders returns purchase orders waiting for the forward sync,
// each carrying its queued line items.
func (s *Service) QueuedPurchaseOrders(ctx context.Context) ([]internal.PurchaseOrder, error) {
	records, err := s.client.ListRecords(ctx, TablePurchaseOrders, ListQuery{
		Where: []Where{{Field: fieldSyncStatus, AnyOf: []string{string(internal.SyncQueued)}}},
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.PurchaseOrder, 0, len(records))
	for _, record := range records {
		po := s.toPurchaseOrder(record)

		items, err := s.client.ListRecords(ctx, TableLineItems, ListQuery{
			Where: []Where{
				{Field: fieldPONumber, AnyOf: []string{po.PONumber}},
				{Field: fieldSyncStatus, AnyOf: []string{string(internal.SyncQueued)}},
			},
		})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			po.LineItems = append(po.LineItems, s.toLineItem(item))
		}

		out = append(out, po)
	}
	return out, nil
}

// OpenPurchaseOrders returns purchase orders in Open internal status; the
// reverse sync derives its default cutoff from their creation times.
func (s *Service) OpenPurchaseOrders(ctx context.Context) ([]internal.PurchaseOrder, error) {
	records, err := s.client.ListRecords(ctx, TablePurchaseOrders, ListQuery{
		Where: []Where{{Field: fieldPOStatus, AnyOf: []string{"Open"}}},
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.PurchaseOrder, 0, len(records))
	for _, record := range records {
		out = append(out, s.toPurchaseOrder(record))
	}
	return out, nil
}

// FindPOByNumber looks a purchase order up by PO number and loads all of its
// line items. Returns nil when no record matches.
func (s *Service) FindPOByNumber(ctx context.Context, poNumber string) (*internal.PurchaseOrder, error) {
	records, err := s.client.ListRecords(ctx, TablePurchaseOrders, ListQuery{
		Where: []Where{{Field: fieldPONumber, AnyOf: []string{poNumber}}},
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	po := s.toPurchaseOrder(records[0])
	items, err := s.client.ListRecords(ctx, TableLineItems, ListQuery{
		Where: []Where{{Field: fieldPONumber, AnyOf: []string{po.PONumber}}},
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		po.LineItems = append(po.LineItems, s.toLineItem(item))
	}
	return &po, nil
}

func (s *Service) SetPOSyncStatus(ctx context.Context, recordID string, status internal.SyncStatus) error {
	return s.client.UpdateRecord(ctx, TablePurchaseOrders, recordID, map[string]any{fieldSyncStatus: string(status)})
}

func (s *Service) SetPOWarehouseID(ctx context.Context, recordID, warehouseID string) error {
	return s.client.UpdateRecord(ctx, TablePurchaseOrders, recordID, map[string]any{fieldWarehouseID: warehouseID})
}

func (s *Service) SetLineItemWarehouseID(ctx context.Context, recordID, warehouseID string) error {
	return s.client.UpdateRecord(ctx, TableLineItems, recordID, map[string]any{fieldWarehouseID: warehouseID})
}

func (s *Service) SetPOFulfillmentStatus(ctx context.Context, recordID, status string) error {
	return s.client.UpdateRecord(ctx, TablePurchaseOrders, recordID, map[string]any{fieldFulfillmentStatus: status})
}

func (s *Service) SetLineItemReceived(ctx context.Context, recordID string, quantity, received int) error {
	return s.client.UpdateRecord(ctx, TableLineItems, recordID, map[string]any{
		fieldWarehouseQty:      quantity,
		fieldWarehouseReceived: received,
	})
}

// LatestActivePONumber returns the highest numeric PO number in the Active
// view, or 0 when none exist.
func (s *Service) LatestActivePONumber(ctx context.Context) (int, error) {
	records, err := s.client.ListRecords(ctx, TablePurchaseOrders, ListQuery{View: "Active", Fields: []string{fieldPONumber}})
	if err != nil {
		return 0, err
	}

	numbers := make([]int, 0, len(records))
	for _, record := range records {
		if n, err := strconv.Atoi(stringField(record.Fields, fieldPONumber)); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	sort.Ints(numbers)
	return numbers[len(numbers)-1], nil
}

// RecordIDsByField fetches every record of a table and maps the given field's
// value to the record ID, for linking created records to existing ones.
func (s *Service) RecordIDsByField(ctx context.Context, table, field string, values []string) (map[string]string, error) {
	records, err := s.client.ListRecords(ctx, table, ListQuery{Fields: []string{field}})
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(values))
	for _, v := range values {
		wanted[v] = struct{}{}
	}

	out := map[string]string{}
	for _, record := range records {
		value := stringField(record.Fields, field)
		if _, ok := wanted[value]; ok {
			out[value] = record.ID
		}
	}
	return out, nil
}

// CreatePurchaseOrders inserts new purchase order records and returns
// PO number → created record ID.
func (s *Service) CreatePurchaseOrders(ctx context.Context, fieldSets []map[string]any) (map[string]string, error) {
	created, err := s.client.CreateRecords(ctx, TablePurchaseOrders, fieldSets)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(created))
	for _, record := range created {
		out[stringField(record.Fields, fieldPONumber)] = record.ID
	}
	return out, nil
}

func (s *Service) CreateLineItems(ctx context.Context, fieldSets []map[string]any) error {
	_, err := s.client.CreateRecords(ctx, TableLineItems, fieldSets)
	return err
}

func (s *Service) toPurchaseOrder(record Record) internal.PurchaseOrder {
	return internal.PurchaseOrder{
		RecordID:          record.ID,
		PONumber:          stringField(record.Fields, fieldPONumber),
		VendorID:          stringField(record.Fields, fieldVendorID),
		WarehouseID:       stringField(record.Fields, fieldWarehouseID),
		InternalStatus:    stringField(record.Fields, fieldPOStatus),
		FulfillmentStatus: stringField(record.Fields, fieldFulfillmentStatus),
		SyncStatus:        internal.SyncStatus(stringField(record.Fields, fieldSyncStatus)),
		CreatedAt:         record.CreatedTime,
	}
}

func (s *Service) toLineItem(record Record) internal.OpsLineItem {
	return internal.OpsLineItem{
		RecordID:    record.ID,
		PONumber:    stringField(record.Fields, fieldPONumber),
		POStatus:    stringField(record.Fields, fieldPOStatus),
		SKU:         stringField(record.Fields, fieldSKU),
		Name:        stringField(record.Fields, "Line Item Name"),
		Position:    intField(record.Fields, fieldPosition),
		Ordered:     intField(record.Fields, fieldQtyOrdered),
		Received:    intField(record.Fields, fieldQtyReceived),
		UnitCost:    decimal.NewFromFloat(floatField(record.Fields, fieldUnitCost)),
		SyncStatus:  internal.SyncStatus(stringField(record.Fields, fieldSyncStatus)),
		WarehouseID: stringField(record.Fields, fieldWarehouseID),
	}
}

// PONumberField names the PO number column for callers assembling create
// payloads.
func PONumberField() string { return fieldPONumber }
