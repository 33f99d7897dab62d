package posync

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"replenish/internal"
	"replenish/internal/logger"
	"replenish/internal/warehouse"
)

// WarehouseAPI is the slice of the warehouse client the sync needs.
type WarehouseAPI interface {
	CreatePurchaseOrder(ctx context.Context, req warehouse.CreatePORequest) (internal.WarehousePurchaseOrder, error)
	PurchaseOrders(ctx context.Context, createdFrom time.Time) ([]internal.WarehousePurchaseOrder, error)
}

// OpsStore is the slice of the ops database service the sync needs.
type OpsStore interface {
	QueuedPurchaseOrders(ctx context.Context) ([]internal.PurchaseOrder, error)
	OpenPurchaseOrders(ctx context.Context) ([]internal.PurchaseOrder, error)
	FindPOByNumber(ctx context.Context, poNumber string) (*internal.PurchaseOrder, error)
	SetPOSyncStatus(ctx context.Context, recordID string, status internal.SyncStatus) error
	SetPOWarehouseID(ctx context.Context, recordID, warehouseID string) error
	SetLineItemWarehouseID(ctx context.Context, recordID, warehouseID string) error
	SetPOFulfillmentStatus(ctx context.Context, recordID, status string) error
	SetLineItemReceived(ctx context.Context, recordID string, quantity, received int) error
}

type Syncer struct {
	warehouse   WarehouseAPI
	ops         OpsStore
	warehouseID string
}

func NewSyncer(wh WarehouseAPI, ops OpsStore, warehouseID string) *Syncer {
	return &Syncer{warehouse: wh, ops: ops, warehouseID: warehouseID}
}

type PushReport struct {
	Synced    int
	Failed    int
	FailedPOs []string
	// Unrecorded lists failed PO numbers whose warehouse order was created
	// before the local write-back broke; rerunning the push for these would
	// create a duplicate in the warehouse.
	Unrecorded []string
}

// Push sends every queued purchase order to the warehouse. Each order either
// completes fully, IDs written back and status Synced, or is marked Failed
// with nothing else touched; one failed order never stops the rest. A failed
// status write is terminal because losing it would re-create the order on the
// next run.
func (s *Syncer) Push(ctx context.Context) (PushReport, error) {
	queued, err := s.ops.QueuedPurchaseOrders(ctx)
	if err != nil {
		return PushReport{}, err
	}

	var report PushReport
	for _, po := range queued {
		if createdID, err := s.pushOne(ctx, po); err != nil {
			if createdID != "" {
				report.Unrecorded = append(report.Unrecorded, po.PONumber)
				logger.Errorw("purchase order created but not fully recorded",
					"po_number", po.PONumber, "warehouse_po_id", createdID, "error", err)
			} else {
				logger.Errorw("purchase order push failed", "po_number", po.PONumber, "error", err)
			}
			report.Failed++
			report.FailedPOs = append(report.FailedPOs, po.PONumber)
			if statusErr := s.ops.SetPOSyncStatus(ctx, po.RecordID, internal.SyncFailed); statusErr != nil {
				return report, statusErr
			}
			continue
		}

		if err := s.ops.SetPOSyncStatus(ctx, po.RecordID, internal.SyncSynced); err != nil {
			return report, err
		}
		report.Synced++
		logger.Infow("purchase order pushed", "po_number", po.PONumber)
	}
	return report, nil
}

// pushOne creates one warehouse purchase order and writes its IDs back. A
// non-empty returned ID alongside an error means the order exists in the
// warehouse but the local records are incomplete.
func (s *Syncer) pushOne(ctx context.Context, po internal.PurchaseOrder) (string, error) {
	if po.VendorID == "" {
		return "", errors.New("no vendor id on record")
	}
	if len(po.LineItems) == 0 {
		return "", errors.New("no queued line items")
	}

	req := warehouse.CreatePORequest{
		PONumber:      po.PONumber,
		VendorID:      po.VendorID,
		WarehouseID:   s.warehouseID,
		ShippingPrice: "0.00",
	}

	subtotal := decimal.Zero
	for _, item := range po.LineItems {
		price := item.UnitCost.Round(2)
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Ordered))))
		req.LineItems = append(req.LineItems, warehouse.CreatePOLineItem{
			SKU:               item.SKU,
			Quantity:          item.Ordered,
			Price:             price.StringFixed(2),
			ExpectedWeightLbs: "0.0",
		})
	}
	req.Subtotal = subtotal.StringFixed(2)
	req.TotalPrice = subtotal.StringFixed(2)

	created, err := s.warehouse.CreatePurchaseOrder(ctx, req)
	if err != nil {
		return "", err
	}

	if err := s.ops.SetPOWarehouseID(ctx, po.RecordID, created.ID); err != nil {
		return created.ID, err
	}

	// Write back warehouse line item IDs, matching by SKU. Each created line
	// claims at most one record so duplicate SKUs pair off in order.
	claimed := make(map[string]bool, len(created.LineItems))
	for _, item := range po.LineItems {
		for _, whItem := range created.LineItems {
			if whItem.SKU != item.SKU || claimed[whItem.ID] {
				continue
			}
			if err := s.ops.SetLineItemWarehouseID(ctx, item.RecordID, whItem.ID); err != nil {
				return created.ID, err
			}
			claimed[whItem.ID] = true
			break
		}
	}
	return created.ID, nil
}

type PullReport struct {
	Synced    int
	Unmatched []string
}

// Pull copies fulfillment status and received quantities from the warehouse
// back onto matching records. A zero cutoff derives one from the earliest
// open purchase order's creation time. Warehouse orders with no record of the
// same PO number are reported, not created. Updates are last writer wins;
// stale local values are overwritten without comparison.
func (s *Syncer) Pull(ctx context.Context, cutoff time.Time) (PullReport, error) {
	if cutoff.IsZero() {
		derived, err := s.deriveCutoff(ctx)
		if err != nil {
			return PullReport{}, err
		}
		cutoff = derived
	}

	remote, err := s.warehouse.PurchaseOrders(ctx, cutoff)
	if err != nil {
		return PullReport{}, err
	}

	var report PullReport
	for _, whPO := range remote {
		local, err := s.ops.FindPOByNumber(ctx, whPO.PONumber)
		if err != nil {
			return report, err
		}
		if local == nil {
			report.Unmatched = append(report.Unmatched, whPO.PONumber)
			logger.Warnw("warehouse purchase order has no local record", "po_number", whPO.PONumber)
			continue
		}

		if local.WarehouseID == "" {
			if err := s.ops.SetPOWarehouseID(ctx, local.RecordID, whPO.ID); err != nil {
				return report, err
			}
		}
		if err := s.ops.SetPOFulfillmentStatus(ctx, local.RecordID, whPO.FulfillmentStatus); err != nil {
			return report, err
		}

		if err := s.pullLineItems(ctx, *local, whPO); err != nil {
			return report, err
		}
		report.Synced++
	}
	return report, nil
}

// pullLineItems matches warehouse line items to local records by warehouse ID
// first, then by SKU for records the forward sync never tagged.
func (s *Syncer) pullLineItems(ctx context.Context, local internal.PurchaseOrder, whPO internal.WarehousePurchaseOrder) error {
	byWarehouseID := make(map[string]internal.OpsLineItem, len(local.LineItems))
	bySKU := map[string]internal.OpsLineItem{}
	for _, item := range local.LineItems {
		if item.WarehouseID != "" {
			byWarehouseID[item.WarehouseID] = item
		}
		if _, seen := bySKU[item.SKU]; !seen {
			bySKU[item.SKU] = item
		}
	}

	for _, whItem := range whPO.LineItems {
		item, ok := byWarehouseID[whItem.ID]
		if !ok {
			item, ok = bySKU[whItem.SKU]
		}
		if !ok {
			logger.Warnw("warehouse line item has no local record",
				"po_number", whPO.PONumber, "sku", whItem.SKU)
			continue
		}

		if item.WarehouseID == "" {
			if err := s.ops.SetLineItemWarehouseID(ctx, item.RecordID, whItem.ID); err != nil {
				return err
			}
		}
		if err := s.ops.SetLineItemReceived(ctx, item.RecordID, whItem.Quantity, whItem.Received); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) deriveCutoff(ctx context.Context) (time.Time, error) {
	open, err := s.ops.OpenPurchaseOrders(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if len(open) == 0 {
		return time.Time{}, errors.New("no open purchase orders to derive a cutoff from")
	}

	earliest := open[0].CreatedAt
	for _, po := range open[1:] {
		if po.CreatedAt.Before(earliest) {
			earliest = po.CreatedAt
		}
	}
	return earliest, nil
}
