package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"replenish/internal"
	"replenish/internal/config"
	"replenish/internal/logger"
	"replenish/internal/opsdb"
	"replenish/internal/pipeline"
	"replenish/internal/populate"
	"replenish/internal/posync"
	"replenish/internal/sheets"
	"replenish/internal/shop"
	"replenish/internal/storage"
	"replenish/internal/warehouse"
)

const (
	JobPrepareReplenishment = "prepare-replenishment"
	JobPOPush               = "po-push"
	JobPOPull               = "po-pull"
	JobPopulateProduction   = "populate-production"
)

const (
	snapshotStockLevels = "warehouse_stock_levels"
	snapshotSales       = "shop_sales"
)

// Jobs builds and runs the four pipeline jobs against live clients.
type Jobs struct {
	cfg config.Config
	db  *storage.DB
}

func New(cfg config.Config, db *storage.DB) *Jobs {
	return &Jobs{cfg: cfg, db: db}
}

func (j *Jobs) warehouseClient() *warehouse.Client {
	return warehouse.NewClient(j.cfg, warehouse.NewTokenProvider(j.cfg, j.db))
}

// PrepareOptions controls one replenishment preparation run. The cache flags
// replay the previous run's snapshot of an expensive upstream fetch instead
// of fetching fresh.
type PrepareOptions struct {
	UseCacheStock bool
	UseCacheSales bool
	XLSXPath      string
}

// PrepareReplenishment assembles the replenishment table from warehouse
// stock, incoming purchase orders, shop committed inventory and sales, and
// product metadata, then publishes it to the review worksheet and optionally
// an XLSX file.
func (j *Jobs) PrepareReplenishment(opts PrepareOptions) JobFunc {
	return func(ctx context.Context) (map[string]int, error) {
		now := time.Now()

		levels, err := j.fetchStockLevels(ctx, opts.UseCacheStock)
		if err != nil {
			return nil, err
		}

		ops := opsdb.NewService(j.cfg)
		openItems, err := ops.IncomingLineItems(ctx)
		if err != nil {
			return nil, err
		}
		incoming := pipeline.AggregateIncoming(openItems)

		shopClient := shop.NewClient(j.cfg)
		variants, committedLevels, err := shopClient.InventoryLevels(ctx)
		if err != nil {
			return nil, err
		}

		stock := pipeline.MergeStockLevels(levels, incoming, variants, committedLevels, j.cfg.FulfillmentLocationID)
		if len(stock) == 0 {
			// An empty warehouse source means nothing to replenish, not a
			// failure.
			logger.Warnw("no warehouse stock levels, nothing to publish")
			return map[string]int{"stock_records": 0, "table_rows": 0}, nil
		}

		salesRecords, err := j.fetchSalesRecords(ctx, shopClient, opts.UseCacheSales, now)
		if err != nil {
			return nil, err
		}
		salesMatrix := pipeline.BuildSalesMatrix(salesRecords, now)

		metadata, err := ops.ProductMetadata(ctx)
		if err != nil {
			return nil, err
		}

		table, err := pipeline.BuildReplenishmentTable(stock, salesMatrix, metadata, now)
		if err != nil {
			return nil, err
		}

		if len(table.Rows) == 0 {
			// An empty metadata source empties the table; leave the last
			// published review sheet in place rather than clearing it.
			logger.Warnw("replenishment table is empty, skipping publish")
		} else if j.cfg.SheetsSpreadsheetID != "" {
			sheetClient, err := sheets.NewClient(ctx, j.cfg)
			if err != nil {
				return nil, err
			}
			if err := sheetClient.WriteTable(ctx, j.cfg.SheetsWorksheet, table); err != nil {
				return nil, err
			}
		} else {
			logger.Warnw("no spreadsheet configured, skipping sheet publish")
		}

		if len(table.Rows) > 0 && opts.XLSXPath != "" {
			path := opts.XLSXPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(j.cfg.OutputDir, path)
			}
			if err := pipeline.ExportTableToXLSX(table, path); err != nil {
				return nil, err
			}
			logger.Infow("exported replenishment table", "path", path)
		}

		return map[string]int{
			"stock_records": len(stock),
			"sales_records": len(salesRecords),
			"metadata_rows": len(metadata),
			"table_rows":    len(table.Rows),
			"sales_skus":    len(salesMatrix.BySKU),
			"incoming_skus": len(incoming),
			"open_po_items": len(openItems),
		}, nil
	}
}

func (j *Jobs) fetchStockLevels(ctx context.Context, useCache bool) ([]internal.WarehouseStockLevel, error) {
	if useCache {
		var levels []internal.WarehouseStockLevel
		ok, err := j.loadSnapshot(snapshotStockLevels, &levels)
		if err != nil {
			return nil, err
		}
		if ok {
			return levels, nil
		}
		logger.Warnw("no stock level snapshot, fetching fresh")
	}

	levels, err := j.warehouseClient().StockLevels(ctx)
	if err != nil {
		return nil, err
	}
	j.saveSnapshot(snapshotStockLevels, levels)
	return levels, nil
}

func (j *Jobs) fetchSalesRecords(ctx context.Context, client *shop.Client, useCache bool, now time.Time) ([]internal.SalesRecord, error) {
	if useCache {
		var records []internal.SalesRecord
		ok, err := j.loadSnapshot(snapshotSales, &records)
		if err != nil {
			return nil, err
		}
		if ok {
			return records, nil
		}
		logger.Warnw("no sales snapshot, fetching fresh")
	}

	records, err := client.SalesRecords(ctx, now)
	if err != nil {
		return nil, err
	}
	j.saveSnapshot(snapshotSales, records)
	return records, nil
}

func (j *Jobs) loadSnapshot(source string, into any) (bool, error) {
	payload, fetchedAt, err := j.db.GetSnapshot(source)
	if err != nil {
		return false, err
	}
	if payload == nil {
		return false, nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return false, fmt.Errorf("corrupt snapshot %s: %w", source, err)
	}
	if fetchedAt != nil {
		logger.Infow("using cached snapshot", "source", source, "fetched_at", fetchedAt.Format(time.RFC3339))
	}
	return true, nil
}

func (j *Jobs) saveSnapshot(source string, payload any) {
	blob, err := json.Marshal(payload)
	if err != nil {
		logger.Warnw("snapshot marshal failed", "source", source, "error", err)
		return
	}
	if err := j.db.SaveSnapshot(source, blob); err != nil {
		logger.Warnw("snapshot write failed", "source", source, "error", err)
	}
}

// POPush sends queued purchase orders to the warehouse.
func (j *Jobs) POPush() JobFunc {
	return func(ctx context.Context) (map[string]int, error) {
		syncer := posync.NewSyncer(j.warehouseClient(), opsdb.NewService(j.cfg), j.cfg.WarehouseID)
		report, err := syncer.Push(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"synced": report.Synced, "failed": report.Failed, "unrecorded": len(report.Unrecorded)}, nil
	}
}

// POPull copies fulfillment progress from the warehouse back onto local
// records. A zero createdFrom lets the syncer derive the cutoff.
func (j *Jobs) POPull(createdFrom time.Time) JobFunc {
	return func(ctx context.Context) (map[string]int, error) {
		syncer := posync.NewSyncer(j.warehouseClient(), opsdb.NewService(j.cfg), j.cfg.WarehouseID)
		report, err := syncer.Pull(ctx, createdFrom)
		if err != nil {
			return nil, err
		}
		return map[string]int{"synced": report.Synced, "unmatched": len(report.Unmatched)}, nil
	}
}

// PopulateProduction turns reviewed worksheet quantities into new purchase
// orders.
func (j *Jobs) PopulateProduction() JobFunc {
	return func(ctx context.Context) (map[string]int, error) {
		sheetClient, err := sheets.NewClient(ctx, j.cfg)
		if err != nil {
			return nil, err
		}
		populator := populate.NewPopulator(sheetClient, opsdb.NewService(j.cfg), j.cfg.SheetsWorksheet)
		report, err := populator.Run(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"purchase_orders": report.PurchaseOrders, "line_items": report.LineItems}, nil
	}
}
