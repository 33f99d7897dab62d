package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"replenish/internal/config"
	"replenish/internal/jobs"
	"replenish/internal/logger"
	"replenish/internal/server"
	"replenish/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := logger.Init(cfg.LogMode, cfg.LogDir)
	defer func() { _ = log.Sync() }()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	runner := jobs.NewRunner(db)
	jobSet := jobs.New(cfg, db)
	ctx := context.Background()

	cmd := os.Args[1]
	switch cmd {
	case "replenish:prepare":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		useCacheStock := fs.Bool("use-cache-stock", false, "reuse the last stock level snapshot")
		useCacheSales := fs.Bool("use-cache-sales", false, "reuse the last sales snapshot")
		xlsx := fs.String("xlsx", "", "also export to this xlsx path")
		_ = fs.Parse(os.Args[2:])
		opts := jobs.PrepareOptions{
			UseCacheStock: *useCacheStock,
			UseCacheSales: *useCacheSales,
			XLSXPath:      *xlsx,
		}
		must(runner.Run(ctx, jobs.JobPrepareReplenishment, jobSet.PrepareReplenishment(opts)))
		fmt.Println("replenishment table prepared")
	case "po:push":
		must(runner.Run(ctx, jobs.JobPOPush, jobSet.POPush()))
		fmt.Println("purchase order push complete")
	case "po:pull":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		createdFrom := fs.String("created-from", "", "cutoff date YYYY-MM-DD, default derived from open POs")
		_ = fs.Parse(os.Args[2:])
		var cutoff time.Time
		if strings.TrimSpace(*createdFrom) != "" {
			parsed, err := time.Parse("2006-01-02", *createdFrom)
			must(err)
			cutoff = parsed
		}
		must(runner.Run(ctx, jobs.JobPOPull, jobSet.POPull(cutoff)))
		fmt.Println("purchase order pull complete")
	case "po:populate":
		must(runner.Run(ctx, jobs.JobPopulateProduction, jobSet.PopulateProduction()))
		fmt.Println("production purchase orders populated")
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.ServerAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		cfg.ServerAddr = *addr
		srv := server.New(cfg, runner, jobSet)
		fmt.Printf("listening on %s\n", cfg.ServerAddr)
		must(srv.Run())
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: replenish <command> [flags]")
	fmt.Println("commands:")
	fmt.Println("  replenish:prepare  build the replenishment table and publish it [--use-cache-stock] [--use-cache-sales] [--xlsx path]")
	fmt.Println("  po:push            send queued purchase orders to the warehouse")
	fmt.Println("  po:pull            pull fulfillment progress from the warehouse [--created-from YYYY-MM-DD]")
	fmt.Println("  po:populate        create purchase orders from the reviewed worksheet")
	fmt.Println("  serve              run the webhook server [--addr :5001]")
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
