package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
	"bitbucket.org/mmdatafocus/fleetsync_backend/frotixsync"
	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

func main() {
	modeFlag := flag.String("mode", "incremental", "sync mode: full, incremental, resume, details-only")
	noDetails := flag.Bool("no-details", false, "skip the detail enrichment phase")
	maxRecords := flag.Int("max", 0, "cap on new headers taken this run (0 = unlimited)")
	openedAfter := flag.String("opened-after", "", "only take orders opened on or after this date (YYYY-MM-DD)")
	openedBefore := flag.String("opened-before", "", "only take orders opened on or before this date (YYYY-MM-DD)")
	pageSize := flag.Int("page-size", 0, "remote page size (0 = default)")
	noLock := flag.Bool("no-lock", false, "skip the distributed run lock (no Redis needed)")
	flag.Parse()

	mode, err := frotixsync.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := frotixsync.Options{
		Mode:        mode,
		NoDetails:   *noDetails,
		MaxRecords:  *maxRecords,
		PageSize:    *pageSize,
		TriggeredBy: models.SyncTriggeredManual,
	}
	if *openedAfter != "" {
		t, err := time.Parse("2006-01-02", *openedAfter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --opened-after: %v\n", err)
			os.Exit(1)
		}
		opts.OpenedAfter = &t
	}
	if *openedBefore != "" {
		t, err := time.Parse("2006-01-02", *openedBefore)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --opened-before: %v\n", err)
			os.Exit(1)
		}
		opts.OpenedBefore = &t
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database connection not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	if !*noLock {
		config.ConnectRedisWithRetry()
	}

	engine := frotixsync.NewDefaultEngine()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		engine.Stop()
	}()

	var result frotixsync.SyncResult
	if *noLock {
		result = engine.Run(context.Background(), opts)
	} else {
		result, err = frotixsync.RunLocked(context.Background(), engine, opts)
		if errors.Is(err, frotixsync.ErrSyncAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "another sync is already running")
			os.Exit(1)
		}
		// An error without a result.Err means the lock step failed and the
		// engine never ran; there is no summary worth printing.
		if err != nil && result.Err == nil {
			fmt.Fprintf(os.Stderr, "could not start sync: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("mode:             %s\n", result.Mode)
	fmt.Printf("pages fetched:    %d\n", result.PagesFetched)
	fmt.Printf("headers inserted: %d\n", result.HeadersInserted)
	fmt.Printf("headers skipped:  %d\n", result.HeadersSkipped)
	fmt.Printf("details synced:   %d\n", result.DetailsSynced)
	fmt.Printf("details failed:   %d\n", result.DetailsFailed)
	fmt.Printf("items written:    %d\n", result.ItemsWritten)
	fmt.Printf("vehicles updated: %d\n", result.VehiclesUpdated)
	fmt.Printf("duration:         %s\n", result.Duration.Round(time.Millisecond))

	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "sync finished with error: %v\n", result.Err)
		os.Exit(1)
	}
}
