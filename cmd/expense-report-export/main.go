package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
	"bitbucket.org/mmdatafocus/fleetsync_backend/models/reports"
)

func main() {
	out := flag.String("out", "vehicle-expenses.xlsx", "output file path")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database connection not initialized")
		os.Exit(1)
	}

	rows, err := reports.GetVehicleExpenseReport(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "report query failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no aggregates found; run a sync first")
		os.Exit(1)
	}

	if err := reports.ExportVehicleExpenseExcel(rows, *out); err != nil {
		fmt.Fprintf(os.Stderr, "excel export failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d vehicles to %s\n", len(rows), *out)
}
