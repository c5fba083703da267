package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
)

// import-log-sweeper marks import logs stuck in `processing` as failed.
// Imports killed by request timeouts or instance shutdowns never reach
// their finalize step; this job closes them out. Run it on a schedule.
func main() {
	olderThan := flag.Duration("older-than", 2*time.Hour, "minimum age of a processing log before it is considered stale")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	swept, err := models.SweepStaleImportLogs(ctx, *olderThan)
	if err != nil {
		log.Fatalf("sweep stale import logs: %v", err)
	}
	if swept > 0 {
		// Cached history pages may still show the swept rows as processing.
		utils.ErrorPanic(config.ClearRedis(ctx))
	}
	log.Printf("marked %d stale import logs as failed", swept)
}
