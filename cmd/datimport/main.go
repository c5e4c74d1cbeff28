package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/bootstrap"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/config"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/datimport"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/observability/logging"
)

// datimport loads one DAT export into the file table. Without -file it picks
// the newest export for yesterday under DAT_IMPORT_DIR, matching the
// producer's publishing schedule.
func main() {
	var (
		file  = flag.String("file", "", "DAT file to import; overrides directory discovery")
		day   = flag.String("day", "", "export day to discover, 2006-01-02; defaults to yesterday")
		batch = flag.Bool("submit-batch", false, "submit a processing batch after importing")
	)
	flag.Parse()

	cfg := config.Load()
	logger := logging.New("datimport", cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	path := *file
	if path == "" {
		target := time.Now().AddDate(0, 0, -1)
		if *day != "" {
			target, err = time.Parse("2006-01-02", *day)
			if err != nil {
				log.Fatalf("bad -day value %q: %v", *day, err)
			}
		}
		path, err = datimport.LatestDATFile(cfg.DATImportDir, target)
		if err != nil {
			log.Fatalf("discover dat file: %v", err)
		}
	}

	stats, err := app.Importer.ImportFile(ctx, path)
	if err != nil {
		log.Fatalf("import error: %v", err)
	}
	logger.Info("import done",
		"path", path,
		"lines", stats.Lines,
		"created", stats.Created,
		"updated", stats.Updated,
		"errors", stats.Errors)

	if *batch {
		submitted, err := app.BatchUC.SubmitBatch(ctx, cfg.BatchLimit)
		if err != nil {
			log.Fatalf("submit batch: %v", err)
		}
		logger.Info("batch submitted", "count", submitted)
	}
}
