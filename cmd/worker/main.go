package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/bootstrap"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/config"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/observability/logging"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/observability/metrics"
)

const processTimeout = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	scheduler := startSchedules(ctx, cfg, app, workerMetrics, logger)
	defer scheduler.Stop()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.Subscribe(ctx, func(handlerCtx context.Context, task domain.Task) error {
		return dispatch(handlerCtx, cfg, app, workerMetrics, logger, task)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func dispatch(ctx context.Context, cfg config.Config, app *bootstrap.App, m *metrics.WorkerMetrics, logger *slog.Logger, task domain.Task) error {
	if !task.SubmittedAt.IsZero() {
		m.ObserveQueueLag("worker", time.Since(task.SubmittedAt))
	}

	taskCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	switch task.Kind {
	case domain.TaskProcessDocument:
		m.StartDocument()
		start := time.Now()
		summary, err := app.ProcessUC.Process(taskCtx, task.FileID)
		status := string(summary.Status)
		if err != nil {
			if domain.IsKind(err, domain.ErrNotEligible) {
				logger.Info("skipping task, record not pending", "file_id", task.FileID)
				m.FinishDocument("worker", "not_eligible", time.Since(start))
				return nil
			}
			status = string(domain.StatusFailed)
		}
		m.FinishDocument("worker", status, time.Since(start))
		return err

	case domain.TaskBatchProcess:
		_, err := app.BatchUC.SubmitBatch(taskCtx, task.Limit)
		return err

	case domain.TaskApproveDocument:
		return app.ApproveUC.Approve(taskCtx, task.FileID, task.Approved, task.Comment)

	case domain.TaskVersionDedup:
		stats, err := app.DedupUC.Sweep(taskCtx, sweepLimit(task, cfg))
		m.ObserveSweep("worker", "version_dedup", stats.Deleted, err)
		return err

	case domain.TaskExpirationCheck:
		stats, err := app.ExpiryUC.Sweep(taskCtx, sweepLimit(task, cfg))
		m.ObserveSweep("worker", "expiration_check", stats.Deleted, err)
		return err

	default:
		logger.Error("unknown task kind", "kind", string(task.Kind), "task_id", task.ID)
		return nil
	}
}

func sweepLimit(task domain.Task, cfg config.Config) int {
	if task.Limit > 0 {
		return task.Limit
	}
	return cfg.SweepLimit
}

// startSchedules wires the recurring jobs: batch fan-out of pending files,
// nightly version dedup and expiration sweeps.
func startSchedules(ctx context.Context, cfg config.Config, app *bootstrap.App, m *metrics.WorkerMetrics, logger *slog.Logger) *cron.Cron {
	scheduler := cron.New(cron.WithSeconds())

	mustSchedule(scheduler, cfg.BatchCronSpec, func() {
		runCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		if submitted, err := app.BatchUC.SubmitBatch(runCtx, cfg.BatchLimit); err != nil {
			logger.Error("scheduled batch failed", "error", err)
		} else if submitted > 0 {
			logger.Info("scheduled batch submitted", "count", submitted)
		}
	})
	mustSchedule(scheduler, cfg.DedupCronSpec, func() {
		runCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		stats, err := app.DedupUC.Sweep(runCtx, cfg.SweepLimit)
		m.ObserveSweep("worker", "version_dedup", stats.Deleted, err)
		if err != nil {
			logger.Error("scheduled dedup sweep failed", "error", err)
		}
	})
	mustSchedule(scheduler, cfg.ExpiryCronSpec, func() {
		runCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		stats, err := app.ExpiryUC.Sweep(runCtx, cfg.SweepLimit)
		m.ObserveSweep("worker", "expiration_check", stats.Deleted, err)
		if err != nil {
			logger.Error("scheduled expiration sweep failed", "error", err)
		}
	})

	scheduler.Start()
	return scheduler
}

func mustSchedule(scheduler *cron.Cron, spec string, job func()) {
	if _, err := scheduler.AddFunc(spec, job); err != nil {
		log.Fatalf("invalid cron spec %q: %v", spec, err)
	}
}
