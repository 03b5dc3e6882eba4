package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/taskmanager/internal/app"
	"github.com/noah-isme/taskmanager/internal/observability"
	"github.com/noah-isme/taskmanager/internal/tasks"
	"github.com/noah-isme/taskmanager/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	trigger := flag.String("trigger", "", "enqueue a job by type (tasks:sweep_orphans) and exit")
	inspect := flag.Bool("inspect", false, "print default queue statistics and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	if *trigger != "" || *inspect {
		if err := runCLI(ctx, redisOpts, *trigger, *inspect); err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	metrics := observability.NewMetrics()
	reaper := jobs.NewReaperJob(tasks.NewService(stores.Tasks), stores.Users, logger, metrics.Jobs())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPurgeOwner, Handler: reaper.HandlePurgeOwner},
			{Type: jobs.TaskSweepOrphans, Handler: reaper.HandleSweepOrphans},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OrphanSweepCron, Task: jobs.NewSweepOrphansTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, redisOpts asynq.RedisClientOpt, trigger string, inspect bool) error {
	cli := NewJobsCLI(redisOpts)
	defer func() { _ = cli.Close() }()

	if trigger != "" {
		info, err := cli.Trigger(ctx, trigger)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	}
	if inspect {
		stats, err := cli.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	}
	return nil
}
