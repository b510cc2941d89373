package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/picking-system/internal/config"
	"github.com/mmeshcher/picking-system/internal/hubapi"
	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/queue"
	"github.com/mmeshcher/picking-system/internal/syncer"
)

const monitorInterval = 30 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.ParseAgent()
	if err != nil {
		sugar.Fatalw("failed to parse config", "error", err)
	}

	deviceID, err := os.Hostname()
	if err != nil {
		deviceID = "unknown-device"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := queue.Open(cfg.DataDir, cfg.MaxQueueSize, logger)
	if err != nil {
		sugar.Fatalw("failed to open local store", "error", err)
	}
	defer store.Close()

	client := hubapi.NewClient(cfg.HubAddress, cfg.RequestTimeout)
	engine := syncer.NewEngine(store, client, cfg, deviceID, logger)
	monitor := syncer.NewMonitor(client, store, engine, monitorInterval, logger)

	if cfg.Operator != "" {
		startSession(ctx, client, engine, cfg.Operator, deviceID, sugar)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(gCtx) })
	g.Go(func() error { return monitor.Run(gCtx) })

	// Стартовый проход: накопленное с прошлого запуска уходит сразу.
	engine.Kick()

	sugar.Infow("picker agent started",
		"hub", cfg.HubAddress,
		"operator", cfg.Operator,
		"device", deviceID,
		"sync_interval", cfg.SyncInterval)

	if err := g.Wait(); err != nil {
		sugar.Fatalw("picker agent failed", "error", err)
	}

	sugar.Infow("picker agent stopped")
}

// startSession регистрирует смену на хабе; при недоступном хабе смена
// остаётся только в локальном журнале и доедет со следующим проходом.
func startSession(ctx context.Context, client *hubapi.Client, engine *syncer.Engine, operator, deviceID string, sugar *zap.SugaredLogger) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if id, err := client.StartSession(reqCtx, operator); err != nil {
		sugar.Warnw("failed to start session on hub", "error", err)
	} else {
		sugar.Infow("session started", "session", id)
	}

	if err := engine.QueueLog(model.ActivityLog{
		Type:     model.LogSessionStarted,
		Operator: operator,
		DeviceID: deviceID,
	}); err != nil {
		sugar.Errorw("failed to queue session log", "error", err)
	}
}
