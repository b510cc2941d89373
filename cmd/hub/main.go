package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/picking-system/internal/config"
	"github.com/mmeshcher/picking-system/internal/handler"
	"github.com/mmeshcher/picking-system/internal/repository"
	"github.com/mmeshcher/picking-system/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.ParseHub()
	if err != nil {
		sugar.Fatalw("failed to parse config", "error", err)
	}
	if cfg.DatabaseURI == "" {
		sugar.Fatalw("database URI is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewRepository(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("failed to init repository", "error", err)
	}
	defer repo.Close()

	files, err := service.NewFileStore(cfg.DocumentsDir)
	if err != nil {
		sugar.Fatalw("failed to init file store", "error", err)
	}

	svc := service.NewService(repo, files, logger)
	h := handler.NewHandler(svc, logger)

	srv := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: handler.NewRouter(h, logger),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("hub server started", "address", cfg.RunAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sugar.Infow("shutting down hub server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("hub server failed", "error", err)
	}

	sugar.Infow("hub server stopped")
}
