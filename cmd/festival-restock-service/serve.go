package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	httpapi "github.com/fairyhunter13/festival-restock-service/internal/http"
	"github.com/fairyhunter13/festival-restock-service/internal/obs"
	"github.com/fairyhunter13/festival-restock-service/internal/predict"
	"github.com/fairyhunter13/festival-restock-service/internal/queue"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

// buildStore returns the configured store and, for a watched file store, its watcher.
func buildStore(cfg config.Config) (store.Store, *store.Watcher, error) {
	if cfg.StoreBackend == config.BackendMemory {
		return store.NewMemory(), nil, nil
	}
	fs := store.NewFile(cfg.StorePath)
	if !cfg.StoreWatch {
		return fs, nil, nil
	}
	w, err := store.NewWatcher(fs)
	if err != nil {
		return nil, nil, err
	}
	return fs, w, nil
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	obs.Logger.Info("service_starting",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("store_path", cfg.StorePath),
		zap.String("predictor", cfg.Predictor),
	)

	st, watcher, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	p, err := predict.New(cfg.Predictor, cfg.PredictorSeed)
	if err != nil {
		return err
	}

	writer := queue.NewWriter(cfg, queue.New(cfg.QueueBuffer), st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)

	app := httpapi.NewApp(cfg, writer, p)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		obs.Logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		obs.Logger.Info("shutdown_signal", zap.NamedError("cause", context.Cause(gctx)))

		app.StartShutdown()
		obs.Logger.Info("shutdown_drain_begin", zap.Int("backlog_size", writer.BacklogSize()))
		ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelDrain()
		if drained := writer.DrainUntil(ctxDrain); !drained {
			obs.Logger.Warn("shutdown_drain_timeout")
		} else {
			obs.Logger.Info("shutdown_drain_complete")
		}

		ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSrv()
		if err := srv.Shutdown(ctxSrv); err != nil {
			obs.Logger.Error("http_shutdown_error", zap.Error(err))
		}
		writer.Stop()
		return nil
	})

	err = g.Wait()
	obs.Logger.Info("service_stopped")
	return err
}
