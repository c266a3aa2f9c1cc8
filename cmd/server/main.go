package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder1568/one9wordchain/internal/auth"
	"github.com/coder1568/one9wordchain/internal/config"
	"github.com/coder1568/one9wordchain/internal/dictionary"
	"github.com/coder1568/one9wordchain/internal/httpapi"
	"github.com/coder1568/one9wordchain/internal/hub"
	"github.com/coder1568/one9wordchain/internal/lobby"
	"github.com/coder1568/one9wordchain/internal/recorder"
	"github.com/coder1568/one9wordchain/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg config.Config, log *zap.Logger) error {
	dict, reload, err := openDictionary(cfg, log)
	if err != nil {
		return err
	}

	var store recorder.Store = recorder.Nop{}
	if cfg.DatabaseDSN != "" {
		g, err := recorder.Open(cfg.DatabaseDSN, log.Named("recorder"))
		if err != nil {
			return err
		}
		store = g
	} else {
		log.Warn("DATABASE_DSN not set, game results are not stored")
	}

	h := hub.NewHub(context.Background(), lobby.Deps{
		Dictionary:    dict,
		Recorder:      store,
		Logger:        log.Named("lobby"),
		Settings:      cfg.Settings,
		RecordTimeout: cfg.RecordTimeout,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:     h,
			Auth:    auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
			Archive: store,
			Reload:  reload,
			Logger:  log.Named("http"),
			WS:      ws.Options{OriginPatterns: cfg.AllowedOrigins},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Int("words", dict.Len()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if reload != nil && cfg.DictionaryReload > 0 {
		g.Go(func() error {
			t := time.NewTicker(cfg.DictionaryReload)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if n, err := reload(gctx); err != nil {
						log.Error("dictionary reload failed", zap.Error(err), zap.Int("words", n))
					} else {
						log.Debug("dictionary reloaded", zap.Int("words", n))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Games are ended and recorded before the store closes.
		return multierr.Combine(
			srv.Shutdown(sctx),
			h.Shutdown(sctx),
			store.Close(),
		)
	})

	return g.Wait()
}

// openDictionary loads the configured word files, or the embedded list when
// none are set. The returned reloader is nil for the embedded list. A failed
// reload keeps serving the previous words.
func openDictionary(cfg config.Config, log *zap.Logger) (*dictionary.Dictionary, httpapi.Reloader, error) {
	if len(cfg.DictionaryPaths) == 0 {
		return dictionary.Default(), nil, nil
	}
	dict := dictionary.New()
	if err := dict.LoadFiles(cfg.DictionaryPaths...); err != nil {
		return nil, nil, err
	}
	log.Info("dictionary loaded", zap.Int("words", dict.Len()), zap.Strings("paths", cfg.DictionaryPaths))
	reload := func(context.Context) (int, error) {
		err := dict.LoadFiles(cfg.DictionaryPaths...)
		return dict.Len(), err
	}
	return dict, reload, nil
}
