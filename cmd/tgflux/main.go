package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/danhigham/tgflux/internal/config"
	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/loopback"
	"github.com/danhigham/tgflux/internal/metrics"
	"github.com/danhigham/tgflux/internal/state"
	"github.com/danhigham/tgflux/internal/store"
	"github.com/danhigham/tgflux/internal/telegram"
	"github.com/danhigham/tgflux/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	cfgDir := config.Dir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")
	cfg, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	if err := os.MkdirAll(cfgDir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel, filepath.Join(cfgDir, "tgflux.log"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	transport, dir, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}

	reducer := state.NewReducer(transport,
		state.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		state.WithLogger(logger),
		state.WithMetrics(m),
	)

	// The change hook is set before the store runs, so app is never nil
	// when it fires.
	var app *ui.App
	st := state.NewStore(state.New(domain.UserID(cfg.LocalUserID)), reducer,
		store.WithLogger[state.AppState, state.Action](logger),
		store.WithMetrics[state.AppState, state.Action](m),
		store.WithOnChange[state.AppState, state.Action](func(s state.AppState) { app.OnChange(s) }),
	)
	app = ui.NewApp(st, dir, cfg.Delivery.MaxAttempts)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	storeDone := make(chan error, 1)
	go func() {
		storeDone <- st.Run(ctx)
	}()
	st.Dispatch(state.Connect{})

	logger.Info("starting", zap.String("transport", cfg.Transport), zap.String("local_user", cfg.LocalUserID))
	uiErr := app.Run()

	// Stop the store and wait for in-flight deliveries to give up.
	cancel()
	if err := <-storeDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("store stopped", zap.Error(err))
	}
	return uiErr
}

func newLogger(level, path string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = lvl
	logCfg.OutputPaths = []string{path}
	logCfg.ErrorOutputPaths = []string{path}
	return logCfg.Build()
}

func newTransport(cfg *config.Config, logger *zap.Logger) (domain.Transport, domain.Directory, error) {
	switch cfg.Transport {
	case config.TransportTelegram:
		if err := os.MkdirAll(cfg.Telegram.SessionDir, 0700); err != nil {
			return nil, nil, fmt.Errorf("create session dir: %w", err)
		}
		c := telegram.New(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.Telegram.SessionDir,
			domain.UserID(cfg.LocalUserID), telegram.WithLogger(logger))
		return c, c, nil
	default:
		chats := make([]domain.ChatID, len(cfg.Loopback.Chats))
		for i, c := range cfg.Loopback.Chats {
			chats[i] = domain.ChatID(c)
		}
		opts := []loopback.Option{
			loopback.WithLatency(cfg.Loopback.Latency),
			loopback.WithFailures(cfg.Loopback.Failures),
			loopback.WithChats(chats...),
			loopback.WithLogger(logger),
		}
		if cfg.Loopback.Echo {
			opts = append(opts, loopback.WithEcho())
		}
		t := loopback.New(opts...)
		return t, t, nil
	}
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}
