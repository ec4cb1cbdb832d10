// gameclient connects the realtime core to a backend and streams lifecycle
// notifications to the console. It is a wire-level diagnostic, not the game.
// Usage: go run ./cmd/gameclient --config configs/client.example.yaml
//
// Environment variables:
//
//	REALTIME_USER_ID - player id used for the login exchange
//	REALTIME_SECRET  - login secret
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/immortalpath/realtime/internal/auth"
	"github.com/immortalpath/realtime/internal/config"
	"github.com/immortalpath/realtime/internal/connection"
	"github.com/immortalpath/realtime/internal/manager"
	"github.com/immortalpath/realtime/internal/metrics"
	"github.com/immortalpath/realtime/internal/netmon"
	"github.com/immortalpath/realtime/internal/pubsub"
	"github.com/immortalpath/realtime/internal/queue"
	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/scheduler"
	"github.com/immortalpath/realtime/internal/store"
	"github.com/immortalpath/realtime/internal/transport"
	"github.com/immortalpath/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	logger.Info("gameclient starting", "version", version.String())

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	st, err := store.OpenBadger(cfg.Store.Path, logger.With("component", "store"))
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	backoff := recovery.BackoffPolicy{
		Base:   cfg.Retry.BaseDelay,
		Max:    cfg.Retry.MaxDelay,
		Jitter: cfg.Retry.Jitter,
	}

	sched := scheduler.New(logger.With("component", "scheduler"))
	bus := pubsub.NewBus()

	authSvc := auth.NewService(st, sched, &demoExchanger{}, auth.Config{
		RefreshThreshold: cfg.Auth.RefreshThreshold,
	}, logger.With("component", "auth"))

	q := queue.New(st, queue.Config{
		MaxSize:    cfg.Queue.MaxSize,
		MaxRetries: cfg.Queue.MaxRetries,
		Retention:  cfg.Queue.Retention,
	}, backoff, logger.With("component", "queue"))

	handler := recovery.NewHandler(recovery.HandlerConfig{
		MaxRetryAttempts: cfg.Retry.MaxAttempts,
		Backoff:          backoff,
	}, logger.With("component", "recovery"))

	selector := manager.NewTransportSelector(cfg.Transport.URL, cfg.Transport.FallbackURL)

	conns := connection.NewManager(connection.Config{
		HandshakeTimeout:   cfg.Transport.HandshakeTimeout,
		HealthInterval:     cfg.Health.Interval,
		HealthTimeout:      cfg.Health.Timeout,
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		AuthMaxRetries:     cfg.Auth.MaxRetries,
		AuthRetryDelay:     cfg.Auth.RetryDelay,
	}, authSvc, func() transport.Client {
		return transport.NewClient(transport.ClientConfig{
			URL:            selector.URL(),
			ConnectTimeout: cfg.Transport.ConnectTimeout,
			WriteTimeout:   cfg.Transport.WriteTimeout,
			BufferSize:     cfg.Transport.BufferSize,
		}, logger.With("component", "transport"))
	}, logger.With("component", "connection"))

	monitor := netmon.NewMonitor(nil, 5*time.Second, logger.With("component", "netmon"))

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.New(nil)
		go func() {
			if err := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path, nil); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	mgr := manager.New(manager.Deps{
		Config:   cfg,
		Auth:     authSvc,
		Conns:    conns,
		Queue:    q,
		Handler:  handler,
		Monitor:  monitor,
		Bus:      bus,
		Sched:    sched,
		Selector: selector,
		Metrics:  met,
		Logger:   logger.With("component", "manager"),
	})

	mgr.On(manager.TopicStateChanged, func(payload interface{}) {
		if change, ok := payload.(manager.StateChange); ok {
			fmt.Printf("state: %s -> %s\n", change.From, change.To)
		}
	})
	mgr.On(manager.TopicError, func(payload interface{}) {
		if notice, ok := payload.(manager.ErrorNotice); ok {
			fmt.Printf("error: %s (%s): %s\n", notice.Type, notice.Strategy, notice.Message)
		}
	})

	mgr.Start(ctx)

	creds := &auth.Credentials{
		UserID: os.Getenv("REALTIME_USER_ID"),
		Secret: os.Getenv("REALTIME_SECRET"),
	}
	if creds.UserID == "" {
		creds = nil // reuse stored token
	}

	if err := mgr.Connect(ctx, creds); err != nil {
		logger.Warn("initial connect failed, recovery is in charge", "error", err)
	}

	// Emit a heartbeat event so queueing behavior is visible offline too.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mgr.Disconnect()
			logger.Info("gameclient stopped", "stats", fmt.Sprintf("%+v", mgr.Stats()))
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]string{"ping_id": uuid.NewString()})
			if err := mgr.Emit("client_heartbeat", payload); err != nil {
				logger.Warn("emit failed", "error", err)
			}
		}
	}
}

// demoExchanger forges short-lived tokens locally so the binary can exercise
// the full lifecycle against test backends that accept any bearer token.
type demoExchanger struct{}

func (demoExchanger) Exchange(_ context.Context, creds auth.Credentials) (auth.TokenInfo, error) {
	return auth.TokenInfo{
		Token:        uuid.NewString(),
		RefreshToken: uuid.NewString(),
		UserID:       creds.UserID,
		ExpiresAt:    time.Now().Add(time.Hour),
		Scope:        []string{"game"},
	}, nil
}

func (demoExchanger) Refresh(_ context.Context, _ string) (auth.TokenInfo, error) {
	return auth.TokenInfo{
		Token:        uuid.NewString(),
		RefreshToken: uuid.NewString(),
		UserID:       "demo",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scope:        []string{"game"},
	}, nil
}
