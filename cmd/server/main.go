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

	"collabhub/internal/auth"
	"collabhub/internal/config"
	"collabhub/internal/database"
	"collabhub/internal/handlers"
	"collabhub/internal/metrics"
	"collabhub/internal/presence"
	"collabhub/internal/services"
	"collabhub/internal/websocket"
	"collabhub/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "collabhub: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logger.New(logger.Config{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
		Service:     "collabhub",
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer zl.Sync()
	logger.SetGlobal(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	table, err := openPresence(ctx, cfg.Presence)
	if err != nil {
		return err
	}
	defer table.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	authService := auth.NewService(db, cfg.JWT, logger.Named("auth"))
	messageService := services.NewMessageService(db, cfg.History, m, logger.Named("messages"))
	groupService := services.NewGroupService(db, logger.Named("groups"))

	// Initialize the relay
	hub := websocket.NewHub(m, logger.Named("hub"))
	relay := websocket.NewRelay(websocket.Deps{
		Hub:      hub,
		Messages: messageService,
		Groups:   groupService,
		Users:    db,
		Presence: table,
		Metrics:  m,
		Config:   cfg.WebSocket,
		Log:      logger.Named("relay"),
	})

	httpLog := logger.Named("http")
	router := &handlers.Router{
		Auth:           handlers.NewAuthHandlers(authService, httpLog),
		Messages:       handlers.NewMessageHandlers(messageService, relay, httpLog),
		Groups:         handlers.NewGroupHandlers(groupService, httpLog),
		WebSocket:      handlers.NewWebSocketHandlers(authService, relay, m, cfg.Server.AllowedOrigins, httpLog),
		Verifier:       authService,
		Metrics:        m.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            httpLog,
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server started on %s (store=%s, presence=%s)", cfg.Server.Port, cfg.Store.Driver, cfg.Presence.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http: %w", err)
		}
		// Websocket sessions are hijacked, so Shutdown does not wait for them.
		if err := relay.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("waiting for sessions: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (database.Database, error) {
	switch cfg.Driver {
	case "badger":
		db, err := database.NewBadgerDB(logger.Named("badger"), cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening badger store: %w", err)
		}
		return db, nil
	default:
		db, err := database.NewPostgresDB(ctx, logger.Named("postgres"), cfg.DatabaseURL, cfg.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return db, nil
	}
}

func openPresence(ctx context.Context, cfg config.PresenceConfig) (presence.Table, error) {
	if cfg.Backend != "redis" {
		return presence.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log := logger.Named("presence")
	ping := func() error { return client.Ping(ctx).Err() }
	notify := func(err error, wait time.Duration) {
		log.Warnw("Redis not ready, retrying", "addr", cfg.RedisAddr, "wait", wait, "error", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Infow("Connected to redis", "addr", cfg.RedisAddr)
	return presence.NewRedis(client), nil
}
