package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/config"
	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/persistence"
	"github.com/wfunc/rpsarena/reconcile"
	"github.com/wfunc/rpsarena/rpc"
	"github.com/wfunc/rpsarena/server"
	"github.com/wfunc/rpsarena/services"
	"github.com/wfunc/rpsarena/store"
)

const shutdownTimeout = 10 * time.Second

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openArchive(cfg config.DatabaseConfig) (persistence.Archive, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "none":
		return persistence.NewMemoryArchive(), nil
	case "gorm":
		return persistence.NewGormArchive(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "pq":
		return persistence.NewSQLArchive(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()
	logger.Log.Infof("Store backend: %s", cfg.Store.Backend)

	archive, err := openArchive(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer archive.Close()
	logger.Log.Infof("Round archive: %s", cfg.Database.Driver)

	mon := monitor.NewMonitor("rps")
	metricsServer := mon.StartServer(cfg.Server.MetricsAddress)

	clock := clockwork.NewRealClock()
	a := arena.New(s, arena.Options{
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		InactiveThreshold: cfg.Presence.InactiveThreshold,
		LoginTimeout:      cfg.Presence.LoginTimeout,
		Expiry:            notify.DefaultExpiry(cfg.Notify.PlayerAvailable, cfg.Notify.Transient),
		ChallengeRate:     cfg.Challenge.Rate,
		ChallengeBurst:    cfg.Challenge.Burst,
		SharedFeeds:       true,
		Clock:             clock,
		Monitor:           mon,
		Archive:           archive,
	})
	defer a.Close()

	sweeper := reconcile.NewSweeper(s, clock, cfg.Presence.InactiveThreshold, cfg.Reconcile.OrphanGrace, mon)
	sched, err := reconcile.Schedule(ctx, sweeper, cfg.Reconcile.Interval, clock)
	if err != nil {
		logger.Log.Fatalf("Failed to schedule reconciliation: %v", err)
	}

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	playerService := services.NewPlayerService(a.Presence, a.Waiting, archive, mon)
	if err := rpcServer.Register(rpc.NewArenaService(playerService)); err != nil {
		logger.Log.Fatalf("Failed to register RPC service: %v", err)
	}
	go rpcServer.Start()

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, a, mon, cfg.Presence.InactiveThreshold)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gameServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, gameServer.Shutdown(shutdownCtx))
	rpcServer.Stop()
	errs = append(errs, sched.Shutdown())
	errs = append(errs, metricsServer.Shutdown(shutdownCtx))
	if err := errors.Join(errs...); err != nil {
		logger.Log.Warnf("Shutdown: %v", err)
	}
}
