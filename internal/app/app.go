// Package app wires the relayer's components together and manages the
// process lifecycle: startup, graceful shutdown, and the signal
// handling in between.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AIONPAY/AION-MVP/internal/api"
	"github.com/AIONPAY/AION-MVP/internal/blockchain"
	"github.com/AIONPAY/AION-MVP/internal/config"
	"github.com/AIONPAY/AION-MVP/internal/contract"
	"github.com/AIONPAY/AION-MVP/internal/eventbus"
	"github.com/AIONPAY/AION-MVP/internal/executor"
	"github.com/AIONPAY/AION-MVP/internal/model"
	"github.com/AIONPAY/AION-MVP/internal/repository"
	"github.com/AIONPAY/AION-MVP/internal/validator"
	"github.com/AIONPAY/AION-MVP/internal/ws"
)

// App owns every long-lived component of the relayer and its
// lifecycle: construction, running, and graceful shutdown.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db *gorm.DB

	gateway   *blockchain.Gateway
	decimals  *contract.DecimalsResolver
	validator *validator.Validator
	store     repository.TransferRepository

	bus      *eventbus.Bus
	executor *executor.Executor

	hub       *ws.Hub
	wsHandler *ws.Handler

	apiServer  *api.Server
	httpServer *http.Server

	stopCh chan struct{}
}

// NewApp constructs every component and wires them together, but does
// not start any background loops or listeners — that happens in Run.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, stopCh: make(chan struct{})}

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if err := a.initBlockchain(); err != nil {
		return nil, fmt.Errorf("init blockchain: %w", err)
	}

	a.initValidation()
	a.initEventing()
	a.initExecutor()
	a.initWebsocket()
	a.initAPI()

	return a, nil
}

// initDatabase connects to Postgres and migrates the transfer schema.
// A connection failure degrades the store to Ready()==false rather
// than aborting startup, per §5's tolerance for a database outage at
// boot.
func (a *App) initDatabase() error {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		a.cfg.Postgres.Host, a.cfg.Postgres.Port,
		a.cfg.Postgres.User, a.cfg.Postgres.Password, a.cfg.Postgres.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		a.logger.Warn("database unavailable at boot, store will degrade to unready", zap.Error(err))
		a.store = repository.NewTransferRepository(nil)
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetime) * time.Second)

	if err := db.AutoMigrate(&model.SignedTransfer{}, &model.TransferEvent{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	a.db = db
	a.store = repository.NewTransferRepository(db)
	a.logger.Info("database connected", zap.String("host", a.cfg.Postgres.Host), zap.String("database", a.cfg.Postgres.Database))
	return nil
}

// initBlockchain builds the Chain Gateway and the ABI decimals resolver.
func (a *App) initBlockchain() error {
	rpcURLs := append([]string{a.cfg.Blockchain.RPCURL}, a.cfg.Blockchain.BackupRPCURLs...)

	gateway, err := blockchain.NewGateway(blockchain.GatewayConfig{
		ChainID:         a.cfg.Blockchain.ChainID,
		PrivateKeyHex:   a.cfg.Blockchain.PrivateKey,
		RPCURLs:         rpcURLs,
		EscrowAddress:   a.cfg.Blockchain.ContractAddress,
		MaxRetries:      a.cfg.Blockchain.MaxRetries,
		RetryInterval:   time.Duration(a.cfg.Blockchain.RetryBackoff) * time.Second,
		HealthCheckFreq: time.Duration(a.cfg.Blockchain.HealthCheckFreq) * time.Second,
		LogWarn: func(format string, args ...interface{}) {
			a.logger.Sugar().Warnf(format, args...)
		},
	})
	if err != nil {
		return fmt.Errorf("connect chain gateway: %w", err)
	}
	a.gateway = gateway

	decimals, err := contract.NewDecimalsResolver(a.cfg.Blockchain.ChainID, gateway.Caller())
	if err != nil {
		return fmt.Errorf("build decimals resolver: %w", err)
	}
	a.decimals = decimals

	a.logger.Info("chain gateway connected",
		zap.Int64("chain_id", a.cfg.Blockchain.ChainID),
		zap.String("gas_payer", gateway.Address().Hex()),
		zap.String("escrow", a.cfg.Blockchain.ContractAddress),
	)
	return nil
}

// initValidation builds the six-check validator against the gateway
// as oracle and the store as the database side of the nonce check.
func (a *App) initValidation() {
	a.validator = validator.New(
		a.gateway, a.store, a.cfg.Blockchain.ChainID,
		a.cfg.Relayer.LockoutGracePeriod(), a.cfg.Relayer.LockoutDelay(),
		func(format string, args ...interface{}) {
			a.logger.Sugar().Warnf(format, args...)
		},
	)
}

// initEventing builds the process-local publish/subscribe bus shared
// by the executor and the subscription endpoint.
func (a *App) initEventing() {
	a.bus = eventbus.New()
}

// initExecutor builds the bounded-concurrency settlement loop.
func (a *App) initExecutor() {
	a.executor = executor.New(a.store, a.validator, a.decimals, a.gateway, a.bus, a.logger, executor.Config{
		MaxRetries:   a.cfg.Relayer.MaxRetries,
		TickInterval: a.cfg.Relayer.SchedulerTickInterval(),
	})
	a.executor.SetConcurrency(a.cfg.Relayer.DefaultConcurrency)
}

// initWebsocket builds the subscription endpoint's hub and handler.
func (a *App) initWebsocket() {
	a.hub = ws.NewHub(a.logger)
	a.wsHandler = ws.NewHandler(a.hub, a.bus, a.logger, a.cfg.WebSocket)
}

// initAPI builds the REST ingress and mounts the subscription endpoint
// onto the same router.
func (a *App) initAPI() {
	a.apiServer = api.NewServer(a.store, a.validator, a.decimals, a.executor, a.bus, a.gateway, a.logger, api.Config{
		AdminUser:       a.cfg.Service.AdminUser,
		AdminPassword:   a.cfg.Service.AdminPassword,
		RateLimitWindow: time.Duration(a.cfg.Relayer.RateLimitWindow) * time.Second,
		RateLimitMax:    a.cfg.Relayer.RateLimitMax,
	})

	router := a.apiServer.NewRouter()
	router.GET("/ws", a.wsHandler.HandleConnection)

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: router,
	}
}

// Run starts the executor loop and the HTTP listener, then blocks
// until a shutdown signal or Stop is received.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.executor.Run(ctx)

	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.logger.Info("received shutdown signal")
	case <-a.stopCh:
		a.logger.Info("shutdown requested")
	}

	return a.shutdown()
}

// Stop requests a graceful shutdown from another goroutine (used by
// tests); production shutdown is normally signal-driven.
func (a *App) Stop() {
	close(a.stopCh)
}

// shutdown follows §5's sequence: stop the scheduler tick, refuse new
// connections, drain live websocket subscriptions, then release the
// chain and database connections.
func (a *App) shutdown() error {
	a.logger.Info("shutting down")

	a.executor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", zap.Error(err))
	}

	a.hub.Shutdown()
	a.bus.Stop()

	if a.gateway != nil {
		a.gateway.Close()
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
