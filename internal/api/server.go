// Package api implements the relayer's ingress: the REST surface that
// accepts signed transfers, exposes their status, and lets an operator
// tune executor concurrency.
package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AIONPAY/AION-MVP/internal/contract"
	"github.com/AIONPAY/AION-MVP/internal/eventbus"
	"github.com/AIONPAY/AION-MVP/internal/executor"
	"github.com/AIONPAY/AION-MVP/internal/pkg/ratelimit"
	"github.com/AIONPAY/AION-MVP/internal/repository"
	"github.com/AIONPAY/AION-MVP/internal/validator"
)

// HealthGateway is the subset of the Chain Gateway the health endpoint
// reports on.
type HealthGateway interface {
	HealthCheck(ctx context.Context) error
	BlockNumber(ctx context.Context) (uint64, error)
	GasPayerBalance(ctx context.Context) (*big.Int, error)
	HealthyEndpointCount() int
}

// Server wires the ingress handlers to the store, validator, executor
// and event bus.
type Server struct {
	store     repository.TransferRepository
	validator *validator.Validator
	decimals  *contract.DecimalsResolver
	executor  *executor.Executor
	bus       *eventbus.Bus
	gateway   HealthGateway
	limiter   *ratelimit.KeyedRateLimiter
	logger    *zap.Logger

	adminUser     string
	adminPassword string
	startedAt     time.Time
}

// Config carries the ingress-specific tuning knobs the caller wires
// from the loaded configuration.
type Config struct {
	AdminUser        string
	AdminPassword    string
	RateLimitWindow  time.Duration
	RateLimitMax     int
}

// NewServer builds a Server.
func NewServer(
	store repository.TransferRepository,
	v *validator.Validator,
	decimals *contract.DecimalsResolver,
	exec *executor.Executor,
	bus *eventbus.Bus,
	gateway HealthGateway,
	logger *zap.Logger,
	cfg Config,
) *Server {
	return &Server{
		store:         store,
		validator:     v,
		decimals:      decimals,
		executor:      exec,
		bus:           bus,
		gateway:       gateway,
		logger:        logger,
		adminUser:     cfg.AdminUser,
		adminPassword: cfg.AdminPassword,
		startedAt:     time.Now(),
		limiter: ratelimit.NewKeyedRateLimiter(func() ratelimit.RateLimiter {
			window := cfg.RateLimitWindow
			if window <= 0 {
				window = 60 * time.Second
			}
			max := cfg.RateLimitMax
			if max <= 0 {
				max = 10
			}
			return ratelimit.NewSlidingWindowLimiter(window, max)
		}),
	}
}

// NewRouter builds the gin engine with every relayer route registered.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	relayer := r.Group("/relayer")
	{
		relayer.POST("/submit", s.handleSubmit)
		relayer.POST("/transfers", s.handleSubmit)
		relayer.GET("/transfers/:id", s.handleGetTransfer)
		relayer.GET("/stats", s.handleStats)
		relayer.GET("/health", s.handleHealth)

		admin := relayer.Group("/admin")
		if s.adminUser != "" {
			admin.Use(gin.BasicAuth(gin.Accounts{s.adminUser: s.adminPassword}))
		} else {
			// No admin account configured: every admin request is refused.
			admin.Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) })
		}
		admin.PUT("/concurrency", s.handleSetConcurrency)
	}

	r.GET("/transactions/:address", s.handleTransactionsByAddress)

	return r
}
