package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/AIONPAY/AION-MVP/internal/eventbus"
	"github.com/AIONPAY/AION-MVP/internal/executor"
	"github.com/AIONPAY/AION-MVP/internal/metrics"
	"github.com/AIONPAY/AION-MVP/internal/model"
	apperrors "github.com/AIONPAY/AION-MVP/internal/pkg/apperrors"
	"github.com/AIONPAY/AION-MVP/internal/pkg/ratelimit"
	"github.com/AIONPAY/AION-MVP/internal/repository"
	"github.com/AIONPAY/AION-MVP/internal/validator"
)

// respondError renders a business error as JSON, deriving the HTTP
// status from its taxonomy rather than trusting a call site to pick
// one — no handler is allowed to leak a raw Go error string.
func respondError(c *gin.Context, err *apperrors.Error) {
	c.JSON(apperrors.ToHTTPStatus(err), err)
}

// parseIntQuery reads key from the query string as an int, falling
// back to def when absent or malformed.
func parseIntQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// handleSubmit accepts a signed transfer, runs the ingress shape checks
// and the full validator, and persists it as validated in one pass —
// a failing check never creates a row.
func (s *Server) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest.WithMessage("malformed request body"))
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		respondError(c, apperrors.ErrInvalidRequest.WithDetail("errors", strings.Join(errs, "; ")))
		return
	}

	limiterKey := lowerHex(req.From)
	if !s.limiter.Allow(limiterKey) {
		metrics.RecordRateLimited(c.FullPath())
		retryAfter := 60
		if sw, ok := s.limiter.GetLimiter(limiterKey).(*ratelimit.SlidingWindowLimiter); ok {
			retryAfter = int(sw.RetryAfter().Seconds())
		}
		respondError(c, apperrors.ErrRateLimited.WithDetail("retryAfterSeconds", strconv.Itoa(retryAfter)))
		return
	}

	if !s.store.Ready() {
		respondError(c, apperrors.ErrStoreUnavailable)
		return
	}

	ctx := c.Request.Context()
	tokenAddr := common.HexToAddress(req.TokenAddress)
	decimals, err := s.decimals.Decimals(ctx, tokenAddr)
	if err != nil {
		respondError(c, apperrors.ErrInvalidRequest.WithMessagef("failed to resolve asset decimals: %v", err))
		return
	}

	candidate := validator.Candidate{
		From:            req.From,
		To:              req.To,
		Amount:          req.ParsedAmount(),
		Deadline:        req.Deadline,
		Nonce:           req.Nonce,
		Signature:       req.Signature,
		ContractAddress: req.ContractAddress,
		TokenAddress:    req.TokenAddress,
		Decimals:        int32(decimals),
	}
	result := s.validator.Check(ctx, candidate)
	if !result.Valid {
		respondError(c, apperrors.ErrInvalidRequest.WithDetail("errors", strings.Join(result.Errors, "; ")))
		return
	}

	row := &model.SignedTransfer{
		Nonce:           req.Nonce,
		From:            req.From,
		To:              req.To,
		Amount:          req.ParsedAmount(),
		Deadline:        req.Deadline,
		Signature:       req.Signature,
		ContractAddress: req.ContractAddress,
		TokenAddress:    req.TokenAddress,
	}
	id, err := s.store.InsertReceivedAndValidate(ctx, row)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNonceExists):
			respondError(c, apperrors.ErrNonceAlreadyUsed)
		case errors.Is(err, repository.ErrStoreUnavailable):
			respondError(c, apperrors.ErrStoreUnavailable)
		default:
			respondError(c, apperrors.Wrap(apperrors.ErrInternal, err).WithMessage("failed to persist transfer"))
		}
		return
	}

	_ = s.store.AppendEvent(ctx, id, string(model.StatusValidated), "accepted at ingest", "")
	metrics.RecordTransfer(string(model.StatusValidated))
	s.publish("accepted", id, nil)

	if s.executor != nil {
		s.executor.Wake()
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"transferId": id,
		"message":    "transfer accepted",
	})
}

// handleGetTransfer returns a transfer's current row plus its full
// chronological event log — the audit and dispute surface.
func (s *Server) handleGetTransfer(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.ErrInvalidRequest.WithMessage("id must be an integer"))
		return
	}

	ctx := c.Request.Context()
	row, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransferNotFound) {
			respondError(c, apperrors.ErrTransferNotFound)
			return
		}
		respondError(c, apperrors.Wrap(apperrors.ErrInternal, err).WithMessage("failed to load transfer"))
		return
	}

	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInternal, err).WithMessage("failed to load transfer events"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"transfer": row, "events": events})
}

// handleStats reports queue depth by status and executor concurrency
// usage.
func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	pending, _ := s.store.CountByStatus(ctx, model.StatusValidated)
	processing, _ := s.store.CountByStatus(ctx, model.StatusPending)
	failed, _ := s.store.CountByStatus(ctx, model.StatusFailed)
	completed, _ := s.store.CountByStatus(ctx, model.StatusConfirmed)

	current, max := 0, 0
	if s.executor != nil {
		current = s.executor.InFlight()
		max = s.executor.Concurrency()
	}
	metrics.UpdateExecutorConcurrency(current, max)
	metrics.UpdateQueueDepth(string(model.StatusValidated), int(pending))
	metrics.UpdateQueueDepth(string(model.StatusPending), int(processing))
	metrics.UpdateQueueDepth(string(model.StatusFailed), int(failed))
	metrics.UpdateQueueDepth(string(model.StatusConfirmed), int(completed))

	c.JSON(http.StatusOK, gin.H{
		"queue": gin.H{
			"pending":    pending,
			"processing": processing,
			"failed":     failed,
			"completed":  completed,
		},
		"processing": gin.H{"current": current, "max": max},
		"timestamp":  time.Now(),
	})
}

// handleHealth is a liveness probe: it never depends on the store or
// the chain gateway being reachable, so it stays up while either is
// degraded — it only reports their state.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startedAt).String(),
		"storeReady": s.store.Ready(),
	}

	if s.gateway != nil {
		ctx := c.Request.Context()
		chain := gin.H{"healthyEndpoints": s.gateway.HealthyEndpointCount()}
		if err := s.gateway.HealthCheck(ctx); err != nil {
			chain["reachable"] = false
			chain["error"] = err.Error()
		} else {
			chain["reachable"] = true
			if blockNumber, err := s.gateway.BlockNumber(ctx); err == nil {
				chain["blockNumber"] = blockNumber
			}
			if balance, err := s.gateway.GasPayerBalance(ctx); err == nil {
				chain["gasPayerBalanceWei"] = balance.String()
			}
		}
		resp["chain"] = chain
	}

	c.JSON(http.StatusOK, resp)
}

type concurrencyRequest struct {
	MaxConcurrent int `json:"maxConcurrent"`
}

// handleSetConcurrency adjusts the executor's concurrency cap. Basic
// auth is enforced by the route group.
func (s *Server) handleSetConcurrency(c *gin.Context) {
	var req concurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest.WithMessage("malformed request body"))
		return
	}
	if req.MaxConcurrent < executor.MinConcurrency || req.MaxConcurrent > executor.MaxConcurrency {
		respondError(c, apperrors.ErrInvalidRequest.WithMessagef(
			"maxConcurrent must be between %d and %d", executor.MinConcurrency, executor.MaxConcurrency))
		return
	}

	applied := s.executor.SetConcurrency(req.MaxConcurrent)
	c.JSON(http.StatusOK, gin.H{"maxConcurrent": applied})
}

// handleTransactionsByAddress returns the transfers involving address,
// as either sender or recipient, paginated and optionally windowed by
// creation time via the `page`, `pageSize`, `from` and `to` (unix
// second) query parameters.
func (s *Server) handleTransactionsByAddress(c *gin.Context) {
	address := c.Param("address")
	if !addressPattern.MatchString(address) {
		respondError(c, apperrors.ErrInvalidAddress.WithMessage("address must match 0x[0-9a-f]{40}"))
		return
	}

	page := &repository.Pagination{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "pageSize", 50),
	}
	var window *repository.TimeRange
	if from, to := c.Query("from"), c.Query("to"); from != "" || to != "" {
		w := &repository.TimeRange{}
		w.Start, _ = strconv.ParseInt(from, 10, 64)
		w.End, _ = strconv.ParseInt(to, 10, 64)
		window = w
	}

	rows, err := s.store.ListForAddress(c.Request.Context(), address, page, window)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInternal, err).WithMessage("failed to load transactions"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":      address,
		"transactions": rows,
		"page":         page.Page,
		"pageSize":     page.Limit(),
		"total":        page.Total,
	})
}

func (s *Server) publish(stage string, transferID int64, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["transferId"] = strconv.FormatInt(transferID, 10)
	s.bus.PublishGlobalAndTransfer(eventbus.GlobalTopic(stage), transferID, eventbus.Event{
		Type:      stage,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func lowerHex(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
