// Package executor implements the bounded-concurrency state machine that
// advances signed transfers from validated to a terminal outcome:
// re-validation, submission to the Chain Gateway, receipt awaiting, and
// retry-with-backoff on transient failure.
package executor

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AIONPAY/AION-MVP/internal/blockchain"
	"github.com/AIONPAY/AION-MVP/internal/contract"
	"github.com/AIONPAY/AION-MVP/internal/eventbus"
	"github.com/AIONPAY/AION-MVP/internal/model"
	"github.com/AIONPAY/AION-MVP/internal/repository"
	"github.com/AIONPAY/AION-MVP/internal/validator"
)

// DefaultMaxRetries is the retry ceiling past which a failed transfer is
// never picked up again by the retry scan, used when the relayer config
// does not override it.
const DefaultMaxRetries = 3

const (
	MinConcurrency     = 1
	MaxConcurrency     = 10
	DefaultConcurrency = 3
)

// DefaultTickInterval is the scheduler's poll cadence, used when the
// relayer config does not override it.
const DefaultTickInterval = 5 * time.Second

// Config carries the relayer-tunable executor parameters sourced from
// RelayerConfig.
type Config struct {
	MaxRetries   int
	TickInterval time.Duration
}

// ChainGateway is the subset of the Chain Gateway the executor drives.
type ChainGateway interface {
	ExecuteETHTransfer(ctx context.Context, p contract.ETHTransferParams) (string, error)
	ExecuteERC20Transfer(ctx context.Context, p contract.ERC20TransferParams) (string, error)
	AwaitReceipt(ctx context.Context, txHash string) (*blockchain.Receipt, error)
	TransactionReceipt(ctx context.Context, txHash string) (*blockchain.Receipt, error)
}

// Executor drives the validated -> terminal state machine under a
// concurrency cap.
type Executor struct {
	store     repository.TransferRepository
	validator *validator.Validator
	decimals  *contract.DecimalsResolver
	gateway   ChainGateway
	bus       *eventbus.Bus
	logger    *zap.Logger

	mu            sync.Mutex
	maxConcurrent int
	inFlight      int

	maxRetries   int
	tickInterval time.Duration

	processing sync.Map // int64 id -> struct{}

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New builds an Executor with the default concurrency cap. A zero-value
// cfg falls back to DefaultMaxRetries/DefaultTickInterval.
func New(
	store repository.TransferRepository,
	v *validator.Validator,
	decimals *contract.DecimalsResolver,
	gateway ChainGateway,
	bus *eventbus.Bus,
	logger *zap.Logger,
	cfg Config,
) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Executor{
		store:         store,
		validator:     v,
		decimals:      decimals,
		gateway:       gateway,
		bus:           bus,
		logger:        logger,
		maxConcurrent: DefaultConcurrency,
		maxRetries:    cfg.MaxRetries,
		tickInterval:  cfg.TickInterval,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// SetConcurrency adjusts the cap, clamped to [MinConcurrency, MaxConcurrency].
func (e *Executor) SetConcurrency(n int) int {
	if n < MinConcurrency {
		n = MinConcurrency
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	e.mu.Lock()
	e.maxConcurrent = n
	e.mu.Unlock()
	e.Wake()
	return n
}

// Concurrency returns the current cap.
func (e *Executor) Concurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxConcurrent
}

// InFlight returns the number of slots currently executing a transfer.
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Wake requests an immediate tick, used when a fresh transfer is
// submitted and capacity may be free.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run starts the scheduler loop and blocks until Stop is called.
func (e *Executor) Run(ctx context.Context) {
	e.RecoverOnBoot(ctx)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case <-e.wake:
			e.tick(ctx)
		case <-e.done:
			e.wg.Wait()
			return
		case <-ctx.Done():
			e.wg.Wait()
			return
		}
	}
}

// Stop halts the scheduler loop; in-flight slots are allowed to finish.
func (e *Executor) Stop() {
	close(e.done)
}

// RecoverOnBoot re-queues any row left in `pending` with a recorded
// txHash: the process may have crashed between submission and receipt
// persistence. Flipping it back to `validated` feeds it through the
// standard execution path, whose race-recovery branch resolves whether
// the transaction was already mined.
func (e *Executor) RecoverOnBoot(ctx context.Context) {
	rows, err := e.store.ListByStatus(ctx, model.StatusPending, 1000, false)
	if err != nil {
		e.logf(zap.WarnLevel, "recover on boot: list pending failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		if row.TxHash == "" {
			continue
		}
		if err := e.store.UpdateStatus(ctx, row.ID, model.StatusValidated, nil); err != nil {
			e.logf(zap.WarnLevel, "recover on boot: requeue failed", zap.Int64("id", row.ID), zap.Error(err))
		}
	}
}

func (e *Executor) tick(ctx context.Context) {
	e.mu.Lock()
	available := e.maxConcurrent - e.inFlight
	e.mu.Unlock()
	if available <= 0 {
		e.scanRetryable(ctx)
		return
	}

	rows, err := e.store.ListByStatus(ctx, model.StatusValidated, available, true)
	if err != nil {
		e.logf(zap.ErrorLevel, "list validated failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		e.mu.Lock()
		e.inFlight++
		e.mu.Unlock()

		e.wg.Add(1)
		go func(row *model.SignedTransfer) {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				e.inFlight--
				e.mu.Unlock()
			}()
			e.runSlot(ctx, row.ID)
		}(row)
	}

	e.scanRetryable(ctx)
}

// scanRetryable flips `failed` rows back to `validated` once the elapsed
// time since their most recent failure event (`failed`, or the `retry`
// event handleExecutionError records) clears the exponential backoff
// threshold. This compares against the last failure event, not
// the row's createdAt, per the retry-backoff redesign.
func (e *Executor) scanRetryable(ctx context.Context) {
	rows, err := e.store.ListRetryable(ctx, e.maxRetries, 50)
	if err != nil {
		e.logf(zap.ErrorLevel, "list retryable failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		lastFailure, ok := e.lastFailureTime(ctx, row.ID, row.CreatedAt)
		if !ok {
			continue
		}
		if time.Since(lastFailure) < backoffDuration(row.RetryCount) {
			continue
		}
		if err := e.store.UpdateStatus(ctx, row.ID, model.StatusValidated, nil); err != nil {
			e.logf(zap.WarnLevel, "retry requeue failed", zap.Int64("id", row.ID), zap.Error(err))
			continue
		}
		e.appendEvent(ctx, row.ID, "retry_queued", "backoff elapsed, re-queued for execution")
	}
}

func (e *Executor) lastFailureTime(ctx context.Context, id int64, fallback time.Time) (time.Time, bool) {
	events, err := e.store.ListEvents(ctx, id)
	if err != nil {
		return fallback, false
	}
	for i := len(events) - 1; i >= 0; i-- {
		if s := events[i].Status; s == string(model.StatusFailed) || s == "retry" {
			return events[i].Timestamp, true
		}
	}
	return fallback, true
}

func backoffDuration(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Second
}

// runSlot executes one transfer end to end. It is safe to call
// concurrently for different ids; a per-id guard prevents two slots from
// owning the same id at once.
func (e *Executor) runSlot(ctx context.Context, id int64) {
	if _, already := e.processing.LoadOrStore(id, struct{}{}); already {
		return
	}
	defer e.processing.Delete(id)

	row, err := e.store.FindByID(ctx, id)
	if err != nil {
		e.logf(zap.WarnLevel, "slot: load failed", zap.Int64("id", id), zap.Error(err))
		return
	}
	if row.Status != model.StatusValidated {
		return
	}

	tokenAddr := common.HexToAddress(row.TokenAddress)
	decimals, err := e.decimals.Decimals(ctx, tokenAddr)
	if err != nil {
		e.markFailed(ctx, row, fmt.Sprintf("failed to resolve decimals: %v", err))
		return
	}

	candidate := validator.Candidate{
		ID:              row.ID,
		From:            row.From,
		To:              row.To,
		Amount:          row.Amount,
		Deadline:        row.Deadline,
		Nonce:           row.Nonce,
		Signature:       row.Signature,
		ContractAddress: row.ContractAddress,
		TokenAddress:    row.TokenAddress,
		Decimals:        int32(decimals),
	}
	result := e.validator.Check(ctx, candidate)

	if !result.Valid {
		if e.isRaceRecovery(result, row) {
			e.recoverConfirmedRace(ctx, row)
			return
		}
		reason := strings.Join(result.Errors, "; ")
		if result.Permanent {
			e.markPermanentlyFailed(ctx, row, reason)
		} else {
			e.markFailed(ctx, row, reason)
		}
		return
	}

	claimed, err := e.store.ClaimForSubmission(ctx, row.ID)
	if err != nil {
		e.logf(zap.WarnLevel, "slot: claim for submission failed", zap.Int64("id", id), zap.Error(err))
		return
	}
	if !claimed {
		// Another slot or instance already claimed this row between our
		// load and the locked re-read; back off and let it own the row.
		return
	}
	e.appendEvent(ctx, row.ID, string(model.StatusPending), "submitting to chain gateway")
	e.publish(model.StatusPending, row.ID, nil)

	txHash, err := e.submit(ctx, row, decimals)
	if err != nil {
		e.handleExecutionError(ctx, row, err)
		return
	}

	if err := e.store.UpdateFields(ctx, row.ID, map[string]interface{}{"tx_hash": txHash}); err != nil {
		e.logf(zap.WarnLevel, "slot: record tx hash failed", zap.Int64("id", id), zap.Error(err))
	}
	e.appendEvent(ctx, row.ID, "payment_submitted", txHash)
	e.publish("submitted", row.ID, map[string]interface{}{"txHash": txHash})

	receipt, err := e.gateway.AwaitReceipt(ctx, txHash)
	if err != nil {
		e.handleExecutionError(ctx, row, err)
		return
	}

	if receipt.Success {
		e.markConfirmed(ctx, row, receipt)
		return
	}

	// A reverted transaction indicates a contract-side rejection that
	// will repeat: saturate retryCount so the retry scan never revives it.
	e.finalizeFailed(ctx, row, "Transaction reverted", e.maxRetries)
}

func (e *Executor) submit(ctx context.Context, row *model.SignedTransfer, decimals uint8) (string, error) {
	amountWei := row.Amount.Shift(int32(decimals)).BigInt()
	nonceBytes := common.FromHex(row.Nonce)
	var nonce [32]byte
	copy(nonce[32-len(nonceBytes):], nonceBytes)

	sig := common.FromHex(row.Signature)
	deadline := big.NewInt(row.Deadline)

	if row.IsNativeTransfer() {
		return e.gateway.ExecuteETHTransfer(ctx, contract.ETHTransferParams{
			From:      common.HexToAddress(row.From),
			To:        common.HexToAddress(row.To),
			Amount:    amountWei,
			Nonce:     nonce,
			Deadline:  deadline,
			Signature: sig,
		})
	}
	return e.gateway.ExecuteERC20Transfer(ctx, contract.ERC20TransferParams{
		Token:     common.HexToAddress(row.TokenAddress),
		From:      common.HexToAddress(row.From),
		To:        common.HexToAddress(row.To),
		Amount:    amountWei,
		Nonce:     nonce,
		Deadline:  deadline,
		Signature: sig,
	})
}

// isRaceRecovery reports whether revalidation failed solely because the
// nonce is already consumed on-chain, for a row that already carries a
// txHash of its own — i.e. it was very likely this row's own submission.
func (e *Executor) isRaceRecovery(result validator.Result, row *model.SignedTransfer) bool {
	if row.TxHash == "" {
		return false
	}
	if result.NonceUnused || !result.Permanent {
		return false
	}
	return len(result.Errors) == 1 && strings.Contains(result.Errors[0], "nonce already used")
}

func (e *Executor) recoverConfirmedRace(ctx context.Context, row *model.SignedTransfer) {
	receipt, err := e.gateway.TransactionReceipt(ctx, row.TxHash)
	if err != nil {
		// Not yet mined from this vantage point; leave status as-is,
		// a later tick will re-examine it.
		return
	}
	if !receipt.Success {
		e.finalizeFailed(ctx, row, "Transaction reverted", e.maxRetries)
		return
	}
	e.markConfirmed(ctx, row, receipt)
}

func (e *Executor) markConfirmed(ctx context.Context, row *model.SignedTransfer, receipt *blockchain.Receipt) {
	err := e.store.UpdateFields(ctx, row.ID, map[string]interface{}{
		"tx_hash":      receipt.TxHash,
		"block_number": int64(receipt.BlockNumber),
	})
	if err == nil {
		err = e.store.UpdateStatus(ctx, row.ID, model.StatusConfirmed, nil)
	}
	if err != nil {
		e.logf(zap.ErrorLevel, "mark confirmed failed", zap.Int64("id", row.ID), zap.Error(err))
		return
	}
	e.appendEvent(ctx, row.ID, string(model.StatusConfirmed), fmt.Sprintf("gasUsed=%d", receipt.GasUsed))
	e.publish(model.StatusConfirmed, row.ID, map[string]interface{}{
		"txHash":      receipt.TxHash,
		"blockNumber": receipt.BlockNumber,
		"gasUsed":     receipt.GasUsed,
	})
}

func (e *Executor) markPermanentlyFailed(ctx context.Context, row *model.SignedTransfer, reason string) {
	e.finalizeStatus(ctx, row, model.StatusPermanentlyFailed, reason, row.RetryCount)
}

func (e *Executor) markFailed(ctx context.Context, row *model.SignedTransfer, reason string) {
	e.finalizeStatus(ctx, row, model.StatusFailed, reason, row.RetryCount+1)
}

func (e *Executor) finalizeFailed(ctx context.Context, row *model.SignedTransfer, reason string, retryCount int) {
	e.finalizeStatus(ctx, row, model.StatusFailed, reason, retryCount)
}

func (e *Executor) finalizeStatus(ctx context.Context, row *model.SignedTransfer, status model.TransferStatus, reason string, retryCount int) {
	fields := map[string]interface{}{
		"error_message": reason,
		"retry_count":   retryCount,
	}
	if err := e.store.UpdateStatus(ctx, row.ID, status, fields); err != nil {
		e.logf(zap.ErrorLevel, "finalize status failed", zap.Int64("id", row.ID), zap.Error(err))
		return
	}
	e.appendEvent(ctx, row.ID, string(status), reason)
	e.publish(status, row.ID, map[string]interface{}{"error": reason})
}

// handleExecutionError classifies a submission or receipt-await failure
// and either schedules a retry (bumping retryCount, leaving it for the
// retry scan to requeue after backoff) or records a terminal failure.
func (e *Executor) handleExecutionError(ctx context.Context, row *model.SignedTransfer, err error) {
	retryable := classifyError(err)
	newRetryCount := row.RetryCount + 1

	if retryable && newRetryCount < e.maxRetries {
		fields := map[string]interface{}{
			"error_message": err.Error(),
			"retry_count":   newRetryCount,
		}
		if uerr := e.store.UpdateStatus(ctx, row.ID, model.StatusFailed, fields); uerr != nil {
			e.logf(zap.ErrorLevel, "record retryable failure failed", zap.Int64("id", row.ID), zap.Error(uerr))
			return
		}
		e.appendEvent(ctx, row.ID, "retry", fmt.Sprintf("scheduled retry %d after backoff: %v", newRetryCount, err))
		e.publish(model.StatusFailed, row.ID, map[string]interface{}{"error": err.Error(), "retryCount": newRetryCount})
		return
	}

	// Non-retryable, or retries exhausted: saturate retryCount so the
	// retry scan's `retryCount < max` filter never revives it.
	e.finalizeFailed(ctx, row, err.Error(), e.maxRetries)
}

func (e *Executor) appendEvent(ctx context.Context, transferID int64, status, message string) {
	if err := e.store.AppendEvent(ctx, transferID, status, message, ""); err != nil {
		e.logf(zap.WarnLevel, "append event failed", zap.Int64("id", transferID), zap.Error(err))
	}
}

func (e *Executor) publish(status model.TransferStatus, transferID int64, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["transferId"] = strconv.FormatInt(transferID, 10)
	e.bus.PublishGlobalAndTransfer(eventbus.GlobalTopic(string(status)), transferID, eventbus.Event{
		Type:      string(status),
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (e *Executor) logf(level zapcore.Level, msg string, fields ...zap.Field) {
	if e.logger == nil {
		return
	}
	e.logger.Check(level, msg).Write(fields...)
}
