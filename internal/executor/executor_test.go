package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIONPAY/AION-MVP/internal/model"
	"github.com/AIONPAY/AION-MVP/internal/repository"
	"github.com/AIONPAY/AION-MVP/internal/validator"
)

// fakeStore is a minimal repository.TransferRepository double that
// records the fields UpdateStatus was called with, for asserting on
// the executor's status-transition side effects.
type fakeStore struct {
	repository.TransferRepository

	updateStatusID     int64
	updateStatusStatus model.TransferStatus
	updateStatusFields map[string]interface{}
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, status model.TransferStatus, fields map[string]interface{}) error {
	f.updateStatusID = id
	f.updateStatusStatus = status
	f.updateStatusFields = fields
	return nil
}

func (f *fakeStore) AppendEvent(ctx context.Context, transferID int64, status, message, metadataJSON string) error {
	return nil
}

func TestBackoffDuration_DoublesPerRetry(t *testing.T) {
	assert.Equal(t, time.Second, backoffDuration(0))
	assert.Equal(t, 2*time.Second, backoffDuration(1))
	assert.Equal(t, 4*time.Second, backoffDuration(2))
	assert.Equal(t, 8*time.Second, backoffDuration(3))
}

func TestSetConcurrency_ClampsToBounds(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, nil, Config{})

	assert.Equal(t, MinConcurrency, e.SetConcurrency(0))
	assert.Equal(t, MaxConcurrency, e.SetConcurrency(100))
	assert.Equal(t, 5, e.SetConcurrency(5))
	assert.Equal(t, 5, e.Concurrency())
}

func TestInFlight_StartsAtZero(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, nil, Config{})
	assert.Equal(t, 0, e.InFlight())
}

func TestWake_IsNonBlockingWhenAlreadyPending(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, nil, Config{})
	done := make(chan struct{})
	go func() {
		e.Wake()
		e.Wake()
		e.Wake()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake blocked on a full 1-buffer channel")
	}
}

func TestIsRaceRecovery_RequiresPriorTxHash(t *testing.T) {
	e := &Executor{}
	row := &model.SignedTransfer{TxHash: ""}
	result := validator.Result{Permanent: true, Errors: []string{"nonce already used"}}

	assert.False(t, e.isRaceRecovery(result, row))
}

func TestIsRaceRecovery_DetectsSoleNonceUsedError(t *testing.T) {
	e := &Executor{}
	row := &model.SignedTransfer{TxHash: "0xabc"}
	result := validator.Result{Permanent: true, NonceUnused: false, Errors: []string{"nonce already used"}}

	assert.True(t, e.isRaceRecovery(result, row))
}

func TestIsRaceRecovery_RejectsWhenOtherErrorsArePresent(t *testing.T) {
	e := &Executor{}
	row := &model.SignedTransfer{TxHash: "0xabc"}
	result := validator.Result{
		Permanent: true,
		Errors:    []string{"nonce already used", "signature is invalid"},
	}

	assert.False(t, e.isRaceRecovery(result, row))
}

func TestIsRaceRecovery_RejectsWhenNonceStillUnused(t *testing.T) {
	e := &Executor{}
	row := &model.SignedTransfer{TxHash: "0xabc"}
	result := validator.Result{Permanent: true, NonceUnused: true, Errors: []string{"nonce already used"}}

	assert.False(t, e.isRaceRecovery(result, row))
}

func TestMarkFailed_IncrementsRetryCount(t *testing.T) {
	store := &fakeStore{}
	e := &Executor{store: store}
	row := &model.SignedTransfer{ID: 7, RetryCount: 0}

	e.markFailed(context.Background(), row, "oracle timeout: usedNonces")

	require.Equal(t, int64(7), store.updateStatusID)
	assert.Equal(t, model.StatusFailed, store.updateStatusStatus)
	assert.Equal(t, 1, store.updateStatusFields["retry_count"])
}

func TestMarkFailed_IncrementsFromNonZeroRetryCount(t *testing.T) {
	store := &fakeStore{}
	e := &Executor{store: store}
	row := &model.SignedTransfer{ID: 8, RetryCount: 2}

	e.markFailed(context.Background(), row, "oracle timeout: lockedFundsETH")

	assert.Equal(t, 3, store.updateStatusFields["retry_count"])
}
