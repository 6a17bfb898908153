package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/AIONPAY/AION-MVP/internal/model"
)

func TestNewTransferRepository_NilDBDegradesToNotReady(t *testing.T) {
	repo := NewTransferRepository(nil)
	assert.False(t, repo.Ready())
}

func TestTransferRepository_OperationsFailFastWhenNotReady(t *testing.T) {
	repo := NewTransferRepository(nil)
	ctx := context.Background()

	_, err := repo.InsertReceived(ctx, &model.SignedTransfer{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.InsertReceivedAndValidate(ctx, &model.SignedTransfer{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = repo.UpdateStatus(ctx, 1, model.StatusValidated, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ClaimForSubmission(ctx, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.FindByID(ctx, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.FindByNonce(ctx, "0x01")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ListByStatus(ctx, model.StatusValidated, 10, true)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ListRetryable(ctx, 3, 10)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = repo.AppendEvent(ctx, 1, "validated", "", "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ListEvents(ctx, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ListForAddress(ctx, "0x1111111111111111111111111111111111111111", &Pagination{Page: 1, PageSize: 10}, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.NonceExists(ctx, "0x01", 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = repo.UpdateFields(ctx, 1, map[string]interface{}{"status": model.StatusFailed})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.CountByStatus(ctx, model.StatusValidated)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
