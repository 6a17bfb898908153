package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/AIONPAY/AION-MVP/internal/model"
)

const pgErrUniqueViolation = "23505"

// ErrTransferNotFound is returned when a lookup by id or nonce misses.
var ErrTransferNotFound = errors.New("transfer not found")

// ErrNonceExists is returned when insertReceived violates the unique
// constraint on nonce.
var ErrNonceExists = errors.New("nonce already used")

// TransferRepository is the durable Store for SignedTransfer rows and
// their append-only TransferEvent log.
type TransferRepository interface {
	Ready() bool
	InsertReceived(ctx context.Context, t *model.SignedTransfer) (int64, error)
	InsertReceivedAndValidate(ctx context.Context, t *model.SignedTransfer) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status model.TransferStatus, fields map[string]interface{}) error
	ClaimForSubmission(ctx context.Context, id int64) (bool, error)
	FindByNonce(ctx context.Context, nonce string) (*model.SignedTransfer, error)
	FindByID(ctx context.Context, id int64) (*model.SignedTransfer, error)
	ListByStatus(ctx context.Context, status model.TransferStatus, limit int, excludePermanentlyFailed bool) ([]*model.SignedTransfer, error)
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*model.SignedTransfer, error)
	AppendEvent(ctx context.Context, transferID int64, status, message, metadataJSON string) error
	ListEvents(ctx context.Context, transferID int64) ([]*model.TransferEvent, error)
	ListForAddress(ctx context.Context, address string, page *Pagination, window *TimeRange) ([]*model.SignedTransfer, error)
	NonceExists(ctx context.Context, nonce string, excludeID int64) (bool, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	CountByStatus(ctx context.Context, status model.TransferStatus) (int64, error)
}

type transferRepository struct {
	*Repository
}

// NewTransferRepository builds a TransferRepository backed by db. A nil
// db is accepted so the ingress layer can degrade gracefully — see
// Ready.
func NewTransferRepository(db *gorm.DB) TransferRepository {
	if db == nil {
		return &transferRepository{Repository: &Repository{}}
	}
	return &transferRepository{Repository: NewRepository(db)}
}

// Ready reports whether the store has a live database connection.
func (r *transferRepository) Ready() bool {
	return r.Repository.db != nil
}

func (r *transferRepository) InsertReceived(ctx context.Context, t *model.SignedTransfer) (int64, error) {
	if !r.Ready() {
		return 0, ErrStoreUnavailable
	}
	t.Status = model.StatusReceived
	t.CreatedAt = time.Now()
	if err := r.DB(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, ErrNonceExists
		}
		return 0, err
	}
	return t.ID, nil
}

// InsertReceivedAndValidate inserts t and immediately flips it to
// validated inside one retryable transaction, so a transient
// serialization failure under concurrent submissions retries the whole
// insert-then-flip instead of leaving a stray `received` row behind for
// a unique-nonce race it already lost.
func (r *transferRepository) InsertReceivedAndValidate(ctx context.Context, t *model.SignedTransfer) (int64, error) {
	if !r.Ready() {
		return 0, ErrStoreUnavailable
	}
	err := r.Repository.TransactionWithRetry(ctx, insertRetryLimit, func(txCtx context.Context) error {
		t.Status = model.StatusReceived
		t.CreatedAt = time.Now()
		if err := r.DB(txCtx).Create(t).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrNonceExists
			}
			return err
		}
		now := time.Now()
		return r.DB(txCtx).Model(&model.SignedTransfer{}).Where("id = ?", t.ID).
			Updates(map[string]interface{}{"status": model.StatusValidated, "validated_at": now}).Error
	})
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (r *transferRepository) UpdateStatus(ctx context.Context, id int64, status model.TransferStatus, fields map[string]interface{}) error {
	if !r.Ready() {
		return ErrStoreUnavailable
	}
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = status

	now := time.Now()
	switch status {
	case model.StatusValidated:
		updates["validated_at"] = now
	case model.StatusPending:
		updates["submitted_at"] = now
	case model.StatusConfirmed:
		updates["confirmed_at"] = now
	}

	res := r.DB(ctx).Model(&model.SignedTransfer{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// ClaimForSubmission re-reads id under a row-level FOR UPDATE NOWAIT
// lock and, only if it is still validated, flips it to pending in the
// same transaction. This closes the race where two executor slots (or
// two relayer instances sharing one queue) both pulled the same
// validated row out of ListByStatus and would otherwise both submit it;
// the loser sees claimed=false and simply returns.
func (r *transferRepository) ClaimForSubmission(ctx context.Context, id int64) (bool, error) {
	if !r.Ready() {
		return false, ErrStoreUnavailable
	}
	var claimed bool
	err := r.Repository.Transaction(ctx, func(txCtx context.Context) error {
		var t model.SignedTransfer
		opts := &QueryOptions{ForUpdate: true, NoWait: true}
		if err := opts.ApplyLock(r.DB(txCtx)).Where("id = ?", id).First(&t).Error; err != nil {
			return err
		}
		if t.Status != model.StatusValidated {
			return nil
		}
		res := r.DB(txCtx).Model(&model.SignedTransfer{}).Where("id = ?", id).
			Updates(map[string]interface{}{"status": model.StatusPending, "submitted_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected > 0
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrTransferNotFound
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// UpdateFields patches columns without touching status or its associated
// transition timestamp, used to record tx_hash the moment a submission
// returns without disturbing the pending-entry timestamp already set.
func (r *transferRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	if !r.Ready() {
		return ErrStoreUnavailable
	}
	res := r.DB(ctx).Model(&model.SignedTransfer{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *transferRepository) FindByNonce(ctx context.Context, nonce string) (*model.SignedTransfer, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	var t model.SignedTransfer
	err := r.DB(ctx).Where("nonce = ?", nonce).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transferRepository) FindByID(ctx context.Context, id int64) (*model.SignedTransfer, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	var t model.SignedTransfer
	err := r.DB(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transferRepository) ListByStatus(ctx context.Context, status model.TransferStatus, limit int, excludePermanentlyFailed bool) ([]*model.SignedTransfer, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	q := r.DB(ctx).Where("status = ?", status)
	if excludePermanentlyFailed {
		q = q.Where("status <> ?", model.StatusPermanentlyFailed)
	}
	var rows []*model.SignedTransfer
	if err := q.Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transferRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*model.SignedTransfer, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	var rows []*model.SignedTransfer
	err := r.DB(ctx).
		Where("status = ? AND retry_count < ?", model.StatusFailed, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transferRepository) AppendEvent(ctx context.Context, transferID int64, status, message, metadataJSON string) error {
	if !r.Ready() {
		return ErrStoreUnavailable
	}
	event := &model.TransferEvent{
		TransferID: transferID,
		Status:     status,
		Message:    message,
		Metadata:   metadataJSON,
		Timestamp:  time.Now(),
	}
	return r.DB(ctx).Create(event).Error
}

func (r *transferRepository) ListEvents(ctx context.Context, transferID int64) ([]*model.TransferEvent, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	var events []*model.TransferEvent
	err := r.DB(ctx).Where("transfer_id = ?", transferID).Order("timestamp ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListForAddress returns the transfers where address is sender or
// recipient, most recent first. page.Total is populated with the
// matching row count so the caller can render pagination controls; a
// nil page defaults to the first 50-row page. window, if valid,
// restricts the results to transfers created within [Start, End].
func (r *transferRepository) ListForAddress(ctx context.Context, address string, page *Pagination, window *TimeRange) ([]*model.SignedTransfer, error) {
	if !r.Ready() {
		return nil, ErrStoreUnavailable
	}
	if page == nil {
		page = &Pagination{}
	}
	base := func() *gorm.DB {
		q := r.DB(ctx).Model(&model.SignedTransfer{}).Where("from_address = ? OR to_address = ?", address, address)
		if window.IsValid() {
			q = q.Where("created_at BETWEEN ? AND ?", time.Unix(window.Start, 0), time.Unix(window.End, 0))
		}
		return q
	}

	if err := base().Count(&page.Total).Error; err != nil {
		return nil, err
	}

	var rows []*model.SignedTransfer
	err := base().
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transferRepository) NonceExists(ctx context.Context, nonce string, excludeID int64) (bool, error) {
	if !r.Ready() {
		return false, ErrStoreUnavailable
	}
	var count int64
	q := r.DB(ctx).Model(&model.SignedTransfer{}).Where("nonce = ?", nonce)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByStatus reports how many rows currently sit in status, used by
// the stats endpoint's queue depth breakdown.
func (r *transferRepository) CountByStatus(ctx context.Context, status model.TransferStatus) (int64, error) {
	if !r.Ready() {
		return 0, ErrStoreUnavailable
	}
	var count int64
	err := r.DB(ctx).Model(&model.SignedTransfer{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// ErrStoreUnavailable is surfaced to the ingress layer when the store
// has no live database connection, per §4.2's degrade-not-crash contract.
var ErrStoreUnavailable = errors.New("store unavailable: no database connection")
