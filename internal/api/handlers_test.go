package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIONPAY/AION-MVP/internal/model"
	"github.com/AIONPAY/AION-MVP/internal/repository"
)

// fakeStore is a minimal repository.TransferRepository double: every
// method returns its configured error, exercised one handler at a time.
type fakeStore struct {
	ready      bool
	findErr    error
	transfer   *model.SignedTransfer
	listErr    error
	events     []*model.TransferEvent
	seenPage   *repository.Pagination
}

func (f *fakeStore) Ready() bool { return f.ready }
func (f *fakeStore) InsertReceived(ctx context.Context, t *model.SignedTransfer) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertReceivedAndValidate(ctx context.Context, t *model.SignedTransfer) (int64, error) {
	return 0, nil
}
func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, status model.TransferStatus, fields map[string]interface{}) error {
	return nil
}
func (f *fakeStore) ClaimForSubmission(ctx context.Context, id int64) (bool, error) { return false, nil }
func (f *fakeStore) FindByNonce(ctx context.Context, nonce string) (*model.SignedTransfer, error) {
	return nil, nil
}
func (f *fakeStore) FindByID(ctx context.Context, id int64) (*model.SignedTransfer, error) {
	return f.transfer, f.findErr
}
func (f *fakeStore) ListByStatus(ctx context.Context, status model.TransferStatus, limit int, excludePermanentlyFailed bool) ([]*model.SignedTransfer, error) {
	return nil, nil
}
func (f *fakeStore) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*model.SignedTransfer, error) {
	return nil, nil
}
func (f *fakeStore) AppendEvent(ctx context.Context, transferID int64, status, message, metadataJSON string) error {
	return nil
}
func (f *fakeStore) ListEvents(ctx context.Context, transferID int64) ([]*model.TransferEvent, error) {
	return f.events, f.listErr
}
func (f *fakeStore) ListForAddress(ctx context.Context, address string, page *repository.Pagination, window *repository.TimeRange) ([]*model.SignedTransfer, error) {
	f.seenPage = page
	return nil, nil
}
func (f *fakeStore) NonceExists(ctx context.Context, nonce string, excludeID int64) (bool, error) {
	return false, nil
}
func (f *fakeStore) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return nil
}
func (f *fakeStore) CountByStatus(ctx context.Context, status model.TransferStatus) (int64, error) {
	return 0, nil
}

func newTestServer(store repository.TransferRepository) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(store, nil, nil, nil, nil, nil, nil, Config{})
}

func TestHandleSubmit_MalformedBodyReturnsInvalidRequest(t *testing.T) {
	s := newTestServer(&fakeStore{ready: true})
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/relayer/submit", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestHandleGetTransfer_NonIntegerIDReturnsInvalidRequest(t *testing.T) {
	s := newTestServer(&fakeStore{ready: true})
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/relayer/transfers/not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestHandleGetTransfer_NotFoundReturnsTransferNotFound(t *testing.T) {
	s := newTestServer(&fakeStore{ready: true, findErr: repository.ErrTransferNotFound})
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/relayer/transfers/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "TRANSFER_NOT_FOUND")
}

func TestHandleGetTransfer_FoundReturnsTransferAndEvents(t *testing.T) {
	s := newTestServer(&fakeStore{
		ready:    true,
		transfer: &model.SignedTransfer{ID: 42, Status: model.StatusConfirmed},
		events:   []*model.TransferEvent{{ID: 1, TransferID: 42, Status: "confirmed"}},
	})
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/relayer/transfers/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confirmed"`)
}

func TestHandleTransactionsByAddress_InvalidAddressReturnsInvalidAddress(t *testing.T) {
	s := newTestServer(&fakeStore{ready: true})
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/transactions/not-an-address", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ADDRESS")
}

func TestHandleTransactionsByAddress_DefaultsPageSizeTo50(t *testing.T) {
	store := &fakeStore{ready: true}
	s := newTestServer(store)
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/transactions/0x1111111111111111111111111111111111111111", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.seenPage)
	assert.Equal(t, 50, store.seenPage.Limit())
	assert.Contains(t, rec.Body.String(), `"pageSize":50`)
}
