package validator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AIONPAY/AION-MVP/internal/pkg/crypto"

	"github.com/stretchr/testify/assert"
)

type stubOracle struct {
	chainID      int64
	chainIDErr   error
	nonceUsed    bool
	lockedETH    *big.Int
	lockedERC20  *big.Int
	withdrawTS   int64
	withdrawTSErr error
}

func (s *stubOracle) ChainID(ctx context.Context) (int64, error) { return s.chainID, s.chainIDErr }
func (s *stubOracle) NonceUsed(ctx context.Context, nonce string) (bool, error) {
	return s.nonceUsed, nil
}
func (s *stubOracle) LockedFundsETH(ctx context.Context, addr string) (*big.Int, error) {
	return s.lockedETH, nil
}
func (s *stubOracle) LockedFundsERC20(ctx context.Context, token, addr string) (*big.Int, error) {
	return s.lockedERC20, nil
}
func (s *stubOracle) WithdrawTimestamp(ctx context.Context, addr string) (int64, error) {
	return s.withdrawTS, s.withdrawTSErr
}

type stubStore struct {
	exists bool
}

func (s *stubStore) NonceExists(ctx context.Context, nonce string, excludeID int64) (bool, error) {
	return s.exists, nil
}

func signedCandidate(t *testing.T, chainID int64, amount decimal.Decimal) (Candidate, string) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	from := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	c := Candidate{
		From:            from,
		To:              "0x2222222222222222222222222222222222222222",
		Amount:          amount,
		Deadline:        time.Now().Add(time.Hour).Unix(),
		Nonce:           "0x01",
		ContractAddress: "0x3333333333333333333333333333333333333333",
		Decimals:        18,
	}

	domain := crypto.Domain{Name: "AION", Version: "1", ChainID: chainID, VerifyingContract: c.ContractAddress}
	nonce := new(big.Int).SetInt64(1)
	amountWei := toSmallestUnit(c.Amount, c.Decimals)
	structHash := crypto.HashETHTransfer(crypto.ETHTransfer{
		From: c.From, To: c.To, Amount: amountWei, Nonce: nonce, Deadline: c.Deadline,
	})
	digest := crypto.HashTypedDataV4(domain, structHash)
	sig, err := gethcrypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27

	c.Signature = "0x" + hexEncode(sig)
	return c, from
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestCheck_ValidCandidatePasses(t *testing.T) {
	amount := decimal.RequireFromString("1.5")
	c, from := signedCandidate(t, 1, amount)

	oracle := &stubOracle{chainID: 1, lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.True(t, res.SignatureValid)
	assert.Empty(t, res.Errors)
	_ = from
}

func TestCheck_ExpiredDeadlineIsPermanent(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)
	c.Deadline = time.Now().Add(-time.Hour).Unix()

	oracle := &stubOracle{chainID: 1, lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.Valid)
	assert.False(t, res.DeadlineValid)
	assert.True(t, res.Permanent)
}

func TestCheck_NonPositiveAmountFails(t *testing.T) {
	c, _ := signedCandidate(t, 1, decimal.Zero)

	oracle := &stubOracle{chainID: 1, lockedETH: big.NewInt(0)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.AmountValid)
	assert.False(t, res.Valid)
}

func TestCheck_InvalidSignatureFailsPermanently(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)
	c.Signature = "0x" + hexEncode(make([]byte, 65))

	oracle := &stubOracle{chainID: 1, lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.SignatureValid)
	assert.True(t, res.Permanent)
}

func TestCheck_DuplicateNonceInStoreFails(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{chainID: 1, lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: true}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.NonceUnused)
	assert.False(t, res.Valid)
}

func TestCheck_NonceAlreadyUsedOnChainIsPermanent(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{chainID: 1, nonceUsed: true, lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.NonceUnused)
	assert.True(t, res.Permanent)
}

func TestCheck_InsufficientFundsFails(t *testing.T) {
	amount := decimal.RequireFromString("5")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{chainID: 1, lockedETH: big.NewInt(1)}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.SenderHasFunds)
	assert.False(t, res.Valid)
}

func TestCheck_ActiveGracePeriodBlocksAndIsPermanent(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{
		chainID:    1,
		lockedETH:  toSmallestUnit(amount, 18),
		withdrawTS: time.Now().Add(-400 * time.Second).Unix(),
	}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.True(t, res.GracePeriodActive)
	assert.True(t, res.Permanent)
	assert.False(t, res.Valid)
}

func TestCheck_WithinGracePeriodDoesNotBlock(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{
		chainID:    1,
		lockedETH:  toSmallestUnit(amount, 18),
		withdrawTS: time.Now().Add(-60 * time.Second).Unix(),
	}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.GracePeriodActive)
	assert.True(t, res.Valid)
}

func TestCheck_LockoutOracleFailureFailsClosedButIsNotPermanent(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 1, amount)

	oracle := &stubOracle{
		chainID:       1,
		lockedETH:     toSmallestUnit(amount, 18),
		withdrawTSErr: errors.New("rpc timeout"),
	}
	v := New(oracle, &stubStore{exists: false}, 1, 0, 0, nil)

	res := v.Check(context.Background(), c)
	assert.False(t, res.Valid)
	assert.False(t, res.GracePeriodActive)
	assert.False(t, res.Permanent, "an unresolved oracle read is transient, not a confirmed lockout")
	assert.Contains(t, strings.Join(res.Errors, ";"), "failed to check lockout")
}

func TestCheck_ChainIDOracleFailureFallsBackAndStillVerifies(t *testing.T) {
	amount := decimal.RequireFromString("1")
	c, _ := signedCandidate(t, 7, amount)

	warned := false
	oracle := &stubOracle{chainID: 0, chainIDErr: errors.New("rpc down"), lockedETH: toSmallestUnit(amount, 18)}
	v := New(oracle, &stubStore{exists: false}, 7, 0, 0, func(string, ...interface{}) { warned = true })

	res := v.Check(context.Background(), c)
	assert.True(t, res.SignatureValid)
	assert.True(t, warned, "expected the chain-id fallback to log a warning")
}
