// Package validator implements the pure and oracle-backed checks a
// signed transfer must pass before it is queued for execution.
package validator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	relayercrypto "github.com/AIONPAY/AION-MVP/internal/pkg/crypto"
)

// DefaultGracePeriod is the window after a withdrawal is initiated
// during which transfers still execute, used when the relayer config
// does not override it.
const DefaultGracePeriod = 300 * time.Second

// DefaultLockoutDelay is the on-chain withdrawal delay after which a
// pending withdrawal completes or can be cancelled, used when the
// relayer config does not override it.
const DefaultLockoutDelay = 600 * time.Second

// Candidate is the input to Check: a transfer awaiting validation, plus
// the id it should exclude from the store's own nonce-uniqueness check
// (non-zero only when re-validating a row already persisted).
type Candidate struct {
	ID              int64
	From            string
	To              string
	Amount          decimal.Decimal
	Deadline        int64
	Nonce           string
	Signature       string
	ContractAddress string
	TokenAddress    string
	Decimals        int32
}

// Oracle is the on-chain read surface the validator needs. Implemented
// by the Chain Gateway.
type Oracle interface {
	ChainID(ctx context.Context) (int64, error)
	NonceUsed(ctx context.Context, nonce string) (bool, error)
	LockedFundsETH(ctx context.Context, addr string) (*big.Int, error)
	LockedFundsERC20(ctx context.Context, token, addr string) (*big.Int, error)
	WithdrawTimestamp(ctx context.Context, addr string) (int64, error)
}

// Store is the subset of the repository the validator needs for the
// database side of the dual-source nonce check.
type Store interface {
	NonceExists(ctx context.Context, nonce string, excludeID int64) (bool, error)
}

// Result is the verdict for one candidate.
type Result struct {
	Valid              bool
	SignatureValid     bool
	DeadlineValid      bool
	NonceUnused        bool
	SenderHasFunds     bool
	GracePeriodActive  bool
	AmountValid        bool
	Errors             []string
	Permanent          bool
}

// Validator runs the six independent checks from §4.1.
type Validator struct {
	oracle        Oracle
	store         Store
	fallbackChain int64
	gracePeriod   time.Duration
	lockoutDelay  time.Duration
	logWarn       func(format string, args ...interface{})
}

// New builds a Validator. fallbackChainID is used when the oracle's
// chain-id query fails, per the "fail loudly if misconfigured, not on
// flaky RPC" design note; logWarn receives a printf-style warning when
// that fallback is taken. gracePeriod and lockoutDelay come from the
// relayer config's lockout settings; a zero value falls back to
// DefaultGracePeriod/DefaultLockoutDelay.
func New(oracle Oracle, store Store, fallbackChainID int64, gracePeriod, lockoutDelay time.Duration, logWarn func(string, ...interface{})) *Validator {
	if logWarn == nil {
		logWarn = func(string, ...interface{}) {}
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if lockoutDelay <= 0 {
		lockoutDelay = DefaultLockoutDelay
	}
	return &Validator{
		oracle: oracle, store: store, fallbackChain: fallbackChainID,
		gracePeriod: gracePeriod, lockoutDelay: lockoutDelay, logWarn: logWarn,
	}
}

// Check runs all six checks against c and returns the aggregate verdict.
func (v *Validator) Check(ctx context.Context, c Candidate) Result {
	var res Result
	res.AmountValid = c.Amount.IsPositive()
	if !res.AmountValid {
		res.Errors = append(res.Errors, "amount must be a positive quantity")
	}

	now := time.Now().Unix()
	res.DeadlineValid = now <= c.Deadline
	if !res.DeadlineValid {
		res.Errors = append(res.Errors, "deadline has expired")
		res.Permanent = true
	}

	res.SignatureValid = v.checkSignature(c)
	if !res.SignatureValid {
		res.Errors = append(res.Errors, "signature is invalid")
		res.Permanent = true
	}

	nonceUnused, permanent, err := v.checkNonce(ctx, c)
	res.NonceUnused = nonceUnused
	if !nonceUnused {
		res.Errors = append(res.Errors, "nonce already used")
		if permanent {
			res.Permanent = true
		}
	}
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to check nonce: %v", err))
	}

	fundsOK, err := v.checkFunds(ctx, c)
	res.SenderHasFunds = fundsOK
	if !fundsOK {
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to check balance: %v", err))
		} else {
			res.Errors = append(res.Errors, "sender has insufficient locked balance")
		}
	}

	// A failed oracle read here is treated the same way checkFunds treats
	// one: it fails validation rather than defaulting to "not locked",
	// since the relayer cannot tell an unresolved lockout query apart
	// from an active one. Only a confirmed active lockout is permanent;
	// an oracle failure is transient and worth retrying.
	graceActive, lockedUntil, err := v.checkGracePeriod(ctx, c)
	lockoutResolved := err == nil
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to check lockout: %v", err))
	} else {
		res.GracePeriodActive = graceActive
		if graceActive {
			res.Errors = append(res.Errors, fmt.Sprintf("sender is in withdrawal lockout period until %s", lockedUntil.UTC().Format(time.RFC3339)))
			res.Permanent = true
		}
	}

	res.Valid = res.AmountValid && res.DeadlineValid && res.SignatureValid &&
		res.NonceUnused && res.SenderHasFunds && lockoutResolved && !graceActive
	return res
}

// checkSignature recovers the EIP-712 signer and compares it to
// c.From case-insensitively. Only typed-data (eth_signTypedData_v4)
// signatures are accepted; there is no personal-sign fallback.
func (v *Validator) checkSignature(c Candidate) bool {
	chainID := v.chainIDForDomain(context.Background())
	domain := relayercrypto.Domain{
		Name:              "AION",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: c.ContractAddress,
	}

	nonce := new(big.Int)
	nonce.SetString(strings.TrimPrefix(c.Nonce, "0x"), 16)
	amountWei := toSmallestUnit(c.Amount, c.Decimals)

	var structHash []byte
	if c.TokenAddress == "" {
		structHash = relayercrypto.HashETHTransfer(relayercrypto.ETHTransfer{
			From:     c.From,
			To:       c.To,
			Amount:   amountWei,
			Nonce:    nonce,
			Deadline: c.Deadline,
		})
	} else {
		structHash = relayercrypto.HashERC20Transfer(relayercrypto.ERC20Transfer{
			Token:    c.TokenAddress,
			From:     c.From,
			To:       c.To,
			Amount:   amountWei,
			Nonce:    nonce,
			Deadline: c.Deadline,
		})
	}

	digest := relayercrypto.HashTypedDataV4(domain, structHash)
	sig, err := hexutil.Decode(c.Signature)
	if err != nil {
		return false
	}
	ok, err := relayercrypto.VerifySigner(c.From, digest, sig)
	if err != nil {
		return false
	}
	return ok
}

func (v *Validator) chainIDForDomain(ctx context.Context) int64 {
	id, err := v.oracle.ChainID(ctx)
	if err != nil {
		v.logWarn("chain id query failed, using configured fallback %d: %v", v.fallbackChain, err)
		return v.fallbackChain
	}
	return id
}

// checkNonce is the dual-source uniqueness check: no other stored row
// has this nonce, and the contract has not consumed it. Returns
// (unused, permanent, err); permanent is true only for the on-chain hit,
// since that can never resolve by retrying.
func (v *Validator) checkNonce(ctx context.Context, c Candidate) (bool, bool, error) {
	exists, err := v.store.NonceExists(ctx, c.Nonce, c.ID)
	if err != nil {
		return false, false, err
	}
	if exists {
		return false, false, nil
	}

	used, err := v.oracle.NonceUsed(ctx, c.Nonce)
	if err != nil {
		return false, false, err
	}
	if used {
		return false, true, nil
	}
	return true, false, nil
}

func (v *Validator) checkFunds(ctx context.Context, c Candidate) (bool, error) {
	amountWei := toSmallestUnit(c.Amount, c.Decimals)

	var locked *big.Int
	var err error
	if c.TokenAddress == "" {
		locked, err = v.oracle.LockedFundsETH(ctx, c.From)
	} else {
		locked, err = v.oracle.LockedFundsERC20(ctx, c.TokenAddress, c.From)
	}
	if err != nil {
		return false, err
	}
	return locked.Cmp(amountWei) >= 0, nil
}

// checkGracePeriod reports whether lockout is currently active (true =
// blocked), and if so, when the on-chain withdrawal delay is expected to
// release the funds. A zero withdrawal timestamp means no lockout was
// ever initiated.
func (v *Validator) checkGracePeriod(ctx context.Context, c Candidate) (active bool, lockedUntil time.Time, err error) {
	ts, err := v.oracle.WithdrawTimestamp(ctx, c.From)
	if err != nil {
		return false, time.Time{}, err
	}
	if ts == 0 {
		return false, time.Time{}, nil
	}
	withdrawnAt := time.Unix(ts, 0)
	active = time.Since(withdrawnAt) > v.gracePeriod
	if active {
		lockedUntil = withdrawnAt.Add(v.lockoutDelay)
	}
	return active, lockedUntil, nil
}

func toSmallestUnit(amount decimal.Decimal, decimals int32) *big.Int {
	scaled := amount.Shift(decimals)
	return scaled.BigInt()
}

