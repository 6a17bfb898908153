// Package contract provides smart contract related utilities.
package contract

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ErrChainNotSupported is unused today but kept for parity with the
// registry's chain-scoping constructor argument.
var ErrChainNotSupported = errors.New("chain not supported")

// ERC20ABI is the minimal ABI needed to resolve a token's decimals.
const ERC20ABI = `[
	{
		"type": "function",
		"name": "decimals",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view"
	}
]`

// DecimalsResolver resolves the number of decimals a transfer amount
// should be scaled by. Native transfers always use 18; ERC20 transfers
// must never assume 18 and are resolved by on-chain lookup (cached
// after the first query), per the spec's explicit amount-decimals open
// question.
type DecimalsResolver struct {
	mu       sync.RWMutex
	chainID  int64
	cache    map[common.Address]uint8
	erc20ABI abi.ABI
	caller   bind.ContractCaller
}

// NewDecimalsResolver builds a resolver backed by caller for on-chain
// decimals() queries.
func NewDecimalsResolver(chainID int64, caller bind.ContractCaller) (*DecimalsResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, err
	}
	return &DecimalsResolver{
		chainID:  chainID,
		cache:    make(map[common.Address]uint8),
		erc20ABI: parsed,
		caller:   caller,
	}, nil
}

// Decimals returns the decimals to scale amounts by for token. The zero
// address (native asset) always resolves to 18 without a chain call.
func (r *DecimalsResolver) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if IsNativeToken(token) {
		return 18, nil
	}

	r.mu.RLock()
	cached, ok := r.cache[token]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	decimals, err := r.queryDecimals(ctx, token)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.cache[token] = decimals
	r.mu.Unlock()
	return decimals, nil
}

func (r *DecimalsResolver) queryDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if r.caller == nil {
		return 0, errors.New("no contract caller configured")
	}

	data, err := r.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, err
	}

	var decimals uint8
	if err := r.erc20ABI.UnpackIntoInterface(&decimals, "decimals", result); err != nil {
		return 0, err
	}
	return decimals, nil
}
