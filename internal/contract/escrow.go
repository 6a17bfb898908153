// Package contract provides the ABI binding for the escrow contract the
// relayer submits transfer authorizations against.
package contract

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Escrow contract errors.
var (
	ErrEscrowContractNotDeployed = errors.New("escrow contract not deployed")
	ErrInvalidTransferData       = errors.New("invalid transfer data")
)

// EscrowABI is the ABI of the verifying escrow contract described in the
// relayer's external interface: view methods for nonce, balance and
// lockout state, plus the two execute entry points the relayer submits
// authorizations through.
const EscrowABI = `[
	{
		"type": "function",
		"name": "usedNonces",
		"inputs": [{"name": "nonce", "type": "bytes32"}],
		"outputs": [{"name": "used", "type": "bool"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "lockedFundsETH",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "amount", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "lockedFundsERC20",
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "user", "type": "address"}
		],
		"outputs": [{"name": "amount", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "withdrawTimestamps",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "timestamp", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "gasPrice",
		"inputs": [],
		"outputs": [{"name": "price", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "executeETHTransfer",
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "deadline", "type": "uint256"},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "executeERC20Transfer",
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "deadline", "type": "uint256"},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	}
]`

// ETHTransferParams packs the arguments to executeETHTransfer.
type ETHTransferParams struct {
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Nonce     [32]byte
	Deadline  *big.Int
	Signature []byte
}

// ERC20TransferParams packs the arguments to executeERC20Transfer.
type ERC20TransferParams struct {
	Token     common.Address
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Nonce     [32]byte
	Deadline  *big.Int
	Signature []byte
}

// EscrowContract is the ABI-driven binding to the verifying escrow
// contract.
type EscrowContract struct {
	address common.Address
	abi     abi.ABI
	caller  bind.ContractCaller
	backend bind.ContractBackend
}

// NewEscrowContract parses EscrowABI and binds it to address. backend
// serves the write-path surface (gas estimation); caller serves the
// read-only view calls (usedNonces, lockedFunds*, withdrawTimestamps)
// and should be the retrying caller a Chain Gateway exposes, so a
// flaky RPC endpoint doesn't fail a validator check outright.
func NewEscrowContract(address common.Address, backend bind.ContractBackend, caller bind.ContractCaller) (*EscrowContract, error) {
	parsed, err := abi.JSON(strings.NewReader(EscrowABI))
	if err != nil {
		return nil, err
	}
	return &EscrowContract{address: address, abi: parsed, backend: backend, caller: caller}, nil
}

// Address returns the contract address.
func (c *EscrowContract) Address() common.Address {
	return c.address
}

func (c *EscrowContract) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return err
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}
	result, err := c.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return err
	}
	return c.abi.UnpackIntoInterface(out, method, result)
}

// UsedNonces reports whether nonce has already been consumed on-chain.
func (c *EscrowContract) UsedNonces(ctx context.Context, nonce [32]byte) (bool, error) {
	var used bool
	if err := c.call(ctx, &used, "usedNonces", nonce); err != nil {
		return false, err
	}
	return used, nil
}

// LockedFundsETH returns user's locked native balance.
func (c *EscrowContract) LockedFundsETH(ctx context.Context, user common.Address) (*big.Int, error) {
	var amount *big.Int
	if err := c.call(ctx, &amount, "lockedFundsETH", user); err != nil {
		return nil, err
	}
	return amount, nil
}

// LockedFundsERC20 returns user's locked balance of token.
func (c *EscrowContract) LockedFundsERC20(ctx context.Context, token, user common.Address) (*big.Int, error) {
	var amount *big.Int
	if err := c.call(ctx, &amount, "lockedFundsERC20", token, user); err != nil {
		return nil, err
	}
	return amount, nil
}

// WithdrawTimestamps returns the unix timestamp user initiated a
// withdrawal, or zero if none is in progress.
func (c *EscrowContract) WithdrawTimestamps(ctx context.Context, user common.Address) (*big.Int, error) {
	var ts *big.Int
	if err := c.call(ctx, &ts, "withdrawTimestamps", user); err != nil {
		return nil, err
	}
	return ts, nil
}

// GasPrice returns the contract's view of the current gas price.
func (c *EscrowContract) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	if err := c.call(ctx, &price, "gasPrice"); err != nil {
		return nil, err
	}
	return price, nil
}

// PackExecuteETHTransfer packs the executeETHTransfer call data.
func (c *EscrowContract) PackExecuteETHTransfer(p ETHTransferParams) ([]byte, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, ErrInvalidTransferData
	}
	return c.abi.Pack("executeETHTransfer", p.From, p.To, p.Amount, p.Nonce, p.Deadline, p.Signature)
}

// PackExecuteERC20Transfer packs the executeERC20Transfer call data.
func (c *EscrowContract) PackExecuteERC20Transfer(p ERC20TransferParams) ([]byte, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, ErrInvalidTransferData
	}
	return c.abi.Pack("executeERC20Transfer", p.Token, p.From, p.To, p.Amount, p.Nonce, p.Deadline, p.Signature)
}

// EstimateGasETHTransfer estimates gas for an executeETHTransfer call
// sent from the relayer's gas-payer address.
func (c *EscrowContract) EstimateGasETHTransfer(ctx context.Context, from common.Address, p ETHTransferParams) (uint64, error) {
	data, err := c.PackExecuteETHTransfer(p)
	if err != nil {
		return 0, err
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: data})
}

// EstimateGasERC20Transfer estimates gas for an executeERC20Transfer
// call sent from the relayer's gas-payer address.
func (c *EscrowContract) EstimateGasERC20Transfer(ctx context.Context, from common.Address, p ERC20TransferParams) (uint64, error) {
	data, err := c.PackExecuteERC20Transfer(p)
	if err != nil {
		return 0, err
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: data})
}

// NativeToken returns the zero address representing the chain's native
// asset.
func NativeToken() common.Address {
	return common.Address{}
}

// IsNativeToken reports whether token is the native-asset sentinel.
func IsNativeToken(token common.Address) bool {
	return token == NativeToken()
}
