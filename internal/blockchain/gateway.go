package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AIONPAY/AION-MVP/internal/contract"
)

// ErrReceiptPending is returned by AwaitReceipt's poll loop internally;
// callers see it only if the context is done before a receipt appears.
var ErrReceiptPending = errors.New("transaction receipt not yet available")

// Receipt is the caller-facing view of an on-chain transaction outcome.
type Receipt struct {
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
	TxHash      string
}

// GatewayConfig configures the Chain Gateway.
type GatewayConfig struct {
	ChainID         int64
	PrivateKeyHex   string
	RPCURLs         []string
	EscrowAddress   string
	MaxRetries      int
	RetryInterval   time.Duration
	HealthCheckFreq time.Duration
	LogWarn         func(format string, args ...interface{})
}

// Gateway is the escrow-specific Chain Gateway: it wraps the generic
// multi-RPC Client with the contract's view/submission surface.
type Gateway struct {
	client *Client
	escrow *contract.EscrowContract
}

// NewGateway builds a Gateway, validating the gas-payer private key per
// §4.6: it must be 32 bytes of hex and nonzero, or a warning is logged
// and a development-only random key is substituted.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	logWarn := cfg.LogWarn
	if logWarn == nil {
		logWarn = func(string, ...interface{}) {}
	}

	keyHex := sanitizePrivateKey(cfg.PrivateKeyHex, logWarn)

	client, err := NewClient(&ClientConfig{
		ChainID:         cfg.ChainID,
		PrivateKey:      keyHex,
		RPCURLs:         cfg.RPCURLs,
		MaxRetries:      cfg.MaxRetries,
		RetryInterval:   cfg.RetryInterval,
		HealthCheckFreq: cfg.HealthCheckFreq,
	})
	if err != nil {
		return nil, fmt.Errorf("connect chain gateway: %w", err)
	}

	backend, err := client.Backend()
	if err != nil {
		return nil, fmt.Errorf("chain gateway backend: %w", err)
	}

	// backend serves EstimateGas and other write-path needs; client
	// itself serves the read-only view calls (CallContract/CodeAt) so
	// they go through withRetry's multi-RPC failover.
	escrow, err := contract.NewEscrowContract(common.HexToAddress(cfg.EscrowAddress), backend, client)
	if err != nil {
		return nil, fmt.Errorf("bind escrow contract: %w", err)
	}

	return &Gateway{client: client, escrow: escrow}, nil
}

// sanitizePrivateKey validates keyHex as 32 bytes of nonzero hex,
// falling back to a freshly generated development key with a warning
// when it is malformed.
func sanitizePrivateKey(keyHex string, logWarn func(string, ...interface{})) string {
	trimmed := strings.TrimPrefix(keyHex, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err == nil && !isZeroKey(key) {
		return trimmed
	}

	logWarn("gas-payer private key is malformed or zero, generating a development-only key: %v", err)
	devKey, genErr := crypto.GenerateKey()
	if genErr != nil {
		panic(fmt.Sprintf("failed to generate fallback development key: %v", genErr))
	}
	return common.Bytes2Hex(crypto.FromECDSA(devKey))
}

func isZeroKey(key *ecdsa.PrivateKey) bool {
	return key.D.Sign() == 0
}

// Address returns the relayer's gas-payer address.
func (g *Gateway) Address() common.Address {
	return g.client.Address()
}

// Caller exposes the underlying multi-RPC client as a retrying
// bind.ContractCaller, used to build the decimals resolver and any
// other read-only ABI-bound caller sharing the gateway's failover.
func (g *Gateway) Caller() bind.ContractCaller {
	return g.client
}

// HealthCheck reports whether the gateway can currently reach a
// healthy RPC endpoint.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	return g.client.HealthCheck(ctx)
}

// BlockNumber returns the latest block number observed by the gateway.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	return g.client.BlockNumber(ctx)
}

// GasPayerBalance returns the relayer's gas-payer native balance,
// which the health endpoint surfaces so an operator notices a
// draining wallet before submissions start failing on insufficient
// funds.
func (g *Gateway) GasPayerBalance(ctx context.Context) (*big.Int, error) {
	return g.client.BalanceAt(ctx, g.client.Address(), nil)
}

// HealthyEndpointCount reports how many of the configured RPC
// endpoints are currently marked healthy.
func (g *Gateway) HealthyEndpointCount() int {
	return len(g.client.GetHealthyEndpoints())
}

// ChainID queries the live network chain id.
func (g *Gateway) ChainID(ctx context.Context) (int64, error) {
	return g.client.NetworkChainID(ctx)
}

// NonceUsed implements validator.Oracle.
func (g *Gateway) NonceUsed(ctx context.Context, nonce string) (bool, error) {
	var b [32]byte
	copy(b[:], common.FromHex(nonce))
	return g.escrow.UsedNonces(ctx, b)
}

// LockedFundsETH implements validator.Oracle.
func (g *Gateway) LockedFundsETH(ctx context.Context, addr string) (*big.Int, error) {
	return g.escrow.LockedFundsETH(ctx, common.HexToAddress(addr))
}

// LockedFundsERC20 implements validator.Oracle.
func (g *Gateway) LockedFundsERC20(ctx context.Context, token, addr string) (*big.Int, error) {
	return g.escrow.LockedFundsERC20(ctx, common.HexToAddress(token), common.HexToAddress(addr))
}

// WithdrawTimestamp implements validator.Oracle.
func (g *Gateway) WithdrawTimestamp(ctx context.Context, addr string) (int64, error) {
	ts, err := g.escrow.WithdrawTimestamps(ctx, common.HexToAddress(addr))
	if err != nil {
		return 0, err
	}
	return ts.Int64(), nil
}

// GasPrice returns the network's suggested gas price.
func (g *Gateway) GasPrice(ctx context.Context) (*big.Int, error) {
	return g.client.SuggestGasPrice(ctx)
}

// ExecuteETHTransfer submits an executeETHTransfer transaction and
// returns its hash immediately, before confirmation.
func (g *Gateway) ExecuteETHTransfer(ctx context.Context, p contract.ETHTransferParams) (string, error) {
	data, err := g.escrow.PackExecuteETHTransfer(p)
	if err != nil {
		return "", err
	}
	return g.sendContractCall(ctx, data)
}

// ExecuteERC20Transfer submits an executeERC20Transfer transaction and
// returns its hash immediately, before confirmation.
func (g *Gateway) ExecuteERC20Transfer(ctx context.Context, p contract.ERC20TransferParams) (string, error) {
	data, err := g.escrow.PackExecuteERC20Transfer(p)
	if err != nil {
		return "", err
	}
	return g.sendContractCall(ctx, data)
}

func (g *Gateway) sendContractCall(ctx context.Context, data []byte) (string, error) {
	from := g.client.Address()
	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", err
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	to := g.escrow.Address()
	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := g.client.SignTransaction(tx)
	if err != nil {
		return "", err
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

// TransactionReceipt performs a single, non-blocking receipt lookup, used
// by the executor's crash-recovery path to check whether a transaction it
// lost track of was already mined, without committing to AwaitReceipt's
// poll loop.
func (g *Gateway) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := g.client.GetTransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		TxHash:      txHash,
	}, nil
}

// AwaitReceipt polls until txHash's receipt is available or ctx is done.
func (g *Gateway) AwaitReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := g.client.GetTransactionReceipt(ctx, hash)
		if err == nil {
			return &Receipt{
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
				TxHash:      txHash,
			}, nil
		}
		if !errors.Is(err, ErrTxNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrReceiptPending, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection.
func (g *Gateway) Close() {
	g.client.Close()
}
