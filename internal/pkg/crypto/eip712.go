// Package crypto implements EIP-712 typed-data domain separation and
// signature recovery for transfer authorizations.
package crypto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the EIP-712 domain separator for the AION relayer.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

var domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

// ethTransferTypeHash is the struct type hash for a native-asset transfer.
var ethTransferTypeHash = crypto.Keccak256([]byte("ETHTransfer(address from,address to,uint256 amount,uint256 nonce,uint256 deadline)"))

// erc20TransferTypeHash is the struct type hash for an ERC20 transfer.
var erc20TransferTypeHash = crypto.Keccak256([]byte("ERC20Transfer(address token,address from,address to,uint256 amount,uint256 nonce,uint256 deadline)"))

// HashDomain computes the EIP-712 domain separator hash.
func HashDomain(d Domain) []byte {
	nameHash := crypto.Keccak256([]byte(d.Name))
	versionHash := crypto.Keccak256([]byte(d.Version))
	chainID := padLeft(big.NewInt(d.ChainID).Bytes(), 32)
	contract := padLeft(common.HexToAddress(d.VerifyingContract).Bytes(), 32)

	encoded := make([]byte, 0, 160)
	encoded = append(encoded, domainTypeHash...)
	encoded = append(encoded, nameHash...)
	encoded = append(encoded, versionHash...)
	encoded = append(encoded, chainID...)
	encoded = append(encoded, contract...)
	return crypto.Keccak256(encoded)
}

// ETHTransfer is the typed-data struct for a native-asset transfer
// authorization.
type ETHTransfer struct {
	From     string
	To       string
	Amount   *big.Int
	Nonce    *big.Int
	Deadline int64
}

// HashETHTransfer computes the struct hash of an ETHTransfer.
func HashETHTransfer(t ETHTransfer) []byte {
	encoded := make([]byte, 0, 192)
	encoded = append(encoded, ethTransferTypeHash...)
	encoded = append(encoded, padLeft(common.HexToAddress(t.From).Bytes(), 32)...)
	encoded = append(encoded, padLeft(common.HexToAddress(t.To).Bytes(), 32)...)
	encoded = append(encoded, padLeft(bigBytes(t.Amount), 32)...)
	encoded = append(encoded, padLeft(bigBytes(t.Nonce), 32)...)
	encoded = append(encoded, padLeft(big.NewInt(t.Deadline).Bytes(), 32)...)
	return crypto.Keccak256(encoded)
}

// ERC20Transfer is the typed-data struct for a token transfer
// authorization.
type ERC20Transfer struct {
	Token    string
	From     string
	To       string
	Amount   *big.Int
	Nonce    *big.Int
	Deadline int64
}

// HashERC20Transfer computes the struct hash of an ERC20Transfer.
func HashERC20Transfer(t ERC20Transfer) []byte {
	encoded := make([]byte, 0, 224)
	encoded = append(encoded, erc20TransferTypeHash...)
	encoded = append(encoded, padLeft(common.HexToAddress(t.Token).Bytes(), 32)...)
	encoded = append(encoded, padLeft(common.HexToAddress(t.From).Bytes(), 32)...)
	encoded = append(encoded, padLeft(common.HexToAddress(t.To).Bytes(), 32)...)
	encoded = append(encoded, padLeft(bigBytes(t.Amount), 32)...)
	encoded = append(encoded, padLeft(bigBytes(t.Nonce), 32)...)
	encoded = append(encoded, padLeft(big.NewInt(t.Deadline).Bytes(), 32)...)
	return crypto.Keccak256(encoded)
}

// HashTypedDataV4 computes the final digest a wallet actually signs:
// keccak256(0x1901 || domainSeparator || structHash).
func HashTypedDataV4(domain Domain, structHash []byte) []byte {
	domainSeparator := HashDomain(domain)
	encoded := make([]byte, 0, 66)
	encoded = append(encoded, 0x19, 0x01)
	encoded = append(encoded, domainSeparator...)
	encoded = append(encoded, structHash...)
	return crypto.Keccak256(encoded)
}

// RecoverSigner recovers the address that produced signature over digest.
// signature must be the standard 65-byte r||s||v encoding, v either {0,1}
// or {27,28}.
func RecoverSigner(digest, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return "", fmt.Errorf("invalid recovery id: %d", sig[64])
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifySigner reports whether signature over digest recovers to wallet
// (case-insensitive address comparison).
func VerifySigner(wallet string, digest, signature []byte) (bool, error) {
	recovered, err := RecoverSigner(digest, signature)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, wallet), nil
}

func padLeft(data []byte, size int) []byte {
	if len(data) >= size {
		return data[len(data)-size:]
	}
	result := make([]byte, size)
	copy(result[size-len(data):], data)
	return result
}

func bigBytes(v *big.Int) []byte {
	if v == nil {
		return []byte{}
	}
	return v.Bytes()
}
