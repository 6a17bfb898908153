package crypto

import (
	"math/big"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func TestHashTypedDataV4_ETHTransfer_RoundTripsThroughSignAndRecover(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	from := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	domain := Domain{Name: "AION", Version: "1", ChainID: 1, VerifyingContract: "0x3333333333333333333333333333333333333333"}
	structHash := HashETHTransfer(ETHTransfer{
		From:     from,
		To:       "0x2222222222222222222222222222222222222222",
		Amount:   big.NewInt(1000),
		Nonce:    big.NewInt(1),
		Deadline: 9999999999,
	})
	digest := HashTypedDataV4(domain, structHash)

	sig, err := gethcrypto.Sign(digest, key)
	require.NoError(t, err)

	ok, err := VerifySigner(from, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySigner_RejectsWrongSigner(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	other, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := gethcrypto.PubkeyToAddress(other.PublicKey).Hex()

	domain := Domain{Name: "AION", Version: "1", ChainID: 1, VerifyingContract: "0x3333333333333333333333333333333333333333"}
	structHash := HashETHTransfer(ETHTransfer{
		From:     gethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		To:       "0x2222222222222222222222222222222222222222",
		Amount:   big.NewInt(1000),
		Nonce:    big.NewInt(1),
		Deadline: 9999999999,
	})
	digest := HashTypedDataV4(domain, structHash)

	sig, err := gethcrypto.Sign(digest, key)
	require.NoError(t, err)

	ok, err := VerifySigner(otherAddr, digest, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashDomain_DiffersByChainID(t *testing.T) {
	base := Domain{Name: "AION", Version: "1", ChainID: 1, VerifyingContract: "0x3333333333333333333333333333333333333333"}
	other := base
	other.ChainID = 2

	assert.NotEqual(t, HashDomain(base), HashDomain(other))
}

func TestHashETHTransfer_DiffersByAmount(t *testing.T) {
	base := ETHTransfer{
		From: "0x1111111111111111111111111111111111111111",
		To:   "0x2222222222222222222222222222222222222222",
		Amount: big.NewInt(1000), Nonce: big.NewInt(1), Deadline: 1,
	}
	other := base
	other.Amount = big.NewInt(2000)

	assert.NotEqual(t, HashETHTransfer(base), HashETHTransfer(other))
}

func TestRecoverSigner_RejectsWrongLengthSignature(t *testing.T) {
	_, err := RecoverSigner(make([]byte, 32), make([]byte, 10))
	assert.Error(t, err)
}
