package api

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		From:            "0x1111111111111111111111111111111111111111",
		To:              "0x2222222222222222222222222222222222222222",
		Amount:          "1.5",
		Nonce:           "0x01",
		Deadline:        9999999999,
		Signature:       "0xabcdef",
		ContractAddress: "0x3333333333333333333333333333333333333333",
	}
}

func TestSubmitRequest_ValidateAcceptsAWellFormedRequest(t *testing.T) {
	req := validRequest()
	assert.Empty(t, req.Validate())
}

func TestSubmitRequest_ValidateRejectsMalformedAddresses(t *testing.T) {
	req := validRequest()
	req.From = "not-an-address"
	errs := req.Validate()
	assert.Contains(t, errs, "from must match 0x[0-9a-f]{40}")
}

func TestSubmitRequest_ValidateAllowsEmptyTokenAddress(t *testing.T) {
	req := validRequest()
	req.TokenAddress = ""
	assert.Empty(t, req.Validate())
}

func TestSubmitRequest_ValidateRejectsMalformedTokenAddressWhenPresent(t *testing.T) {
	req := validRequest()
	req.TokenAddress = "0xnotvalid"
	errs := req.Validate()
	assert.Contains(t, errs, "tokenAddress must match 0x[0-9a-f]{40}")
}

func TestSubmitRequest_ValidateRejectsNonPositiveDeadline(t *testing.T) {
	req := validRequest()
	req.Deadline = 0
	errs := req.Validate()
	assert.Contains(t, errs, "deadline must be a positive integer")
}

func TestSubmitRequest_ValidateRejectsNonPositiveAmount(t *testing.T) {
	req := validRequest()
	req.Amount = "-1"
	errs := req.Validate()
	assert.Contains(t, errs, "amount must parse as a positive decimal")
}

func TestSubmitRequest_ValidateRejectsUnparsableAmount(t *testing.T) {
	req := validRequest()
	req.Amount = "not-a-number"
	errs := req.Validate()
	assert.Contains(t, errs, "amount must parse as a positive decimal")
}

func TestSubmitRequest_ValidateAccumulatesMultipleErrors(t *testing.T) {
	req := SubmitRequest{}
	errs := req.Validate()
	assert.Greater(t, len(errs), 3)
}

func TestSubmitRequest_ParsedAmount(t *testing.T) {
	req := validRequest()
	require := decimal.RequireFromString("1.5")
	assert.True(t, require.Equal(req.ParsedAmount()))
}
