package api

import (
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hexBlobPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// SubmitRequest is the JSON body accepted by /relayer/submit and its
// /relayer/transfers synonym.
type SubmitRequest struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	Nonce           string `json:"nonce"`
	Deadline        int64  `json:"deadline"`
	Signature       string `json:"signature"`
	ContractAddress string `json:"contractAddress"`
	TokenAddress    string `json:"tokenAddress,omitempty"`
}

// Validate performs the ingress layer's shape checks — regex and range
// checks only, no cryptography or on-chain state. It returns one error
// message per offending field.
func (r SubmitRequest) Validate() []string {
	var errs []string

	if !addressPattern.MatchString(r.From) {
		errs = append(errs, "from must match 0x[0-9a-f]{40}")
	}
	if !addressPattern.MatchString(r.To) {
		errs = append(errs, "to must match 0x[0-9a-f]{40}")
	}
	if !addressPattern.MatchString(r.ContractAddress) {
		errs = append(errs, "contractAddress must match 0x[0-9a-f]{40}")
	}
	if r.TokenAddress != "" && !addressPattern.MatchString(r.TokenAddress) {
		errs = append(errs, "tokenAddress must match 0x[0-9a-f]{40}")
	}
	if !hexBlobPattern.MatchString(r.Nonce) {
		errs = append(errs, "nonce must match 0x[0-9a-f]+")
	}
	if !hexBlobPattern.MatchString(r.Signature) {
		errs = append(errs, "signature must match 0x[0-9a-f]+")
	}
	if r.Deadline <= 0 {
		errs = append(errs, "deadline must be a positive integer")
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil || !amount.IsPositive() {
		errs = append(errs, "amount must parse as a positive decimal")
	}

	return errs
}

// ParsedAmount returns the amount parsed as decimal.Decimal. Callers
// must have already run Validate successfully.
func (r SubmitRequest) ParsedAmount() decimal.Decimal {
	amount, _ := decimal.NewFromString(r.Amount)
	return amount
}
