// Package model defines the persisted shapes of the relayer's transfer
// state machine and its append-only audit log.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the transfer state machine's current state.
type TransferStatus string

const (
	StatusReceived          TransferStatus = "received"
	StatusValidated         TransferStatus = "validated"
	StatusPending           TransferStatus = "pending"
	StatusConfirmed         TransferStatus = "confirmed"
	StatusFailed            TransferStatus = "failed"
	StatusPermanentlyFailed TransferStatus = "permanently_failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusPermanentlyFailed
}

// SignedTransfer is a payer-signed authorization to move funds out of
// the payer's locked escrow balance, plus the relayer's execution state
// for it.
type SignedTransfer struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Nonce string `gorm:"column:nonce;type:varchar(66);uniqueIndex;not null" json:"nonce"`

	From            string          `gorm:"column:from_address;type:varchar(42);index;not null" json:"from"`
	To              string          `gorm:"column:to_address;type:varchar(42);index;not null" json:"to"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Deadline        int64           `gorm:"column:deadline;type:bigint;not null" json:"deadline"`
	Signature       string          `gorm:"column:signature;type:varchar(512);not null" json:"signature"`
	ContractAddress string          `gorm:"column:contract_address;type:varchar(42);not null" json:"contractAddress"`
	TokenAddress    string          `gorm:"column:token_address;type:varchar(42)" json:"tokenAddress,omitempty"`

	Status       TransferStatus `gorm:"column:status;type:varchar(24);index;not null;default:received" json:"status"`
	TxHash       string         `gorm:"column:tx_hash;type:varchar(66)" json:"txHash,omitempty"`
	BlockNumber  int64          `gorm:"column:block_number;type:bigint" json:"blockNumber,omitempty"`
	RetryCount   int            `gorm:"column:retry_count;type:int;not null;default:0" json:"retryCount"`
	ErrorMessage string         `gorm:"column:error_message;type:varchar(500)" json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
	ValidatedAt *time.Time `gorm:"column:validated_at" json:"validatedAt,omitempty"`
	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submittedAt,omitempty"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmedAt,omitempty"`
}

// TableName returns the persisted table name.
func (SignedTransfer) TableName() string {
	return "signed_transfers"
}

// IsNativeTransfer reports whether this moves the chain's native asset
// rather than an ERC20 token.
func (t *SignedTransfer) IsNativeTransfer() bool {
	return t.TokenAddress == ""
}

// TransferEvent is one entry in a transfer's append-only audit log.
type TransferEvent struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TransferID int64  `gorm:"column:transfer_id;index;not null" json:"transferId"`
	Status     string `gorm:"column:status;type:varchar(24);not null" json:"status"`
	Message    string `gorm:"column:message;type:varchar(500)" json:"message,omitempty"`
	Metadata   string `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Timestamp  time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

// TableName returns the persisted table name.
func (TransferEvent) TableName() string {
	return "transfer_events"
}
