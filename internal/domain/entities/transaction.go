package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErgDecimals is the number of fractional digits of one ERG (1 ERG = 1e9 nanoERG)
const ErgDecimals = 9

// TxType describes the direction of a transaction relative to a watched address
type TxType string

const (
	TxTypeIn      TxType = "In"
	TxTypeOut     TxType = "Out"
	TxTypeMixed   TxType = "Mixed"
	TxTypeUnknown TxType = "Unknown"
)

// TxStatus is the lifecycle state of a transaction
type TxStatus string

const (
	TxStatusPending   TxStatus = "Pending"
	TxStatusConfirmed TxStatus = "Confirmed"
)

// Transaction is a classified transaction seen from one watched address
type Transaction struct {
	ID        string          `json:"tx_id"`
	Type      TxType          `json:"type"`
	Value     decimal.Decimal `json:"value"` // signed ERG
	Fee       decimal.Decimal `json:"fee"`
	From      []string        `json:"from_addresses"`
	To        []string        `json:"to_addresses"`
	Tokens    []TokenDelta    `json:"tokens"`
	Height    *int64          `json:"block,omitempty"`
	Status    TxStatus        `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsPending reports whether the transaction has not been included in a block yet
func (t *Transaction) IsPending() bool {
	return t.Status == TxStatusPending
}

// TokenDelta is the net change of one token for the watched address
type TokenDelta struct {
	TokenID  string `json:"token_id"`
	Amount   int64  `json:"amount"`
	Name     string `json:"name,omitempty"`
	Decimals *int   `json:"decimals,omitempty"`
}

// FormattedAmount returns the amount scaled by the token decimals
func (d TokenDelta) FormattedAmount() decimal.Decimal {
	return scaleAmount(d.Amount, d.Decimals)
}

// NanoErgToErg converts a nanoERG integer to ERG
func NanoErgToErg(nano int64) decimal.Decimal {
	return decimal.New(nano, -ErgDecimals)
}

func scaleAmount(amount int64, decimals *int) decimal.Decimal {
	if decimals == nil || *decimals <= 0 {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -int32(*decimals))
}
