package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MinAddressLength is the shortest string accepted as an Ergo address
const MinAddressLength = 40

// WatchedAddress is a registration request for an address to monitor
type WatchedAddress struct {
	Address       string        `db:"address"`
	Nickname      string        `db:"nickname"`
	LookbackHours int           `db:"lookback_hours"`
	ReportBalance bool          `db:"report_balance"`
	Destinations  []Destination `db:"-"`
}

// Validate checks the address format
func (w WatchedAddress) Validate() error {
	if len(w.Address) < MinAddressLength {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, w.Address)
	}
	return nil
}

// DisplayName returns the nickname, falling back to the address prefix
func (w WatchedAddress) DisplayName() string {
	if w.Nickname != "" {
		return w.Nickname
	}
	return ShortAddress(w.Address)
}

// ErrInvalidAddress is returned for malformed addresses
var ErrInvalidAddress = fmt.Errorf("invalid ergo address")

// Checkpoint marks how far the history of an address has been scanned
type Checkpoint struct {
	LastCheck  time.Time `json:"last_check"`
	LastHeight int64     `json:"last_height"`
}

// Advance moves the checkpoint forward, never backwards
func (c Checkpoint) Advance(now time.Time, height int64) Checkpoint {
	next := c
	if now.After(next.LastCheck) {
		next.LastCheck = now
	}
	if height > next.LastHeight {
		next.LastHeight = height
	}
	return next
}

// TokenBalance is the held amount of one token
type TokenBalance struct {
	TokenID  string `json:"token_id"`
	Amount   int64  `json:"amount"`
	Name     string `json:"name,omitempty"`
	Decimals *int   `json:"decimals,omitempty"`
}

// FormattedAmount returns the amount scaled by the token decimals
func (b TokenBalance) FormattedAmount() decimal.Decimal {
	return scaleAmount(b.Amount, b.Decimals)
}

// BalanceSnapshot is the full balance of an address at one point in time
type BalanceSnapshot struct {
	Erg       decimal.Decimal         `json:"erg_balance"`
	Tokens    map[string]TokenBalance `json:"tokens"`
	UpdatedAt time.Time               `json:"last_updated"`
}

// NewBalanceSnapshot returns an empty snapshot
func NewBalanceSnapshot() *BalanceSnapshot {
	return &BalanceSnapshot{
		Erg:    decimal.Zero,
		Tokens: make(map[string]TokenBalance),
	}
}

// AddressView is a read-only copy of a monitored address entry
type AddressView struct {
	Address       string           `json:"address"`
	Nickname      string           `json:"nickname"`
	Checkpoint    Checkpoint       `json:"checkpoint"`
	Balance       *BalanceSnapshot `json:"balance"`
	ReportBalance bool             `json:"report_balance"`
	Destinations  []Destination    `json:"destinations"`
}

// ShortAddress truncates an address for display
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:8]
}
