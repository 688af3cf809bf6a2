package repositories

import (
	"context"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// LedgerRepository defines the interface for reading address history from the ledger
type LedgerRepository interface {
	// GetAddressTransactions returns a page of transactions touching the address, newest first.
	// Unconfirmed transactions are included on the first page with Mempool set.
	GetAddressTransactions(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error)

	// GetUnspentOutputs returns the current unspent boxes owned by the address
	GetUnspentOutputs(ctx context.Context, address string) ([]entities.Box, error)
}
