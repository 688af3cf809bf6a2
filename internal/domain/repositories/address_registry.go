package repositories

import (
	"context"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// AddressRegistry defines the source of addresses to monitor
type AddressRegistry interface {
	// LoadWatched returns every active watched address with its notification destinations
	LoadWatched(ctx context.Context) ([]entities.WatchedAddress, error)
}
