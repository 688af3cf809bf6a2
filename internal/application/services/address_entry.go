package services

import (
	"sync"
	"time"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// AddressEntry is the monitor's state for one watched address.
// The checkpoint and balance are guarded so views can be taken while the
// owning worker is processing the address.
type AddressEntry struct {
	address       string
	nickname      string
	reportBalance bool
	destinations  []entities.Destination
	tracker       *DedupTracker

	mu         sync.RWMutex
	checkpoint entities.Checkpoint
	balance    *entities.BalanceSnapshot
}

func newAddressEntry(w entities.WatchedAddress, now time.Time) *AddressEntry {
	dests := make([]entities.Destination, len(w.Destinations))
	copy(dests, w.Destinations)

	return &AddressEntry{
		address:       w.Address,
		nickname:      w.DisplayName(),
		reportBalance: w.ReportBalance,
		destinations:  dests,
		tracker:       NewDedupTracker(),
		checkpoint: entities.Checkpoint{
			LastCheck: now.Add(-time.Duration(w.LookbackHours) * time.Hour),
		},
		balance: entities.NewBalanceSnapshot(),
	}
}

// Address returns the watched address
func (e *AddressEntry) Address() string {
	return e.address
}

// Checkpoint returns the current scan checkpoint
func (e *AddressEntry) Checkpoint() entities.Checkpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkpoint
}

func (e *AddressEntry) advance(now time.Time, height int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkpoint = e.checkpoint.Advance(now, height)
}

// SetBalance replaces the balance snapshot
func (e *AddressEntry) SetBalance(snapshot *entities.BalanceSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = snapshot
}

// View returns a copy of the entry that is safe to hand to other goroutines
func (e *AddressEntry) View() entities.AddressView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	dests := make([]entities.Destination, len(e.destinations))
	copy(dests, e.destinations)

	return entities.AddressView{
		Address:       e.address,
		Nickname:      e.nickname,
		Checkpoint:    e.checkpoint,
		Balance:       copySnapshot(e.balance),
		ReportBalance: e.reportBalance,
		Destinations:  dests,
	}
}

func copySnapshot(s *entities.BalanceSnapshot) *entities.BalanceSnapshot {
	if s == nil {
		return nil
	}
	out := &entities.BalanceSnapshot{
		Erg:       s.Erg,
		Tokens:    make(map[string]entities.TokenBalance, len(s.Tokens)),
		UpdatedAt: s.UpdatedAt,
	}
	for id, tb := range s.Tokens {
		out.Tokens[id] = tb
	}
	return out
}
