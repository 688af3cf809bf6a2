package services

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// ConfirmedCapacity bounds the number of confirmed transaction ids remembered per address
	ConfirmedCapacity = 1000
	// MempoolCapacity bounds the number of pending transaction ids remembered per address
	MempoolCapacity = 100
)

// DedupTracker decides which transaction sightings of one address are reportable.
// Both id sets evict oldest-first. Membership checks use Contains, which does not
// touch recency, so eviction order is insertion order.
//
// A tracker is owned by a single address and is not safe for concurrent use.
type DedupTracker struct {
	confirmed *simplelru.LRU[string, struct{}]
	mempool   *simplelru.LRU[string, struct{}]
}

// NewDedupTracker creates a tracker with the default capacities
func NewDedupTracker() *DedupTracker {
	return NewDedupTrackerWithCapacity(ConfirmedCapacity, MempoolCapacity)
}

// NewDedupTrackerWithCapacity creates a tracker with custom capacities
func NewDedupTrackerWithCapacity(confirmedCap, mempoolCap int) *DedupTracker {
	confirmed, err := simplelru.NewLRU[string, struct{}](confirmedCap, nil)
	if err != nil {
		panic(err)
	}
	mempool, err := simplelru.NewLRU[string, struct{}](mempoolCap, nil)
	if err != nil {
		panic(err)
	}
	return &DedupTracker{confirmed: confirmed, mempool: mempool}
}

// Observe records a sighting of txID and reports whether it is a new lifecycle event.
//
// A pending sighting is reportable once. A confirmed sighting is reportable when the
// id was never confirmed before, or when it is still tracked as pending (promotion).
func (d *DedupTracker) Observe(txID string, pending bool) bool {
	if pending {
		if d.mempool.Contains(txID) {
			return false
		}
		d.mempool.Add(txID, struct{}{})
		return true
	}

	wasPending := d.mempool.Contains(txID)
	if d.confirmed.Contains(txID) && !wasPending {
		return false
	}

	d.mempool.Remove(txID)
	if !d.confirmed.Contains(txID) {
		d.confirmed.Add(txID, struct{}{})
	}
	return true
}

// IsPending reports whether txID was seen in the mempool and not yet confirmed
func (d *DedupTracker) IsPending(txID string) bool {
	return d.mempool.Contains(txID)
}

// ConfirmedLen returns the number of remembered confirmed ids
func (d *DedupTracker) ConfirmedLen() int {
	return d.confirmed.Len()
}

// MempoolLen returns the number of remembered pending ids
func (d *DedupTracker) MempoolLen() int {
	return d.mempool.Len()
}
