package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// FlowSummary aggregates the confirmed activity of one address
type FlowSummary struct {
	Address      string          `json:"address"`
	Incoming     int64           `json:"incoming_count"`
	Outgoing     int64           `json:"outgoing_count"`
	Mixed        int64           `json:"mixed_count"`
	PendingSeen  int64           `json:"pending_seen"`
	ErgIn        decimal.Decimal `json:"erg_in"`
	ErgOut       decimal.Decimal `json:"erg_out"`
	FeesPaid     decimal.Decimal `json:"fees_paid"`
	TokensSeen   []string        `json:"tokens_seen"`
	LastActivity time.Time       `json:"last_activity"`
}

type flow struct {
	summary FlowSummary
	tokens  map[string]struct{}
}

// FlowTracker keeps in-memory flow aggregates per address.
// Volumes only count confirmed transactions so a promoted transaction is not counted twice.
type FlowTracker struct {
	mu    sync.RWMutex
	flows map[string]*flow
}

// NewFlowTracker creates an empty tracker
func NewFlowTracker() *FlowTracker {
	return &FlowTracker{flows: make(map[string]*flow)}
}

// ProcessEvent implements Sink
func (f *FlowTracker) ProcessEvent(ctx context.Context, address string, tx entities.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.flows[address]
	if !ok {
		fl = &flow{
			summary: FlowSummary{
				Address:  address,
				ErgIn:    decimal.Zero,
				ErgOut:   decimal.Zero,
				FeesPaid: decimal.Zero,
			},
			tokens: make(map[string]struct{}),
		}
		f.flows[address] = fl
	}

	s := &fl.summary
	if tx.Timestamp.After(s.LastActivity) {
		s.LastActivity = tx.Timestamp
	}

	if tx.IsPending() {
		s.PendingSeen++
		return nil
	}

	switch tx.Type {
	case entities.TxTypeIn:
		s.Incoming++
	case entities.TxTypeOut:
		s.Outgoing++
	default:
		s.Mixed++
	}

	if tx.Value.IsPositive() {
		s.ErgIn = s.ErgIn.Add(tx.Value)
	} else if tx.Value.IsNegative() {
		s.ErgOut = s.ErgOut.Add(tx.Value.Neg())
	}
	if tx.Type != entities.TxTypeIn {
		s.FeesPaid = s.FeesPaid.Add(tx.Fee)
	}

	for _, token := range tx.Tokens {
		fl.tokens[token.TokenID] = struct{}{}
	}

	return nil
}

// Summary returns the flow summary of an address
func (f *FlowTracker) Summary(address string) (FlowSummary, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	fl, ok := f.flows[address]
	if !ok {
		return FlowSummary{}, false
	}

	out := fl.summary
	out.TokensSeen = make([]string, 0, len(fl.tokens))
	for id := range fl.tokens {
		out.TokensSeen = append(out.TokensSeen, id)
	}
	sort.Strings(out.TokensSeen)
	return out, true
}
