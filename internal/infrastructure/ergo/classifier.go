package ergo

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// TxIDLength is the byte length of an Ergo transaction id
const TxIDLength = 32

// Skip reasons reported by Classify
const (
	ReasonMalformedRecord = "malformed record"
	ReasonMissingID       = "missing transaction id"
	ReasonMalformedID     = "malformed transaction id"
	ReasonMissingHeight   = "confirmed record without inclusion height"
)

// Classification is the result of classifying one raw record.
// Exactly one of Transaction or Skipped is set.
type Classification struct {
	Transaction *entities.Transaction
	Skipped     bool
	Reason      string
}

func skipped(reason string) Classification {
	return Classification{Skipped: true, Reason: reason}
}

// Classify turns a raw ledger record into a transaction as seen from address.
// feeAddress is the miner fee collector; its outputs make up the fee.
func Classify(rec entities.TransactionRecord, address, feeAddress string) Classification {
	if rec.DecodeError != "" {
		return skipped(ReasonMalformedRecord)
	}
	if rec.ID == "" {
		return skipped(ReasonMissingID)
	}
	if !isTxID(rec.ID) {
		return skipped(ReasonMalformedID)
	}
	if !rec.Mempool && rec.InclusionHeight == nil {
		return skipped(ReasonMissingHeight)
	}

	var ownedIn, ownedOut, fee int64
	var hasIn, hasOut bool
	tokens := newTokenLedger()

	for _, box := range rec.Inputs {
		if box.Address != address {
			continue
		}
		hasIn = true
		ownedIn += box.Value.Int64()
		tokens.add(box.Assets, -1)
	}

	counterpartyOutputs := false
	for _, box := range rec.Outputs {
		switch {
		case box.Address == address:
			hasOut = true
			ownedOut += box.Value.Int64()
			tokens.add(box.Assets, 1)
		case box.Address == feeAddress && feeAddress != "":
			fee += box.Value.Int64()
		case box.Address != "":
			counterpartyOutputs = true
		}
	}

	// Names and decimals may only be present on boxes of other parties
	for _, box := range rec.Inputs {
		tokens.describe(box.Assets)
	}
	for _, box := range rec.Outputs {
		tokens.describe(box.Assets)
	}

	net := ownedOut - ownedIn
	tx := &entities.Transaction{
		ID:        rec.ID,
		Fee:       entities.NanoErgToErg(fee),
		Tokens:    tokens.deltas(),
		Timestamp: time.UnixMilli(rec.Timestamp.Int64()),
	}

	senders := otherAddresses(rec.Inputs, address, "")
	receivers := otherAddresses(rec.Outputs, address, feeAddress)

	switch {
	case hasIn && !hasOut:
		tx.Type = entities.TxTypeOut
		tx.Value = entities.NanoErgToErg(-ownedIn)
		tx.From = []string{address}
		tx.To = receivers
	case hasOut && !hasIn:
		tx.Type = entities.TxTypeIn
		tx.Value = entities.NanoErgToErg(ownedOut)
		tx.From = senders
		tx.To = []string{address}
	case hasIn && hasOut && net < 0 && counterpartyOutputs:
		tx.Type = entities.TxTypeOut
		tx.Value = entities.NanoErgToErg(net)
		tx.From = []string{address}
		tx.To = receivers
	case hasIn && hasOut:
		tx.Type = entities.TxTypeMixed
		tx.Value = entities.NanoErgToErg(net)
		tx.From = senders
		tx.To = receivers
	default:
		tx.Type = entities.TxTypeUnknown
		tx.Value = decimal.Zero
		tx.From = senders
		tx.To = receivers
	}

	if rec.Mempool {
		tx.Status = entities.TxStatusPending
	} else {
		tx.Status = entities.TxStatusConfirmed
		height := *rec.InclusionHeight
		tx.Height = &height
	}

	return Classification{Transaction: tx}
}

func isTxID(id string) bool {
	b, err := hexutil.Decode("0x" + id)
	return err == nil && len(b) == TxIDLength
}

// otherAddresses returns the distinct addresses of boxes that are neither
// the watched address nor the excluded one, in first-seen order
func otherAddresses(boxes []entities.Box, self, exclude string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, box := range boxes {
		a := box.Address
		if a == "" || a == self || (exclude != "" && a == exclude) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// tokenLedger accumulates net token amounts in first-seen order
type tokenLedger struct {
	order []string
	net   map[string]int64
	names map[string]string
	decs  map[string]*int
}

func newTokenLedger() *tokenLedger {
	return &tokenLedger{
		net:   make(map[string]int64),
		names: make(map[string]string),
		decs:  make(map[string]*int),
	}
}

func (l *tokenLedger) add(assets []entities.Asset, sign int64) {
	for _, a := range assets {
		if a.TokenID == "" {
			continue
		}
		if _, ok := l.net[a.TokenID]; !ok {
			l.order = append(l.order, a.TokenID)
		}
		l.net[a.TokenID] += sign * a.Amount.Int64()
	}
}

func (l *tokenLedger) describe(assets []entities.Asset) {
	for _, a := range assets {
		if _, tracked := l.net[a.TokenID]; !tracked {
			continue
		}
		if l.names[a.TokenID] == "" && a.Name != "" {
			l.names[a.TokenID] = a.Name
		}
		if l.decs[a.TokenID] == nil && a.Decimals != nil {
			d := *a.Decimals
			l.decs[a.TokenID] = &d
		}
	}
}

func (l *tokenLedger) deltas() []entities.TokenDelta {
	deltas := make([]entities.TokenDelta, 0)
	for _, id := range l.order {
		amount := l.net[id]
		if amount == 0 {
			continue
		}
		deltas = append(deltas, entities.TokenDelta{
			TokenID:  id,
			Amount:   amount,
			Name:     l.names[id],
			Decimals: l.decs[id],
		})
	}
	return deltas
}
