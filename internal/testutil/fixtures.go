package testutil

import (
	"fmt"
	"time"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// Common test addresses
const (
	AliceAddress = "9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"
	BobAddress   = "9hY16vzHmmfyVBwKeFGHvb2bMFsG94A1u7To1QWtUokACyFVENQ"
	CharlieAddr  = "9gXPZWxpeXbSd4GyRF7R6hg5Z1ZHb2P8dF4AY8eK7rY9dYvNNfG"
	FeeAddress   = "2iHkR7CWvD1R4j1yZg5bkeDRQavjAaVPeTDFGGLZduHyfWMuYpmhHocX8GJoaieTx78FntzJbCBVL6rf96ocJoZdmWBL2fci7NqWgAirppPQmZ7fN9V6z13Ay6brPriBKYqLp1bT2Fk4FkFLCfdPpe"
	SigUSDToken  = "03faf2cb329f2e90d6d23b58d91bbb6c046aa143261cc21f52fbe2824bfcbf04"
)

// BaseTime is the default record timestamp
var BaseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// CreateTestRecord creates a confirmed record in which Bob pays Alice 1 ERG
func CreateTestRecord(opts ...RecordOption) entities.TransactionRecord {
	h := int64(1000)
	r := entities.TransactionRecord{
		ID:              TxID(1),
		Timestamp:       entities.FlexInt64(BaseTime.UnixMilli()),
		InclusionHeight: &h,
		Inputs:          []entities.Box{CreateTestBox(BobAddress, 2_001_100_000)},
		Outputs: []entities.Box{
			CreateTestBox(AliceAddress, 1_000_000_000),
			CreateTestBox(BobAddress, 1_000_000_000),
			CreateTestBox(FeeAddress, 1_100_000),
		},
	}

	for _, opt := range opts {
		opt(&r)
	}

	return r
}

type RecordOption func(*entities.TransactionRecord)

func WithTxID(id string) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.ID = id
	}
}

func WithTimestamp(ts time.Time) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.Timestamp = entities.FlexInt64(ts.UnixMilli())
	}
}

func WithHeight(h int64) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.InclusionHeight = &h
	}
}

// WithMempool marks the record unconfirmed
func WithMempool() RecordOption {
	return func(r *entities.TransactionRecord) {
		r.Mempool = true
		r.InclusionHeight = nil
	}
}

func WithInputs(boxes ...entities.Box) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.Inputs = boxes
	}
}

func WithOutputs(boxes ...entities.Box) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.Outputs = boxes
	}
}

// WithPayment replaces the boxes with a transfer of nano nanoERG from one address to another
func WithPayment(from, to string, nano int64) RecordOption {
	return func(r *entities.TransactionRecord) {
		r.Inputs = []entities.Box{CreateTestBox(from, nano+1_100_000)}
		r.Outputs = []entities.Box{
			CreateTestBox(to, nano),
			CreateTestBox(FeeAddress, 1_100_000),
		}
	}
}

// CreateTestBox creates a box holding nano nanoERG and the given assets
func CreateTestBox(address string, nano int64, assets ...entities.Asset) entities.Box {
	return entities.Box{
		Address: address,
		Value:   entities.FlexInt64(nano),
		Assets:  assets,
	}
}

// CreateTestAsset creates a token amount
func CreateTestAsset(tokenID string, amount int64) entities.Asset {
	return entities.Asset{TokenID: tokenID, Amount: entities.FlexInt64(amount)}
}

// CreateTestWatchedAddress creates a registration for Alice
func CreateTestWatchedAddress(opts ...WatchedOption) entities.WatchedAddress {
	w := entities.WatchedAddress{
		Address:       AliceAddress,
		Nickname:      "Alice",
		LookbackHours: 24,
		ReportBalance: true,
	}

	for _, opt := range opts {
		opt(&w)
	}

	return w
}

type WatchedOption func(*entities.WatchedAddress)

func WatchedWithAddress(addr string) WatchedOption {
	return func(w *entities.WatchedAddress) {
		w.Address = addr
	}
}

func WatchedWithNickname(name string) WatchedOption {
	return func(w *entities.WatchedAddress) {
		w.Nickname = name
	}
}

func WatchedWithLookback(hours int) WatchedOption {
	return func(w *entities.WatchedAddress) {
		w.LookbackHours = hours
	}
}

func WatchedWithReportBalance(report bool) WatchedOption {
	return func(w *entities.WatchedAddress) {
		w.ReportBalance = report
	}
}

func WatchedWithDestinations(dests ...entities.Destination) WatchedOption {
	return func(w *entities.WatchedAddress) {
		w.Destinations = dests
	}
}

// CreateMultipleRecords creates count confirmed records, newest first,
// one minute apart and ending at newest
func CreateMultipleRecords(count int, newest time.Time, opts ...RecordOption) []entities.TransactionRecord {
	records := make([]entities.TransactionRecord, count)
	for i := 0; i < count; i++ {
		r := CreateTestRecord(opts...)
		r.ID = TxID(i + 1)
		h := int64(1000 + count - i)
		r.InclusionHeight = &h
		r.Timestamp = entities.FlexInt64(newest.Add(-time.Duration(i) * time.Minute).UnixMilli())
		records[i] = r
	}
	return records
}

// TxID returns a unique 64 character hex transaction id for index
func TxID(index int) string {
	return fmt.Sprintf("%064x", index)
}

// PointerTo returns a pointer to the given value
func PointerTo[T any](v T) *T {
	return &v
}
