package ergo

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

const (
	addrA   = "9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"
	addrB   = "9hY16vzHmmfyVBwKeFGHvb2bMFsG94A1u7To1QWtUokACyFVENQ"
	addrFee = "2iHkR7CWvD1R4j1yZg5bkeDRQavjAaVPeTDFGGLZduHyfWMuYpmhHocX8GJoaieTx78FntzJbCBVL6rf96ocJoZdmWBL2fci7NqWgAirppPQmZ7fN9V6z13Ay6brPriBKYqLp1bT2Fk4FkFLCfdPpe"
	txID1   = "1111111111111111111111111111111111111111111111111111111111111111"
	txID2   = "2222222222222222222222222222222222222222222222222222222222222222"
	tokenX  = "03faf2cb329f2e90d6d23b58d91bbb6c046aa143261cc21f52fbe2824bfcbf04"
)

func erg(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func height(h int64) *int64 {
	return &h
}

func box(address string, nano int64, assets ...entities.Asset) entities.Box {
	return entities.Box{Address: address, Value: entities.FlexInt64(nano), Assets: assets}
}

func TestClassify_OutgoingWithChange(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:              txID1,
		Timestamp:       1700000000000,
		InclusionHeight: height(100),
		Inputs:          []entities.Box{box(addrA, 1_000_000_000)},
		Outputs:         []entities.Box{box(addrA, 400_000_000), box(addrB, 590_000_000)},
	}

	result := Classify(rec, addrA, addrFee)

	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.Reason)
	}
	tx := result.Transaction
	if tx.Type != entities.TxTypeOut {
		t.Errorf("expected type Out, got %s", tx.Type)
	}
	if !tx.Value.Equal(erg("-0.6")) {
		t.Errorf("expected value -0.6, got %s", tx.Value)
	}
	if !tx.Fee.IsZero() {
		t.Errorf("expected zero fee, got %s", tx.Fee)
	}
	if tx.Status != entities.TxStatusConfirmed {
		t.Errorf("expected Confirmed, got %s", tx.Status)
	}
	if tx.Height == nil || *tx.Height != 100 {
		t.Errorf("expected height 100, got %v", tx.Height)
	}
	if len(tx.To) != 1 || tx.To[0] != addrB {
		t.Errorf("expected counterparty %s, got %v", addrB, tx.To)
	}
	if tx.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("expected timestamp 1700000000000, got %d", tx.Timestamp.UnixMilli())
	}
}

func TestClassify_MempoolRecord(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:      txID1,
		Mempool: true,
		Inputs:  []entities.Box{box(addrA, 1_000_000_000)},
		Outputs: []entities.Box{box(addrA, 400_000_000), box(addrB, 590_000_000)},
	}

	result := Classify(rec, addrA, addrFee)

	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.Reason)
	}
	tx := result.Transaction
	if tx.Type != entities.TxTypeOut {
		t.Errorf("expected type Out, got %s", tx.Type)
	}
	if tx.Status != entities.TxStatusPending || !tx.IsPending() {
		t.Errorf("expected Pending, got %s", tx.Status)
	}
	if tx.Height != nil {
		t.Errorf("expected no height, got %d", *tx.Height)
	}
}

func TestClassify_Incoming(t *testing.T) {
	tests := []struct {
		name    string
		outputs []entities.Box
		want    string
	}{
		{"single output", []entities.Box{box(addrA, 2_500_000_000)}, "2.5"},
		{"two outputs", []entities.Box{box(addrA, 1_000_000_000), box(addrA, 500_000_000), box(addrB, 1)}, "1.5"},
		{"zero value", []entities.Box{box(addrA, 0)}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := entities.TransactionRecord{
				ID:              txID1,
				InclusionHeight: height(5),
				Inputs:          []entities.Box{box(addrB, 10_000_000_000)},
				Outputs:         tt.outputs,
			}

			result := Classify(rec, addrA, addrFee)
			if result.Skipped {
				t.Fatalf("unexpected skip: %s", result.Reason)
			}
			tx := result.Transaction
			if tx.Type != entities.TxTypeIn {
				t.Errorf("expected type In, got %s", tx.Type)
			}
			if tx.Value.IsNegative() {
				t.Errorf("expected non-negative value, got %s", tx.Value)
			}
			if !tx.Value.Equal(erg(tt.want)) {
				t.Errorf("expected value %s, got %s", tt.want, tx.Value)
			}
			if len(tx.From) != 1 || tx.From[0] != addrB {
				t.Errorf("expected sender %s, got %v", addrB, tx.From)
			}
		})
	}
}

func TestClassify_Fee(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:              txID1,
		InclusionHeight: height(7),
		Inputs:          []entities.Box{box(addrA, 2_000_000_000)},
		Outputs: []entities.Box{
			box(addrB, 1_000_000_000),
			box(addrA, 998_900_000),
			box(addrFee, 1_100_000),
		},
	}

	tx := Classify(rec, addrA, addrFee).Transaction

	if !tx.Fee.Equal(erg("0.0011")) {
		t.Errorf("expected fee 0.0011, got %s", tx.Fee)
	}
	if !tx.Value.Equal(erg("-1.0011")) {
		t.Errorf("expected value -1.0011, got %s", tx.Value)
	}
	for _, to := range tx.To {
		if to == addrFee {
			t.Error("fee collector must not be listed as counterparty")
		}
	}
}

func TestClassify_SelfTransferIsMixed(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:              txID1,
		InclusionHeight: height(9),
		Inputs:          []entities.Box{box(addrA, 1_000_000_000)},
		Outputs:         []entities.Box{box(addrA, 998_900_000), box(addrFee, 1_100_000)},
	}

	tx := Classify(rec, addrA, addrFee).Transaction

	if tx.Type != entities.TxTypeMixed {
		t.Errorf("expected type Mixed, got %s", tx.Type)
	}
	if !tx.Value.Equal(erg("-0.0011")) {
		t.Errorf("expected value -0.0011, got %s", tx.Value)
	}
}

func TestClassify_Unknown(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:              txID1,
		InclusionHeight: height(1),
		Inputs:          []entities.Box{box(addrB, 10)},
		Outputs:         []entities.Box{box(addrB, 10)},
	}

	tx := Classify(rec, addrA, addrFee).Transaction

	if tx.Type != entities.TxTypeUnknown {
		t.Errorf("expected type Unknown, got %s", tx.Type)
	}
	if !tx.Value.IsZero() {
		t.Errorf("expected zero value, got %s", tx.Value)
	}
}

func TestClassify_TokenDeltas(t *testing.T) {
	decimals := 2
	rec := entities.TransactionRecord{
		ID:              txID1,
		InclusionHeight: height(3),
		Inputs: []entities.Box{
			box(addrA, 1_000_000_000,
				entities.Asset{TokenID: tokenX, Amount: 500},
				entities.Asset{TokenID: "aa", Amount: 10},
			),
		},
		Outputs: []entities.Box{
			box(addrA, 998_000_000,
				entities.Asset{TokenID: tokenX, Amount: 300},
				entities.Asset{TokenID: "aa", Amount: 10},
			),
			box(addrB, 1_000_000, entities.Asset{TokenID: tokenX, Amount: 200, Name: "SigUSD", Decimals: &decimals}),
			box(addrFee, 1_000_000),
		},
	}

	tx := Classify(rec, addrA, addrFee).Transaction

	if len(tx.Tokens) != 1 {
		t.Fatalf("expected 1 token delta, got %d", len(tx.Tokens))
	}
	delta := tx.Tokens[0]
	if delta.TokenID != tokenX {
		t.Errorf("expected token %s, got %s", tokenX, delta.TokenID)
	}
	if delta.Amount != -200 {
		t.Errorf("expected amount -200, got %d", delta.Amount)
	}
	if delta.Name != "SigUSD" {
		t.Errorf("expected name SigUSD, got %q", delta.Name)
	}
	if delta.Decimals == nil || *delta.Decimals != 2 {
		t.Errorf("expected decimals 2, got %v", delta.Decimals)
	}
	if !delta.FormattedAmount().Equal(erg("-2")) {
		t.Errorf("expected formatted amount -2, got %s", delta.FormattedAmount())
	}
}

func TestClassify_Skipped(t *testing.T) {
	tests := []struct {
		name   string
		rec    entities.TransactionRecord
		reason string
	}{
		{
			name:   "missing id",
			rec:    entities.TransactionRecord{InclusionHeight: height(1)},
			reason: ReasonMissingID,
		},
		{
			name:   "non hex id",
			rec:    entities.TransactionRecord{ID: strings.Repeat("z", 64), InclusionHeight: height(1)},
			reason: ReasonMalformedID,
		},
		{
			name:   "short id",
			rec:    entities.TransactionRecord{ID: "abcd", InclusionHeight: height(1)},
			reason: ReasonMalformedID,
		},
		{
			name:   "confirmed without height",
			rec:    entities.TransactionRecord{ID: txID1},
			reason: ReasonMissingHeight,
		},
		{
			name:   "undecodable record",
			rec:    entities.TransactionRecord{ID: txID1, InclusionHeight: height(1), DecodeError: "bad inputs"},
			reason: ReasonMalformedRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(tt.rec, addrA, addrFee)
			if !result.Skipped {
				t.Fatal("expected record to be skipped")
			}
			if result.Transaction != nil {
				t.Error("expected no transaction for skipped record")
			}
			if result.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, result.Reason)
			}
		})
	}
}

func TestClassify_MalformedFieldsDefaultToZero(t *testing.T) {
	rec := entities.TransactionRecord{
		ID:              txID1,
		InclusionHeight: height(2),
		Inputs:          []entities.Box{{Address: addrB}},
		Outputs:         []entities.Box{{Address: addrA}, {}},
	}

	result := Classify(rec, addrA, addrFee)
	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.Reason)
	}
	if result.Transaction.Type != entities.TxTypeIn {
		t.Errorf("expected type In, got %s", result.Transaction.Type)
	}
	if !result.Transaction.Value.IsZero() {
		t.Errorf("expected zero value, got %s", result.Transaction.Value)
	}
}
