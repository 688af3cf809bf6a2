package entities

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// TransactionRecord is a raw transaction as returned by the ledger source
type TransactionRecord struct {
	ID              string    `json:"id"`
	Timestamp       FlexInt64 `json:"timestamp"` // ms since epoch
	InclusionHeight *int64    `json:"inclusionHeight"`
	Mempool         bool      `json:"mempool"`
	Inputs          []Box     `json:"inputs"`
	Outputs         []Box     `json:"outputs"`

	// DecodeError is set when the source returned an item that could not be decoded.
	// Such records keep their place in the page but carry no usable fields.
	DecodeError string `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler. A malformed height decodes as absent.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	type plain TransactionRecord
	aux := struct {
		*plain
		InclusionHeight json.RawMessage `json:"inclusionHeight"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if v, ok := parseFlexInt(aux.InclusionHeight); ok {
		r.InclusionHeight = &v
	} else {
		r.InclusionHeight = nil
	}
	return nil
}

// Box is an input or output reference of a transaction, or an unspent output
type Box struct {
	BoxID   string    `json:"boxId"`
	Address string    `json:"address"`
	Value   FlexInt64 `json:"value"` // nanoERG
	Assets  []Asset   `json:"assets"`
}

// Asset is a token amount carried by a box
type Asset struct {
	TokenID  string    `json:"tokenId"`
	Amount   FlexInt64 `json:"amount"`
	Name     string    `json:"name"`
	Decimals *int      `json:"decimals"`
}

// UnmarshalJSON implements json.Unmarshaler. Malformed decimals decode as unknown.
func (a *Asset) UnmarshalJSON(data []byte) error {
	type plain Asset
	aux := struct {
		*plain
		Decimals json.RawMessage `json:"decimals"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if v, ok := parseFlexInt(aux.Decimals); ok && v >= 0 {
		d := int(v)
		a.Decimals = &d
	} else {
		a.Decimals = nil
	}
	return nil
}

// FlexInt64 decodes a JSON number or numeric string; anything else becomes zero
type FlexInt64 int64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	v, _ := parseFlexInt(data)
	*f = FlexInt64(v)
	return nil
}

// Int64 returns the plain value
func (f FlexInt64) Int64() int64 {
	return int64(f)
}

// parseFlexInt reads a JSON number or numeric string. ok is false for null,
// missing or non-numeric values.
func parseFlexInt(data []byte) (int64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}

	s := string(data)
	if data[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return 0, false
		}
		s = unquoted
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}
