package ergo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
)

// Ensure Client implements LedgerRepository
var _ repositories.LedgerRepository = (*Client)(nil)

// unspentPageSize is the explorer's maximum page size for box queries
const unspentPageSize = 500

// itemsPage is the explorer's paged envelope
type itemsPage struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// GetAddressTransactions fetches a page of confirmed transactions (newest first).
// On the first page the address's mempool transactions are merged in front,
// stamped with the fetch time.
func (c *Client) GetAddressTransactions(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sortDirection", "desc")

	var raw json.RawMessage
	if err := c.getJSON(ctx, "/addresses/"+url.PathEscape(address)+"/transactions", query, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for %s: %w", address, err)
	}
	confirmed := c.decodeRecords(raw, address)

	if offset > 0 {
		return confirmed, nil
	}

	mempool, err := c.getMempoolTransactions(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Failed to fetch mempool transactions",
			zap.String("address", address),
			zap.Error(err),
		)
		return confirmed, nil
	}

	return append(mempool, confirmed...), nil
}

func (c *Client) getMempoolTransactions(ctx context.Context, address string) ([]entities.TransactionRecord, error) {
	var raw json.RawMessage
	err := c.getJSON(ctx, "/mempool/transactions/byAddress/"+url.PathEscape(address), nil, &raw)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	records := c.decodeRecords(raw, address)
	stamp := c.now().UnixMilli()
	for i := range records {
		records[i].Mempool = true
		records[i].InclusionHeight = nil
		records[i].Timestamp = entities.FlexInt64(stamp)
	}
	return records, nil
}

// GetUnspentOutputs fetches every unspent box owned by the address
func (c *Client) GetUnspentOutputs(ctx context.Context, address string) ([]entities.Box, error) {
	var boxes []entities.Box

	for offset := 0; ; offset += unspentPageSize {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(unspentPageSize))

		var raw json.RawMessage
		if err := c.getJSON(ctx, "/boxes/unspent/byAddress/"+url.PathEscape(address), query, &raw); err != nil {
			return nil, fmt.Errorf("failed to fetch unspent boxes for %s: %w", address, err)
		}

		items := splitItems(raw)
		for _, item := range items {
			var box entities.Box
			if err := json.Unmarshal(item, &box); err != nil {
				c.logger.Warn("Skipping malformed box",
					zap.String("address", address),
					zap.Error(err),
				)
				continue
			}
			boxes = append(boxes, box)
		}

		if len(items) < unspentPageSize {
			return boxes, nil
		}
	}
}

// decodeRecords decodes items one by one so a single malformed record does not
// fail the page. Undecodable items stay in place with DecodeError set, keeping
// the page length equal to what the explorer returned.
func (c *Client) decodeRecords(raw json.RawMessage, address string) []entities.TransactionRecord {
	items := splitItems(raw)
	records := make([]entities.TransactionRecord, 0, len(items))
	for _, item := range items {
		var rec entities.TransactionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			rec = entities.TransactionRecord{ID: recordID(item), DecodeError: err.Error()}
			c.logger.Warn("Malformed transaction record",
				zap.String("address", address),
				zap.String("tx_id", rec.ID),
				zap.Error(err),
			)
		}
		records = append(records, rec)
	}
	return records
}

// recordID extracts the id of an item that failed to decode, if it has one
func recordID(item json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(item, &head)
	return head.ID
}

// splitItems accepts either a paged envelope or a bare JSON array
func splitItems(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil
		}
		return items
	}

	var page itemsPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil
	}
	return page.Items
}
