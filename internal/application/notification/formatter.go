package notification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

const ergPrecision = 8

// Formatter renders transactions and reports as Markdown chat messages
type Formatter struct {
	explorerURL string
	now         func() time.Time
}

// NewFormatter creates a formatter linking transactions to the given explorer web UI
func NewFormatter(explorerURL string) *Formatter {
	return &Formatter{
		explorerURL: strings.TrimRight(explorerURL, "/"),
		now:         time.Now,
	}
}

// Transaction formats a transaction notification
func (f *Formatter) Transaction(name string, tx *entities.Transaction) string {
	lines := []string{
		fmt.Sprintf("🔄 *%s Transaction*", escapeMarkdown(name)),
		"Type: " + direction(tx),
		fmt.Sprintf("Status: %s %s", statusIcon(tx), tx.Status),
		fmt.Sprintf("Amount: `%s` ERG", signed(tx.Value, ergPrecision)),
	}

	if tx.Height != nil {
		lines = append(lines, fmt.Sprintf("Block: `%d`", *tx.Height))
	}
	if tx.Fee.IsPositive() {
		lines = append(lines, fmt.Sprintf("Fee: `%s` ERG", tx.Fee.StringFixed(ergPrecision)))
	}

	if len(tx.Tokens) > 0 {
		lines = append(lines, "", "*Tokens:*")
		for _, token := range sortedDeltas(tx.Tokens) {
			lines = append(lines, fmt.Sprintf("`%s` %s",
				signed(token.FormattedAmount(), -1),
				escapeMarkdown(tokenLabel(token.Name, token.TokenID)),
			))
		}
	}

	if f.explorerURL != "" {
		lines = append(lines, "", fmt.Sprintf("[View Transaction](%s/transactions/%s)", f.explorerURL, tx.ID))
	}

	return strings.Join(lines, "\n")
}

// DailyReport formats the balance report of the given addresses
func (f *Formatter) DailyReport(views []entities.AddressView) string {
	lines := []string{
		"📊 *Daily Balance Report*",
		fmt.Sprintf("Time: %s UTC", f.now().UTC().Format("2006-01-02 15:04:05")),
		"",
	}

	for _, view := range sortedViews(views) {
		lines = append(lines,
			fmt.Sprintf("*%s*", escapeMarkdown(view.Nickname)),
			fmt.Sprintf("ERG: `%s`", balanceErg(view).StringFixed(ergPrecision)),
		)
		for _, token := range sortedBalances(view.Balance) {
			lines = append(lines, fmt.Sprintf("`%12s` %s",
				token.FormattedAmount().String(),
				escapeMarkdown(tokenLabel(token.Name, token.TokenID)),
			))
		}
		lines = append(lines, "")
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// PlainTransaction formats a transaction for log output
func PlainTransaction(name string, tx *entities.Transaction) string {
	lines := []string{
		fmt.Sprintf("=== %s Transaction ===", name),
		"Type: " + direction(tx),
		"Status: " + string(tx.Status),
		fmt.Sprintf("Amount: %s ERG", signed(tx.Value, ergPrecision)),
	}

	if tx.Fee.IsPositive() {
		lines = append(lines, fmt.Sprintf("Fee: %s ERG", tx.Fee.StringFixed(ergPrecision)))
	}

	if len(tx.Tokens) > 0 {
		lines = append(lines, "Tokens:")
		for _, token := range sortedDeltas(tx.Tokens) {
			lines = append(lines, fmt.Sprintf("  %s %s",
				signed(token.FormattedAmount(), -1),
				tokenLabel(token.Name, token.TokenID),
			))
		}
	}

	return strings.Join(lines, "\n")
}

// PlainReport formats the balance report for log output
func PlainReport(views []entities.AddressView) string {
	lines := []string{"=== Balance Report ==="}

	for _, view := range sortedViews(views) {
		lines = append(lines,
			"Wallet: "+view.Nickname,
			"ERG Balance: "+balanceErg(view).StringFixed(ergPrecision),
		)
		tokens := sortedBalances(view.Balance)
		if len(tokens) > 0 {
			lines = append(lines, "Tokens:")
			for _, token := range tokens {
				lines = append(lines, fmt.Sprintf("  %s %s",
					token.FormattedAmount().String(),
					tokenLabel(token.Name, token.TokenID),
				))
			}
		}
	}

	return strings.Join(lines, "\n")
}

var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

// StripFormatting removes Markdown markup, turning links into "text: url"
func StripFormatting(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1: $2")

	var b strings.Builder
	b.Grow(len(text))
	escaped := false
	for _, r := range text {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*' || r == '`' || r == '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '*', '`', '[':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func direction(tx *entities.Transaction) string {
	switch tx.Type {
	case entities.TxTypeIn:
		return "Received"
	case entities.TxTypeOut:
		return "Sent"
	default:
		return "Mixed"
	}
}

func statusIcon(tx *entities.Transaction) string {
	if tx.IsPending() {
		return "⏳"
	}
	return "✅"
}

// signed renders v with an explicit plus sign. places < 0 keeps the natural precision.
func signed(v decimal.Decimal, places int32) string {
	s := v.String()
	if places >= 0 {
		s = v.StringFixed(places)
	}
	if v.IsPositive() {
		return "+" + s
	}
	return s
}

func tokenLabel(name, tokenID string) string {
	if name != "" {
		return name
	}
	if len(tokenID) > 12 {
		tokenID = tokenID[:12]
	}
	return "[" + tokenID + "...]"
}

func balanceErg(view entities.AddressView) decimal.Decimal {
	if view.Balance == nil {
		return decimal.Zero
	}
	return view.Balance.Erg
}

func sortedViews(views []entities.AddressView) []entities.AddressView {
	out := make([]entities.AddressView, len(views))
	copy(out, views)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Nickname < out[j].Nickname
	})
	return out
}

func sortedDeltas(deltas []entities.TokenDelta) []entities.TokenDelta {
	out := make([]entities.TokenDelta, len(deltas))
	copy(out, deltas)
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Amount) > abs(out[j].Amount)
	})
	return out
}

func sortedBalances(s *entities.BalanceSnapshot) []entities.TokenBalance {
	if s == nil {
		return nil
	}
	out := make([]entities.TokenBalance, 0, len(s.Tokens))
	for _, tb := range s.Tokens {
		out = append(out, tb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
