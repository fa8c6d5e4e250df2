package tier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/patterns"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// TextTier scans raw document text line by line with the pattern library.
// It is the tier of last resort: it runs when no structured entities or
// tables exist. The orchestrator refuses to start without it in the enabled
// list, so a configuration typo cannot drop it silently.
type TextTier struct {
	logger *slog.Logger
	lib    *patterns.Library
}

func NewTextTier(logger *slog.Logger, lib *patterns.Library) *TextTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextTier{logger: logger, lib: lib}
}

func (t *TextTier) Name() constants.TierName { return constants.TierText }

func (t *TextTier) Extract(ctx context.Context, doc *entity.Document, profile *vendor.Profile) Result {
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}

	text := doc.FullText()
	if strings.TrimSpace(text) == "" {
		return NoMatch()
	}
	invoiceNumber := profile.FindInvoiceNumber(text)

	lines := strings.Split(text, "\n")
	var items []entity.LineItem
	scanned := 0
	for _, line := range lines {
		scanned++
		code, ok := profile.MatchProductCode(line)
		if !ok {
			continue
		}
		item := entity.LineItem{
			ProductCode:   code,
			InvoiceNumber: invoiceNumber,
		}
		item.UPC = t.findUPC(line, profile)
		item.Quantity = t.findQuantity(line)
		item.UnitPrice = t.findPrice(line)
		item.Description = describeLine(line, code, item.UPC)
		items = append(items, item)
	}

	t.logger.Info("tier.text.scanned",
		"doc_id", doc.ID,
		"lines", scanned,
		"emitted", len(items),
	)
	if len(items) == 0 {
		return NoMatch()
	}
	return Success(items)
}

func (t *TextTier) findUPC(line string, profile *vendor.Profile) string {
	for _, pat := range profile.UPCPatterns {
		if v, ok := pat.Find(line); ok {
			return v
		}
	}
	return ""
}

// findQuantity prefers the labelled form; the line-leading integer covers
// columnar layouts flattened to text. Library order encodes the preference.
func (t *TextTier) findQuantity(line string) int {
	for _, pat := range t.lib.Field(patterns.FieldQuantity) {
		if v, ok := pat.Find(line); ok {
			if q := parseQuantity(v); q > 0 {
				return q
			}
		}
	}
	return 0
}

// findPrice takes the first money token on the line. Invoice layouts put
// unit price before extended amount, so first-match is the unit price.
func (t *TextTier) findPrice(line string) decimal.NullDecimal {
	for _, pat := range t.lib.Field(patterns.FieldUnitPrice) {
		if v, ok := pat.Find(line); ok {
			return parsePrice(v)
		}
	}
	return decimal.NullDecimal{}
}

// describeLine strips the extracted tokens and obvious numerics, leaving
// the human-readable item description.
func describeLine(line, code, upc string) string {
	s := line
	s = strings.Replace(s, code, "", 1)
	if upc != "" {
		s = strings.Replace(s, upc, "", 1)
	}
	fields := strings.Fields(s)
	var kept []string
	for _, f := range fields {
		if isNumericToken(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isNumericToken(s string) bool {
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
