package tier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// EntityTier maps line_item entities annotated by the document-understanding
// service into line items. It walks every entity on the document; the count
// of annotated items and the count of emitted items are logged together so a
// truncated upstream annotation set is visible.
type EntityTier struct {
	logger *slog.Logger
}

func NewEntityTier(logger *slog.Logger) *EntityTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityTier{logger: logger}
}

func (t *EntityTier) Name() constants.TierName { return constants.TierEntity }

func (t *EntityTier) Extract(ctx context.Context, doc *entity.Document, profile *vendor.Profile) Result {
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}

	var lineEntities []entity.Entity
	invoiceNumber := ""
	for _, e := range doc.Entities {
		switch strings.ToLower(e.Type) {
		case "line_item", "line-item", "lineitem":
			lineEntities = append(lineEntities, e)
		case "invoice_number", "invoice_id":
			if invoiceNumber == "" {
				invoiceNumber = e.Value()
			}
		}
	}
	if len(lineEntities) == 0 {
		return NoMatch()
	}
	if invoiceNumber == "" {
		invoiceNumber = profile.FindInvoiceNumber(doc.FullText())
	}

	items := make([]entity.LineItem, 0, len(lineEntities))
	for _, le := range lineEntities {
		item := t.mapLineEntity(le, profile)
		if item.ProductCode == "" {
			continue
		}
		item.InvoiceNumber = invoiceNumber
		items = append(items, item)
	}

	t.logger.Info("tier.entity.mapped",
		"doc_id", doc.ID,
		"annotated", len(lineEntities),
		"emitted", len(items),
	)
	if len(items) == 0 {
		return NoMatch()
	}
	return Success(items)
}

func (t *EntityTier) mapLineEntity(le entity.Entity, profile *vendor.Profile) entity.LineItem {
	var item entity.LineItem

	if p, ok := le.Property("product_code"); ok {
		if code, matched := profile.MatchProductCode(p.Value()); matched {
			item.ProductCode = code
		}
	}
	if item.ProductCode == "" {
		// some annotators fold the code into the mention text
		if code, matched := profile.MatchProductCode(le.Mention); matched {
			item.ProductCode = code
		}
	}

	if p, ok := le.Property("description"); ok {
		item.Description = p.Value()
	}
	if p, ok := le.Property("unit_price"); ok {
		item.UnitPrice = parsePrice(p.Value())
	}
	if p, ok := le.Property("upc"); ok {
		for _, pat := range profile.UPCPatterns {
			if v, found := pat.Find(p.Value()); found {
				item.UPC = v
				break
			}
		}
	}

	// Quantity precedence: the annotator may emit several quantity-ish
	// properties (shipped vs ordered); the profile decides which wins.
	candidates := make(map[string]int)
	for _, field := range []string{"qty_shipped", "qty_ordered", "quantity"} {
		if p, ok := le.Property(field); ok {
			if q := parseQuantity(p.Value()); q > 0 {
				candidates[field] = q
			}
		}
	}
	item.Quantity = profile.PickQuantity(candidates)

	return item
}
