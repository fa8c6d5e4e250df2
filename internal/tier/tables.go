package tier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// headerRoles maps normalized column headers to line-item fields. Quantity
// columns keep their source role so the vendor precedence can arbitrate
// between shipped and ordered counts.
var headerRoles = map[string]string{
	"qty shipped":      "qty_shipped",
	"qty shp":          "qty_shipped",
	"shipped":          "qty_shipped",
	"qty ordered":      "qty_ordered",
	"qty ord":          "qty_ordered",
	"ordered":          "qty_ordered",
	"qty":              "quantity",
	"quantity":         "quantity",
	"your price":       "unit_price",
	"unit price":       "unit_price",
	"unit cost":        "unit_price",
	"price":            "unit_price",
	"product code":     "product_code",
	"item no":          "product_code",
	"item #":           "product_code",
	"item number":      "product_code",
	"sku":              "product_code",
	"code":             "product_code",
	"description":      "description",
	"item description": "description",
	"upc":              "upc",
	"upc code":         "upc",
}

// TableTier maps detected tabular structures into line items by column
// header. Every table on every page is walked; skipping trailing tables was
// a production failure mode this tier is specifically built not to repeat.
type TableTier struct {
	logger *slog.Logger
}

func NewTableTier(logger *slog.Logger) *TableTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableTier{logger: logger}
}

func (t *TableTier) Name() constants.TierName { return constants.TierTable }

func (t *TableTier) Extract(ctx context.Context, doc *entity.Document, profile *vendor.Profile) Result {
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	if len(doc.Tables) == 0 {
		return NoMatch()
	}

	invoiceNumber := profile.FindInvoiceNumber(doc.FullText())

	var items []entity.LineItem
	tablesUsed := 0
	for _, table := range doc.Tables {
		roles := mapHeaders(table.Headers)
		if _, ok := roles["product_code"]; !ok {
			// not a line-item table (totals, terms, remit-to blocks)
			continue
		}
		tablesUsed++
		for _, row := range table.Rows {
			item := t.mapRow(row, roles, profile)
			if item.ProductCode == "" {
				continue
			}
			item.InvoiceNumber = invoiceNumber
			items = append(items, item)
		}
	}

	t.logger.Info("tier.table.mapped",
		"doc_id", doc.ID,
		"tables", len(doc.Tables),
		"tables_used", tablesUsed,
		"emitted", len(items),
	)
	if len(items) == 0 {
		return NoMatch()
	}
	return Success(items)
}

// mapHeaders resolves column index by role. First column wins per role so a
// duplicated header can't silently shift later fields.
func mapHeaders(headers []string) map[string]int {
	roles := make(map[string]int, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		role, ok := headerRoles[key]
		if !ok {
			continue
		}
		if _, taken := roles[role]; !taken {
			roles[role] = i
		}
	}
	return roles
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Trim(h, ".:")
	return strings.Join(strings.Fields(h), " ")
}

func (t *TableTier) mapRow(row []string, roles map[string]int, profile *vendor.Profile) entity.LineItem {
	cell := func(role string) string {
		i, ok := roles[role]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var item entity.LineItem
	rawCode := cell("product_code")
	if code, ok := profile.MatchProductCode(rawCode); ok {
		item.ProductCode = code
	}
	item.Description = cell("description")
	item.UnitPrice = parsePrice(cell("unit_price"))

	if upc := cell("upc"); upc != "" {
		for _, pat := range profile.UPCPatterns {
			if v, found := pat.Find(upc); found {
				item.UPC = v
				break
			}
		}
	}

	candidates := make(map[string]int)
	for _, role := range []string{"qty_shipped", "qty_ordered", "quantity"} {
		if q := parseQuantity(cell(role)); q > 0 {
			candidates[role] = q
		}
	}
	item.Quantity = profile.PickQuantity(candidates)

	return item
}
