package entity

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// LineItem is one extracted invoice row. Produced by exactly one tier per
// document; never merged across tiers.
type LineItem struct {
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	Description   string              `json:"description,omitempty"`
	ProductCode   string              `json:"product_code"`
	UnitPrice     decimal.NullDecimal `json:"unit_price,omitempty"`
	Quantity      int                 `json:"quantity,omitempty"` // 0 means not extracted
	UPC           string              `json:"upc,omitempty"`
}

// PairKey is the (unit_price, quantity) tuple used for placeholder-duplication
// detection. Identical keys repeated across distinct product codes signal a
// tier that silently stopped extracting.
func (li LineItem) PairKey() string {
	price := ""
	if li.UnitPrice.Valid {
		price = li.UnitPrice.Decimal.String()
	}
	return price + "|" + strconv.Itoa(li.Quantity)
}
