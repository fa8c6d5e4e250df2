package patterns

// Builtin returns the stock library. Names are "<field>.<shape>" and stay
// stable across releases; vendor profiles reference them by name.
//
// Product-code shapes are deliberately structural (prefix class + digit run
// + optional suffix) rather than literal code lists, so a vendor's new
// catalog entries match without a library change.
func Builtin() *Library {
	l := NewLibrary()

	// Product codes. The D-prefix family predates the XS-prefix family;
	// both stay registered because historical documents still use the old
	// shape.
	l.MustAdd(MustCompile("product_code.d_prefix", FieldProductCode,
		`\b(D\d{5,7}[A-Z]?)\b`))
	l.MustAdd(MustCompile("product_code.xs_prefix", FieldProductCode,
		`\b(XS\d{4,6}[A-Z]?)\b`))
	l.MustAdd(MustCompile("product_code.two_letter", FieldProductCode,
		`\b([A-Z]{2}\d{4,7}(?:-[A-Z0-9]{1,4})?)\b`))

	// Invoice numbers. A single vendor uses both header vocabularies across
	// document revisions, so both resolve to the same value shape.
	l.MustAdd(MustCompile("invoice_number.order_no", FieldInvoiceNumber,
		`(?i)\bORDER\s+NO[.:]?\s*([A-Z]{0,3}\d{6,12})`))
	l.MustAdd(MustCompile("invoice_number.invoice_hash", FieldInvoiceNumber,
		`(?i)\bInvoice\s*#[.:]?\s*([A-Z0-9][A-Z0-9-]{4,19})`))
	l.MustAdd(MustCompile("invoice_number.invoice_no", FieldInvoiceNumber,
		`(?i)\bInvoice\s+(?:No|Number)[.:]?\s*([A-Z0-9][A-Z0-9-]{4,19})`))

	// Quantities. The labelled form wins; the line-leading integer is the
	// text-scan fallback for columnar layouts flattened to text.
	l.MustAdd(MustCompile("quantity.labelled", FieldQuantity,
		`(?i)\bQty[.:]?\s*(\d{1,5})\b`))
	l.MustAdd(MustCompile("quantity.line_leading", FieldQuantity,
		`^\s*(\d{1,4})\b`))

	// Unit prices: plain decimal money, optional currency sign.
	l.MustAdd(MustCompile("unit_price.money", FieldUnitPrice,
		`\$?\s*(\d{1,6}\.\d{2})\b`))

	// UPC-12.
	l.MustAdd(MustCompile("upc.upc12", FieldUPC,
		`\b(\d{12})\b`))

	return l
}
