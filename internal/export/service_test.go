package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mhartley/invoice-extract/internal/entity"
)

func price(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestBuildWorkbookColumnOffset(t *testing.T) {
	svc := NewService(nil)
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	rows := []Row{
		{Date: date, Vendor: "Giftware Wholesale", InvoiceNumber: "CS003837319",
			Description: "walnut photo frame", UnitPrice: price("4.50"), Quantity: 6},
		{Date: date, Vendor: "Giftware Wholesale", InvoiceNumber: "CS003837319",
			Description: "metal bookend"},
	}

	out, err := svc.BuildWorkbook(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	// column A stays untouched for the downstream automation
	for _, axis := range []string{"A1", "A2", "A3"} {
		v, err := f.GetCellValue("LineItems", axis)
		require.NoError(t, err)
		assert.Empty(t, v, axis)
	}

	// header row starts at B1 in contract order
	for i, want := range []string{"Date", "Vendor", "Invoice Number", "Item Description", "Unit Price", "Quantity"} {
		cell, err := excelize.CoordinatesToCellName(2+i, 1)
		require.NoError(t, err)
		got, err := f.GetCellValue("LineItems", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	for cell, want := range map[string]string{
		"B2": "2026-08-30",
		"C2": "Giftware Wholesale",
		"D2": "CS003837319",
		"E2": "walnut photo frame",
		"F2": "4.5",
		"G2": "6",
	} {
		got, err := f.GetCellValue("LineItems", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	// missing price and quantity render as blank cells, not zeros
	for _, cell := range []string{"F3", "G3"} {
		got, err := f.GetCellValue("LineItems", cell)
		require.NoError(t, err)
		assert.Empty(t, got, cell)
	}
}

func TestBuildWorkbookEmpty(t *testing.T) {
	svc := NewService(nil)
	out, err := svc.BuildWorkbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("LineItems", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Date", got, "headers are written even for an empty batch")
}

func TestRowsFromItems(t *testing.T) {
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	items := []entity.LineItem{
		{InvoiceNumber: "77-10034", Description: "glass ornament", ProductCode: "D123456",
			UnitPrice: price("2.25"), Quantity: 3},
	}

	rows := RowsFromItems(date, "Giftware Wholesale", items)
	require.Len(t, rows, 1)
	assert.Equal(t, date, rows[0].Date)
	assert.Equal(t, "Giftware Wholesale", rows[0].Vendor)
	assert.Equal(t, "77-10034", rows[0].InvoiceNumber)
	assert.Equal(t, "glass ornament", rows[0].Description)
	assert.Equal(t, 3, rows[0].Quantity)
}
