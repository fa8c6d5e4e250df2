// Package export writes validated line items to the tabular sink contract:
// fixed column order, rows starting at column B. Column A belongs to the
// sheet's downstream automation; writing into it (or shifting the row one
// column left, a defect this sink replaces) corrupts the handoff.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mhartley/invoice-extract/internal/entity"
)

const (
	sheetName = "LineItems"
	// startColumn is B. The leading column is reserved; no placeholder is
	// ever written into it.
	startColumn = 2
)

// headers is the fixed sink contract order. Do not reorder.
var headers = []string{"Date", "Vendor", "Invoice Number", "Item Description", "Unit Price", "Quantity"}

// Row is one sink row in contract order.
type Row struct {
	Date          time.Time
	Vendor        string
	InvoiceNumber string
	Description   string
	UnitPrice     decimal.NullDecimal
	Quantity      int
}

// RowsFromItems maps a validated batch into sink rows.
func RowsFromItems(date time.Time, vendorName string, items []entity.LineItem) []Row {
	rows := make([]Row, 0, len(items))
	for _, li := range items {
		rows = append(rows, Row{
			Date:          date,
			Vendor:        vendorName,
			InvoiceNumber: li.InvoiceNumber,
			Description:   li.Description,
			UnitPrice:     li.UnitPrice,
			Quantity:      li.Quantity,
		})
	}
	return rows
}

// Service produces XLSX bytes for extraction results.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildWorkbook returns an XLSX workbook (as bytes) with one sheet holding
// the given rows.
func (s *Service) BuildWorkbook(rows []Row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(sheetName); index == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(startColumn+i, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for r, row := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(startColumn+col, r+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		if !row.Date.IsZero() {
			write(0, row.Date.Format("2006-01-02"))
		} else {
			write(0, "")
		}
		write(1, row.Vendor)
		write(2, row.InvoiceNumber)
		write(3, row.Description)
		if row.UnitPrice.Valid {
			write(4, row.UnitPrice.Decimal.String())
		} else {
			write(4, "")
		}
		if row.Quantity > 0 {
			write(5, row.Quantity)
		} else {
			write(5, "")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.workbook.built",
		"rows", len(rows),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
