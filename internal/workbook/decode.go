package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// CellError points at a cell that could not be decoded. Row is the
// 1-based data row.
type CellError struct {
	Sheet  string
	Row    int
	Column string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("%s row %d column %s: %v", e.Sheet, e.Row, e.Column, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// CustomerStrings returns the first column of the Customers sheet.
func (wb *Workbook) CustomerStrings() []string {
	t := wb.Table(SheetCustomers)
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, t.Cell(i, 0))
	}
	return out
}

// Transactions decodes the Transactions sheet.
func (wb *Workbook) Transactions() ([]domain.TransactionRecord, error) {
	t := wb.Table(SheetTransactions)
	cols, err := columns(t, SheetTransactions, TransactionColumns)
	if err != nil {
		return nil, err
	}

	out := make([]domain.TransactionRecord, 0, len(t.Rows))
	for i := range t.Rows {
		cell := func(name string) string { return strings.TrimSpace(t.Cell(i, cols[name])) }

		serial, err := strconv.ParseFloat(cell("transaction_date"), 64)
		if err != nil {
			return nil, &CellError{Sheet: SheetTransactions, Row: i + 1, Column: "transaction_date", Err: err}
		}
		amount, err := decimal.NewFromString(cell("amount"))
		if err != nil {
			return nil, &CellError{Sheet: SheetTransactions, Row: i + 1, Column: "amount", Err: err}
		}

		out = append(out, domain.TransactionRecord{
			TransactionID: cell("transaction_id"),
			CustomerID:    cell("customer_id"),
			DateSerial:    serial,
			ProductCode:   cell("product_code"),
			Amount:        amount,
		})
	}

	return out, nil
}

// Products decodes the Products sheet. A blank unit_price decodes as zero.
func (wb *Workbook) Products() ([]domain.ProductRecord, error) {
	t := wb.Table(SheetProducts)
	cols, err := columns(t, SheetProducts, ProductColumns)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductRecord, 0, len(t.Rows))
	for i := range t.Rows {
		cell := func(name string) string { return strings.TrimSpace(t.Cell(i, cols[name])) }

		price := decimal.Zero
		if raw := cell("unit_price"); raw != "" {
			if price, err = decimal.NewFromString(raw); err != nil {
				return nil, &CellError{Sheet: SheetProducts, Row: i + 1, Column: "unit_price", Err: err}
			}
		}

		out = append(out, domain.ProductRecord{
			ProductCode: cell("product_code"),
			ProductName: cell("product_name"),
			Category:    cell("category"),
			UnitPrice:   price,
		})
	}

	return out, nil
}

func columns(t *Table, sheet string, required []string) (map[string]int, error) {
	if t == nil {
		return nil, fmt.Errorf("sheet %s not found", sheet)
	}
	cols := make(map[string]int, len(required))
	for _, name := range required {
		idx := t.Column(name)
		if idx < 0 {
			return nil, fmt.Errorf("sheet %s: missing column %s", sheet, name)
		}
		cols[name] = idx
	}
	return cols, nil
}
