// Package workbook reads the input workbook (Customers, Transactions and
// Products sheets) and writes the processed workbook.
package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the input workbook.
const (
	SheetCustomers    = "Customers"
	SheetTransactions = "Transactions"
	SheetProducts     = "Products"
)

// RequiredSheets are the sheets every input workbook must contain.
var RequiredSheets = []string{SheetCustomers, SheetTransactions, SheetProducts}

// Table is a sheet read as raw cell text. The first row is the header.
// Fully blank rows are dropped.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the index of the named header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns row[col], or "" when the row is shorter.
func (t *Table) Cell(row, col int) string {
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Workbook holds the sheets relevant to processing.
type Workbook struct {
	// Sheets lists every sheet in the file, in file order.
	Sheets []string
	tables map[string]*Table
}

// Table returns the named sheet, or nil when the workbook does not have it.
func (wb *Workbook) Table(sheet string) *Table {
	return wb.tables[sheet]
}

// Open reads the workbook at path.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("workbook.Open: opening %s: %w", path, err)
	}
	defer f.Close()

	return load(f)
}

// Read reads a workbook from r.
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("workbook.Read: %w", err)
	}
	defer f.Close()

	return load(f)
}

func load(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{
		Sheets: f.GetSheetList(),
		tables: make(map[string]*Table),
	}

	for _, sheet := range wb.Sheets {
		if !isRequired(sheet) {
			continue
		}
		// Raw values keep numeric cells (serial dates, amounts) unformatted.
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		wb.tables[sheet] = toTable(rows)
	}

	return wb, nil
}

func toTable(rows [][]string) *Table {
	t := &Table{}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if t.Header == nil {
			t.Header = make([]string, len(row))
			for i, h := range row {
				t.Header[i] = strings.TrimSpace(h)
			}
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func isRequired(sheet string) bool {
	for _, s := range RequiredSheets {
		if s == sheet {
			return true
		}
	}
	return false
}
