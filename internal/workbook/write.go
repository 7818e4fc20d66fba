package workbook

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dvloznov/customer-insights/internal/dateconv"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Output sheet names.
const (
	SheetCategoryTotals   = "CategoryTotals"
	SheetTopSpenders      = "TopSpenders"
	SheetCustomerRankings = "CustomerRankings"
)

// Output is the content of a processed workbook.
type Output struct {
	Customers      []domain.CustomerWithHistory
	CategoryTotals []domain.CategoryTotal
	TopSpenders    []domain.TopSpender
	Rankings       []domain.CustomerRanking
}

type historyEntry struct {
	OldAddress string `json:"old_address"`
	NewAddress string `json:"new_address"`
	ChangeDate string `json:"change_date"`
}

// WriteFile writes out as an .xlsx file at path.
func WriteFile(path string, out Output) error {
	f, err := build(out)
	if err != nil {
		return fmt.Errorf("workbook.WriteFile: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("workbook.WriteFile: saving %s: %w", path, err)
	}
	return nil
}

// Write writes out as .xlsx to w.
func Write(w io.Writer, out Output) error {
	f, err := build(out)
	if err != nil {
		return fmt.Errorf("workbook.Write: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("workbook.Write: %w", err)
	}
	return nil
}

func build(out Output) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetCustomers); err != nil {
		f.Close()
		return nil, err
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{SheetCustomers, customerRows(out.Customers)},
		{SheetCategoryTotals, categoryTotalRows(out.CategoryTotals)},
		{SheetTopSpenders, topSpenderRows(out.TopSpenders)},
		{SheetCustomerRankings, rankingRows(out.Rankings)},
	}

	for i, sheet := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sheet.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("creating sheet %s: %w", sheet.name, err)
			}
		}
		for r, row := range sheet.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetSheetRow(sheet.name, cell, &row); err != nil {
				f.Close()
				return nil, fmt.Errorf("writing %s row %d: %w", sheet.name, r+1, err)
			}
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

func customerRows(customers []domain.CustomerWithHistory) [][]any {
	rows := [][]any{{
		"customer_id", "name", "email", "dob", "address", "created_date", "last_updated",
		"address_history", "latitude", "longitude",
	}}

	for _, c := range customers {
		history := make([]historyEntry, 0, len(c.History))
		for _, h := range c.History {
			history = append(history, historyEntry{
				OldAddress: h.OldAddress,
				NewAddress: h.NewAddress,
				ChangeDate: dateconv.ISO(h.ChangedAt),
			})
		}
		historyJSON, _ := json.Marshal(history)

		var lat, lon any
		if c.Location != nil {
			lat, lon = c.Location.Latitude, c.Location.Longitude
		}

		rows = append(rows, []any{
			c.CustomerID, c.Name, c.Email, c.DOB, c.Address,
			dateconv.ISO(c.CreatedAt), dateconv.ISO(c.LastUpdated),
			string(historyJSON), lat, lon,
		})
	}
	return rows
}

func categoryTotalRows(totals []domain.CategoryTotal) [][]any {
	rows := [][]any{{"customer_id", "category", "name", "amount"}}
	for _, t := range totals {
		rows = append(rows, []any{t.CustomerID, t.Category, t.Name, t.Amount.InexactFloat64()})
	}
	return rows
}

func topSpenderRows(spenders []domain.TopSpender) [][]any {
	rows := [][]any{{"customer_id", "category", "name", "amount"}}
	for _, t := range spenders {
		rows = append(rows, []any{t.CustomerID, t.Category, t.Name, t.Amount.InexactFloat64()})
	}
	return rows
}

func rankingRows(rankings []domain.CustomerRanking) [][]any {
	rows := [][]any{{"customer_id", "name", "total_spent"}}
	for _, r := range rankings {
		rows = append(rows, []any{r.CustomerID, r.Name, r.TotalSpent.InexactFloat64()})
	}
	return rows
}
