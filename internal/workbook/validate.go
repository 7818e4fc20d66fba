package workbook

import (
	"sort"
	"strings"
)

// Required columns per sheet.
var (
	TransactionColumns = []string{"transaction_id", "customer_id", "transaction_date", "product_code", "amount"}
	ProductColumns     = []string{"product_code", "product_name", "category", "unit_price"}
)

// ValidationError is a user-facing reason a workbook was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks sheet presence, the customer string shape and the
// required columns. It does not look at cell values beyond that.
func Validate(wb *Workbook) error {
	var missing []string
	for _, sheet := range RequiredSheets {
		if wb.Table(sheet) == nil {
			missing = append(missing, sheet)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{Message: "Missing sheets: " + strings.Join(missing, ", ")}
	}

	customers := wb.Table(SheetCustomers)
	for i := range customers.Rows {
		s := strings.TrimSpace(customers.Cell(i, 0))
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return &ValidationError{Message: "Customer data must be in {ID_Name_Email_DOB_Address_Date} format"}
		}
	}

	if cols := missingColumns(wb.Table(SheetTransactions), TransactionColumns); len(cols) > 0 {
		return &ValidationError{Message: "Transactions sheet missing required columns: " + strings.Join(cols, ", ")}
	}
	if cols := missingColumns(wb.Table(SheetProducts), ProductColumns); len(cols) > 0 {
		return &ValidationError{Message: "Products sheet missing required columns: " + strings.Join(cols, ", ")}
	}

	return nil
}

func missingColumns(t *Table, required []string) []string {
	var missing []string
	for _, col := range required {
		if t.Column(col) < 0 {
			missing = append(missing, col)
		}
	}
	return missing
}
