// Package report builds the customer analysis report and renders it as a
// Word document.
package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// Title is the document heading.
const Title = "Customer Data Analysis Report"

// TopCustomersLimit caps the overall ranking table.
const TopCustomersLimit = 10

// Table is a header row plus body rows of display text.
type Table struct {
	Header []string
	Rows   [][]string
}

// Document is the renderer-independent content of a report.
type Document struct {
	Title            string
	OriginalFilename string
	GeneratedAt      time.Time
	Insights         []string
	// Narrative is optional prose; empty means the section is omitted.
	Narrative    string
	TopSpenders  Table
	TopCustomers Table
}

// Build assembles a report from a run's summary and aggregates.
func Build(originalFilename string, generatedAt time.Time, summary []string, spenders []domain.TopSpender, rankings []domain.CustomerRanking) *Document {
	doc := &Document{
		Title:            Title,
		OriginalFilename: originalFilename,
		GeneratedAt:      generatedAt,
		Insights:         summary,
		TopSpenders:      Table{Header: []string{"Category", "Customer Name", "Total Spent"}},
		TopCustomers:     Table{Header: []string{"Rank", "Customer Name", "Total Spent"}},
	}

	for _, s := range spenders {
		doc.TopSpenders.Rows = append(doc.TopSpenders.Rows, []string{s.Category, s.Name, FormatMoney(s.Amount)})
	}

	for i, r := range rankings {
		if i == TopCustomersLimit {
			break
		}
		doc.TopCustomers.Rows = append(doc.TopCustomers.Rows, []string{strconv.Itoa(i + 1), r.Name, FormatMoney(r.TotalSpent)})
	}

	return doc
}

// FileName returns the report name for an uploaded file: the name up to
// its first dot, prefixed with "report_" and given a .docx extension.
func FileName(uploaded string) string {
	stem, _, _ := strings.Cut(uploaded, ".")
	return "report_" + stem + ".docx"
}

// FormatMoney renders an amount as $1,234.56.
func FormatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return sign + "$" + b.String() + "." + frac
}
