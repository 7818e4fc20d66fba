package report

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/shopspring/decimal"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"15", "$15.00"},
		{"999.999", "$1,000.00"},
		{"1234.5", "$1,234.50"},
		{"1234567.891", "$1,234,567.89"},
		{"-4200", "-$4,200.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FormatMoney(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customers.xlsx", "report_customers.docx"},
		{"q1.final.xlsx", "report_q1.docx"},
		{"noext", "report_noext.docx"},
	}

	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuild_LimitsTopCustomers(t *testing.T) {
	var rankings []domain.CustomerRanking
	for i := 0; i < 12; i++ {
		rankings = append(rankings, domain.CustomerRanking{Name: "C", TotalSpent: decimal.NewFromInt(int64(100 - i))})
	}
	spenders := []domain.TopSpender{{Category: "Tools", Name: "Ann", Amount: decimal.NewFromInt(1500)}}

	doc := Build("in.xlsx", time.Now(), []string{"Total customers: 12"}, spenders, rankings)

	if len(doc.TopCustomers.Rows) != TopCustomersLimit {
		t.Errorf("expected %d ranking rows, got %d", TopCustomersLimit, len(doc.TopCustomers.Rows))
	}
	if got := doc.TopCustomers.Rows[9]; got[0] != "10" || got[2] != "$91.00" {
		t.Errorf("unexpected tenth row: %v", got)
	}
	if got := doc.TopSpenders.Rows[0]; strings.Join(got, "|") != "Tools|Ann|$1,500.00" {
		t.Errorf("unexpected spender row: %v", got)
	}
}

func readDocumentXML(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip archive: %v", err)
	}

	names := make(map[string]bool)
	var body string
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening document.xml: %v", err)
		}
		raw, _ := io.ReadAll(rc)
		rc.Close()
		body = string(raw)
	}

	for _, want := range []string{"[Content_Types].xml", "_rels/.rels", "word/styles.xml"} {
		if !names[want] {
			t.Errorf("missing part %s", want)
		}
	}
	return body
}

func TestWriteDocx(t *testing.T) {
	doc := Build(
		"Q&A <export>.xlsx",
		time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		[]string{"Total customers: 2", "Top customer: Bob ($100.00)"},
		[]domain.TopSpender{{Category: "Toys", Name: "Bob", Amount: decimal.NewFromInt(100)}},
		[]domain.CustomerRanking{{Name: "Bob", TotalSpent: decimal.NewFromInt(100)}},
	)

	var buf bytes.Buffer
	if err := WriteDocx(&buf, doc); err != nil {
		t.Fatalf("WriteDocx failed: %v", err)
	}
	body := readDocumentXML(t, buf.Bytes())

	for _, want := range []string{
		"Customer Data Analysis Report",
		"Original filename: Q&amp;A &lt;export",
		"Report generated on: 2024-05-06 07:08:09",
		"Top customer: Bob ($100.00)",
		"Top Spenders by Category",
		"Top Customers by Total Spending",
		"$100.00",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
	if strings.Contains(body, "Narrative") {
		t.Error("expected narrative section to be omitted when empty")
	}

	doc.Narrative = "Bob dominates toys."
	buf.Reset()
	if err := WriteDocx(&buf, doc); err != nil {
		t.Fatalf("WriteDocx failed: %v", err)
	}
	if body := readDocumentXML(t, buf.Bytes()); !strings.Contains(body, "Bob dominates toys.") {
		t.Error("expected narrative paragraph")
	}
}

func TestNarrativePrompt(t *testing.T) {
	doc := Build("in.xlsx", time.Now(), []string{"Total customers: 1"},
		[]domain.TopSpender{{Category: "Tools", Name: "Ann", Amount: decimal.NewFromInt(15)}}, nil)

	prompt := narrativePrompt(doc)
	for _, want := range []string{"- Total customers: 1", "Tools | Ann | $15.00"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
