package report

import (
	"fmt"
	"io"
	"os"

	"github.com/gomutex/godocx"
)

const generatedLayout = "2006-01-02 15:04:05"

// tableStyle is a table style shipped in the default document template.
const tableStyle = "LightList-Accent4"

// WriteFile renders doc as a .docx file at path.
func WriteFile(path string, doc *Document) error {
	document, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("report.WriteFile: creating document: %w", err)
	}

	document.AddHeading(doc.Title, 0)

	document.AddHeading("File Information", 1)
	document.AddParagraph("Original filename: " + doc.OriginalFilename)
	document.AddParagraph("Report generated on: " + doc.GeneratedAt.Format(generatedLayout))

	document.AddHeading("Key Insights", 1)
	for _, insight := range doc.Insights {
		document.AddParagraph(insight).Style("List Bullet")
	}

	if doc.Narrative != "" {
		document.AddHeading("Narrative", 1)
		document.AddParagraph(doc.Narrative)
	}

	for _, section := range []struct {
		heading string
		table   Table
	}{
		{"Top Spenders by Category", doc.TopSpenders},
		{"Top Customers by Total Spending", doc.TopCustomers},
	} {
		document.AddHeading(section.heading, 1)

		tbl := document.AddTable()
		tbl.Style(tableStyle)
		header := tbl.AddRow()
		for _, h := range section.table.Header {
			header.AddCell().AddParagraph(h)
		}
		for _, r := range section.table.Rows {
			row := tbl.AddRow()
			for _, c := range r {
				row.AddCell().AddParagraph(c)
			}
		}
	}

	if err := document.SaveTo(path); err != nil {
		return fmt.Errorf("report.WriteFile: saving %s: %w", path, err)
	}
	return nil
}

// WriteDocx renders doc as a .docx package into w.
func WriteDocx(w io.Writer, doc *Document) error {
	tmp, err := os.CreateTemp("", "report-*.docx")
	if err != nil {
		return fmt.Errorf("WriteDocx: creating temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := WriteFile(path, doc); err != nil {
		return fmt.Errorf("WriteDocx: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("WriteDocx: reopening: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("WriteDocx: copying: %w", err)
	}
	return nil
}
