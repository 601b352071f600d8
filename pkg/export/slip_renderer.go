package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// SlipLine is one allocated row on the borrow slip.
type SlipLine struct {
	Equipment string
	Building  string
	Quantity  int
}

// SlipTotal summarises one requested item.
type SlipTotal struct {
	Equipment string
	Requested int
	Approved  int
}

// SlipData carries everything printed on a borrow slip.
type SlipData struct {
	RequestID     string
	ApplicantName string
	StartDate     string
	EndDate       string
	Venue         string
	Purpose       string
	CompletedAt   string
	Lines         []SlipLine
	Totals        []SlipTotal
}

// SlipRenderer renders completed requests into a printable borrow slip.
type SlipRenderer struct{}

// NewSlipRenderer constructs a slip renderer.
func NewSlipRenderer() *SlipRenderer {
	return &SlipRenderer{}
}

// Render produces the PDF bytes for one borrow slip.
func (r *SlipRenderer) Render(data SlipData) ([]byte, error) {
	if data.RequestID == "" {
		return nil, fmt.Errorf("slip requires a request id")
	}
	if len(data.Lines) == 0 {
		return nil, fmt.Errorf("slip requires at least one allocation line")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "EQUIPMENT BORROW SLIP", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	info := [][2]string{
		{"Request", data.RequestID},
		{"Applicant", data.ApplicantName},
		{"Loan period", fmt.Sprintf("%s - %s", data.StartDate, data.EndDate)},
		{"Venue", data.Venue},
		{"Purpose", data.Purpose},
		{"Completed", data.CompletedAt},
	}
	for _, pair := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, pair[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, pair[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 8, "Equipment", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 8, "Pick up from", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "Quantity", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, line := range data.Lines {
		pdf.CellFormat(90, 7, line.Equipment, "1", 0, "", false, 0, "")
		pdf.CellFormat(70, 7, line.Building, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", line.Quantity), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	if len(data.Totals) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(90, 8, "Item", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 8, "Requested", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 8, "Approved", "1", 1, "C", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		for _, total := range data.Totals {
			pdf.CellFormat(90, 7, total.Equipment, "1", 0, "", false, 0, "")
			pdf.CellFormat(50, 7, fmt.Sprintf("%d", total.Requested), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 7, fmt.Sprintf("%d", total.Approved), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, "Present this slip at each listed building when collecting equipment.", "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render slip: %w", err)
	}
	return buf.Bytes(), nil
}
