package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ClaimSlip is the content printed on a document pickup slip.
type ClaimSlip struct {
	Institution     string
	DocumentID      string
	StudentName     string
	StudentNo       string
	DocumentType    string
	Purpose         string
	Status          string
	ReferenceNumber string
	PickupDate      *time.Time
	CompletedAt     *time.Time
	IssuedAt        time.Time
}

// ClaimSlipRenderer renders claim slips as single page A5 PDFs.
type ClaimSlipRenderer struct {
	institution string
}

// NewClaimSlipRenderer constructs a renderer that prints institution in the header.
func NewClaimSlipRenderer(institution string) *ClaimSlipRenderer {
	if institution == "" {
		institution = "Office of the Registrar"
	}
	return &ClaimSlipRenderer{institution: institution}
}

// Render produces the PDF bytes for slip.
func (r *ClaimSlipRenderer) Render(slip ClaimSlip) ([]byte, error) {
	if slip.DocumentID == "" {
		return nil, fmt.Errorf("claim slip requires a document id")
	}
	institution := slip.Institution
	if institution == "" {
		institution = r.institution
	}
	if slip.IssuedAt.IsZero() {
		slip.IssuedAt = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, strings.ToUpper(institution), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, "Document Claim Slip", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Request #", slip.DocumentID},
		{"Student", slipName(slip)},
		{"Document", slip.DocumentType},
		{"Purpose", dashIfEmpty(slip.Purpose)},
		{"Status", slip.Status},
		{"Reference No.", dashIfEmpty(slip.ReferenceNumber)},
		{"Completed", formatSlipDate(slip.CompletedAt)},
		{"Pickup Date", formatSlipDate(slip.PickupDate)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 8, row[1], "1", "", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 5, "Present this slip and a valid ID at the Registrar's window to claim your document.", "", "C", false)
	pdf.CellFormat(0, 5, "Issued "+slip.IssuedAt.Format("January 02, 2006 03:04 PM"), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render claim slip: %w", err)
	}
	return buf.Bytes(), nil
}

func slipName(slip ClaimSlip) string {
	switch {
	case slip.StudentName != "" && slip.StudentNo != "":
		return fmt.Sprintf("%s (%s)", slip.StudentName, slip.StudentNo)
	case slip.StudentName != "":
		return slip.StudentName
	default:
		return dashIfEmpty(slip.StudentNo)
	}
}

func formatSlipDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("January 02, 2006")
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
