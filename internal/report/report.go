// Package report renders downloadable analysis reports.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"codeberg.org/go-pdf/fpdf"

	"github.com/vaidehibh/thyroscan/internal/classify"
)

// Data is everything a report needs about one analysis.
type Data struct {
	Timestamp      time.Time
	Filename       string
	RequestID      string
	Classification classify.Result
	LayerUsed      string

	// OverlayPNG is the Grad-CAM overlay as raw PNG bytes; nil when the
	// analysis ran without visualization.
	OverlayPNG []byte
}

const disclaimer = "This report was generated by an automated screening tool. " +
	"It is not a medical diagnosis. All findings must be reviewed by a qualified specialist."

// PDF writes an A4 analysis report to w.
func PDF(w io.Writer, d *Data) error {
	if d == nil {
		return fmt.Errorf("nil report data")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Thyroid Nodule Analysis Report", false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(30, 60, 120)
	pdf.CellFormat(0, 12, "Thyroid Nodule Analysis Report", "", 1, "C", false, 0, "")
	pdf.SetDrawColor(30, 60, 120)
	pdf.Line(10, pdf.GetY()+2, 200, pdf.GetY()+2)
	pdf.Ln(8)

	// Metadata block
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 11)
	filename := d.Filename
	if filename == "" {
		filename = "unknown"
	}
	meta := [][2]string{
		{"Generated", d.Timestamp.Format("2006-01-02 15:04:05")},
		{"Source image", filename},
		{"Request ID", d.RequestID},
	}
	for _, row := range meta {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Prediction table
	c := d.Classification
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 9, "Prediction", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Classification", c.Label},
		{"Confidence", fmt.Sprintf("%.1f%%", c.ConfidencePct)},
		{"Raw score", fmt.Sprintf("%.4f", c.Score)},
		{"Risk assessment", c.Risk},
	}
	pdf.SetFillColor(240, 244, 250)
	for i, row := range rows {
		fill := i%2 == 0
		pdf.CellFormat(60, 8, row[0], "1", 0, "L", fill, 0, "")
		pdf.CellFormat(130, 8, row[1], "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Recommendation", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, c.Recommendation, "", "L", false)
	pdf.Ln(4)

	// Grad-CAM section
	if len(d.OverlayPNG) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 9, "Model Attention (Grad-CAM)", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5,
			fmt.Sprintf("Regions that contributed most to the prediction, computed against layer %q. "+
				"Warmer colors indicate stronger influence.", d.LayerUsed),
			"", "L", false)
		pdf.Ln(2)

		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("gradcam-overlay", opts, bytes.NewReader(d.OverlayPNG))
		pdf.ImageOptions("gradcam-overlay", 55, pdf.GetY(), 100, 0, true, opts, 0, "")
		pdf.Ln(4)
	}

	// Disclaimer footer
	pdf.SetY(-35)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.MultiCell(0, 4, disclaimer, "T", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}
