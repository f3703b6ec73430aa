package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

type PDFOptions struct {
	// Digest is the artifact manifest hash. When set it is printed and
	// embedded as a QR code.
	Digest string
	QRSize int
}

// SavePDF renders rep into a PDF document at out.
func SavePDF(rep Report, out string, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("KLV Analysis Report", false)
	pdf.SetAuthor("klvctl", false)
	pdf.SetCreator("klvctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "KLV Analysis Report")
	addSummarySection(pdf, rep)
	addFieldSection(pdf, rep)
	addListSection(pdf, "Matched Patterns", rep.MatchedTemplates, "No patterns matched.")
	addListSection(pdf, "Anomalies", rep.Anomalies, "No anomalies recorded.")
	if opts.Digest != "" {
		if err := addDigestSection(pdf, opts); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Report", value: rep.ID},
		{label: "Source", value: emptyFallback(rep.Source, "-")},
		{label: "Generated", value: rep.GeneratedAt.UTC().Format(time.RFC3339)},
		{label: "Frames", value: strconv.Itoa(rep.FrameCount)},
		{label: "Failed Frames", value: strconv.Itoa(len(rep.Failures))},
		{label: "Fields Present", value: strconv.Itoa(len(rep.FieldsPresent))},
		{label: "Fields Missing", value: strconv.Itoa(len(rep.FieldsMissing))},
		{label: "Overall", value: statusLabel(rep.Clean())},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFieldSection(pdf *gofpdf.Fpdf, rep Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Field Statistics")
	pdf.Ln(9)

	if len(rep.FieldsPresent) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No fields decoded.", "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{"Field", "Present", "Min", "Max", "Mean", "Flags"}
	widths := []float64{56, 20, 26, 26, 26, 26}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, name := range rep.FieldsPresent {
		fs := rep.FieldStats[name]
		values := []string{name, fmt.Sprintf("%.0f%%", fs.PresentRatio*100), "-", "-", "-", flags(fs.HasDiscontinuities, fs.HasOutOfRange)}
		if fs.Summary != nil {
			values[2] = formatNumber(fs.Summary.Min)
			values[3] = formatNumber(fs.Summary.Max)
			values[4] = formatNumber(fs.Summary.Mean)
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addListSection(pdf *gofpdf.Fpdf, title string, items []string, empty string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 10)
	if len(items) == 0 {
		pdf.MultiCell(0, 6, empty, "", "L", false)
		pdf.Ln(2)
		return
	}
	for i, item := range items {
		pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s", i+1, item), "", "L", false)
	}
	pdf.Ln(2)
}

func addDigestSection(pdf *gofpdf.Fpdf, opts PDFOptions) error {
	png, err := DigestToQR(opts.Digest, opts.QRSize)
	if err != nil {
		return err
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Manifest Digest")
	pdf.Ln(9)
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 5, strings.ToLower(sanitizeHash(opts.Digest)), "", "L", false)

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", imgOpts, bytes.NewReader(png))
	pdf.ImageOptions("digest-qr", pdf.GetX(), pdf.GetY()+2, 35, 35, true, imgOpts, 0, "")
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		maxLines = max(maxLines, len(lines))
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func statusLabel(clean bool) string {
	if clean {
		return "CLEAN"
	}
	return "ISSUES FOUND"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
