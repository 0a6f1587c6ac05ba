package exports

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"velib-cloud/internal/analytics/domain/rollup"
	"velib-cloud/internal/observability/metrics"
)

// Supported export formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("exports: unsupported format")

// DailyUsageReport is the back-office view of the daily usage series.
type DailyUsageReport struct {
	Range       rollup.TimeRange
	GeneratedAt time.Time
	Daily       []rollup.DailyBucket
	Regions     []rollup.RegionSummary
}

// ContentType returns the MIME type of a format.
func ContentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Render builds the report in the requested format.
func Render(format string, report DailyUsageReport) ([]byte, error) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	switch format {
	case FormatPDF:
		out, err = BuildDailyUsagePDF(report)
	case FormatXLSX:
		out, err = BuildDailyUsageXLSX(report)
	default:
		return nil, ErrUnsupportedFormat
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(format, result, time.Since(start))
	return out, err
}

// BuildDailyUsagePDF renders the report as a one-page PDF.
func BuildDailyUsagePDF(report DailyUsageReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Vélib' daily usage"))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Range: %s", report.Range))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Bikes", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Docks", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Occupancy (%)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range report.Daily {
		occupancy := fmt.Sprintf("%d", day.OccupancyRate)
		if day.OverCapacity {
			occupancy += " *"
		}
		pdf.CellFormat(30, 6, day.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, tr(day.Label), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", day.TotalBikes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", day.TotalDocks), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, occupancy, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	if hasOverCapacity(report.Daily) {
		pdf.Ln(2)
		pdf.Cell(0, 5, "* occupancy above station capacity")
		pdf.Ln(5)
	}

	if len(report.Regions) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(70, 6, "Region", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Stations", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Bikes", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Capacity", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, region := range report.Regions {
			pdf.CellFormat(70, 6, tr(region.Region), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", region.Stations), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", region.Bikes), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", region.Capacity), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyUsageXLSX renders the report as a workbook with one sheet for
// the daily series and one for regions.
func BuildDailyUsageXLSX(report DailyUsageReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	dailySheet := "daily"
	regionSheet := "regions"
	if err := f.SetSheetName("Sheet1", dailySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(regionSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(dailySheet, "A1", "Date")
	_ = f.SetCellValue(dailySheet, "B1", "Day")
	_ = f.SetCellValue(dailySheet, "C1", "Total bikes")
	_ = f.SetCellValue(dailySheet, "D1", "Total docks")
	_ = f.SetCellValue(dailySheet, "E1", "Occupancy (%)")
	_ = f.SetCellValue(dailySheet, "F1", "Over capacity")
	for i, day := range report.Daily {
		row := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", row), day.Label)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("C%d", row), day.TotalBikes)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("D%d", row), day.TotalDocks)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("E%d", row), day.OccupancyRate)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("F%d", row), day.OverCapacity)
	}
	footer := len(report.Daily) + 3
	_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", footer), "Range")
	_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", footer), report.Range.String())
	_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", footer+1), "Generated")
	_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", footer+1), report.GeneratedAt.UTC().Format(time.RFC3339))

	_ = f.SetCellValue(regionSheet, "A1", "Region")
	_ = f.SetCellValue(regionSheet, "B1", "Stations")
	_ = f.SetCellValue(regionSheet, "C1", "Bikes")
	_ = f.SetCellValue(regionSheet, "D1", "Capacity")
	for i, region := range report.Regions {
		row := i + 2
		_ = f.SetCellValue(regionSheet, fmt.Sprintf("A%d", row), region.Region)
		_ = f.SetCellValue(regionSheet, fmt.Sprintf("B%d", row), region.Stations)
		_ = f.SetCellValue(regionSheet, fmt.Sprintf("C%d", row), region.Bikes)
		_ = f.SetCellValue(regionSheet, fmt.Sprintf("D%d", row), region.Capacity)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasOverCapacity(days []rollup.DailyBucket) bool {
	for _, day := range days {
		if day.OverCapacity {
			return true
		}
	}
	return false
}
