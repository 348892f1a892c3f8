package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reports "watertap/internal/reports/domain"
	telemetry "watertap/internal/telemetry/domain"
)

var metricLabels = map[telemetry.Metric]string{
	telemetry.MetricFlowRate:     "Flow (L/s)",
	telemetry.MetricPH:           "pH",
	telemetry.MetricTurbidity:    "Turbidity (NTU)",
	telemetry.MetricConductivity: "Conductivity (uS/cm)",
}

// BuildReportPDF renders the per-sensor bucket tables and summaries.
func BuildReportPDF(report *reports.Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Water Quality Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", report.From.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", report.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Bucket: %s", report.Width))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	if len(report.Sensors) == 0 {
		pdf.Cell(0, 6, "No data in range.")
		pdf.Ln(5)
	}

	for _, sensor := range report.Sensors {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 7, fmt.Sprintf("Sensor %d (coverage %.0f%%)", sensor.SensorID, sensor.Coverage*100))
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(40, 6, "Metric", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Mean", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Min", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Max", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, metric := range telemetry.Metrics {
			summary := sensor.Summary[metric]
			pdf.CellFormat(40, 6, metricLabels[metric], "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, formatValue(summary.Mean), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, formatValue(summary.Min), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, formatValue(summary.Max), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(3)

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(40, 6, "Bucket", "1", 0, "C", false, 0, "")
		for _, metric := range telemetry.Metrics {
			pdf.CellFormat(45, 6, metricLabels[metric]+" avg", "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, bucket := range sensor.Buckets {
			pdf.CellFormat(40, 6, bucket.BucketStart.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
			for _, metric := range telemetry.Metrics {
				pdf.CellFormat(45, 6, formatValue(bucket.Stat(metric).Avg), "1", 0, "R", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportCSV writes a raw section followed by a bucketed section.
func BuildReportCSV(report *reports.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"# raw"},
		{"timestamp", "sensorId", "ph", "turbidity", "conductivity", "flowRate"},
	}
	for _, p := range report.Raw {
		sensor := ""
		if p.SensorID != nil {
			sensor = strconv.Itoa(*p.SensorID)
		}
		records = append(records, []string{
			p.At.UTC().Format(time.RFC3339),
			sensor,
			formatValue(p.PH),
			formatValue(p.Turbidity),
			formatValue(p.Conductivity),
			formatValue(p.FlowRate),
		})
	}

	records = append(records, []string{}, []string{"# buckets"}, bucketHeader())
	for _, sensor := range report.Sensors {
		for _, b := range sensor.Buckets {
			records = append(records, bucketRow(sensor.SensorID, b.BucketStart, b.BucketWidth, func(m telemetry.Metric) (string, string, string, string) {
				stat := b.Stat(m)
				return strconv.Itoa(stat.Count), formatValue(stat.Avg), formatValue(stat.Min), formatValue(stat.Max)
			}))
		}
	}

	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX writes raw, buckets and summary sheets.
func BuildReportXLSX(report *reports.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	rawSheet := "raw"
	bucketSheet := "buckets"
	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", rawSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(bucketSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	_ = f.SetSheetRow(rawSheet, "A1", &[]any{"timestamp", "sensorId", "ph", "turbidity", "conductivity", "flowRate"})
	for i, p := range report.Raw {
		row := []any{p.At.UTC().Format(time.RFC3339), cellInt(p.SensorID), cellFloat(p.PH), cellFloat(p.Turbidity), cellFloat(p.Conductivity), cellFloat(p.FlowRate)}
		_ = f.SetSheetRow(rawSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	header := make([]any, 0, 16)
	for _, h := range bucketHeader() {
		header = append(header, h)
	}
	_ = f.SetSheetRow(bucketSheet, "A1", &header)
	row := 2
	for _, sensor := range report.Sensors {
		for _, b := range sensor.Buckets {
			values := []any{sensor.SensorID, b.BucketStart.UTC().Format(time.RFC3339), b.BucketWidth.String()}
			for _, metric := range telemetry.Metrics {
				stat := b.Stat(metric)
				values = append(values, stat.Count, cellFloat(stat.Avg), cellFloat(stat.Min), cellFloat(stat.Max))
			}
			_ = f.SetSheetRow(bucketSheet, fmt.Sprintf("A%d", row), &values)
			row++
		}
	}

	_ = f.SetSheetRow(summarySheet, "A1", &[]any{"sensorId", "metric", "mean", "min", "max", "coverage"})
	row = 2
	for _, sensor := range report.Sensors {
		for _, metric := range telemetry.Metrics {
			summary := sensor.Summary[metric]
			values := []any{sensor.SensorID, string(metric), cellFloat(summary.Mean), cellFloat(summary.Min), cellFloat(summary.Max), sensor.Coverage}
			_ = f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &values)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bucketHeader() []string {
	header := []string{"sensorId", "bucketStart", "bucketWidth"}
	for _, metric := range telemetry.Metrics {
		name := string(metric)
		header = append(header, name+"Count", name+"Avg", name+"Min", name+"Max")
	}
	return header
}

func bucketRow(sensorID int, start time.Time, width time.Duration, stat func(telemetry.Metric) (string, string, string, string)) []string {
	row := []string{strconv.Itoa(sensorID), start.UTC().Format(time.RFC3339), width.String()}
	for _, metric := range telemetry.Metrics {
		count, avg, lo, hi := stat(metric)
		row = append(row, count, avg, lo, hi)
	}
	return row
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}

func cellFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func cellInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
