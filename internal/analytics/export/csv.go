// Package export serialises analytics results for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/coopfin/backoffice/internal/analytics"
)

// WriteReportCSV emits a trend report as one row per account line, category total and
// grand total, with one column per report date.
func WriteReportCSV(w io.Writer, report analytics.ReportResult) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := append([]string{"Category", "Account", "Name"}, report.Dates...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, cat := range report.Categories {
		for _, line := range cat.Accounts {
			if err := writer.Write(record(report.Dates, line.ValuesByDate, cat.Name, line.Code, line.Name)); err != nil {
				return err
			}
		}
		if err := writer.Write(record(report.Dates, cat.TotalsByDate, cat.Name, "", "Total")); err != nil {
			return err
		}
	}
	if err := writer.Write(record(report.Dates, report.GrandTotalsByDate, "", "", "Grand Total")); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteKPICSV prints one row per date and indicator.
func WriteKPICSV(w io.Writer, agg analytics.Aggregation) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Indicator", "Office", "Value", "Numerator", "Denominator"}); err != nil {
		return err
	}
	for _, date := range agg.Dates {
		for _, res := range agg.ByDate[date] {
			if err := writer.Write([]string{
				res.Date,
				res.IndicatorID,
				res.OfficeCode,
				formatFloat(res.Value),
				formatFloat(res.Components.Numerator),
				formatFloat(res.Components.Denominator),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func record(dates []string, values map[string]float64, lead ...string) []string {
	out := append(make([]string, 0, len(lead)+len(dates)), lead...)
	for _, d := range dates {
		out = append(out, formatFloat(values[d]))
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
