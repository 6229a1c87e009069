package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/analytics/export"
)

// ReportSource builds trend reports.
type ReportSource interface {
	GetTrendReport(ctx context.Context, filter analytics.ReportFilter) (analytics.ReportResult, error)
}

// ReportCLI renders trend reports on a terminal.
type ReportCLI struct {
	source  ReportSource
	printer *message.Printer
}

// NewReportCLI formats numbers for lang, e.g. language.Spanish renders 1.234,50.
func NewReportCLI(source ReportSource, lang language.Tag) *ReportCLI {
	return &ReportCLI{source: source, printer: message.NewPrinter(lang)}
}

// Render loads the report and writes it to w as an aligned table, or as CSV when
// asCSV is set.
func (c *ReportCLI) Render(ctx context.Context, w io.Writer, filter analytics.ReportFilter, asCSV bool) error {
	report, err := c.source.GetTrendReport(ctx, filter)
	if err != nil {
		return err
	}
	if asCSV {
		return export.WriteReportCSV(w, report)
	}
	return c.writeTable(w, report)
}

func (c *ReportCLI) writeTable(w io.Writer, report analytics.ReportResult) error {
	if len(report.Dates) == 0 {
		_, err := fmt.Fprintf(w, "%s (%s): no report dates in range\n", report.Name, report.OfficeCode)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "Account\t")
	for _, d := range report.Dates {
		fmt.Fprintf(tw, "%s\t", d)
	}
	fmt.Fprintln(tw)

	for _, cat := range report.Categories {
		fmt.Fprintf(tw, "[%s]\t", cat.Name)
		for range report.Dates {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprintln(tw)
		for _, acc := range cat.Accounts {
			c.writeRow(tw, acc.Code+" "+acc.Name, report.Dates, acc.ValuesByDate, acc.Deltas)
		}
		c.writeRow(tw, "Total "+cat.Name, report.Dates, cat.TotalsByDate, cat.Deltas)
	}
	c.writeRow(tw, "Grand Total", report.Dates, report.GrandTotalsByDate, report.GrandDeltas)
	return tw.Flush()
}

func (c *ReportCLI) writeRow(w io.Writer, label string, dates []string, values map[string]float64, deltas map[string]analytics.Delta) {
	fmt.Fprintf(w, "%s\t", label)
	for _, d := range dates {
		cell := c.printer.Sprintf("%.2f", values[d])
		if delta, ok := deltas[d]; ok {
			cell += c.printer.Sprintf(" (%+.2f%%)", delta.Percent)
		}
		fmt.Fprintf(w, "%s\t", cell)
	}
	fmt.Fprintln(w)
}
