package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"sparkify/internal/pipeline"
	"sparkify/internal/schema"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func statusText(status string) string {
	c := color.New(color.FgGreen)
	if status == pipeline.StatusFailed {
		c = color.New(color.FgRed, color.Bold)
	}
	if !supportsColor {
		c.DisableColor()
	}
	return c.Sprint(status)
}

// RenderReport writes the per-statement table of a run
func RenderReport(w io.Writer, report *pipeline.RunReport) {
	fmt.Fprintf(w, "Run %s on %s", report.RunID, report.Target)
	if report.Atomic {
		fmt.Fprint(w, " (atomic)")
	}
	fmt.Fprintln(w)

	table := newTable(w, "STAGE", "STATEMENT", "TABLE", "ROWS", "DURATION", "STATUS")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})
	for _, s := range report.Steps {
		table.Append([]string{
			s.Stage,
			s.Name,
			s.Table,
			strconv.FormatInt(s.Rows, 10),
			formatDuration(s.Duration),
			statusText(s.Status),
		})
	}
	table.SetFooter([]string{"", "", "total", strconv.FormatInt(report.TotalRows(), 10), formatDuration(report.Duration()), ""})
	table.Render()
}

// RenderCounts writes the row count of every table
func RenderCounts(w io.Writer, counts []pipeline.TableCount) {
	table := newTable(w, "TABLE", "ROLE", "ROWS")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, c := range counts {
		table.Append([]string{c.Table, string(c.Role), strconv.FormatInt(c.Rows, 10)})
	}
	table.Render()
}

// RenderStatements writes a summary table of rendered statements
func RenderStatements(w io.Writer, stmts []schema.Statement) {
	table := newTable(w, "#", "KIND", "STATEMENT", "TABLE", "FINGERPRINT")
	for i, s := range stmts {
		table.Append([]string{strconv.Itoa(i + 1), string(s.Kind), s.Name, s.Table, s.Fingerprint()})
	}
	table.Render()
}
