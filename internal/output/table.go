package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"

	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/pricing"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120

	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.Bold)
	warnColor   = color.New(color.FgYellow)
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
	ShowRecords  bool // List each user's journal rows under the user table
	Width        int  // Terminal width override, 0 to detect
}

// getTerminalWidth returns the current terminal width
func getTerminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if width, err := strconv.Atoi(cols); err == nil && width > 0 {
			return width
		}
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	return defaultWidth
}

func (o TableOptions) width() int {
	if o.Width > 0 {
		return o.Width
	}
	return getTerminalWidth()
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return opts.width() < compactThreshold
}

// FormatTimestamp formats an optional journal timestamp, "-" when it could not be parsed
func FormatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timestampLayout)
}

func newTable(w io.Writer, headers []string, leftColumns int) *tablewriter.Table {
	table := tablewriter.NewTable(w)
	table.Header(headers)

	alignments := make([]tw.Align, len(headers))
	for i := range alignments {
		if i < leftColumns {
			alignments[i] = tw.AlignLeft
		} else {
			alignments[i] = tw.AlignRight
		}
	}
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.PerColumn = alignments
		c.Footer.Alignment.PerColumn = alignments
	})
	return table
}

// PrintSummary prints the whole-project totals and the pass counters
func PrintSummary(w io.Writer, report *model.Report) {
	headerColor.Fprintln(w, "Group usage")
	labelColor.Fprintf(w, "  Total node-hours: ")
	fmt.Fprintf(w, "%s h\n", pricing.FormatHours(report.Group.TotalHours))
	labelColor.Fprintf(w, "  Total cost:       ")
	fmt.Fprintf(w, "%s\n", pricing.FormatCost(report.Group.TotalCost, report.Currency))
	fmt.Fprintf(w, "  Rate: %s per node-hour, %d of %d rows billable\n",
		pricing.FormatCost(report.Rate, report.Currency), report.BillableRows, report.TotalRows)

	if report.DroppedRows > 0 {
		warnColor.Fprintf(w, "  %d rows without a node-time value were skipped\n", report.DroppedRows)
	}
	if report.InvalidTimestamps > 0 {
		warnColor.Fprintf(w, "  %d timestamps could not be parsed\n", report.InvalidTimestamps)
	}
	fmt.Fprintln(w)
}

// PrintUsers prints per-user usage, optionally followed by each user's journal rows
func PrintUsers(w io.Writer, report *model.Report, opts TableOptions) error {
	if len(report.Users) == 0 {
		fmt.Fprintln(w, "No billable usage found.")
		return nil
	}

	compact := shouldUseCompact(opts)

	headerColor.Fprintln(w, "Usage by user")

	var table *tablewriter.Table
	if compact {
		table = newTable(w, []string{"User", "Hours", "Cost"}, 1)
	} else {
		table = newTable(w, []string{"User", "Jobs", "Hours", "Cost", "Share"}, 1)
	}

	for _, u := range report.Users {
		row := []string{u.UserID}
		if !compact {
			row = append(row, strconv.Itoa(len(u.Records)))
		}
		row = append(row,
			pricing.FormatHours(u.TotalHours),
			pricing.FormatCost(u.TotalCost, report.Currency))
		if !compact {
			row = append(row, formatShare(u.TotalHours, report.Group.TotalHours))
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}

	if len(report.Users) > 1 {
		footer := []string{"Total"}
		if !compact {
			footer = append(footer, strconv.Itoa(report.BillableRows))
		}
		footer = append(footer,
			pricing.FormatHours(report.Group.TotalHours),
			pricing.FormatCost(report.Group.TotalCost, report.Currency))
		if !compact {
			footer = append(footer, "100.0%")
		}
		table.Footer(footer)
	}

	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	if !opts.ShowRecords {
		return nil
	}

	for _, u := range report.Users {
		if err := printUserRecords(w, u, report.Currency, compact); err != nil {
			return err
		}
	}
	return nil
}

func printUserRecords(w io.Writer, u model.UserSummary, currency string, compact bool) error {
	headerColor.Fprintf(w, "User %s", u.UserID)
	fmt.Fprintf(w, "  %s h, %s\n", pricing.FormatHours(u.TotalHours), pricing.FormatCost(u.TotalCost, currency))

	var table *tablewriter.Table
	if compact {
		table = newTable(w, []string{"Queue", "Completed", "Node Time", "Cost"}, 2)
	} else {
		table = newTable(w, []string{"Queue", "Submitted", "Started", "Completed", "Elapsed", "Node Time", "Cost"}, 5)
	}

	for _, r := range u.Records {
		var row []string
		if compact {
			row = []string{r.QueueName, FormatTimestamp(r.CompletedAt)}
		} else {
			row = []string{
				r.QueueName,
				FormatTimestamp(r.SubmittedAt),
				FormatTimestamp(r.StartedAt),
				FormatTimestamp(r.CompletedAt),
				r.ElapsedTime,
			}
		}
		row = append(row,
			strconv.FormatFloat(r.NodeSeconds, 'f', -1, 64),
			pricing.FormatCost(r.Cost, currency))
		if err := table.Append(row); err != nil {
			return err
		}
	}

	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

// PrintSeries prints the cumulative time series table
func PrintSeries(w io.Writer, report *model.Report, opts TableOptions) error {
	headerColor.Fprintf(w, "Cumulative usage since %s\n", report.Cutoff.Format(dateLayout))

	if len(report.Series) == 0 {
		fmt.Fprintln(w, "No completed jobs on or after the cutoff date.")
		return nil
	}

	compact := shouldUseCompact(opts)

	var table *tablewriter.Table
	if compact {
		table = newTable(w, []string{"Date", "Hours", "Cumulative Cost"}, 1)
	} else {
		table = newTable(w, []string{"Date", "Hours", "Cost", "Cumulative Hours", "Cumulative Cost"}, 1)
	}

	for _, p := range report.Series {
		row := []string{p.Date.Format(dateLayout), pricing.FormatHours(p.Hours)}
		if !compact {
			row = append(row,
				pricing.FormatCost(p.Cost, report.Currency),
				pricing.FormatHours(p.CumulativeHours))
		}
		row = append(row, pricing.FormatCost(p.CumulativeCost, report.Currency))
		if err := table.Append(row); err != nil {
			return err
		}
	}

	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

// PrintReport prints the summary, the user table and the time series with its chart
func PrintReport(w io.Writer, report *model.Report, opts TableOptions) error {
	PrintSummary(w, report)
	if err := PrintUsers(w, report, opts); err != nil {
		return err
	}
	if err := PrintSeries(w, report, opts); err != nil {
		return err
	}
	PrintChart(w, report, opts)
	return nil
}

func formatShare(part, total float64) string {
	if total == 0 {
		return "-"
	}
	return strconv.FormatFloat(part/total*100, 'f', 1, 64) + "%"
}
