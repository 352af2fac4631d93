package output

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"

	"github.com/zhaobenny/aobatop/internal/model"
)

const (
	chartHeight   = 12
	chartMinWidth = 20
	chartPadding  = 12 // Room for the y-axis labels
)

// CumulativeHours extracts the running node-hour totals of a series
func CumulativeHours(series []model.TimeSeriesPoint) []float64 {
	data := make([]float64, len(series))
	for i, p := range series {
		data[i] = p.CumulativeHours
	}
	return data
}

// RenderCumulativeChart draws cumulative node-hours as an ASCII line chart
func RenderCumulativeChart(series []model.TimeSeriesPoint, width int) string {
	if len(series) == 0 {
		return ""
	}

	width -= chartPadding
	if width < chartMinWidth {
		width = chartMinWidth
	}

	data := CumulativeHours(series)
	// asciigraph needs two points to draw a line
	if len(data) == 1 {
		data = []float64{0, data[0]}
	}

	caption := fmt.Sprintf("cumulative node-hours, %s to %s",
		series[0].Date.Format(dateLayout), series[len(series)-1].Date.Format(dateLayout))

	return asciigraph.Plot(data,
		asciigraph.Height(chartHeight),
		asciigraph.Width(width),
		asciigraph.Precision(1),
		asciigraph.Caption(caption),
	)
}

// PrintChart writes the cumulative chart for a report, if it has any points
func PrintChart(w io.Writer, report *model.Report, opts TableOptions) {
	chart := RenderCumulativeChart(report.Series, opts.width())
	if chart == "" {
		return
	}
	fmt.Fprintln(w, chart)
	fmt.Fprintln(w)
}
