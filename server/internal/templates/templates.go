package templates

import (
	"embed"
	"html/template"
	"time"

	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/output"
	"github.com/zhaobenny/aobatop/internal/pricing"
)

//go:embed *.html partials/*.html
var FS embed.FS

const chartWidth = 100

// Parse returns the parsed templates with custom functions
func Parse() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatHours":     pricing.FormatHours,
		"formatCost":      pricing.FormatCost,
		"formatDate":      formatDate,
		"formatTimestamp": output.FormatTimestamp,
		"share":           share,
		"chart":           chart,
	}

	return template.New("").Funcs(funcMap).ParseFS(FS, "*.html", "partials/*.html")
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func share(part, total float64) string {
	if total == 0 {
		return "-"
	}
	return pricing.FormatHours(part/total*100) + "%"
}

func chart(series []model.TimeSeriesPoint) string {
	return output.RenderCumulativeChart(series, chartWidth)
}
