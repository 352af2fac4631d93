package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zhaobenny/aobatop/internal/model"
)

// JSONReport represents the JSON output structure
type JSONReport struct {
	Summary JSONSummary  `json:"summary"`
	Users   []JSONUser   `json:"users"`
	Series  []JSONPoint  `json:"series"`
	Meta    JSONMetadata `json:"meta"`
}

// JSONSummary is the whole-project usage
type JSONSummary struct {
	TotalHours float64 `json:"total_hours"`
	TotalCost  float64 `json:"total_cost"`
}

// JSONUser is the usage of a single user
type JSONUser struct {
	UserID     string       `json:"user_id"`
	TotalHours float64      `json:"total_hours"`
	TotalCost  float64      `json:"total_cost"`
	Records    []JSONRecord `json:"records"`
}

// JSONRecord is a journal row as shown to the user
type JSONRecord struct {
	QueueName   string  `json:"queue_name"`
	SubmittedAt *string `json:"submitted_at"`
	StartedAt   *string `json:"started_at"`
	CompletedAt *string `json:"completed_at"`
	ElapsedTime string  `json:"elapsed_time"`
	NodeSeconds float64 `json:"node_seconds"`
	Cost        float64 `json:"cost"`
}

// JSONPoint is one date of the cumulative series
type JSONPoint struct {
	Date            string  `json:"date"`
	Hours           float64 `json:"hours"`
	Cost            float64 `json:"cost"`
	CumulativeHours float64 `json:"cumulative_hours"`
	CumulativeCost  float64 `json:"cumulative_cost"`
}

// JSONMetadata describes the aggregation pass
type JSONMetadata struct {
	Rate              float64 `json:"rate"`
	Currency          string  `json:"currency"`
	Cutoff            string  `json:"cutoff"`
	TotalRows         int     `json:"total_rows"`
	BillableRows      int     `json:"billable_rows"`
	DroppedRows       int     `json:"dropped_rows"`
	InvalidTimestamps int     `json:"invalid_timestamps"`
}

func jsonTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// NewJSONReport converts a report into its JSON representation
func NewJSONReport(report *model.Report) JSONReport {
	out := JSONReport{
		Summary: JSONSummary{
			TotalHours: report.Group.TotalHours,
			TotalCost:  report.Group.TotalCost,
		},
		Users:  make([]JSONUser, len(report.Users)),
		Series: make([]JSONPoint, len(report.Series)),
		Meta: JSONMetadata{
			Rate:              report.Rate,
			Currency:          report.Currency,
			Cutoff:            report.Cutoff.Format(dateLayout),
			TotalRows:         report.TotalRows,
			BillableRows:      report.BillableRows,
			DroppedRows:       report.DroppedRows,
			InvalidTimestamps: report.InvalidTimestamps,
		},
	}

	for i, u := range report.Users {
		user := JSONUser{
			UserID:     u.UserID,
			TotalHours: u.TotalHours,
			TotalCost:  u.TotalCost,
			Records:    make([]JSONRecord, len(u.Records)),
		}
		for j, r := range u.Records {
			user.Records[j] = JSONRecord{
				QueueName:   r.QueueName,
				SubmittedAt: jsonTime(r.SubmittedAt),
				StartedAt:   jsonTime(r.StartedAt),
				CompletedAt: jsonTime(r.CompletedAt),
				ElapsedTime: r.ElapsedTime,
				NodeSeconds: r.NodeSeconds,
				Cost:        r.Cost,
			}
		}
		out.Users[i] = user
	}

	for i, p := range report.Series {
		out.Series[i] = JSONPoint{
			Date:            p.Date.Format(dateLayout),
			Hours:           p.Hours,
			Cost:            p.Cost,
			CumulativeHours: p.CumulativeHours,
			CumulativeCost:  p.CumulativeCost,
		}
	}

	return out
}

// EncodeJSON writes any value as indented JSON
func EncodeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteJSON writes a report as indented JSON
func WriteJSON(w io.Writer, report *model.Report) error {
	return EncodeJSON(w, NewJSONReport(report))
}

func parseJSONTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Report converts a JSON report, e.g. one returned by the upload service, back into a model.Report
func (j JSONReport) Report() (*model.Report, error) {
	cutoff, err := time.Parse(dateLayout, j.Meta.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid cutoff %q: %w", j.Meta.Cutoff, err)
	}

	report := &model.Report{
		Group: model.GroupSummary{
			TotalHours: j.Summary.TotalHours,
			TotalCost:  j.Summary.TotalCost,
		},
		Users:             make([]model.UserSummary, len(j.Users)),
		Series:            make([]model.TimeSeriesPoint, len(j.Series)),
		Rate:              j.Meta.Rate,
		Cutoff:            cutoff,
		Currency:          j.Meta.Currency,
		TotalRows:         j.Meta.TotalRows,
		BillableRows:      j.Meta.BillableRows,
		DroppedRows:       j.Meta.DroppedRows,
		InvalidTimestamps: j.Meta.InvalidTimestamps,
	}

	for i, u := range j.Users {
		user := model.UserSummary{
			UserID:     u.UserID,
			TotalHours: u.TotalHours,
			TotalCost:  u.TotalCost,
			Records:    make([]model.UserRecord, len(u.Records)),
		}
		for k, r := range u.Records {
			rec := model.UserRecord{
				UsageRecord: model.UsageRecord{
					UserID:      u.UserID,
					QueueName:   r.QueueName,
					ElapsedTime: r.ElapsedTime,
					NodeSeconds: r.NodeSeconds,
				},
				Cost: r.Cost,
			}
			if rec.SubmittedAt, err = parseJSONTime(r.SubmittedAt); err != nil {
				return nil, err
			}
			if rec.StartedAt, err = parseJSONTime(r.StartedAt); err != nil {
				return nil, err
			}
			if rec.CompletedAt, err = parseJSONTime(r.CompletedAt); err != nil {
				return nil, err
			}
			user.Records[k] = rec
		}
		report.Users[i] = user
	}

	for i, p := range j.Series {
		date, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid series date %q: %w", p.Date, err)
		}
		report.Series[i] = model.TimeSeriesPoint{
			Date:            date,
			Hours:           p.Hours,
			Cost:            p.Cost,
			CumulativeHours: p.CumulativeHours,
			CumulativeCost:  p.CumulativeCost,
		}
	}

	return report, nil
}
