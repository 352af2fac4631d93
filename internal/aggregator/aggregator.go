package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/parser"
	"github.com/zhaobenny/aobatop/internal/pricing"
)

// Options for aggregation
type Options struct {
	Rate     float64             // Currency units per node-hour
	Cutoff   time.Time           // Earliest completion included in the time series
	Class    model.BillableClass // Records outside this class are not billed
	Currency string
}

// DefaultCutoff returns the start of 2020 in loc, the first day charted by the time series
func DefaultCutoff(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(2020, 1, 1, 0, 0, 0, 0, loc)
}

// DefaultOptions returns the AOBA billing defaults
func DefaultOptions() Options {
	return Options{
		Rate:     pricing.DefaultNodeHourRate,
		Cutoff:   DefaultCutoff(time.UTC),
		Class:    pricing.DefaultBillableClass,
		Currency: pricing.DefaultCurrency,
	}
}

// FilterBillable returns the records belonging to the billable class, in input order
func FilterBillable(records []model.UsageRecord, class model.BillableClass) []model.UsageRecord {
	filtered := make([]model.UsageRecord, 0, len(records))
	for _, r := range records {
		if r.HostID == class.HostID && r.ClassID == class.ClassID {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Group sums usage over all records
func Group(records []model.UsageRecord, rate float64) model.GroupSummary {
	var seconds float64
	for _, r := range records {
		seconds += r.NodeSeconds
	}

	hours := pricing.Hours(seconds)
	return model.GroupSummary{
		TotalHours: hours,
		TotalCost:  pricing.Cost(hours, rate),
	}
}

// ByUser aggregates usage by user, ordered by descending user ID
func ByUser(records []model.UsageRecord, rate float64) []model.UserSummary {
	grouped := make(map[string]*model.UserSummary)
	seconds := make(map[string]float64)

	for _, r := range records {
		key := r.UserID

		if _, ok := grouped[key]; !ok {
			grouped[key] = &model.UserSummary{UserID: key}
		}

		agg := grouped[key]
		agg.Records = append(agg.Records, model.UserRecord{
			UsageRecord: r,
			Cost:        pricing.Cost(pricing.Hours(r.NodeSeconds), rate),
		})
		seconds[key] += r.NodeSeconds
	}

	userIDs := lo.Keys(grouped)
	sort.Slice(userIDs, func(i, j int) bool {
		return compareUserIDs(userIDs[i], userIDs[j]) > 0
	})

	results := make([]model.UserSummary, 0, len(userIDs))
	for _, id := range userIDs {
		agg := grouped[id]
		agg.TotalHours = pricing.Hours(seconds[id])
		agg.TotalCost = pricing.Cost(agg.TotalHours, rate)
		results = append(results, *agg)
	}

	return results
}

// compareUserIDs orders all-digit IDs numerically and all other IDs lexicographically.
// Numeric IDs sort before the rest so the ordering stays total on mixed input.
func compareUserIDs(a, b string) int {
	digitsA, digitsB := isDigits(a), isDigits(b)

	switch {
	case digitsA && digitsB:
		// Compared as digit strings so ids of any length keep numeric order
		na, nb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(na) != len(nb) {
			if len(na) < len(nb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case digitsA:
		return -1
	case digitsB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// TimeSeries buckets records by completion date and accumulates them.
// Records without a completion time or completing before cutoff are left out.
func TimeSeries(records []model.UsageRecord, rate float64, cutoff time.Time) []model.TimeSeriesPoint {
	type bucket struct {
		date    time.Time
		seconds float64
	}
	grouped := make(map[string]*bucket)

	for _, r := range records {
		if r.CompletedAt == nil || r.CompletedAt.Before(cutoff) {
			continue
		}

		ts := *r.CompletedAt
		key := ts.Format("2006-01-02")

		if _, ok := grouped[key]; !ok {
			y, m, d := ts.Date()
			grouped[key] = &bucket{date: time.Date(y, m, d, 0, 0, 0, 0, ts.Location())}
		}
		grouped[key].seconds += r.NodeSeconds
	}

	days := lo.Keys(grouped)
	sort.Strings(days)

	results := make([]model.TimeSeriesPoint, 0, len(days))
	var cumHours, cumCost float64
	for _, day := range days {
		b := grouped[day]
		hours := pricing.Hours(b.seconds)
		cost := pricing.Cost(hours, rate)
		cumHours += hours
		cumCost += cost

		results = append(results, model.TimeSeriesPoint{
			Date:            b.date,
			Hours:           hours,
			Cost:            cost,
			CumulativeHours: cumHours,
			CumulativeCost:  cumCost,
		})
	}

	return results
}

// Run performs one aggregation pass over parsed records
func Run(records []model.UsageRecord, opts Options) *model.Report {
	billable := FilterBillable(records, opts.Class)

	return &model.Report{
		Group:        Group(billable, opts.Rate),
		Users:        ByUser(billable, opts.Rate),
		Series:       TimeSeries(billable, opts.Rate, opts.Cutoff),
		Rate:         opts.Rate,
		Cutoff:       opts.Cutoff,
		Currency:     opts.Currency,
		TotalRows:    len(records),
		BillableRows: len(billable),
	}
}

// FromJournal aggregates a parsed journal, carrying over its row counters
func FromJournal(result *parser.Result, opts Options) *model.Report {
	report := Run(result.Records, opts)
	report.DroppedRows = result.DroppedRows
	report.InvalidTimestamps = result.InvalidTimestamps
	return report
}
