package model

import "time"

// UsageRecord represents a single row of a project usage journal
type UsageRecord struct {
	HostID    string
	ClassID   string
	UserID    string
	QueueName string

	// Nil when the source field was not a valid YYYYMMDDHHMMSS timestamp
	SubmittedAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	ElapsedTime string
	NodeSeconds float64
}

// BillableClass identifies the host/class pair subject to billing
type BillableClass struct {
	HostID  string
	ClassID string
}

// GroupSummary is the whole-project usage
type GroupSummary struct {
	TotalHours float64
	TotalCost  float64
}

// UserRecord is a journal row exposed for per-user display
type UserRecord struct {
	UsageRecord
	Cost float64
}

// UserSummary is usage aggregated for a single user
type UserSummary struct {
	UserID     string
	TotalHours float64
	TotalCost  float64
	Records    []UserRecord
}

// TimeSeriesPoint is one completion date with its running totals
type TimeSeriesPoint struct {
	Date            time.Time
	Hours           float64
	Cost            float64
	CumulativeHours float64
	CumulativeCost  float64
}

// Report holds everything computed by one aggregation pass
type Report struct {
	Group  GroupSummary
	Users  []UserSummary
	Series []TimeSeriesPoint

	Rate     float64
	Cutoff   time.Time
	Currency string

	TotalRows         int // Rows that produced a record
	BillableRows      int // Records that passed the class filter
	DroppedRows       int // Rows without a usable node-time value
	InvalidTimestamps int // Timestamp fields that could not be parsed
}
