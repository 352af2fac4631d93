package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/internal/model"
)

const (
	// DefaultEncoding is the encoding of plist.csv as downloaded from the user portal
	DefaultEncoding = "Shift_JIS"

	timestampLayout = "20060102150405"
)

// Column identifies one of the journal fields the engine needs
type Column int

const (
	ColHostID Column = iota
	ColClassID
	ColUserID
	ColQueueName
	ColSubmittedAt
	ColStartedAt
	ColCompletedAt
	ColElapsedTime
	ColNodeSeconds
	numColumns
)

// columnNames holds the portal's header name first, followed by accepted aliases
var columnNames = [numColumns][]string{
	ColHostID:      {"ホストID", "host_id"},
	ColClassID:     {"クラスID", "class_id"},
	ColUserID:      {"利用者番号", "user_id"},
	ColQueueName:   {"キュー名", "queue_name"},
	ColSubmittedAt: {"投入日時", "submitted_at"},
	ColStartedAt:   {"開始日時", "started_at"},
	ColCompletedAt: {"終了日時", "completed_at"},
	ColElapsedTime: {"経過時間", "elapsed_time"},
	ColNodeSeconds: {"ノード時間（使用量）", "node_seconds"},
}

// Name returns the header name used by the portal export
func (c Column) Name() string {
	return columnNames[c][0]
}

// Options controls how a journal is read
type Options struct {
	Encoding  string         // IANA name, e.g. Shift_JIS or UTF-8
	Delimiter rune           // Field separator
	Location  *time.Location // Zone the naive timestamps are interpreted in
}

// DefaultOptions returns the options matching the portal export
func DefaultOptions() Options {
	return Options{
		Encoding:  DefaultEncoding,
		Delimiter: ',',
		Location:  time.UTC,
	}
}

// Result is the outcome of parsing one journal
type Result struct {
	Records           []model.UsageRecord
	DroppedRows       int
	InvalidTimestamps int
}

// ParseFile parses a journal file from disk
func ParseFile(path string, opts Options) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file, opts)
}

// Parse reads a usage journal and returns its records in source order.
// It fails only with *EncodingError or *SchemaError (or an I/O error from r);
// row and field level problems are recovered and counted in the Result.
func Parse(r io.Reader, opts Options) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	text, err := decode(raw, opts.Encoding)
	if err != nil {
		return nil, err
	}

	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &SchemaError{Missing: allColumnNames()}
	}
	if err != nil {
		return nil, &SchemaError{Err: err}
	}

	index, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	result := &Result{Records: []model.UsageRecord{}}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Debug("skipping malformed journal row", "line", parseErr.Line, "error", parseErr.Err)
				result.DroppedRows++
				continue
			}
			return nil, fmt.Errorf("failed to read journal row: %w", err)
		}

		record, invalid, ok := parseRow(row, index, opts.Location)
		if !ok {
			line, _ := reader.FieldPos(0)
			logger.Debug("dropping journal row without node time", "line", line)
			result.DroppedRows++
			continue
		}
		result.InvalidTimestamps += invalid
		result.Records = append(result.Records, record)
	}

	logger.Debug("parsed journal",
		"records", len(result.Records),
		"dropped", result.DroppedRows,
		"invalid_timestamps", result.InvalidTimestamps)

	return result, nil
}

// decode converts raw bytes in the named encoding to UTF-8
func decode(raw []byte, name string) ([]byte, error) {
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, &EncodingError{Encoding: name, Err: err}
	}
	if enc == nil {
		return nil, &EncodingError{Encoding: name, Err: errors.New("encoding is not supported")}
	}

	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, &EncodingError{Encoding: name, Err: err}
	}

	// Decoders substitute U+FFFD for invalid input instead of failing
	if i := bytes.IndexRune(text, utf8.RuneError); i >= 0 {
		return nil, &EncodingError{Encoding: name, Line: bytes.Count(text[:i], []byte("\n")) + 1}
	}

	return bytes.TrimPrefix(text, []byte("\ufeff")), nil
}

// mapHeader locates every required column in the header row
func mapHeader(header []string) ([numColumns]int, error) {
	var index [numColumns]int
	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	var missing []string
	for col := Column(0); col < numColumns; col++ {
		index[col] = -1
		for _, name := range columnNames[col] {
			if pos, ok := positions[name]; ok {
				index[col] = pos
				break
			}
		}
		if index[col] < 0 {
			missing = append(missing, col.Name())
		}
	}

	if len(missing) > 0 {
		return index, &SchemaError{Missing: missing}
	}
	return index, nil
}

// parseRow builds a record from one data row. ok is false when the row has no usable
// node time; invalid counts timestamp fields that were replaced with nil.
func parseRow(row []string, index [numColumns]int, loc *time.Location) (record model.UsageRecord, invalid int, ok bool) {
	// Identifiers are compared as written; only parsed values are trimmed
	raw := func(col Column) string {
		if i := index[col]; i < len(row) {
			return row[i]
		}
		return ""
	}
	field := func(col Column) string {
		return strings.TrimSpace(raw(col))
	}

	seconds, ok := parseNodeSeconds(field(ColNodeSeconds))
	if !ok {
		return model.UsageRecord{}, 0, false
	}

	timestamp := func(col Column) *time.Time {
		t := ParseTimestamp(field(col), loc)
		if t == nil {
			invalid++
		}
		return t
	}

	record = model.UsageRecord{
		HostID:      raw(ColHostID),
		ClassID:     raw(ColClassID),
		UserID:      raw(ColUserID),
		QueueName:   raw(ColQueueName),
		SubmittedAt: timestamp(ColSubmittedAt),
		StartedAt:   timestamp(ColStartedAt),
		CompletedAt: timestamp(ColCompletedAt),
		ElapsedTime: raw(ColElapsedTime),
		NodeSeconds: seconds,
	}
	return record, invalid, true
}

func parseNodeSeconds(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseTimestamp parses a fourteen digit YYYYMMDDHHMMSS value in loc.
// It returns nil for anything else, including out of range dates.
func ParseTimestamp(s string, loc *time.Location) *time.Time {
	if len(s) != len(timestampLayout) {
		return nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
	}
	t, err := time.ParseInLocation(timestampLayout, s, loc)
	if err != nil {
		return nil
	}
	return &t
}

func allColumnNames() []string {
	names := make([]string, 0, numColumns)
	for col := Column(0); col < numColumns; col++ {
		names = append(names, col.Name())
	}
	return names
}
