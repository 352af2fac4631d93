package parser

import (
	"fmt"
	"strings"
)

// EncodingError is returned when the journal cannot be decoded with the expected encoding
type EncodingError struct {
	Encoding string
	Line     int // 1-based line of the first undecodable byte, 0 if unknown
	Err      error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("journal is not valid %s", e.Encoding)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// SchemaError is returned when required columns are missing from the header row
type SchemaError struct {
	Missing []string
	Err     error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) == 0 && e.Err != nil {
		return "invalid journal header: " + e.Err.Error()
	}
	return "journal is missing required columns: " + strings.Join(e.Missing, ", ")
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
