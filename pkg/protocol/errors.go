package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfRecords is returned by Decode for a terminator line.
	ErrEndOfRecords = errors.New("end of records")

	// ErrMalformedRecord matches every *DecodeError.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMissingField is the cause of a DecodeError for an absent token.
	ErrMissingField = errors.New("missing field")

	// ErrStreamClosed reports that the server closed the report stream.
	ErrStreamClosed = errors.New("report stream closed")

	// ErrSourceClosed is returned by ReadLine after Close.
	ErrSourceClosed = errors.New("line source closed")
)

// DecodeError describes a mandatory field that failed to parse.
type DecodeError struct {
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed record: field %s (%q): %v", e.Field, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedRecord) true for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformedRecord }
