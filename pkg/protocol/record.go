// Package protocol implements the line-oriented call-stack report format and
// the stream endpoints that carry it.
//
// A report is a sequence of records, one per line:
//
//	level;id;name;totalCount;selfCount;totalBytes;selfBytes;selfCountPerFrame;callsPerFrame
//
// and ends with two consecutive empty lines.
package protocol

import (
	"strconv"
	"strings"

	"github.com/evanschultz/memprof-client/pkg/models"
)

// FieldSep separates the fields of a record.
const FieldSep = ";"

// Field positions on the wire.
const (
	fieldLevel = iota
	fieldID
	fieldName
	fieldTotalCount
	fieldSelfCount
	fieldTotalBytes
	fieldSelfBytes
	fieldSelfCountPerFrame
	fieldCallsPerFrame
	numFields
)

// minFields is the number of tokens up to and including selfBytes.
const minFields = fieldSelfBytes + 1

var fieldNames = [numFields]string{
	"level", "id", "name",
	"totalCount", "selfCount",
	"totalBytes", "selfBytes",
	"selfCountPerFrame", "callsPerFrame",
}

// IsEndOfRecords reports whether line is a terminator line.
func IsEndOfRecords(line string) bool { return line == "" }

// Decode parses one report line. An empty line returns ErrEndOfRecords.
// level, id, totalBytes and selfBytes are mandatory; a failure there returns
// a *DecodeError. The remaining numeric fields fall back to models.Unset.
func Decode(line string) (models.Record, error) {
	if IsEndOfRecords(line) {
		return models.Record{}, ErrEndOfRecords
	}

	tokens := strings.Split(line, FieldSep)
	if len(tokens) < minFields {
		return models.Record{}, &DecodeError{
			Field: fieldNames[len(tokens)],
			Value: line,
			Err:   ErrMissingField,
		}
	}

	var (
		rec models.Record
		err error
	)
	if rec.Level, err = strconv.Atoi(strings.TrimSpace(tokens[fieldLevel])); err != nil {
		return models.Record{}, decodeErr(fieldLevel, tokens, err)
	}
	rec.ID = tokens[fieldID]
	if rec.ID == "" {
		return models.Record{}, decodeErr(fieldID, tokens, ErrMissingField)
	}
	rec.Name = tokens[fieldName]
	if rec.TotalBytes, err = parseFloat(tokens[fieldTotalBytes]); err != nil {
		return models.Record{}, decodeErr(fieldTotalBytes, tokens, err)
	}
	if rec.SelfBytes, err = parseFloat(tokens[fieldSelfBytes]); err != nil {
		return models.Record{}, decodeErr(fieldSelfBytes, tokens, err)
	}

	rec.TotalCount = intOrUnset(tokens, fieldTotalCount)
	rec.SelfCount = intOrUnset(tokens, fieldSelfCount)
	rec.SelfCountPerFrame = floatOrUnset(tokens, fieldSelfCountPerFrame)
	rec.CallsPerFrame = floatOrUnset(tokens, fieldCallsPerFrame)
	return rec, nil
}

func decodeErr(field int, tokens []string, err error) *DecodeError {
	return &DecodeError{Field: fieldNames[field], Value: tokens[field], Err: err}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func intOrUnset(tokens []string, field int) int {
	if field >= len(tokens) {
		return models.Unset
	}
	v, err := strconv.Atoi(strings.TrimSpace(tokens[field]))
	if err != nil {
		return models.Unset
	}
	return v
}

func floatOrUnset(tokens []string, field int) float64 {
	if field >= len(tokens) {
		return models.Unset
	}
	v, err := parseFloat(tokens[field])
	if err != nil {
		return models.Unset
	}
	return v
}

// Encode renders rec in wire form. Unset optional fields are left empty.
func Encode(rec models.Record) string {
	tokens := [numFields]string{
		fieldLevel:      strconv.Itoa(rec.Level),
		fieldID:         rec.ID,
		fieldName:       rec.Name,
		fieldTotalBytes: formatFloat(rec.TotalBytes),
		fieldSelfBytes:  formatFloat(rec.SelfBytes),
	}
	if rec.TotalCount != models.Unset {
		tokens[fieldTotalCount] = strconv.Itoa(rec.TotalCount)
	}
	if rec.SelfCount != models.Unset {
		tokens[fieldSelfCount] = strconv.Itoa(rec.SelfCount)
	}
	if rec.SelfCountPerFrame != models.Unset {
		tokens[fieldSelfCountPerFrame] = formatFloat(rec.SelfCountPerFrame)
	}
	if rec.CallsPerFrame != models.Unset {
		tokens[fieldCallsPerFrame] = formatFloat(rec.CallsPerFrame)
	}
	return strings.Join(tokens[:], FieldSep)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
