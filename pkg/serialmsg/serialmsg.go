// Package serialmsg implements the delimited text frames exchanged with the
// microcontroller: "<code,v1,v2,...>". Fields are plain decimal numbers; there
// is no escaping, checksum or length prefix.
package serialmsg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	Start     = '<'
	End       = '>'
	Separator = ","
)

// Command codes understood by the controllers. Each robot variant uses its
// own subset.
const (
	CodeFeedback    = 0
	CodeFullState   = 1
	CodeDrive       = 10
	CodeEncoders    = 11
	CodeButtons     = 20
	CodeBuzzer      = 21
	CodeDirectDrive = 92
)

var (
	ErrEmpty         = errors.New("serialmsg: empty frame")
	ErrDelimiters    = errors.New("serialmsg: missing frame delimiters")
	ErrMissingCode   = errors.New("serialmsg: missing command code")
	ErrInvalidCode   = errors.New("serialmsg: command code is not an integer")
	ErrInvalidNumber = errors.New("serialmsg: payload field is not numeric")
)

// Frame is one decoded "<...>" unit. Payload fields keep their wire text.
type Frame struct {
	Code    string
	Payload []string
}

// String renders the frame in wire form without a line terminator.
func (f Frame) String() string {
	var sb strings.Builder
	sb.WriteByte(Start)
	sb.WriteString(f.Code)
	for _, field := range f.Payload {
		sb.WriteString(Separator)
		sb.WriteString(field)
	}
	sb.WriteByte(End)
	return sb.String()
}

// CodeInt returns the command code as an integer.
func (f Frame) CodeInt() (int, error) {
	n, err := strconv.Atoi(f.Code)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCode, f.Code)
	}
	return n, nil
}

// Floats returns the payload as numbers.
func (f Frame) Floats() ([]float64, error) {
	out := make([]float64, len(f.Payload))
	for i, field := range f.Payload {
		v, err := parseNumber(field)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q", ErrInvalidNumber, i+1, field)
		}
		out[i] = v
	}
	return out, nil
}

// Ints returns the payload as integers. Fractional values are truncated;
// values outside the int64 range are rejected.
func (f Frame) Ints() ([]int64, error) {
	out := make([]int64, len(f.Payload))
	for i, field := range f.Payload {
		if n, err := strconv.ParseInt(field, 10, 64); err == nil {
			out[i] = n
			continue
		}
		v, err := parseNumber(field)
		if err != nil || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil, fmt.Errorf("%w: field %d %q", ErrInvalidNumber, i+1, field)
		}
		out[i] = int64(v)
	}
	return out, nil
}

// parseNumber accepts plain decimal notation only: no NaN, infinities, hex
// or digit separators.
func parseNumber(field string) (float64, error) {
	if field == "" || strings.Trim(field, "0123456789+-.eE") != "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// FormatValue renders a number the way the controllers expect: integers
// without a decimal point, everything else in the shortest exact form.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// New builds a frame from a code and numeric values.
func New(code int, values ...float64) Frame {
	payload := make([]string, len(values))
	for i, v := range values {
		payload[i] = FormatValue(v)
	}
	return Frame{Code: strconv.Itoa(code), Payload: payload}
}

// Format renders "<code,v1,...,vN>".
func Format(code int, values ...float64) string {
	return New(code, values...).String()
}

// Parse decodes one line received from the controller. Line terminators are
// stripped; everything else must be a well-formed frame.
func Parse(line string) (Frame, error) {
	s := strings.Trim(line, "\r\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return Frame{}, ErrEmpty
	}
	if len(s) < 2 || s[0] != Start || s[len(s)-1] != End {
		return Frame{}, fmt.Errorf("%w: %q", ErrDelimiters, line)
	}

	fields := strings.Split(s[1:len(s)-1], Separator)
	code := strings.TrimSpace(fields[0])
	if code == "" {
		return Frame{}, fmt.Errorf("%w: %q", ErrMissingCode, line)
	}
	if _, err := strconv.Atoi(code); err != nil {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidCode, line)
	}

	payload := make([]string, 0, len(fields)-1)
	for _, field := range fields[1:] {
		field = strings.TrimSpace(field)
		if _, err := parseNumber(field); err != nil {
			return Frame{}, fmt.Errorf("%w: %q in %q", ErrInvalidNumber, field, line)
		}
		payload = append(payload, field)
	}
	return Frame{Code: code, Payload: payload}, nil
}
