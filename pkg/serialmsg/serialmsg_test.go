package serialmsg

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		code   int
		values []float64
		want   string
	}{
		{10, []float64{-40, 25}, "<10,-40,25>"},
		{11, nil, "<11>"},
		{1, []float64{0, 0, 0, 0, 0, 0, 0}, "<1,0,0,0,0,0,0,0>"},
		{30, []float64{1.5, -0.25}, "<30,1.5,-0.25>"},
	}
	for _, tt := range tests {
		if got := Format(tt.code, tt.values...); got != tt.want {
			t.Errorf("Format(%d, %v) = %q, want %q", tt.code, tt.values, got, tt.want)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	line := Format(10, -40, 25) + "\r\n"
	f, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q): %v", line, err)
	}
	if f.Code != "10" {
		t.Errorf("code = %q, want 10", f.Code)
	}
	if want := []string{"-40", "25"}; !reflect.DeepEqual(f.Payload, want) {
		t.Errorf("payload = %q, want %q", f.Payload, want)
	}
	if f.String() != "<10,-40,25>" {
		t.Errorf("String() = %q", f.String())
	}

	ints, err := f.Ints()
	if err != nil {
		t.Fatalf("Ints: %v", err)
	}
	if !reflect.DeepEqual(ints, []int64{-40, 25}) {
		t.Errorf("Ints() = %v", ints)
	}
	code, err := f.CodeInt()
	if err != nil || code != CodeDrive {
		t.Errorf("CodeInt() = %d, %v", code, err)
	}
}

func TestParse_EmptyPayload(t *testing.T) {
	f, err := Parse("<20>\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Code != "20" || len(f.Payload) != 0 {
		t.Errorf("got %+v", f)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrEmpty},
		{"\r\n", ErrEmpty},
		{"10,-40,25>", ErrDelimiters},
		{"<10,-40,25", ErrDelimiters},
		{"<>", ErrMissingCode},
		{"<,1,2>", ErrMissingCode},
		{"<ab,1>", ErrInvalidCode},
		{"<10,-4x0,25>", ErrInvalidNumber},
		{"<10,,25>", ErrInvalidNumber},
		{"<11,1,2,>", ErrInvalidNumber},
		{"<11,NaN,Inf>\r\n", ErrInvalidNumber},
		{"<11,1,-infinity>", ErrInvalidNumber},
		{"<11,0x1p4>", ErrInvalidNumber},
		{"<11,1_000>", ErrInvalidNumber},
		{"<11,1e400>", ErrInvalidNumber},
	}
	for _, tt := range tests {
		f, err := Parse(tt.line)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) err = %v, want %v", tt.line, err, tt.want)
		}
		if err != nil && (f.Code != "" || f.Payload != nil) {
			t.Errorf("Parse(%q) returned partial frame %+v", tt.line, f)
		}
	}
}

func TestFrame_Floats(t *testing.T) {
	f, err := Parse("<11,1024,-3.5>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := f.Floats()
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{1024, -3.5}) {
		t.Errorf("Floats() = %v", got)
	}

	for _, field := range []string{"x", "NaN", "+Inf", "-infinity"} {
		bad := Frame{Code: "11", Payload: []string{field}}
		if _, err := bad.Floats(); !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("Floats on %q err = %v", field, err)
		}
	}
}

func TestFrame_Ints(t *testing.T) {
	f, err := Parse("<11,9223372036854775807,-7,12.9>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := f.Ints()
	if err != nil {
		t.Fatalf("Ints: %v", err)
	}
	if want := []int64{math.MaxInt64, -7, 12}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ints() = %v, want %v", got, want)
	}

	for _, field := range []string{"1e30", "-1e19", "NaN", "Inf"} {
		bad := Frame{Code: "11", Payload: []string{"1", field}}
		if v, err := bad.Ints(); !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("Ints with %q = %v, %v, want ErrInvalidNumber", field, v, err)
		}
	}
}
