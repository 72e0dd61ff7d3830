package timecode

import (
	"errors"
	"math"
	"testing"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{5.99, "00:05"},
		{61, "01:01"},
		{600, "10:00"},
		{4503.7, "75:03"},
		{-3, "00:00"},
		{math.NaN(), "00:00"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.want {
			t.Fatalf("FormatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func formatMillis(ms int64) string {
	return FormatSeconds(float64(ms) / 1000)
}

func TestParseMillis(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"00:00", 0},
		{"01:30", 90000},
		{" 75:03 ", 4503000},
		{"01:02:03", 3723000},
		{"", 0},
		{"abc", 0},
		{"1:2:3:4", 0},
		{"-1:00", 0},
		{"01:", 0},
		{"1.5:00", 0},
		{"01:02.5", 62500},
		{"1:02:03.25", 3723250},
		{"00:00.29", 290},
		{"00:1e3", 0},
		{"00:+5", 0},
		{"00:.", 0},
	}
	for _, tt := range tests {
		if got := ParseMillis(tt.in); got != tt.want {
			t.Fatalf("ParseMillis(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseMillisStrict(t *testing.T) {
	if ms, err := ParseMillisStrict("02:05"); err != nil || ms != 125000 {
		t.Fatalf("ParseMillisStrict = (%d, %v)", ms, err)
	}
	if ms, err := ParseMillisStrict("01:02.5"); err != nil || ms != 62500 {
		t.Fatalf("ParseMillisStrict(01:02.5) = (%d, %v)", ms, err)
	}
	if ms, err := ParseMillisStrict("1:02:03.25"); err != nil || ms != 3723250 {
		t.Fatalf("ParseMillisStrict(1:02:03.25) = (%d, %v)", ms, err)
	}
	for _, bad := range []string{"xx", "00:75", "01:75:00", "", "00:60.0", "1.5:00"} {
		if _, err := ParseMillisStrict(bad); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseMillisStrict(%q) error = %v, want ErrMalformed", bad, err)
		}
	}
	// Lenient parsing keeps out-of-range seconds.
	if got := ParseMillis("00:75"); got != 75000 {
		t.Fatalf("ParseMillis(00:75) = %d", got)
	}
}

func TestRoundTripKeepsSecondBucket(t *testing.T) {
	for _, s := range []string{"00:00", "00:59", "09:09", "59:59", "75:03", "120:00"} {
		if got := formatMillis(ParseMillis(s)); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
	}
	for _, seconds := range []float64{0.4, 59.9, 3599.5, 7322.2} {
		text := FormatSeconds(seconds)
		if got := ParseMillis(text); got != int64(seconds)*1000 {
			t.Fatalf("ParseMillis(FormatSeconds(%v)) = %d", seconds, got)
		}
	}
	if got := formatMillis(ParseMillis("01:02:03")); got != "62:03" {
		t.Fatalf("HH:MM:SS round trip = %q", got)
	}
}
