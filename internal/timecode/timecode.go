// Package timecode formats and parses the MM:SS timestamps stored in the
// time index.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed reports time text that is not MM:SS or HH:MM:SS.
var ErrMalformed = errors.New("malformed timecode")

// FormatSeconds renders seconds as zero-padded MM:SS, truncating fractional
// seconds. Minutes are not wrapped into hours, so 4503s renders as "75:03".
// Negative and non-finite input renders as "00:00".
func FormatSeconds(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ParseMillis converts MM:SS or HH:MM:SS text to milliseconds. Seconds may
// carry a decimal fraction, truncated to the millisecond. Malformed text
// yields 0.
func ParseMillis(text string) int64 {
	ms, err := parse(text, false)
	if err != nil {
		return 0
	}
	return ms
}

// ParseMillisStrict is ParseMillis that reports malformed text instead of
// mapping it to 0. Seconds, and minutes in the HH:MM:SS form, must be
// below 60.
func ParseMillisStrict(text string) (int64, error) {
	return parse(text, true)
}

func parse(text string, strict bool) (int64, error) {
	trimmed := strings.TrimSpace(text)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
	}
	last := len(parts) - 1
	whole := make([]int64, last)
	for i, part := range parts[:last] {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
		}
		whole[i] = v
	}
	if !isDecimal(parts[last]) {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
	}
	seconds, err := strconv.ParseFloat(parts[last], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
	}

	var hours, minutes int64
	if len(whole) == 2 {
		hours, minutes = whole[0], whole[1]
		if strict && minutes >= 60 {
			return 0, fmt.Errorf("%w: minutes out of range in %q", ErrMalformed, text)
		}
	} else {
		minutes = whole[0]
	}
	if strict && seconds >= 60 {
		return 0, fmt.Errorf("%w: seconds out of range in %q", ErrMalformed, text)
	}
	// 1e-6 absorbs binary rounding so "00:00.29" yields 290.
	return (hours*60+minutes)*60*1000 + int64(math.Floor(seconds*1000+1e-6)), nil
}

// isDecimal accepts digits with at most one decimal point, rejecting the
// signs, exponents and hex forms ParseFloat would otherwise take.
func isDecimal(s string) bool {
	dot := false
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}
