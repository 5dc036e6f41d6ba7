package model

import (
	"errors"
	"time"
)

// TimeLayout is the fixed-width UTC layout of UploadDate. Records compare
// lexically in the same order as chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

const dateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// FormatTime renders t as an UploadDate value.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseBound normalises a client supplied range bound to TimeLayout.
// Bounds may be RFC 3339 timestamps or plain dates; a plain date used as an
// upper bound covers the whole day.
func ParseBound(s string, upper bool) (string, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return FormatTime(t), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", ErrInvalidDate
	}
	if upper {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return FormatTime(t), nil
}
