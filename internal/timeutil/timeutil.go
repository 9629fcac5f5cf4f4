// Package timeutil holds the time formatting helpers shared by the
// reporting path and the HTTP surface. The wire formats are fixed by the
// Solas server and must not drift.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConvertTo24Hour converts a 12-hour `h:mm AM/PM` clock string into 24-hour
// `HH:MM`. Strings without an AM/PM marker are assumed to already be in
// 24-hour form and pass through unchanged. Empty input yields empty output.
func ConvertTo24Hour(s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "AM") && !strings.Contains(s, "PM") {
		return s
	}

	parts := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(parts) != 2 {
		return s
	}
	hm := strings.SplitN(parts[0], ":", 2)
	if len(hm) != 2 {
		return s
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return s
	}

	switch strings.TrimSpace(parts[1]) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	return fmt.Sprintf("%02d:%s", hour, hm[1])
}

// FormatDeviceTime renders t as `DD-MM-YYYY HH:MM:SS`, the timestamp format
// the server stores observations under. The local clock is used as-is.
func FormatDeviceTime(t time.Time) string {
	return t.Format("02-01-2006 15:04:05")
}
