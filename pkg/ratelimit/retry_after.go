package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter parses a Retry-After header given as seconds or an HTTP date
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, nil
	}

	if t, err := time.Parse(time.RFC1123, value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid Retry-After value: %s", value)
}
