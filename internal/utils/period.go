package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodStart returns the start of a lookback period ending at now.
// Periods are a count and a unit: "5d", "2wk", "3mo", "1y".
func PeriodStart(now time.Time, period string) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	units := []struct {
		suffix string
		apply  func(int) time.Time
	}{
		{"wk", func(n int) time.Time { return now.AddDate(0, 0, -7*n) }},
		{"mo", func(n int) time.Time { return now.AddDate(0, -n, 0) }},
		{"d", func(n int) time.Time { return now.AddDate(0, 0, -n) }},
		{"y", func(n int) time.Time { return now.AddDate(-n, 0, 0) }},
	}
	for _, u := range units {
		if !strings.HasSuffix(p, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(p, u.suffix))
		if err != nil || n <= 0 {
			break
		}
		return u.apply(n), nil
	}
	return time.Time{}, fmt.Errorf("invalid period %q", period)
}

// IntervalDuration converts a bar interval such as "5m", "1h" or "1d" to a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	i := strings.ToLower(strings.TrimSpace(interval))
	if len(i) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(i[:len(i)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch i[len(i)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}
