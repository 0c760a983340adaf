package app

import (
	"fmt"
	"time"
)

// MarketHours is a weekday trading window in a fixed timezone. Both ends
// are inclusive.
type MarketHours struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration
}

// DefaultMarketHours returns the NSE cash session, 09:15-15:30 IST.
func DefaultMarketHours() MarketHours {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+30*60)
	}
	return MarketHours{Location: loc, Open: 9*time.Hour + 15*time.Minute, Close: 15*time.Hour + 30*time.Minute}
}

// NewMarketHours parses "HH:MM" open and close times in the named timezone.
func NewMarketHours(tz, open, close string) (MarketHours, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return MarketHours{}, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return MarketHours{}, err
	}
	c, err := parseClock(close)
	if err != nil {
		return MarketHours{}, err
	}
	if c <= o {
		return MarketHours{}, fmt.Errorf("market close %s must be after open %s", close, open)
	}
	return MarketHours{Location: loc, Open: o, Close: c}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IsOpen reports whether t falls on a weekday inside the window.
func (m MarketHours) IsOpen(t time.Time) bool {
	local := t.In(m.Location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	y, mo, d := local.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, m.Location)
	open := midnight.Add(m.Open)
	close := midnight.Add(m.Close)
	return !local.Before(open) && !local.After(close)
}
