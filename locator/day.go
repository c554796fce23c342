package locator

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar day without a time of day or zone.
// The zero value is not a valid day.
type Day struct {
	t time.Time
}

// ParseDay parses an ISO-8601 calendar day such as "2024-03-15".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{t}, nil
}

// Today returns the UTC calendar day of the given instant.
func Today(now time.Time) Day {
	y, m, d := now.UTC().Date()
	return Day{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Yesterday rolls back one calendar day, across month and year boundaries.
func (d Day) Yesterday() Day {
	return Day{d.t.AddDate(0, 0, -1)}
}

// Tomorrow moves forward one calendar day.
func (d Day) Tomorrow() Day {
	return Day{d.t.AddDate(0, 0, 1)}
}

func (d Day) IsZero() bool {
	return d.t.IsZero()
}

func (d Day) String() string {
	return d.t.Format(dayLayout)
}
