package domain

import "time"

// TimeBucket identifies the canonical "as-of" instant of an upstream data set
// for a location's local calendar. Buckets use fixed-width layouts so their
// lexical order matches their chronological order.
type TimeBucket string

const (
	hourlyLayout = "200601021504"
	dayLayout    = "20060102"
)

// BaseDate returns the YYYYMMDD portion, as sent in upstream requests.
func (b TimeBucket) BaseDate() string {
	if len(b) < 8 {
		return string(b)
	}
	return string(b[:8])
}

// BaseTime returns the HHMM portion, or "0000" for day buckets.
func (b TimeBucket) BaseTime() string {
	if len(b) < 12 {
		return "0000"
	}
	return string(b[8:12])
}

// HourlyBucket truncates the instant to the start of its local hour. The
// observation endpoint publishes one value per hour.
func HourlyBucket(t time.Time, loc *time.Location) TimeBucket {
	local := t.In(loc)
	trunc := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return TimeBucket(trunc.Format(hourlyLayout))
}

// TwiceDailyBucket snaps the instant to the most recent of the two daily
// publication instants (06:00 and 18:00 local) at or before it, rolling back
// to the previous day's 18:00 slot before 06:00.
func TwiceDailyBucket(t time.Time, loc *time.Location) TimeBucket {
	local := t.In(loc)
	var base time.Time
	switch {
	case local.Hour() < 6:
		prev := local.AddDate(0, 0, -1)
		base = time.Date(prev.Year(), prev.Month(), prev.Day(), 18, 0, 0, 0, loc)
	case local.Hour() < 18:
		base = time.Date(local.Year(), local.Month(), local.Day(), 6, 0, 0, 0, loc)
	default:
		base = time.Date(local.Year(), local.Month(), local.Day(), 18, 0, 0, 0, loc)
	}
	return TimeBucket(base.Format(hourlyLayout))
}

// DayBucket identifies the instant's local calendar day.
func DayBucket(t time.Time, loc *time.Location) TimeBucket {
	return TimeBucket(t.In(loc).Format(dayLayout))
}
