package analytics

import (
	"fmt"
	"strings"
	"time"
)

type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity falls back to Day for anything it does not recognise.
func ParseGranularity(s string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case Week:
		return Week
	case Month:
		return Month
	default:
		return Day
	}
}

// BucketKey names the bucket holding t once it is moved into loc:
// "2006-01-02" for days, ISO "2006-01" year-week for weeks and "2006-01" for
// months. Keys of one granularity sort in time order.
func BucketKey(t time.Time, loc *time.Location, g Granularity) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	switch g {
	case Week:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-%02d", year, week)
	case Month:
		return local.Format("2006-01")
	default:
		return local.Format("2006-01-02")
	}
}
