// Package insights derives chart series, streaks, insight notices and
// achievement badges from a user's activity records.
//
// Every function is a pure transform of its inputs. The reference time and
// the location used for calendar-day bucketing are passed explicitly.
package insights

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"example.com/fittrack/internal/domain"
)

const dayLayout = "2006-01-02"

// ErrUnknownRange is returned by ParseRange for unsupported window names.
var ErrUnknownRange = errors.New("unknown range")

// DayBucket holds the totals of all records that fall on one calendar day.
type DayBucket struct {
	Day      string  `json:"day"`
	Minutes  float64 `json:"minutes"`
	Calories float64 `json:"calories"`
}

// DayKey formats t as YYYY-MM-DD in loc. A nil loc means time.Local.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dayLayout)
}

// BucketByDay groups records by calendar day and returns one bucket per day,
// ascending by date.
func BucketByDay(records []domain.ActivityRecord, now time.Time, loc *time.Location) []DayBucket {
	index := make(map[string]int, len(records))
	buckets := make([]DayBucket, 0, len(records))
	for _, rec := range records {
		key := DayKey(rec.Timestamp(now), loc)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, DayBucket{Day: key})
		}
		buckets[i].Minutes += rec.Duration
		buckets[i].Calories += rec.CaloriesBurned
	}

	// YYYY-MM-DD sorts lexicographically in date order.
	slices.SortFunc(buckets, func(a, b DayBucket) int {
		return strings.Compare(a.Day, b.Day)
	})
	return buckets
}

// Range is a trailing window measured in days. RangeAll disables filtering.
type Range int

const (
	RangeAll   Range = 0
	RangeWeek  Range = 7
	RangeMonth Range = 30
)

// ParseRange accepts "7", "30", "all" and the "7d"/"30d" spellings. An empty
// value means all.
func ParseRange(value string) (Range, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all":
		return RangeAll, nil
	case "7", "7d":
		return RangeWeek, nil
	case "30", "30d":
		return RangeMonth, nil
	}
	return RangeAll, fmt.Errorf("%w: %q", ErrUnknownRange, value)
}

func (r Range) String() string {
	if r == RangeAll {
		return "all"
	}
	return strconv.Itoa(int(r))
}

// FilterRange keeps the buckets dated on or after now minus the window.
func FilterRange(buckets []DayBucket, rng Range, now time.Time, loc *time.Location) []DayBucket {
	if rng <= RangeAll {
		return buckets
	}
	cutoff := calendarDay(now, loc).AddDate(0, 0, -int(rng)).Format(dayLayout)

	out := make([]DayBucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Day >= cutoff {
			out = append(out, b)
		}
	}
	return out
}

// Series is the column form of a bucket list, ready for chart libraries.
type Series struct {
	Labels   []string  `json:"labels"`
	Minutes  []float64 `json:"minutes"`
	Calories []float64 `json:"calories"`
}

// ChartSeries splits buckets into parallel columns.
func ChartSeries(buckets []DayBucket) Series {
	s := Series{
		Labels:   make([]string, 0, len(buckets)),
		Minutes:  make([]float64, 0, len(buckets)),
		Calories: make([]float64, 0, len(buckets)),
	}
	for _, b := range buckets {
		s.Labels = append(s.Labels, b.Day)
		s.Minutes = append(s.Minutes, b.Minutes)
		s.Calories = append(s.Calories, b.Calories)
	}
	return s
}

// calendarDay returns midnight UTC of t's date in loc, which makes day
// arithmetic immune to DST shifts.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
