package insights

import (
	"fmt"
	"math"
	"time"

	"example.com/fittrack/internal/domain"
)

// NoActivity is reported by LastActiveDays when there are no records.
const NoActivity = math.MaxInt

// Fixed thresholds behind the insight notices.
const (
	weekDays               = 7
	WeeklyMinutesGoal      = 150
	ConsistentStreakDays   = 5
	InactiveAfterDays      = 3
	HighBurnWeeklyCalories = 2000
)

// trailingWeek returns the day keys of today and the six days before it.
func trailingWeek(now time.Time, loc *time.Location) map[string]struct{} {
	today := calendarDay(now, loc)
	days := make(map[string]struct{}, weekDays)
	for i := 0; i < weekDays; i++ {
		days[today.AddDate(0, 0, -i).Format(dayLayout)] = struct{}{}
	}
	return days
}

// Streak counts the distinct days in the trailing week that have at least
// one record. Gaps do not reset it.
func Streak(records []domain.ActivityRecord, now time.Time, loc *time.Location) int {
	window := trailingWeek(now, loc)
	active := make(map[string]struct{})
	for _, rec := range records {
		key := DayKey(rec.Timestamp(now), loc)
		if _, ok := window[key]; ok {
			active[key] = struct{}{}
		}
	}
	return len(active)
}

// LastActiveDays returns the number of calendar days since the most recent
// record, or NoActivity for an empty list.
func LastActiveDays(records []domain.ActivityRecord, now time.Time, loc *time.Location) int {
	if len(records) == 0 {
		return NoActivity
	}

	var latest time.Time
	for i, rec := range records {
		ts := rec.Timestamp(now)
		if i == 0 || ts.After(latest) {
			latest = ts
		}
	}

	days := int(calendarDay(now, loc).Sub(calendarDay(latest, loc)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Totals sums duration and calories.
type Totals struct {
	Minutes  float64 `json:"minutes"`
	Calories float64 `json:"calories"`
}

// WeeklyTotals sums the records dated within the trailing week.
func WeeklyTotals(records []domain.ActivityRecord, now time.Time, loc *time.Location) Totals {
	window := trailingWeek(now, loc)
	var totals Totals
	for _, rec := range records {
		if _, ok := window[DayKey(rec.Timestamp(now), loc)]; !ok {
			continue
		}
		totals.Minutes += rec.Duration
		totals.Calories += rec.CaloriesBurned
	}
	return totals
}

// Level grades an insight notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

// Insight is a short motivational notice.
type Insight struct {
	Kind    string `json:"kind"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Insights derives the notices shown next to the weekly summary.
func Insights(records []domain.ActivityRecord, now time.Time, loc *time.Location) []Insight {
	if len(records) == 0 {
		return []Insight{{
			Kind:    "get_started",
			Level:   LevelInfo,
			Message: "Log your first activity to start tracking your progress.",
		}}
	}

	weekly := WeeklyTotals(records, now, loc)
	streak := Streak(records, now, loc)
	lastActive := LastActiveDays(records, now, loc)

	out := make([]Insight, 0, 4)
	if weekly.Minutes < WeeklyMinutesGoal {
		out = append(out, Insight{
			Kind:  "low_activity",
			Level: LevelWarning,
			Message: fmt.Sprintf("You logged %.0f active minutes this week. %.0f more to reach the %d minute goal.",
				weekly.Minutes, WeeklyMinutesGoal-weekly.Minutes, WeeklyMinutesGoal),
		})
	} else {
		out = append(out, Insight{
			Kind:    "goal_met",
			Level:   LevelSuccess,
			Message: fmt.Sprintf("Great work! %.0f active minutes this week meets the %d minute goal.", weekly.Minutes, WeeklyMinutesGoal),
		})
	}

	if streak >= ConsistentStreakDays {
		out = append(out, Insight{
			Kind:    "consistent",
			Level:   LevelSuccess,
			Message: fmt.Sprintf("You were active on %d of the last %d days.", streak, weekDays),
		})
	}

	if lastActive >= InactiveAfterDays {
		out = append(out, Insight{
			Kind:    "inactive",
			Level:   LevelWarning,
			Message: fmt.Sprintf("It has been %d days since your last activity.", lastActive),
		})
	}

	if weekly.Calories >= HighBurnWeeklyCalories {
		out = append(out, Insight{
			Kind:    "high_burn",
			Level:   LevelSuccess,
			Message: fmt.Sprintf("You burned %.0f kcal this week.", weekly.Calories),
		})
	}
	return out
}
