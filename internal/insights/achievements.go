package insights

import (
	"math"
	"slices"
	"strings"
	"time"

	"example.com/fittrack/internal/domain"
)

// Counters are the aggregate inputs to badge evaluation.
type Counters struct {
	Total   int     `json:"total"`
	Minutes float64 `json:"minutes"`
	Streak  int     `json:"streak"`
}

// CountersFor computes the badge counters from raw records.
func CountersFor(records []domain.ActivityRecord, now time.Time, loc *time.Location) Counters {
	c := Counters{
		Total:  len(records),
		Streak: Streak(records, now, loc),
	}
	for _, rec := range records {
		c.Minutes += rec.Duration
	}
	return c
}

// Achievement is a badge and whether the counters unlock it.
type Achievement struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Threshold   float64 `json:"threshold"`
	Progress    float64 `json:"progress"`
	Achieved    bool    `json:"achieved"`
}

type badge struct {
	id          string
	title       string
	description string
	threshold   float64
	metric      func(Counters) float64
}

func byTotal(c Counters) float64   { return float64(c.Total) }
func byMinutes(c Counters) float64 { return c.Minutes }
func byStreak(c Counters) float64  { return float64(c.Streak) }

var badges = []badge{
	{"first_activity", "First Step", "Log your first activity", 1, byTotal},
	{"ten_activities", "Getting Started", "Log 10 activities", 10, byTotal},
	{"fifty_activities", "Committed", "Log 50 activities", 50, byTotal},
	{"minutes_100", "Century", "Reach 100 active minutes", 100, byMinutes},
	{"minutes_500", "Endurance", "Reach 500 active minutes", 500, byMinutes},
	{"minutes_1000", "Marathoner", "Reach 1000 active minutes", 1000, byMinutes},
	{"streak_3", "On a Roll", "Be active on 3 days in a week", 3, byStreak},
	{"streak_7", "Unstoppable", "Be active every day for a week", 7, byStreak},
}

// Evaluate maps counters to the fixed badge list. Nothing is remembered
// between calls, so a badge relocks when its counter drops.
func Evaluate(c Counters) []Achievement {
	out := make([]Achievement, 0, len(badges))
	for _, b := range badges {
		value := b.metric(c)
		out = append(out, Achievement{
			ID:          b.id,
			Title:       b.title,
			Description: b.description,
			Threshold:   b.threshold,
			Progress:    math.Min(math.Max(value, 0)/b.threshold, 1),
			Achieved:    value >= b.threshold,
		})
	}
	return out
}

// TypeBreakdown aggregates the records of one activity type.
type TypeBreakdown struct {
	Type     domain.ActivityType `json:"type"`
	Count    int                 `json:"count"`
	Minutes  float64             `json:"minutes"`
	Calories float64             `json:"calories"`
}

// Summary is the all-time overview of a user's records.
type Summary struct {
	TotalActivities int             `json:"totalActivities"`
	TotalMinutes    float64         `json:"totalMinutes"`
	TotalCalories   float64         `json:"totalCalories"`
	AverageDuration float64         `json:"averageDuration"`
	ByType          []TypeBreakdown `json:"byType"`
}

// Summarize totals the records overall and per type. Types are sorted by name.
func Summarize(records []domain.ActivityRecord) Summary {
	s := Summary{TotalActivities: len(records), ByType: []TypeBreakdown{}}
	index := make(map[domain.ActivityType]int)
	for _, rec := range records {
		s.TotalMinutes += rec.Duration
		s.TotalCalories += rec.CaloriesBurned

		i, ok := index[rec.Type]
		if !ok {
			i = len(s.ByType)
			index[rec.Type] = i
			s.ByType = append(s.ByType, TypeBreakdown{Type: rec.Type})
		}
		s.ByType[i].Count++
		s.ByType[i].Minutes += rec.Duration
		s.ByType[i].Calories += rec.CaloriesBurned
	}
	if s.TotalActivities > 0 {
		s.AverageDuration = s.TotalMinutes / float64(s.TotalActivities)
	}
	slices.SortFunc(s.ByType, func(a, b TypeBreakdown) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return s
}
