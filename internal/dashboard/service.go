// Package dashboard assembles the insight views served to the dashboards from
// the shared activity store and the gateway.
package dashboard

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/insights"
	"example.com/fittrack/internal/observability"
)

// ActivityStore is the shared fetch/cache boundary.
type ActivityStore interface {
	Activities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error)
	Invalidate(ctx context.Context, tenantID, userID string) error
}

// Gateway covers the gateway calls that bypass the store.
type Gateway interface {
	CreateActivity(ctx context.Context, req domain.Request, input domain.NewActivity, idempotencyKey string) (*domain.ActivityRecord, error)
	Recommendations(ctx context.Context, req domain.Request) ([]domain.Recommendation, error)
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the reference time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation sets the default bucketing location.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger overrides the logger used to report degraded reads.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service derives insight views for one user at a time.
type Service struct {
	store   ActivityStore
	gateway Gateway
	now     func() time.Time
	loc     *time.Location
	logger  logrus.FieldLogger
}

// NewService wires the store and gateway.
func NewService(store ActivityStore, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		store:   store,
		gateway: gateway,
		now:     time.Now,
		loc:     time.Local,
		logger:  logrus.StandardLogger().WithField("component", "dashboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query selects whose data to aggregate and how.
type Query struct {
	Request  domain.Request
	Range    insights.Range
	Location *time.Location
}

func (s *Service) location(q Query) *time.Location {
	if q.Location != nil {
		return q.Location
	}
	return s.loc
}

// DailyView is the chart-ready per-day breakdown.
type DailyView struct {
	Range    string               `json:"range"`
	Timezone string               `json:"timezone"`
	Buckets  []insights.DayBucket `json:"buckets"`
	Series   insights.Series      `json:"series"`
	Degraded bool                 `json:"degraded,omitempty"`
}

// SummaryView is the weekly summary card plus all-time totals.
type SummaryView struct {
	Summary        insights.Summary   `json:"summary"`
	Weekly         insights.Totals    `json:"weekly"`
	Streak         int                `json:"streak"`
	LastActiveDays *int               `json:"lastActiveDays"`
	Insights       []insights.Insight `json:"insights"`
	Degraded       bool               `json:"degraded,omitempty"`
}

// AchievementsView is the badge panel.
type AchievementsView struct {
	Counters     insights.Counters      `json:"counters"`
	Achievements []insights.Achievement `json:"achievements"`
	Degraded     bool                   `json:"degraded,omitempty"`
}

// DashboardView combines every panel with the AI recommendations.
type DashboardView struct {
	Daily           DailyView               `json:"daily"`
	Summary         SummaryView             `json:"summary"`
	Achievements    AchievementsView        `json:"achievements"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Degraded        bool                    `json:"degraded,omitempty"`
}

// Daily buckets the user's records by calendar day and applies the range.
func (s *Service) Daily(ctx context.Context, q Query) (DailyView, error) {
	records, degraded, err := s.records(ctx, q.Request)
	if err != nil {
		return DailyView{}, err
	}
	return s.daily(records, degraded, q, s.now()), nil
}

// Summary reports totals, weekly progress and notices.
func (s *Service) Summary(ctx context.Context, q Query) (SummaryView, error) {
	records, degraded, err := s.records(ctx, q.Request)
	if err != nil {
		return SummaryView{}, err
	}
	return s.summary(records, degraded, q, s.now()), nil
}

// Achievements evaluates the badge list.
func (s *Service) Achievements(ctx context.Context, q Query) (AchievementsView, error) {
	records, degraded, err := s.records(ctx, q.Request)
	if err != nil {
		return AchievementsView{}, err
	}
	return s.achievements(records, degraded, q, s.now()), nil
}

// Dashboard fetches records and recommendations concurrently and derives
// every panel from one snapshot of the records.
func (s *Service) Dashboard(ctx context.Context, q Query) (DashboardView, error) {
	var (
		records         []domain.ActivityRecord
		recs            []domain.Recommendation
		recordsDegraded bool
		recsDegraded    bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, recordsDegraded, err = s.records(gctx, q.Request)
		return err
	})
	g.Go(func() error {
		var err error
		recs, recsDegraded, err = s.recommendations(gctx, q.Request)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardView{}, err
	}

	now := s.now()
	return DashboardView{
		Daily:           s.daily(records, recordsDegraded, q, now),
		Summary:         s.summary(records, recordsDegraded, q, now),
		Achievements:    s.achievements(records, recordsDegraded, q, now),
		Recommendations: recs,
		Degraded:        recordsDegraded || recsDegraded,
	}, nil
}

// ListActivities returns the user's records newest first.
func (s *Service) ListActivities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error) {
	records, _, err := s.records(ctx, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	slices.SortStableFunc(records, func(a, b domain.ActivityRecord) int {
		if c := b.Timestamp(now).Compare(a.Timestamp(now)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return records, nil
}

// CreateActivity logs an activity through the gateway and drops the user's
// cached collection so the next read includes it.
func (s *Service) CreateActivity(ctx context.Context, req domain.Request, input domain.NewActivity, idempotencyKey string) (*domain.ActivityRecord, error) {
	created, err := s.gateway.CreateActivity(ctx, req, input, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if err := s.store.Invalidate(ctx, req.TenantID, req.UserID); err != nil {
		s.logger.WithError(err).WithField("user_id", req.UserID).Warn("cache invalidation after create failed")
	}
	return created, nil
}

// records loads the collection. Upstream failures degrade to an empty list;
// only request validation and caller cancellation are returned as errors.
func (s *Service) records(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	records, err := s.store.Activities(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		s.logger.WithError(err).WithField("user_id", req.UserID).Warn("activity fetch failed, serving empty collection")
		observability.RecordUpstreamFailure("activities")
		return []domain.ActivityRecord{}, true, nil
	}
	recordWatermark(records)
	return records, false, nil
}

func (s *Service) recommendations(ctx context.Context, req domain.Request) ([]domain.Recommendation, bool, error) {
	recs, err := s.gateway.Recommendations(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		s.logger.WithError(err).WithField("user_id", req.UserID).Warn("recommendation fetch failed")
		observability.RecordUpstreamFailure("recommendations")
		return []domain.Recommendation{}, true, nil
	}
	return recs, false, nil
}

func (s *Service) daily(records []domain.ActivityRecord, degraded bool, q Query, now time.Time) DailyView {
	loc := s.location(q)
	buckets := insights.FilterRange(insights.BucketByDay(records, now, loc), q.Range, now, loc)
	return DailyView{
		Range:    q.Range.String(),
		Timezone: loc.String(),
		Buckets:  buckets,
		Series:   insights.ChartSeries(buckets),
		Degraded: degraded,
	}
}

func (s *Service) summary(records []domain.ActivityRecord, degraded bool, q Query, now time.Time) SummaryView {
	loc := s.location(q)
	view := SummaryView{
		Summary:  insights.Summarize(records),
		Weekly:   insights.WeeklyTotals(records, now, loc),
		Streak:   insights.Streak(records, now, loc),
		Insights: insights.Insights(records, now, loc),
		Degraded: degraded,
	}
	if days := insights.LastActiveDays(records, now, loc); days != insights.NoActivity {
		view.LastActiveDays = &days
	}
	return view
}

func (s *Service) achievements(records []domain.ActivityRecord, degraded bool, q Query, now time.Time) AchievementsView {
	counters := insights.CountersFor(records, now, s.location(q))
	return AchievementsView{
		Counters:     counters,
		Achievements: insights.Evaluate(counters),
		Degraded:     degraded,
	}
}

func recordWatermark(records []domain.ActivityRecord) {
	var latest time.Time
	for _, rec := range records {
		if ts := rec.Timestamp(time.Time{}); ts.After(latest) {
			latest = ts
		}
	}
	observability.RecordActivitySeen(latest)
}
