// Package api exposes HTTP handlers for the insights service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/dashboard"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/insights"
)

const maxBodyBytes = 1 << 20

// statusClientClosedRequest marks requests whose caller went away before a
// response was ready.
const statusClientClosedRequest = 499

// Service is the view layer the handlers delegate to.
type Service interface {
	Daily(ctx context.Context, q dashboard.Query) (dashboard.DailyView, error)
	Summary(ctx context.Context, q dashboard.Query) (dashboard.SummaryView, error)
	Achievements(ctx context.Context, q dashboard.Query) (dashboard.AchievementsView, error)
	Dashboard(ctx context.Context, q dashboard.Query) (dashboard.DashboardView, error)
	ListActivities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error)
	CreateActivity(ctx context.Context, req domain.Request, input domain.NewActivity, idempotencyKey string) (*domain.ActivityRecord, error)
}

// Handler coordinates HTTP requests with the dashboard service.
type Handler struct {
	service Service
	logger  logrus.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(service Service, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/insights/daily", h.daily)
	mux.HandleFunc("/v1/insights/summary", h.summary)
	mux.HandleFunc("/v1/insights/achievements", h.achievements)
	mux.HandleFunc("/v1/dashboard", h.dashboard)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	view, err := h.service.Daily(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	view, err := h.service.Summary(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) achievements(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	view, err := h.service.Achievements(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	view, err := h.service.Dashboard(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	req, ok := resolveRequest(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListActivities(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: records})
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var input domain.NewActivity
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input.Type = domain.ActivityType(strings.ToUpper(strings.TrimSpace(string(input.Type))))
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	req := domain.Request{TenantID: claims.TenantID, UserID: claims.Subject, Token: claims.Token}
	created, err := h.service.CreateActivity(r.Context(), req, input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []domain.ActivityRecord `json:"items"`
}

// query resolves the caller, range and bucketing location shared by the
// insight routes.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) (dashboard.Query, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return dashboard.Query{}, false
	}
	req, ok := resolveRequest(w, r)
	if !ok {
		return dashboard.Query{}, false
	}

	values := r.URL.Query()
	rng, err := insights.ParseRange(values.Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "range must be 7, 30 or all")
		return dashboard.Query{}, false
	}

	var loc *time.Location
	if tz := strings.TrimSpace(values.Get("tz")); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown tz "+tz)
			return dashboard.Query{}, false
		}
	}
	return dashboard.Query{Request: req, Range: rng, Location: loc}, true
}

// resolveRequest authorizes a read and names the user whose data is wanted.
// Only insights:admin callers may read another user's data via user_id.
func resolveRequest(w http.ResponseWriter, r *http.Request) (domain.Request, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return domain.Request{}, false
	}
	if !claims.CanReadActivities() {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return domain.Request{}, false
	}

	userID := claims.Subject
	if requested := strings.TrimSpace(r.URL.Query().Get("user_id")); requested != "" && requested != userID {
		if !claims.HasScope(auth.ScopeInsightsAdmin) {
			writeError(w, http.StatusForbidden, "forbidden", "scope insights:admin required to read other users")
			return domain.Request{}, false
		}
		userID = requested
	}
	return domain.Request{TenantID: claims.TenantID, UserID: userID, Token: claims.Token}, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *gateway.StatusError
	switch {
	case errors.Is(err, domain.ErrMissingUser), errors.Is(err, domain.ErrInvalidActivity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500:
		writeError(w, statusErr.Status, "upstream_error", statusErr.Body)
	case errors.Is(err, context.Canceled):
		h.logger.WithField("path", r.URL.Path).Debug("request cancelled")
		writeError(w, statusClientClosedRequest, "client_closed_request", "request cancelled")
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream service unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
