package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/logging"
	"github.com/septivank/compost-logbook/internal/mq"
	"github.com/septivank/compost-logbook/internal/report"
	"github.com/septivank/compost-logbook/internal/validator"
)

// SubmissionPublisher queues log submissions
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, msg mq.SubmittedMessage, routingKey string) error
}

// ReportService creates and renders reports
type ReportService interface {
	Create(ctx context.Context, in validator.ReportInput) (*db.ReportSpec, error)
	List(ctx context.Context) ([]report.Summary, error)
	View(ctx context.Context, id int64) (*report.View, error)
	ViewByEmail(ctx context.Context, email string) (*report.EmailView, error)
	ListLogs(ctx context.Context) (*report.LogListing, error)
}

// HealthCheck returns an error when a dependency is unavailable
type HealthCheck func(ctx context.Context) error

// Handler serves the logbook HTTP API
type Handler struct {
	publisher  SubmissionPublisher
	routingKey string
	reports    ReportService
	limiter    *RateLimiter
	checks     map[string]HealthCheck
	now        func() time.Time
	logger     *zap.Logger
}

// HandlerConfig holds handler dependencies
type HandlerConfig struct {
	Publisher  SubmissionPublisher
	RoutingKey string
	Reports    ReportService
	Limiter    *RateLimiter // nil disables rate limiting
	Checks     map[string]HealthCheck
	Logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		publisher:  cfg.Publisher,
		routingKey: cfg.RoutingKey,
		reports:    cfg.Reports,
		limiter:    cfg.Limiter,
		checks:     cfg.Checks,
		now:        time.Now,
		logger:     cfg.Logger,
	}
}

type submitLogRequest struct {
	LocationID   int64   `json:"location_id"`
	LocationName string  `json:"location_name"`
	Activity     string  `json:"activity"`
	WeightKg     float64 `json:"weight_kg"`
	Email        string  `json:"email"`
	DeviceID     string  `json:"device_id"`
}

// SubmitLog handles POST /v1/logs
func (h *Handler) SubmitLog(c echo.Context) error {
	var req submitLogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	sub := mq.LogSubmission{
		LocationID:   req.LocationID,
		LocationName: strings.TrimSpace(req.LocationName),
		Activity:     strings.ToLower(strings.TrimSpace(req.Activity)),
		WeightKg:     req.WeightKg,
		Email:        strings.TrimSpace(req.Email),
		DeviceID:     strings.TrimSpace(req.DeviceID),
	}
	if err := validator.ValidateLog(validator.LogInput(sub)); err != nil {
		return h.writeError(c, err)
	}

	ctx := c.Request().Context()
	if h.limiter != nil {
		decision := h.limiter.Allow(ctx, sub.DeviceID)
		c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"retry_after": int(decision.RetryAfter.Seconds()),
			})
		}
	}

	msg := mq.SubmittedMessage{
		RequestID:  requestID(c),
		ReceivedAt: h.now().UTC(),
		Submission: sub,
	}
	if err := h.publisher.PublishSubmission(ctx, msg, h.routingKey); err != nil {
		logging.WithRequestID(h.logger, msg.RequestID).Error("failed to queue submission", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "submission could not be queued"})
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"request_id": msg.RequestID,
		"status":     "queued",
	})
}

// ListLogs handles GET /v1/logs
func (h *Handler) ListLogs(c echo.Context) error {
	listing, err := h.reports.ListLogs(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, listing)
}

type createReportRequest struct {
	Period    string `json:"period"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
	Locations struct {
		Kind  string       `json:"kind"`
		IDs   []int64      `json:"ids"`
		Terms []db.TermRef `json:"terms"`
	} `json:"locations"`
}

// CreateReport handles POST /v1/reports
func (h *Handler) CreateReport(c echo.Context) error {
	var req createReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	spec, err := h.reports.Create(c.Request().Context(), validator.ReportInput{
		Period:    req.Period,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Locations: req.Locations.Kind,
		IDs:       req.Locations.IDs,
		Terms:     req.Locations.Terms,
	})
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, report.Summarize(*spec))
}

// ListReports handles GET /v1/reports
func (h *Handler) ListReports(c echo.Context) error {
	summaries, err := h.reports.List(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": summaries})
}

// ViewReport handles GET /v1/reports/:id
func (h *Handler) ViewReport(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid report id"})
	}

	view, err := h.reports.View(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ViewEmailReport handles GET /v1/reports/by-email?email=
func (h *Handler) ViewEmailReport(c echo.Context) error {
	view, err := h.reports.ViewByEmail(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Health handles GET /healthz
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	return c.JSON(status, results)
}

func (h *Handler) writeError(c echo.Context, err error) error {
	var verr *validator.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":  "validation_failed",
			"fields": verr.Errors,
		})
	case errors.Is(err, report.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, report.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		logging.WithRequestID(h.logger, requestID(c)).Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// requestID returns the id set by the request id middleware, or a fresh one
func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
