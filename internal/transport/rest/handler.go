package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"carecrm/backend/internal/calendar"
	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/service/appointments"
	"carecrm/backend/internal/store"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxCalendarBody      = 1 << 20

	defaultFeedPast   = 30 * 24 * time.Hour
	defaultFeedFuture = 180 * 24 * time.Hour
	defaultImportSpan = 90 * 24 * time.Hour
)

type appointmentsService interface {
	ValidateAppointment(ctx context.Context, in appointments.AppointmentInput, excludeID uuid.UUID) ([]string, error)
	ScheduleAppointment(ctx context.Context, in appointments.AppointmentInput) (domain.Appointment, error)
	ScheduleRecurringAppointment(ctx context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, reason string) (domain.Appointment, error)
	UpdateOccurrence(ctx context.Context, id uuid.UUID, upd appointments.OccurrenceUpdate) (domain.Appointment, error)
	ResizeAppointment(ctx context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error)
	ResizeOptions(ctx context.Context, id uuid.UUID) (appointments.ResizeOptions, error)
	MoveAppointment(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error)
	SeriesAppointments(ctx context.Context, groupID uuid.UUID) (domain.RecurrenceSeries, []domain.Appointment, error)
	CancelRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error)
	ProviderSchedule(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ClientAppointments(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ImportBlockedTime(ctx context.Context, providerID string, body []byte, windowStart, windowEnd time.Time) (appointments.ImportResult, error)
}

// Handler serves the scheduling REST API.
type Handler struct {
	svc      appointmentsService
	log      *slog.Logger
	now      func() time.Time
	timeZone string
}

type HandlerOption func(*Handler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithFeedTimeZone sets the zone advertised in exported calendar feeds.
func WithFeedTimeZone(tz string) HandlerOption {
	return func(h *Handler) { h.timeZone = tz }
}

func NewHandler(svc appointmentsService, log *slog.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		svc: svc,
		log: log.With(slog.String("component", "http.appointments")),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/appointments", h.ScheduleAppointment)
	g.POST("/appointments/validate", h.ValidateAppointment)
	g.POST("/appointments/recurring", h.ScheduleRecurringAppointment)
	g.GET("/appointments/:id", h.GetAppointment)
	g.PATCH("/appointments/:id", h.UpdateOccurrence)
	g.DELETE("/appointments/:id", h.DeleteAppointment)
	g.POST("/appointments/:id/cancel", h.CancelAppointment)
	g.PUT("/appointments/:id/status", h.UpdateStatus)
	g.POST("/appointments/:id/resize", h.ResizeAppointment)
	g.GET("/appointments/:id/resize-options", h.ResizeOptions)
	g.POST("/appointments/:id/move", h.MoveAppointment)

	g.GET("/series/:id", h.GetSeries)
	g.DELETE("/series/:id", h.CancelRecurringSequence)

	g.GET("/providers/:id/appointments", h.ProviderSchedule)
	g.GET("/providers/:id/calendar.ics", h.ProviderFeed)
	g.POST("/providers/:id/blocked-time", h.ImportBlockedTime)
	g.GET("/clients/:id/appointments", h.ClientAppointments)
}

// ScheduleAppointment handles POST /appointments.
func (h *Handler) ScheduleAppointment(c echo.Context) error {
	var req appointmentInputJSON
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))

	appt, err := h.svc.ScheduleAppointment(c.Request().Context(), req.toInput(key))
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment scheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.Time("start_time", appt.StartTime),
	)
	return c.JSON(http.StatusCreated, toAppointmentJSON(appt))
}

// ValidateAppointment handles POST /appointments/validate.
func (h *Handler) ValidateAppointment(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	var exclude uuid.UUID
	if raw := strings.TrimSpace(req.ExcludeAppointmentID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "exclude_appointment_id must be a UUID")
		}
		exclude = id
	}

	problems, err := h.svc.ValidateAppointment(c.Request().Context(), req.Appointment.toInput(""), exclude)
	if err != nil {
		return h.writeError(c, err)
	}
	if problems == nil {
		problems = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// ScheduleRecurringAppointment handles POST /appointments/recurring.
func (h *Handler) ScheduleRecurringAppointment(c echo.Context) error {
	var req recurringRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))

	res, err := h.svc.ScheduleRecurringAppointment(c.Request().Context(), appointments.RecurringInput{
		Appointment: req.Appointment.toInput(key),
		Pattern:     req.Pattern.toPattern(),
		TimeZone:    req.TimeZone,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("recurring appointment scheduled",
		slog.String("recurrence_group_id", res.Series.ID.String()),
		slog.String("provider_id", res.Series.ProviderID),
		slog.Int("occurrences", len(res.Appointments)),
	)
	return c.JSON(http.StatusCreated, map[string]any{
		"series":       toSeriesJSON(res.Series),
		"appointments": toAppointmentsJSON(res.Appointments),
	})
}

// GetAppointment handles GET /appointments/:id.
func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// UpdateOccurrence handles PATCH /appointments/:id.
func (h *Handler) UpdateOccurrence(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req occurrenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	appt, err := h.svc.UpdateOccurrence(c.Request().Context(), id, appointments.OccurrenceUpdate{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment updated", slog.String("appointment_id", id.String()), slog.Bool("is_exception", appt.IsException))
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// DeleteAppointment handles DELETE /appointments/:id.
func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

// CancelAppointment handles POST /appointments/:id/cancel.
func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	appt, err := h.svc.CancelAppointment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment cancelled", slog.String("appointment_id", id.String()))
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// UpdateStatus handles PUT /appointments/:id/status.
func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	appt, err := h.svc.UpdateStatus(c.Request().Context(), id, domain.Status(strings.TrimSpace(req.Status)), req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment status changed", slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// ResizeAppointment handles POST /appointments/:id/resize.
func (h *Handler) ResizeAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	appt, err := h.svc.ResizeAppointment(c.Request().Context(), id, domain.ResizeDirection(req.Direction), req.NewDurationMinutes)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment resized", slog.String("appointment_id", id.String()), slog.Int("duration_minutes", appt.DurationMinutes()))
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// ResizeOptions handles GET /appointments/:id/resize-options.
func (h *Handler) ResizeOptions(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	opts, err := h.svc.ResizeOptions(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"can_resize":          opts.CanResize,
		"min_minutes":         opts.MinMinutes,
		"max_minutes":         opts.MaxMinutes,
		"suggested_durations": opts.SuggestedDurations,
	})
}

// MoveAppointment handles POST /appointments/:id/move.
func (h *Handler) MoveAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	appt, err := h.svc.MoveAppointment(c.Request().Context(), id, req.StartTime)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("appointment moved", slog.String("appointment_id", id.String()), slog.Time("start_time", appt.StartTime))
	return c.JSON(http.StatusOK, toAppointmentJSON(appt))
}

// GetSeries handles GET /series/:id.
func (h *Handler) GetSeries(c echo.Context) error {
	groupID, err := pathID(c)
	if err != nil {
		return err
	}
	series, appts, err := h.svc.SeriesAppointments(c.Request().Context(), groupID)
	if err != nil {
		return h.writeError(c, err)
	}
	body := map[string]any{"appointments": toAppointmentsJSON(appts)}
	if series.ID != uuid.Nil {
		body["series"] = toSeriesJSON(series)
	}
	return c.JSON(http.StatusOK, body)
}

// CancelRecurringSequence handles DELETE /series/:id.
func (h *Handler) CancelRecurringSequence(c echo.Context) error {
	groupID, err := pathID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.CancelRecurringSequence(c.Request().Context(), groupID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info("recurring sequence deleted", slog.String("recurrence_group_id", groupID.String()), slog.Int("deleted", n))
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

// ProviderSchedule handles GET /providers/:id/appointments?start=&end=.
func (h *Handler) ProviderSchedule(c echo.Context) error {
	start, end, err := queryWindow(c)
	if err != nil {
		return err
	}
	appts, err := h.svc.ProviderSchedule(c.Request().Context(), c.Param("id"), start, end)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"appointments": toAppointmentsJSON(appts)})
}

// ClientAppointments handles GET /clients/:id/appointments?start=&end=.
func (h *Handler) ClientAppointments(c echo.Context) error {
	start, end, err := queryWindow(c)
	if err != nil {
		return err
	}
	appts, err := h.svc.ClientAppointments(c.Request().Context(), c.Param("id"), start, end)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"appointments": toAppointmentsJSON(appts)})
}

// ProviderFeed handles GET /providers/:id/calendar.ics. Without start/end the
// feed covers the last 30 and the next 180 days.
func (h *Handler) ProviderFeed(c echo.Context) error {
	now := h.now().UTC()
	start, end, err := optionalWindow(c, now.Add(-defaultFeedPast), now.Add(defaultFeedFuture))
	if err != nil {
		return err
	}
	providerID := c.Param("id")

	appts, err := h.svc.ProviderSchedule(c.Request().Context(), providerID, start, end)
	if err != nil {
		return h.writeError(c, err)
	}

	var buf bytes.Buffer
	if err := calendar.WriteProviderFeed(&buf, appts, calendar.FeedOptions{
		Name:     providerID,
		TimeZone: h.timeZone,
		Now:      now,
	}); err != nil {
		return h.writeError(c, err)
	}
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// ImportBlockedTime handles POST /providers/:id/blocked-time with an
// iCalendar body. Without start/end the next 90 days are imported.
func (h *Handler) ImportBlockedTime(c echo.Context) error {
	now := h.now().UTC()
	start, end, err := optionalWindow(c, now, now.Add(defaultImportSpan))
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCalendarBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body")
	}
	if len(body) > maxCalendarBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "calendar body too large")
	}

	providerID := c.Param("id")
	res, err := h.svc.ImportBlockedTime(c.Request().Context(), providerID, body, start, end)
	if err != nil {
		return h.writeError(c, err)
	}

	skipped := make([]blockJSON, 0, len(res.Skipped))
	for _, b := range res.Skipped {
		skipped = append(skipped, blockJSON{UID: b.UID, Summary: b.Summary, StartTime: b.Start.UTC(), EndTime: b.End.UTC()})
	}
	unreadable := res.Unreadable
	if unreadable == nil {
		unreadable = []string{}
	}
	h.log.Info("blocked time imported",
		slog.String("provider_id", providerID),
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("unreadable", len(res.Unreadable)),
	)
	return c.JSON(http.StatusOK, map[string]any{
		"created":    toAppointmentsJSON(res.Created),
		"skipped":    skipped,
		"unreadable": unreadable,
	})
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}
	return id, nil
}

func queryWindow(c echo.Context) (time.Time, time.Time, error) {
	startStr, endStr := c.QueryParam("start"), c.QueryParam("end")
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start and end query parameters are required")
	}
	return parseWindow(startStr, endStr)
}

func optionalWindow(c echo.Context, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	startStr, endStr := c.QueryParam("start"), c.QueryParam("end")
	if startStr == "" && endStr == "" {
		return defStart, defEnd, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start and end must be given together")
	}
	return parseWindow(startStr, endStr)
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end must be an RFC 3339 timestamp")
	}
	return start, end, nil
}

// writeError renders err as a JSON error body with a status matching its kind.
func (h *Handler) writeError(c echo.Context, err error) error {
	var (
		vErr *appointments.ValidationError
		dErr *domain.DurationViolation
		sErr *domain.SeriesConflictError
		cErr *domain.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":    "validation failed",
			"problems": vErr.Problems,
		})
	case errors.As(err, &dErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":             dErr.Error(),
			"requested_minutes": dErr.RequestedMinutes,
			"min_minutes":       dErr.MinMinutes,
			"max_minutes":       dErr.MaxMinutes,
		})
	case errors.As(err, &sErr):
		starts := make([]time.Time, 0, len(sErr.Occurrences))
		for _, o := range sErr.Occurrences {
			starts = append(starts, o.Occurrence.StartTime.UTC())
		}
		return c.JSON(http.StatusConflict, map[string]any{
			"error":              sErr.Error(),
			"conflicting_starts": starts,
			"conflicts":          toAppointmentsJSON(sErr.Conflicting()),
		})
	case errors.As(err, &cErr):
		return c.JSON(http.StatusConflict, map[string]any{
			"error":     cErr.Error(),
			"conflicts": toAppointmentsJSON(cErr.Conflicts),
		})
	case errors.Is(err, store.ErrIdempotencyConflict):
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "this Idempotency-Key was already used for a different appointment",
		})
	case errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		h.log.Error("request failed",
			slog.Any("err", err),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
