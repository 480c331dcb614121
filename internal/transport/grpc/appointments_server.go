package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/service/appointments"
	"carecrm/backend/internal/store"
)

type AppointmentsServer struct {
	svc appointmentsService
	log *slog.Logger
}

type appointmentsService interface {
	ValidateAppointment(ctx context.Context, in appointments.AppointmentInput, excludeID uuid.UUID) ([]string, error)
	ScheduleAppointment(ctx context.Context, in appointments.AppointmentInput) (domain.Appointment, error)
	ScheduleRecurringAppointment(ctx context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	CancelRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, reason string) (domain.Appointment, error)
	ResizeAppointment(ctx context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error)
	MoveAppointment(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error)
	ProviderSchedule(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ClientAppointments(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

var _ AppointmentsServiceServer = (*AppointmentsServer)(nil)

func (s *AppointmentsServer) ScheduleAppointment(ctx context.Context, req *ScheduleAppointmentRequest) (*ScheduleAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ScheduleAppointment"))

	if req == nil || req.Appointment == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "appointment is required")
	}

	appt, err := s.svc.ScheduleAppointment(ctx, fromProtoInput(req.Appointment, idempotencyKey(ctx)))
	if err != nil {
		return nil, s.statusError(log, err, slog.String("provider_id", req.Appointment.ProviderID))
	}

	log.Info(
		"appointment scheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	return &ScheduleAppointmentResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) ValidateAppointment(ctx context.Context, req *ValidateAppointmentRequest) (*ValidateAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ValidateAppointment"))

	if req == nil || req.Appointment == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "appointment is required")
	}
	var exclude uuid.UUID
	if raw := strings.TrimSpace(req.ExcludeAppointmentID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
			return nil, status.Error(codes.InvalidArgument, "exclude_appointment_id must be a UUID")
		}
		exclude = id
	}

	problems, err := s.svc.ValidateAppointment(ctx, fromProtoInput(req.Appointment, ""), exclude)
	if err != nil {
		return nil, s.statusError(log, err)
	}
	return &ValidateAppointmentResponse{Valid: len(problems) == 0, Problems: problems}, nil
}

func (s *AppointmentsServer) ScheduleRecurringAppointment(ctx context.Context, req *ScheduleRecurringAppointmentRequest) (*ScheduleRecurringAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ScheduleRecurringAppointment"))

	if req == nil || req.Appointment == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "appointment is required")
	}
	if req.Pattern == nil {
		log.Warn("invalid request", slog.String("reason", "missing_pattern"), slog.String("provider_id", req.Appointment.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "pattern is required")
	}

	res, err := s.svc.ScheduleRecurringAppointment(ctx, appointments.RecurringInput{
		Appointment: fromProtoInput(req.Appointment, idempotencyKey(ctx)),
		Pattern:     fromProtoPattern(req.Pattern),
		TimeZone:    req.TimeZone,
	})
	if err != nil {
		return nil, s.statusError(log, err, slog.String("provider_id", req.Appointment.ProviderID))
	}

	log.Info(
		"recurring appointment scheduled",
		slog.String("recurrence_group_id", res.Series.ID.String()),
		slog.String("provider_id", res.Series.ProviderID),
		slog.Int("occurrences", len(res.Appointments)),
	)
	return &ScheduleRecurringAppointmentResponse{
		Series:       toProtoSeries(res.Series),
		Appointments: toProtoAppointments(res.Appointments),
	}, nil
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*GetAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	appt, err := s.svc.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	return &GetAppointmentResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}

	appt, err := s.svc.CancelAppointment(ctx, id, req.Reason)
	if err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	log.Info("appointment cancelled", slog.String("appointment_id", id.String()), slog.String("provider_id", appt.ProviderID))
	return &CancelAppointmentResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) CancelRecurringSequence(ctx context.Context, req *CancelRecurringSequenceRequest) (*CancelRecurringSequenceResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelRecurringSequence"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	groupID, err := parseID(req.RecurrenceGroupID, "recurrence_group_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}

	n, err := s.svc.CancelRecurringSequence(ctx, groupID)
	if err != nil {
		return nil, s.statusError(log, err, slog.String("recurrence_group_id", groupID.String()))
	}
	log.Info("recurring sequence deleted", slog.String("recurrence_group_id", groupID.String()), slog.Int("deleted", n))
	return &CancelRecurringSequenceResponse{Deleted: int32(n)}, nil
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, req *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}

	if err := s.svc.DeleteAppointment(ctx, id); err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return &DeleteAppointmentResponse{}, nil
}

func (s *AppointmentsServer) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*UpdateStatusResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateStatus"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}

	appt, err := s.svc.UpdateStatus(ctx, id, domain.Status(strings.TrimSpace(req.Status)), req.Reason)
	if err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	log.Info("appointment status changed", slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return &UpdateStatusResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) ResizeAppointment(ctx context.Context, req *ResizeAppointmentRequest) (*ResizeAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ResizeAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}

	appt, err := s.svc.ResizeAppointment(ctx, id, domain.ResizeDirection(req.Direction), int(req.NewDurationMinutes))
	if err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	log.Info("appointment resized", slog.String("appointment_id", id.String()), slog.Int("duration_minutes", appt.DurationMinutes()))
	return &ResizeAppointmentResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) MoveAppointment(ctx context.Context, req *MoveAppointmentRequest) (*MoveAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "MoveAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.AppointmentID, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	if req.NewStartTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("appointment_id", id.String()))
		return nil, status.Error(codes.InvalidArgument, "new_start_time is required")
	}

	appt, err := s.svc.MoveAppointment(ctx, id, req.NewStartTime.AsTime())
	if err != nil {
		return nil, s.statusError(log, err, slog.String("appointment_id", id.String()))
	}
	log.Info("appointment moved", slog.String("appointment_id", id.String()), slog.Time("start_time", appt.StartTime))
	return &MoveAppointmentResponse{Appointment: toProtoAppointment(appt)}, nil
}

func (s *AppointmentsServer) ListProviderSchedule(ctx context.Context, req *ListProviderScheduleRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListProviderSchedule"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.WindowStart == nil || req.WindowEnd == nil {
		log.Warn("invalid request", slog.String("reason", "missing_window"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	appts, err := s.svc.ProviderSchedule(ctx, req.ProviderID, req.WindowStart.AsTime(), req.WindowEnd.AsTime())
	if err != nil {
		return nil, s.statusError(log, err, slog.String("provider_id", req.ProviderID))
	}

	log.Debug(
		"provider schedule listed",
		slog.String("provider_id", req.ProviderID),
		slog.Int("count", len(appts)),
		slog.Time("window_start", req.WindowStart.AsTime()),
		slog.Time("window_end", req.WindowEnd.AsTime()),
	)
	return &ListAppointmentsResponse{Appointments: toProtoAppointments(appts)}, nil
}

func (s *AppointmentsServer) ListClientAppointments(ctx context.Context, req *ListClientAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListClientAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.WindowStart == nil || req.WindowEnd == nil {
		log.Warn("invalid request", slog.String("reason", "missing_window"), slog.String("client_id", req.ClientID))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	appts, err := s.svc.ClientAppointments(ctx, req.ClientID, req.WindowStart.AsTime(), req.WindowEnd.AsTime())
	if err != nil {
		return nil, s.statusError(log, err, slog.String("client_id", req.ClientID))
	}

	log.Debug("client appointments listed", slog.String("client_id", req.ClientID), slog.Int("count", len(appts)))
	return &ListAppointmentsResponse{Appointments: toProtoAppointments(appts)}, nil
}

// statusError logs err at a level matching its kind and converts it to a
// gRPC status.
func (s *AppointmentsServer) statusError(log *slog.Logger, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *appointments.ValidationError
	var dErr *domain.DurationViolation
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &dErr):
		log.Info("duration constraint violated", args...)
		return status.Error(codes.InvalidArgument, dErr.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info("scheduling conflict", args...)
		return status.Error(codes.FailedPrecondition, "The provider already has an appointment during that time. Pick a different slot. ("+err.Error()+")")
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		log.Error("request failed", args...)
		return status.Error(codes.Internal, "internal error")
	}
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, field+" must be a UUID")
	}
	return id, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
