package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/catalog"
	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

// ValidationError carries every problem found with a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func validationError(problems ...string) error {
	return &ValidationError{Problems: problems}
}

type Service struct {
	repo    store.AppointmentRepository
	catalog *catalog.Catalog
	resizer *domain.Resizer
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Service)

// WithCatalog fills service names, colors and duration bounds from c and
// rejects unknown service ids when c is not empty.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultLocation sets the zone recurring series are expanded in when the
// request names none.
func WithDefaultLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
		loc:  time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resizer = domain.NewResizer(s.now)
	return s
}

// AppointmentInput is a booking request. Zero times count as missing.
type AppointmentInput struct {
	ProviderID         string
	ClientID           string
	ClientName         string
	ServiceID          string
	ServiceName        string
	StartTime          time.Time
	EndTime            time.Time
	Status             domain.Status
	Notes              string
	Color              string
	IsBlocked          bool
	MinDurationMinutes *int
	MaxDurationMinutes *int
	IdempotencyKey     string
}

// ValidateAppointment returns every problem with in. When the provider and
// both times are usable it also asks the repository whether the slot is
// taken, ignoring excludeID. The error is non-nil only when the repository
// could not be consulted.
func (s *Service) ValidateAppointment(ctx context.Context, in AppointmentInput, excludeID uuid.UUID) ([]string, error) {
	in = s.withDefaultEnd(in)
	problems, conflict, err := s.validate(ctx, in, excludeID)
	if err != nil {
		return nil, err
	}
	if conflict != "" {
		problems = append(problems, conflict)
	}
	return problems, nil
}

func (s *Service) validate(ctx context.Context, in AppointmentInput, excludeID uuid.UUID) (problems []string, conflict string, err error) {
	problems = fieldProblems(in, s.catalog)

	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" || in.StartTime.IsZero() || in.EndTime.IsZero() || !in.EndTime.After(in.StartTime) {
		return problems, "", nil
	}
	taken, err := s.repo.CheckConflicts(ctx, providerID, in.StartTime.UTC(), in.EndTime.UTC(), excludeID)
	if err != nil {
		return nil, "", fmt.Errorf("check conflicts: %w", err)
	}
	if taken {
		conflict = "provider already has an appointment between " +
			in.StartTime.UTC().Format(time.RFC3339) + " and " + in.EndTime.UTC().Format(time.RFC3339)
	}
	return problems, conflict, nil
}

func fieldProblems(in AppointmentInput, c *catalog.Catalog) []string {
	var out []string
	if strings.TrimSpace(in.ProviderID) == "" {
		out = append(out, "provider_id is required")
	}
	if !in.IsBlocked {
		if strings.TrimSpace(in.ClientID) == "" {
			out = append(out, "client_id is required")
		}
		if strings.TrimSpace(in.ServiceID) == "" {
			out = append(out, "service_id is required")
		}
	}
	if id := strings.TrimSpace(in.ServiceID); id != "" && c.Len() > 0 {
		if _, ok := c.Lookup(id); !ok {
			out = append(out, fmt.Sprintf("unknown service_id %q", id))
		}
	}
	if in.StartTime.IsZero() {
		out = append(out, "start_time is required")
	}
	if in.EndTime.IsZero() {
		out = append(out, "end_time is required")
	}
	if !in.StartTime.IsZero() && !in.EndTime.IsZero() && !in.EndTime.After(in.StartTime) {
		out = append(out, domain.ErrInvalidDuration.Error())
	}
	if in.Status != "" && !in.Status.Valid() {
		out = append(out, fmt.Sprintf("unknown status %q", in.Status))
	}
	if in.Status.Terminal() {
		out = append(out, fmt.Sprintf("cannot book an appointment as %s", in.Status))
	}
	if in.MinDurationMinutes != nil && *in.MinDurationMinutes < 1 {
		out = append(out, "min_duration_minutes must be positive")
	}
	if in.MaxDurationMinutes != nil && *in.MaxDurationMinutes < 1 {
		out = append(out, "max_duration_minutes must be positive")
	}
	if in.MinDurationMinutes != nil && in.MaxDurationMinutes != nil && *in.MinDurationMinutes > *in.MaxDurationMinutes {
		out = append(out, "min_duration_minutes exceeds max_duration_minutes")
	}
	if len(strings.TrimSpace(in.IdempotencyKey)) > maxIdempotencyKeyLen {
		out = append(out, "idempotency_key too long")
	}
	return out
}

// withDefaultEnd fills a missing end time from the catalog service's default
// duration.
func (s *Service) withDefaultEnd(in AppointmentInput) AppointmentInput {
	if !in.EndTime.IsZero() || in.StartTime.IsZero() {
		return in
	}
	svc, ok := s.catalog.Lookup(strings.TrimSpace(in.ServiceID))
	if !ok || svc.DefaultDurationMinutes <= 0 {
		return in
	}
	in.EndTime = in.StartTime.Add(time.Duration(svc.DefaultDurationMinutes) * time.Minute)
	return in
}

// ScheduleAppointment validates and books a single appointment. Field
// problems fail with *ValidationError listing all of them; a slot that is
// only taken fails with *domain.ConflictError naming what it overlaps.
func (s *Service) ScheduleAppointment(ctx context.Context, in AppointmentInput) (domain.Appointment, error) {
	in = s.withDefaultEnd(in)

	// A retried request must not conflict with the booking it already made.
	var keyID uuid.UUID
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		keyID = idempotentID("schedule_appointment", strings.TrimSpace(in.ProviderID), key)
	}
	problems, conflict, err := s.validate(ctx, in, keyID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if len(problems) > 0 {
		if conflict != "" {
			problems = append(problems, conflict)
		}
		return domain.Appointment{}, validationError(problems...)
	}

	appt := s.buildAppointment(in)
	if conflict != "" {
		return domain.Appointment{}, s.conflictError(ctx, appt)
	}

	if keyID != uuid.Nil {
		appt.ID = keyID
	}
	return s.repo.Create(ctx, appt)
}

func idempotentID(op, providerID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("carecrm:"+op+":"+providerID+":"+key))
}

func (s *Service) buildAppointment(in AppointmentInput) domain.Appointment {
	status := in.Status
	if status == "" {
		status = domain.StatusScheduled
	}
	appt := domain.Appointment{
		ProviderID:         strings.TrimSpace(in.ProviderID),
		ClientID:           strings.TrimSpace(in.ClientID),
		ClientName:         strings.TrimSpace(in.ClientName),
		ServiceID:          strings.TrimSpace(in.ServiceID),
		ServiceName:        strings.TrimSpace(in.ServiceName),
		StartTime:          in.StartTime.UTC(),
		EndTime:            in.EndTime.UTC(),
		Status:             status,
		Notes:              in.Notes,
		Color:              in.Color,
		IsBlocked:          in.IsBlocked,
		IsDraggable:        !in.IsBlocked,
		IsResizable:        !in.IsBlocked,
		MinDurationMinutes: in.MinDurationMinutes,
		MaxDurationMinutes: in.MaxDurationMinutes,
	}

	if svc, ok := s.catalog.Lookup(appt.ServiceID); ok {
		if appt.ServiceName == "" {
			appt.ServiceName = svc.Name
		}
		if appt.Color == "" {
			appt.Color = svc.Color
		}
		if appt.MinDurationMinutes == nil && svc.MinDurationMinutes > 0 {
			v := svc.MinDurationMinutes
			appt.MinDurationMinutes = &v
		}
		if appt.MaxDurationMinutes == nil && svc.MaxDurationMinutes > 0 {
			v := svc.MaxDurationMinutes
			appt.MaxDurationMinutes = &v
		}
	}
	return appt
}

// conflictError loads what appt overlaps so callers can offer alternatives.
func (s *Service) conflictError(ctx context.Context, appt domain.Appointment) error {
	existing, err := s.repo.FindByProvider(ctx, appt.ProviderID, appt.StartTime, appt.EndTime)
	if err != nil {
		return fmt.Errorf("load conflicts: %w", err)
	}
	res := domain.CheckConflicts(appt.ProviderID, appt.StartTime, appt.EndTime, existing, appt.ID)
	return &domain.ConflictError{Conflicts: res.Conflicts}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.FindByID(ctx, id)
}

// CancelAppointment marks the appointment cancelled and records why.
// Cancelling an already cancelled appointment returns it unchanged.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == domain.StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(domain.StatusCancelled) {
		return domain.Appointment{}, validationError(fmt.Sprintf("cannot cancel a %s appointment", appt.Status))
	}
	s.markCancelled(&appt, reason)
	return s.repo.Update(ctx, appt)
}

func (s *Service) markCancelled(appt *domain.Appointment, reason string) {
	now := s.now().UTC()
	appt.Status = domain.StatusCancelled
	appt.CancellationReason = strings.TrimSpace(reason)
	appt.CancelledAt = &now
}

// DeleteAppointment removes a single appointment outright.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.repo.Delete(ctx, id)
}

// UpdateStatus moves an appointment through the status lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, reason string) (domain.Appointment, error) {
	if !status.Valid() {
		return domain.Appointment{}, validationError(fmt.Sprintf("unknown status %q", status))
	}
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == status {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(status) {
		return domain.Appointment{}, validationError(fmt.Sprintf("cannot change status from %s to %s", appt.Status, status))
	}
	if status == domain.StatusCancelled {
		s.markCancelled(&appt, reason)
	} else {
		appt.Status = status
	}
	return s.repo.Update(ctx, appt)
}

// ProviderSchedule lists the provider's appointments overlapping the window.
func (s *Service) ProviderSchedule(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if err := checkWindow("provider_id", providerID, windowStart, windowEnd); err != nil {
		return nil, err
	}
	return s.repo.FindByProvider(ctx, providerID, windowStart.UTC(), windowEnd.UTC())
}

// ClientAppointments lists the client's appointments overlapping the window.
func (s *Service) ClientAppointments(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if err := checkWindow("client_id", clientID, windowStart, windowEnd); err != nil {
		return nil, err
	}
	return s.repo.FindByClient(ctx, clientID, windowStart.UTC(), windowEnd.UTC())
}

func checkWindow(field, id string, windowStart, windowEnd time.Time) error {
	var problems []string
	if strings.TrimSpace(id) == "" {
		problems = append(problems, field+" is required")
	}
	if windowStart.IsZero() || windowEnd.IsZero() {
		problems = append(problems, "window_start and window_end are required")
	} else if !windowEnd.After(windowStart) {
		problems = append(problems, "window_end must be after window_start")
	}
	if len(problems) > 0 {
		return validationError(problems...)
	}
	return nil
}

// MarkNoShows flags scheduled appointments that ended more than grace ago.
func (s *Service) MarkNoShows(ctx context.Context, grace time.Duration) (int, error) {
	if grace < 0 {
		return 0, errors.New("no-show grace must not be negative")
	}
	return s.repo.MarkNoShows(ctx, s.now().UTC().Add(-grace))
}
