package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/timestamppb"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/service/appointments"
	"carecrm/backend/internal/store"
)

type fakeAppointmentsService struct {
	validateFn          func(ctx context.Context, in appointments.AppointmentInput, excludeID uuid.UUID) ([]string, error)
	scheduleFn          func(ctx context.Context, in appointments.AppointmentInput) (domain.Appointment, error)
	scheduleRecurringFn func(ctx context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error)
	getFn               func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	cancelFn            func(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	cancelSequenceFn    func(ctx context.Context, groupID uuid.UUID) (int, error)
	deleteFn            func(ctx context.Context, id uuid.UUID) error
	updateStatusFn      func(ctx context.Context, id uuid.UUID, st domain.Status, reason string) (domain.Appointment, error)
	resizeFn            func(ctx context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error)
	moveFn              func(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error)
	providerScheduleFn  func(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	clientAppointmentFn func(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

func (f *fakeAppointmentsService) ValidateAppointment(ctx context.Context, in appointments.AppointmentInput, excludeID uuid.UUID) ([]string, error) {
	if f.validateFn == nil {
		panic("ValidateAppointment not configured")
	}
	return f.validateFn(ctx, in, excludeID)
}

func (f *fakeAppointmentsService) ScheduleAppointment(ctx context.Context, in appointments.AppointmentInput) (domain.Appointment, error) {
	if f.scheduleFn == nil {
		panic("ScheduleAppointment not configured")
	}
	return f.scheduleFn(ctx, in)
}

func (f *fakeAppointmentsService) ScheduleRecurringAppointment(ctx context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error) {
	if f.scheduleRecurringFn == nil {
		panic("ScheduleRecurringAppointment not configured")
	}
	return f.scheduleRecurringFn(ctx, in)
}

func (f *fakeAppointmentsService) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentsService) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("CancelAppointment not configured")
	}
	return f.cancelFn(ctx, id, reason)
}

func (f *fakeAppointmentsService) CancelRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error) {
	if f.cancelSequenceFn == nil {
		panic("CancelRecurringSequence not configured")
	}
	return f.cancelSequenceFn(ctx, groupID)
}

func (f *fakeAppointmentsService) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("DeleteAppointment not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeAppointmentsService) UpdateStatus(ctx context.Context, id uuid.UUID, st domain.Status, reason string) (domain.Appointment, error) {
	if f.updateStatusFn == nil {
		panic("UpdateStatus not configured")
	}
	return f.updateStatusFn(ctx, id, st, reason)
}

func (f *fakeAppointmentsService) ResizeAppointment(ctx context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error) {
	if f.resizeFn == nil {
		panic("ResizeAppointment not configured")
	}
	return f.resizeFn(ctx, id, direction, minutes)
}

func (f *fakeAppointmentsService) MoveAppointment(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error) {
	if f.moveFn == nil {
		panic("MoveAppointment not configured")
	}
	return f.moveFn(ctx, id, newStart)
}

func (f *fakeAppointmentsService) ProviderSchedule(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if f.providerScheduleFn == nil {
		panic("ProviderSchedule not configured")
	}
	return f.providerScheduleFn(ctx, providerID, windowStart, windowEnd)
}

func (f *fakeAppointmentsService) ClientAppointments(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if f.clientAppointmentFn == nil {
		panic("ClientAppointments not configured")
	}
	return f.clientAppointmentFn(ctx, clientID, windowStart, windowEnd)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func bookingInput() *AppointmentInput {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	return &AppointmentInput{
		ProviderID: "p1",
		ClientID:   "c1",
		ServiceID:  "intake",
		StartTime:  timestamppb.New(start),
		EndTime:    timestamppb.New(start.Add(time.Hour)),
	}
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestScheduleAppointment_RejectsMissingAppointment(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.ScheduleAppointment(context.Background(), &ScheduleAppointmentRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestScheduleAppointment_PassesInputAndIdempotencyKey(t *testing.T) {
	var got appointments.AppointmentInput
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		scheduleFn: func(_ context.Context, in appointments.AppointmentInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{
				ID:         uuid.MustParse("00000000-0000-0000-0000-000000000010"),
				ProviderID: in.ProviderID,
				StartTime:  in.StartTime,
				EndTime:    in.EndTime,
				Status:     domain.StatusScheduled,
			}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.ScheduleAppointment(ctx, &ScheduleAppointmentRequest{Appointment: bookingInput()})
	if err != nil {
		t.Fatalf("ScheduleAppointment error: %v", err)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", got.IdempotencyKey, "k1")
	}
	if got.ProviderID != "p1" || got.ServiceID != "intake" {
		t.Fatalf("input = %+v", got)
	}
	if resp.Appointment.Status != "scheduled" || resp.Appointment.MaxDurationMinutes != domain.DefaultMaxDurationMinutes {
		t.Fatalf("appointment = %+v", resp.Appointment)
	}
}

func TestScheduleAppointment_MapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "validation", err: &appointments.ValidationError{Problems: []string{"client_id is required"}}, want: codes.InvalidArgument},
		{name: "conflict", err: &domain.ConflictError{}, want: codes.FailedPrecondition},
		{name: "series conflict", err: &domain.SeriesConflictError{}, want: codes.FailedPrecondition},
		{name: "store conflict", err: store.ErrConflict, want: codes.FailedPrecondition},
		{name: "idempotency", err: store.ErrIdempotencyConflict, want: codes.FailedPrecondition},
		{name: "duration", err: &domain.DurationViolation{RequestedMinutes: 5, MinMinutes: 15, MaxMinutes: 60}, want: codes.InvalidArgument},
		{name: "not found", err: store.ErrNotFound, want: codes.NotFound},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewAppointmentsServer(&fakeAppointmentsService{
				scheduleFn: func(context.Context, appointments.AppointmentInput) (domain.Appointment, error) {
					return domain.Appointment{}, tc.err
				},
			}, quietLogger())

			_, err := srv.ScheduleAppointment(context.Background(), &ScheduleAppointmentRequest{Appointment: bookingInput()})
			if status.Code(err) != tc.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.want)
			}
		})
	}
}

func TestValidateAppointment_ReturnsProblems(t *testing.T) {
	exclude := uuid.MustParse("00000000-0000-0000-0000-000000000011")
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		validateFn: func(_ context.Context, _ appointments.AppointmentInput, excludeID uuid.UUID) ([]string, error) {
			if excludeID != exclude {
				t.Fatalf("excludeID = %s, want %s", excludeID, exclude)
			}
			return []string{"client_id is required"}, nil
		},
	}, quietLogger())

	resp, err := srv.ValidateAppointment(context.Background(), &ValidateAppointmentRequest{
		Appointment:          bookingInput(),
		ExcludeAppointmentID: exclude.String(),
	})
	if err != nil {
		t.Fatalf("ValidateAppointment error: %v", err)
	}
	if resp.Valid || len(resp.Problems) != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	_, err = srv.ValidateAppointment(context.Background(), &ValidateAppointmentRequest{
		Appointment:          bookingInput(),
		ExcludeAppointmentID: "nope",
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestScheduleRecurringAppointment_ConvertsPattern(t *testing.T) {
	var got appointments.RecurringInput
	group := uuid.MustParse("00000000-0000-0000-0000-000000000012")
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		scheduleRecurringFn: func(_ context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error) {
			got = in
			return appointments.RecurringResult{
				Series: domain.RecurrenceSeries{ID: group, Frequency: domain.FrequencyWeekly, Interval: 1, DaysOfWeek: []int{1, 4}, Occurrences: 4},
			}, nil
		},
	}, quietLogger())

	resp, err := srv.ScheduleRecurringAppointment(context.Background(), &ScheduleRecurringAppointmentRequest{
		Appointment: bookingInput(),
		Pattern:     &RecurrencePattern{Frequency: "weekly", Interval: 1, Occurrences: 4, DaysOfWeek: []int32{1, 4}},
		TimeZone:    "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("ScheduleRecurringAppointment error: %v", err)
	}
	if got.TimeZone != "Europe/Berlin" || got.Pattern.Occurrences != 4 {
		t.Fatalf("input = %+v", got)
	}
	if len(got.Pattern.DaysOfWeek) != 2 || got.Pattern.DaysOfWeek[1] != time.Thursday {
		t.Fatalf("days = %v, want [Monday Thursday]", got.Pattern.DaysOfWeek)
	}
	if resp.Series.ID != group.String() || len(resp.Series.Pattern.DaysOfWeek) != 2 {
		t.Fatalf("series = %+v", resp.Series)
	}

	_, err = srv.ScheduleRecurringAppointment(context.Background(), &ScheduleRecurringAppointmentRequest{Appointment: bookingInput()})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteAppointment_RejectsInvalidUUID(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.DeleteAppointment(context.Background(), &DeleteAppointmentRequest{AppointmentID: "not-a-uuid"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCancelRecurringSequence_MapsNotFound(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		cancelSequenceFn: func(context.Context, uuid.UUID) (int, error) { return 0, store.ErrNotFound },
	}, quietLogger())

	_, err := srv.CancelRecurringSequence(context.Background(), &CancelRecurringSequenceRequest{
		RecurrenceGroupID: "00000000-0000-0000-0000-000000000020",
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
}

func TestResizeAppointment_PassesGesture(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000013")
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		resizeFn: func(_ context.Context, gotID uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error) {
			if gotID != id || direction != domain.ResizeTop || minutes != 45 {
				t.Fatalf("resize(%s, %s, %d)", gotID, direction, minutes)
			}
			return domain.Appointment{ID: id}, nil
		},
	}, quietLogger())

	if _, err := srv.ResizeAppointment(context.Background(), &ResizeAppointmentRequest{
		AppointmentID:      id.String(),
		Direction:          "top",
		NewDurationMinutes: 45,
	}); err != nil {
		t.Fatalf("ResizeAppointment error: %v", err)
	}
}

func TestListProviderSchedule_RequiresWindow(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.ListProviderSchedule(context.Background(), &ListProviderScheduleRequest{ProviderID: "p1"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestAppointmentsService_OverConnection(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ForceServerCodec(Codec()))
	RegisterAppointmentsServiceServer(server, NewAppointmentsServer(&fakeAppointmentsService{
		scheduleFn: func(ctx context.Context, in appointments.AppointmentInput) (domain.Appointment, error) {
			if in.IdempotencyKey != "k2" {
				return domain.Appointment{}, errors.New("missing idempotency key")
			}
			return domain.Appointment{
				ID:         uuid.MustParse("00000000-0000-0000-0000-000000000014"),
				ProviderID: in.ProviderID,
				StartTime:  in.StartTime,
				EndTime:    in.EndTime,
				Status:     domain.StatusScheduled,
			}, nil
		},
		providerScheduleFn: func(context.Context, string, time.Time, time.Time) ([]domain.Appointment, error) {
			return nil, &appointments.ValidationError{Problems: []string{"window_end must be after window_start"}}
		},
		validateFn: func(context.Context, appointments.AppointmentInput, uuid.UUID) ([]string, error) {
			return nil, nil
		},
		cancelFn: func(context.Context, uuid.UUID, string) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}, quietLogger()))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := NewAppointmentsServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in := bookingInput()
	resp, err := client.ScheduleAppointment(metadata.AppendToOutgoingContext(ctx, "idempotency-key", "k2"), &ScheduleAppointmentRequest{Appointment: in})
	if err != nil {
		t.Fatalf("ScheduleAppointment error: %v", err)
	}
	if !resp.Appointment.StartTime.AsTime().Equal(in.StartTime.AsTime()) {
		t.Fatalf("start = %v, want %v", resp.Appointment.StartTime.AsTime(), in.StartTime.AsTime())
	}

	_, err = client.ListProviderSchedule(ctx, &ListProviderScheduleRequest{
		ProviderID:  "p1",
		WindowStart: in.StartTime,
		WindowEnd:   in.StartTime,
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}

	v, err := client.ValidateAppointment(ctx, &ValidateAppointmentRequest{Appointment: in})
	if err != nil || !v.Valid {
		t.Fatalf("ValidateAppointment = %+v, %v; want valid", v, err)
	}

	_, err = client.CancelAppointment(ctx, &CancelAppointmentRequest{AppointmentID: uuid.NewString()})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
}

func dialAppointmentsService(t *testing.T, svc appointmentsService) *AppointmentsServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ForceServerCodec(Codec()))
	RegisterAppointmentsServiceServer(server, NewAppointmentsServer(svc, quietLogger()))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewAppointmentsServiceClient(conn)
}

func TestAppointmentsServiceClient_LifecycleRPCs(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000021")
	groupID := uuid.MustParse("00000000-0000-0000-0000-000000000022")
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	stored := domain.Appointment{
		ID:         apptID,
		ProviderID: "p1",
		ClientID:   "c1",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     domain.StatusScheduled,
	}

	var deleted uuid.UUID
	client := dialAppointmentsService(t, &fakeAppointmentsService{
		scheduleRecurringFn: func(_ context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error) {
			if in.Appointment.IdempotencyKey != "series-1" {
				return appointments.RecurringResult{}, errors.New("missing idempotency key")
			}
			if in.Pattern.Frequency != domain.FrequencyWeekly || len(in.Pattern.DaysOfWeek) != 2 {
				return appointments.RecurringResult{}, &appointments.ValidationError{Problems: []string{"unexpected pattern"}}
			}
			series := domain.RecurrenceSeries{ID: groupID, ProviderID: in.Appointment.ProviderID, Frequency: domain.FrequencyWeekly, Interval: 1, TimeZone: "UTC"}
			first, second := stored, stored
			second.ID = uuid.MustParse("00000000-0000-0000-0000-000000000023")
			second.StartTime = start.AddDate(0, 0, 2)
			second.EndTime = second.StartTime.Add(time.Hour)
			return appointments.RecurringResult{Series: series, Appointments: []domain.Appointment{first, second}}, nil
		},
		getFn: func(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
			if id != apptID {
				return domain.Appointment{}, store.ErrNotFound
			}
			return stored, nil
		},
		cancelSequenceFn: func(_ context.Context, id uuid.UUID) (int, error) {
			if id != groupID {
				return 0, store.ErrNotFound
			}
			return 4, nil
		},
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
		updateStatusFn: func(_ context.Context, id uuid.UUID, st domain.Status, reason string) (domain.Appointment, error) {
			out := stored
			out.Status = st
			out.CancellationReason = reason
			return out, nil
		},
		resizeFn: func(_ context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error) {
			if direction != domain.ResizeBottom {
				return domain.Appointment{}, &appointments.ValidationError{Problems: []string{"unexpected direction"}}
			}
			out := stored
			out.EndTime = out.StartTime.Add(time.Duration(minutes) * time.Minute)
			return out, nil
		},
		moveFn: func(_ context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error) {
			out := stored
			out.StartTime = newStart
			out.EndTime = newStart.Add(time.Hour)
			return out, nil
		},
		clientAppointmentFn: func(_ context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
			if clientID != "c1" || !windowEnd.After(windowStart) {
				return nil, nil
			}
			return []domain.Appointment{stored}, nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := client.ScheduleRecurringAppointment(
		metadata.AppendToOutgoingContext(ctx, "idempotency-key", "series-1"),
		&ScheduleRecurringAppointmentRequest{
			Appointment: bookingInput(),
			Pattern:     &RecurrencePattern{Frequency: "weekly", DaysOfWeek: []int32{1, 3}, Occurrences: 2},
		},
	)
	if err != nil {
		t.Fatalf("ScheduleRecurringAppointment error: %v", err)
	}
	if rec.Series.ID != groupID.String() || len(rec.Appointments) != 2 {
		t.Fatalf("series = %s with %d appointments, want %s with 2", rec.Series.ID, len(rec.Appointments), groupID)
	}

	got, err := client.GetAppointment(ctx, &GetAppointmentRequest{AppointmentID: apptID.String()})
	if err != nil {
		t.Fatalf("GetAppointment error: %v", err)
	}
	if got.Appointment.ID != apptID.String() {
		t.Fatalf("GetAppointment id = %s, want %s", got.Appointment.ID, apptID)
	}
	_, err = client.GetAppointment(ctx, &GetAppointmentRequest{AppointmentID: uuid.NewString()})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}

	seq, err := client.CancelRecurringSequence(ctx, &CancelRecurringSequenceRequest{RecurrenceGroupID: groupID.String()})
	if err != nil {
		t.Fatalf("CancelRecurringSequence error: %v", err)
	}
	if seq.Deleted != 4 {
		t.Fatalf("Deleted = %d, want 4", seq.Deleted)
	}

	if _, err := client.DeleteAppointment(ctx, &DeleteAppointmentRequest{AppointmentID: apptID.String()}); err != nil {
		t.Fatalf("DeleteAppointment error: %v", err)
	}
	if deleted != apptID {
		t.Fatalf("deleted = %s, want %s", deleted, apptID)
	}

	st, err := client.UpdateStatus(ctx, &UpdateStatusRequest{AppointmentID: apptID.String(), Status: "confirmed"})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if st.Appointment.Status != "confirmed" {
		t.Fatalf("status = %q, want confirmed", st.Appointment.Status)
	}

	rs, err := client.ResizeAppointment(ctx, &ResizeAppointmentRequest{AppointmentID: apptID.String(), Direction: "bottom", NewDurationMinutes: 90})
	if err != nil {
		t.Fatalf("ResizeAppointment error: %v", err)
	}
	if want := start.Add(90 * time.Minute); !rs.Appointment.EndTime.AsTime().Equal(want) {
		t.Fatalf("end = %v, want %v", rs.Appointment.EndTime.AsTime(), want)
	}

	newStart := start.Add(48 * time.Hour)
	mv, err := client.MoveAppointment(ctx, &MoveAppointmentRequest{AppointmentID: apptID.String(), NewStartTime: timestamppb.New(newStart)})
	if err != nil {
		t.Fatalf("MoveAppointment error: %v", err)
	}
	if !mv.Appointment.StartTime.AsTime().Equal(newStart) {
		t.Fatalf("start = %v, want %v", mv.Appointment.StartTime.AsTime(), newStart)
	}

	list, err := client.ListClientAppointments(ctx, &ListClientAppointmentsRequest{
		ClientID:    "c1",
		WindowStart: timestamppb.New(start.AddDate(0, 0, -1)),
		WindowEnd:   timestamppb.New(start.AddDate(0, 0, 7)),
	})
	if err != nil {
		t.Fatalf("ListClientAppointments error: %v", err)
	}
	if len(list.Appointments) != 1 || list.Appointments[0].ID != apptID.String() {
		t.Fatalf("ListClientAppointments = %+v, want one appointment %s", list.Appointments, apptID)
	}
}
