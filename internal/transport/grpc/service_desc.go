package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "carecrm.v1.AppointmentsService"

// AppointmentsServiceServer is the server API of carecrm.v1.AppointmentsService.
type AppointmentsServiceServer interface {
	ScheduleAppointment(context.Context, *ScheduleAppointmentRequest) (*ScheduleAppointmentResponse, error)
	ValidateAppointment(context.Context, *ValidateAppointmentRequest) (*ValidateAppointmentResponse, error)
	ScheduleRecurringAppointment(context.Context, *ScheduleRecurringAppointmentRequest) (*ScheduleRecurringAppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*GetAppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*CancelAppointmentResponse, error)
	CancelRecurringSequence(context.Context, *CancelRecurringSequenceRequest) (*CancelRecurringSequenceResponse, error)
	DeleteAppointment(context.Context, *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*UpdateStatusResponse, error)
	ResizeAppointment(context.Context, *ResizeAppointmentRequest) (*ResizeAppointmentResponse, error)
	MoveAppointment(context.Context, *MoveAppointmentRequest) (*MoveAppointmentResponse, error)
	ListProviderSchedule(context.Context, *ListProviderScheduleRequest) (*ListAppointmentsResponse, error)
	ListClientAppointments(context.Context, *ListClientAppointmentsRequest) (*ListAppointmentsResponse, error)
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[Req, Resp any](method string, call func(AppointmentsServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AppointmentsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AppointmentsServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ScheduleAppointment", AppointmentsServiceServer.ScheduleAppointment),
		unaryHandler("ValidateAppointment", AppointmentsServiceServer.ValidateAppointment),
		unaryHandler("ScheduleRecurringAppointment", AppointmentsServiceServer.ScheduleRecurringAppointment),
		unaryHandler("GetAppointment", AppointmentsServiceServer.GetAppointment),
		unaryHandler("CancelAppointment", AppointmentsServiceServer.CancelAppointment),
		unaryHandler("CancelRecurringSequence", AppointmentsServiceServer.CancelRecurringSequence),
		unaryHandler("DeleteAppointment", AppointmentsServiceServer.DeleteAppointment),
		unaryHandler("UpdateStatus", AppointmentsServiceServer.UpdateStatus),
		unaryHandler("ResizeAppointment", AppointmentsServiceServer.ResizeAppointment),
		unaryHandler("MoveAppointment", AppointmentsServiceServer.MoveAppointment),
		unaryHandler("ListProviderSchedule", AppointmentsServiceServer.ListProviderSchedule),
		unaryHandler("ListClientAppointments", AppointmentsServiceServer.ListClientAppointments),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carecrm/v1/appointments.proto",
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

// AppointmentsServiceClient calls carecrm.v1.AppointmentsService over a
// connection using the JSON codec.
type AppointmentsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAppointmentsServiceClient(cc grpc.ClientConnInterface) *AppointmentsServiceClient {
	return &AppointmentsServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *AppointmentsServiceClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec())}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AppointmentsServiceClient) ScheduleAppointment(ctx context.Context, in *ScheduleAppointmentRequest, opts ...grpc.CallOption) (*ScheduleAppointmentResponse, error) {
	return invoke[ScheduleAppointmentResponse](ctx, c, "ScheduleAppointment", in, opts)
}

func (c *AppointmentsServiceClient) ValidateAppointment(ctx context.Context, in *ValidateAppointmentRequest, opts ...grpc.CallOption) (*ValidateAppointmentResponse, error) {
	return invoke[ValidateAppointmentResponse](ctx, c, "ValidateAppointment", in, opts)
}

func (c *AppointmentsServiceClient) CancelAppointment(ctx context.Context, in *CancelAppointmentRequest, opts ...grpc.CallOption) (*CancelAppointmentResponse, error) {
	return invoke[CancelAppointmentResponse](ctx, c, "CancelAppointment", in, opts)
}

func (c *AppointmentsServiceClient) ListProviderSchedule(ctx context.Context, in *ListProviderScheduleRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c, "ListProviderSchedule", in, opts)
}

func (c *AppointmentsServiceClient) ScheduleRecurringAppointment(ctx context.Context, in *ScheduleRecurringAppointmentRequest, opts ...grpc.CallOption) (*ScheduleRecurringAppointmentResponse, error) {
	return invoke[ScheduleRecurringAppointmentResponse](ctx, c, "ScheduleRecurringAppointment", in, opts)
}

func (c *AppointmentsServiceClient) GetAppointment(ctx context.Context, in *GetAppointmentRequest, opts ...grpc.CallOption) (*GetAppointmentResponse, error) {
	return invoke[GetAppointmentResponse](ctx, c, "GetAppointment", in, opts)
}

func (c *AppointmentsServiceClient) CancelRecurringSequence(ctx context.Context, in *CancelRecurringSequenceRequest, opts ...grpc.CallOption) (*CancelRecurringSequenceResponse, error) {
	return invoke[CancelRecurringSequenceResponse](ctx, c, "CancelRecurringSequence", in, opts)
}

func (c *AppointmentsServiceClient) DeleteAppointment(ctx context.Context, in *DeleteAppointmentRequest, opts ...grpc.CallOption) (*DeleteAppointmentResponse, error) {
	return invoke[DeleteAppointmentResponse](ctx, c, "DeleteAppointment", in, opts)
}

func (c *AppointmentsServiceClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	return invoke[UpdateStatusResponse](ctx, c, "UpdateStatus", in, opts)
}

func (c *AppointmentsServiceClient) ResizeAppointment(ctx context.Context, in *ResizeAppointmentRequest, opts ...grpc.CallOption) (*ResizeAppointmentResponse, error) {
	return invoke[ResizeAppointmentResponse](ctx, c, "ResizeAppointment", in, opts)
}

func (c *AppointmentsServiceClient) MoveAppointment(ctx context.Context, in *MoveAppointmentRequest, opts ...grpc.CallOption) (*MoveAppointmentResponse, error) {
	return invoke[MoveAppointmentResponse](ctx, c, "MoveAppointment", in, opts)
}

func (c *AppointmentsServiceClient) ListClientAppointments(ctx context.Context, in *ListClientAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c, "ListClientAppointments", in, opts)
}
