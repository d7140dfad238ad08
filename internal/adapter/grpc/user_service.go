package grpc

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"user-manager/internal/usecase/user"
	pkgerrors "user-manager/pkg/errors"
	"user-manager/pkg/logger"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "usermanager.v1.UserService"

// Full method names, as seen by interceptors.
const (
	ListUsersMethod  = "/" + ServiceName + "/ListUsers"
	CreateUserMethod = "/" + ServiceName + "/CreateUser"
	UpdateUserMethod = "/" + ServiceName + "/UpdateUser"
	GetUserMethod    = "/" + ServiceName + "/GetUser"
	DeleteUserMethod = "/" + ServiceName + "/DeleteUser"
)

// UserServiceHandler is the server API for the user service.
type UserServiceHandler interface {
	ListUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	CreateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	DeleteUser(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
}

// UserServiceServer implements the gRPC user service
type UserServiceServer struct {
	uc  user.Usecase
	log *zap.Logger
}

var _ UserServiceHandler = (*UserServiceServer)(nil)

// NewUserServiceServer creates a new gRPC user service server
func NewUserServiceServer(uc user.Usecase, log *zap.Logger) *UserServiceServer {
	return &UserServiceServer{uc: uc, log: log}
}

// Register adds the user service to s.
func Register(s grpc.ServiceRegistrar, srv UserServiceHandler) {
	s.RegisterService(&serviceDesc, srv)
}

// ListUsers handles gRPC ListUsers request
func (s *UserServiceServer) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	resp, err := s.uc.ListUsers(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	values := make([]*structpb.Value, len(resp.Users))
	for i, u := range resp.Users {
		values[i] = structpb.NewStructValue(toStruct(u))
	}
	return &structpb.ListValue{Values: values}, nil
}

// CreateUser handles gRPC CreateUser request
func (s *UserServiceServer) CreateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.CreateUser(ctx, user.CreateUserRequest{
		Username: stringField(req, "username"),
		Email:    stringField(req, "email"),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return toStruct(resp.User), nil
}

// UpdateUser handles gRPC UpdateUser request
func (s *UserServiceServer) UpdateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.uc.UpdateUser(ctx, user.UpdateUserRequest{
		ID:       id,
		Username: stringField(req, "username"),
		Email:    stringField(req, "email"),
	}); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"response": structpb.NewStringValue("Updated the User"),
	}}, nil
}

// GetUser handles gRPC GetUser request
func (s *UserServiceServer) GetUser(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	resp, err := s.uc.GetUser(ctx, user.GetUserRequest{ID: req.GetValue()})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return toStruct(resp.User), nil
}

// DeleteUser handles gRPC DeleteUser request
func (s *UserServiceServer) DeleteUser(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if _, err := s.uc.DeleteUser(ctx, user.DeleteUserRequest{ID: req.GetValue()}); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &emptypb.Empty{}, nil
}

// toStatus keeps typed errors and hides everything else behind Internal.
func (s *UserServiceServer) toStatus(ctx context.Context, err error) error {
	var st pkgerrors.GRPCStatuser
	if errors.As(err, &st) {
		return st.GRPCStatus().Err()
	}

	logger.WithContext(ctx, s.log).Error("unexpected usecase error", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func toStruct(u user.User) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":       structpb.NewNumberValue(float64(u.ID)),
		"username": structpb.NewStringValue(u.Username),
		"email":    structpb.NewStringValue(u.Email),
	}}
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// maxExactID is the largest integer a protobuf number value holds exactly.
const maxExactID = 1 << 53

func idField(s *structpb.Struct) (int64, error) {
	v, ok := s.GetFields()["id"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "id is required")
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || math.IsNaN(n.NumberValue) || math.Abs(n.NumberValue) > maxExactID ||
		n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Error(codes.InvalidArgument, "id must be an integer")
	}
	return int64(n.NumberValue), nil
}

func _UserService_ListUsers_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceHandler).ListUsers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListUsersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceHandler).ListUsers(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _UserService_CreateUser_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceHandler).CreateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CreateUserMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceHandler).CreateUser(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _UserService_UpdateUser_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceHandler).UpdateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UpdateUserMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceHandler).UpdateUser(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _UserService_GetUser_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceHandler).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetUserMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceHandler).GetUser(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _UserService_DeleteUser_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceHandler).DeleteUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DeleteUserMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceHandler).DeleteUser(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UserServiceHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListUsers", Handler: _UserService_ListUsers_Handler},
		{MethodName: "CreateUser", Handler: _UserService_CreateUser_Handler},
		{MethodName: "UpdateUser", Handler: _UserService_UpdateUser_Handler},
		{MethodName: "GetUser", Handler: _UserService_GetUser_Handler},
		{MethodName: "DeleteUser", Handler: _UserService_DeleteUser_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "usermanager/v1/user.proto",
}
