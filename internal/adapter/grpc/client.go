package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// UserServiceClient is a thin client for the user service.
type UserServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewUserServiceClient creates a client on top of cc.
func NewUserServiceClient(cc grpc.ClientConnInterface) *UserServiceClient {
	return &UserServiceClient{cc: cc}
}

func (c *UserServiceClient) ListUsers(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListUsersMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *UserServiceClient) CreateUser(ctx context.Context, username, email string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"username": structpb.NewStringValue(username),
		"email":    structpb.NewStringValue(email),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateUserMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *UserServiceClient) UpdateUser(ctx context.Context, id int64, username, email string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":       structpb.NewNumberValue(float64(id)),
		"username": structpb.NewStringValue(username),
		"email":    structpb.NewStringValue(email),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, UpdateUserMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *UserServiceClient) GetUser(ctx context.Context, id int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetUserMethod, wrapperspb.Int64(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *UserServiceClient) DeleteUser(ctx context.Context, id int64, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, DeleteUserMethod, wrapperspb.Int64(id), new(emptypb.Empty), opts...)
}
