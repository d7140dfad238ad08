package grpc

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"user-manager/internal/adapter/db/memory"
	"user-manager/internal/usecase/user"
	pkgerrors "user-manager/pkg/errors"
	"user-manager/pkg/logger"
)

func startServer(t *testing.T, uc user.Usecase, opts ...gogrpc.ServerOption) *UserServiceClient {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := gogrpc.NewServer(opts...)
	Register(server, NewUserServiceServer(uc, zaptest.NewLogger(t)))

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := gogrpc.NewClient(listener.Addr().String(), gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewUserServiceClient(conn)
}

func newMemoryService(t *testing.T) user.Usecase {
	log := zaptest.NewLogger(t)
	return user.New(memory.NewUserRepo(log), log)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func userFields(s *structpb.Struct) map[string]any {
	return s.AsMap()
}

func TestUserService_RoundTrip(t *testing.T) {
	client := startServer(t, newMemoryService(t))
	ctx := testContext(t)

	created, err := client.CreateUser(ctx, "John123", "john123@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1), "username": "John123", "email": "john123@gmail.com"}, userFields(created))

	_, err = client.CreateUser(ctx, "Jane123", "jane@gmail.com")
	require.NoError(t, err)

	list, err := client.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": float64(1), "username": "John123", "email": "john123@gmail.com"},
		map[string]any{"id": float64(2), "username": "Jane123", "email": "jane@gmail.com"},
	}, list.AsSlice())

	updated, err := client.UpdateUser(ctx, 1, "Johnny", "johnny@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "Updated the User", updated.GetFields()["response"].GetStringValue())

	got, err := client.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Johnny", got.GetFields()["username"].GetStringValue())
	assert.Equal(t, "johnny@gmail.com", got.GetFields()["email"].GetStringValue())

	require.NoError(t, client.DeleteUser(ctx, 1))

	list, err = client.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
	assert.Equal(t, float64(2), list.GetValues()[0].GetStructValue().GetFields()["id"].GetNumberValue())
}

func TestUserService_EmptyList(t *testing.T) {
	client := startServer(t, newMemoryService(t))

	list, err := client.ListUsers(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, list.GetValues())
}

func TestUserService_NotFound(t *testing.T) {
	client := startServer(t, newMemoryService(t))
	ctx := testContext(t)

	_, err := client.GetUser(ctx, 42)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, "user not found: id=42", status.Convert(err).Message())

	_, err = client.UpdateUser(ctx, 42, "a", "b")
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = client.DeleteUser(ctx, 42)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestUserService_InvalidArgument(t *testing.T) {
	client := startServer(t, newMemoryService(t))
	ctx := testContext(t)

	_, err := client.GetUser(ctx, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = client.DeleteUser(ctx, -1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.CreateUser(ctx, strings.Repeat("a", 256), "x@y")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	in := &structpb.Struct{Fields: map[string]*structpb.Value{"id": structpb.NewStringValue("one")}}
	err = client.cc.Invoke(ctx, UpdateUserMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = client.cc.Invoke(ctx, UpdateUserMethod, &structpb.Struct{}, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

// failingUsecase returns a fixed error from every call.
type failingUsecase struct {
	user.Usecase
	err error
}

func (f failingUsecase) ListUsers(context.Context) (*user.ListUsersResponse, error) {
	return nil, f.err
}

func TestUserService_InternalErrorsAreHidden(t *testing.T) {
	t.Run("untyped", func(t *testing.T) {
		client := startServer(t, failingUsecase{err: errors.New("connection refused")})

		_, err := client.ListUsers(testContext(t))
		assert.Equal(t, codes.Internal, status.Code(err))
		assert.NotContains(t, status.Convert(err).Message(), "connection refused")
	})

	t.Run("typed", func(t *testing.T) {
		client := startServer(t, failingUsecase{err: pkgerrors.NewInternalError("failed to list users", errors.New("connection refused"))})

		_, err := client.ListUsers(testContext(t))
		assert.Equal(t, codes.Internal, status.Code(err))
		assert.Equal(t, "failed to list users", status.Convert(err).Message())
	})
}

func TestUserService_InterceptorSeesFullMethod(t *testing.T) {
	var (
		mu         sync.Mutex
		methods    []string
		requestIDs []string
	)
	record := func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		mu.Lock()
		methods = append(methods, info.FullMethod)
		requestIDs = append(requestIDs, logger.GetRequestID(ctx))
		mu.Unlock()
		return handler(ctx, req)
	}

	client := startServer(t, newMemoryService(t),
		gogrpc.ChainUnaryInterceptor(logger.RequestIDInterceptor(), record))
	ctx := metadata.AppendToOutgoingContext(testContext(t), "x-request-id", "req-42")

	_, err := client.CreateUser(ctx, "John123", "john123@gmail.com")
	require.NoError(t, err)
	_, err = client.GetUser(ctx, 1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{CreateUserMethod, GetUserMethod}, methods)
	assert.Equal(t, []string{"req-42", "req-42"}, requestIDs)
}

func TestIDField(t *testing.T) {
	tests := []struct {
		name    string
		value   *structpb.Value
		want    int64
		wantErr bool
	}{
		{name: "integer", value: structpb.NewNumberValue(7), want: 7},
		{name: "largest exact", value: structpb.NewNumberValue(1 << 53), want: 1 << 53},
		{name: "fraction", value: structpb.NewNumberValue(1.5), wantErr: true},
		{name: "positive infinity", value: structpb.NewNumberValue(math.Inf(1)), wantErr: true},
		{name: "negative infinity", value: structpb.NewNumberValue(math.Inf(-1)), wantErr: true},
		{name: "nan", value: structpb.NewNumberValue(math.NaN()), wantErr: true},
		{name: "too large", value: structpb.NewNumberValue(1e300), wantErr: true},
		{name: "past exact range", value: structpb.NewNumberValue(1<<53 + 2), wantErr: true},
		{name: "string", value: structpb.NewStringValue("7"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := idField(&structpb.Struct{Fields: map[string]*structpb.Value{"id": tt.value}})
			if tt.wantErr {
				assert.Equal(t, codes.InvalidArgument, status.Code(err))
				assert.Equal(t, "id must be an integer", status.Convert(err).Message())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestUserService_InfiniteIDRejected(t *testing.T) {
	client := startServer(t, newMemoryService(t))

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":       structpb.NewNumberValue(math.Inf(1)),
		"username": structpb.NewStringValue("a"),
		"email":    structpb.NewStringValue("b"),
	}}
	err := client.cc.Invoke(testContext(t), UpdateUserMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
