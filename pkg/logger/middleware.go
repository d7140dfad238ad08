package logger

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the header (and gRPC metadata key) carrying a caller-chosen request id.
const RequestIDHeader = "X-Request-ID"

// NewRequestID returns a fresh random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestIDInterceptor is a gRPC interceptor that puts a request ID in the
// context, reusing x-request-id from incoming metadata when present.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDHeader); len(ids) > 0 {
				requestID = ids[0]
			}
		}
		if requestID == "" {
			requestID = NewRequestID()
		}

		return handler(ContextWithRequestID(ctx, requestID), req)
	}
}
