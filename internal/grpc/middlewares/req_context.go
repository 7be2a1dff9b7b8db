package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"

	// RequestIDHeader is the metadata key a caller may set to propagate
	// its own request ID.
	RequestIDHeader = "x-request-id"
)

// ContextMiddleware tags the context with the caller's request ID, or a
// fresh one.
func ContextMiddleware(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	requestID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 {
			requestID = values[0]
		}
	}
	if requestID == "" {
		requestID = generateRequestID()
	}
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return handler(ctx, req)
}

// RequestIDFromContext returns the request ID set by ContextMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func generateRequestID() string {
	return uuid.NewString()
}
