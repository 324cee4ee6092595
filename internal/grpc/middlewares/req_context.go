package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader is the metadata key a caller may set to choose its own
// request ID.
const RequestIDHeader = "x-request-id"

func ContextMiddleware(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = generateRequestID()
	}
	return handler(context.WithValue(ctx, requestIDKey, id), req)
}

// RequestID returns the ID set by ContextMiddleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func generateRequestID() string {
	return uuid.NewString()
}
