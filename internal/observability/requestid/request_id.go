package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request id in both directions.
const Header = "X-Request-ID"

const maxInboundLength = 128

type contextKey string

const requestIDContextKey contextKey = "request_id"

// NewRequestID returns a time-ordered id (UUIDv7) prefixed with "req_".
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "req_" + uuid.NewString()
	}
	return "req_" + id.String()
}

// FromInbound returns a client-supplied id when it is usable, otherwise a new one.
func FromInbound(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxInboundLength || strings.ContainsAny(v, " \t\r\n") {
		return NewRequestID()
	}
	return v
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
