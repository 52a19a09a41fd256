package requestid_test

import (
	"context"
	"strings"
	"testing"

	"crm-api/internal/observability/requestid"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestID_Format(t *testing.T) {
	id := requestid.NewRequestID()

	require.True(t, strings.HasPrefix(id, "req_"))
	parsed, err := uuid.Parse(strings.TrimPrefix(id, "req_"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewRequestID_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := requestid.NewRequestID()
		require.False(t, ids[id], "duplicate id %s", id)
		ids[id] = true
	}
}

func TestFromInbound(t *testing.T) {
	assert.Equal(t, "abc-123", requestid.FromInbound(" abc-123 "))
	assert.True(t, strings.HasPrefix(requestid.FromInbound(""), "req_"))
	assert.True(t, strings.HasPrefix(requestid.FromInbound("has space"), "req_"))
	assert.True(t, strings.HasPrefix(requestid.FromInbound(strings.Repeat("x", 200)), "req_"))
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, requestid.GetRequestID(context.Background()))

	ctx := requestid.SetRequestID(context.Background(), "first")
	ctx = requestid.SetRequestID(ctx, "second")
	assert.Equal(t, "second", requestid.GetRequestID(ctx))
}

func BenchmarkNewRequestID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = requestid.NewRequestID()
	}
}
