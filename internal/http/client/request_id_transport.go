package client

import (
	"net/http"

	"crm-api/internal/observability/requestid"
)

// RequestIDTransport copies the request id from the context into the
// X-Request-ID header of outbound requests. An explicit header is kept.
type RequestIDTransport struct {
	base http.RoundTripper
}

// NewRequestIDTransport wraps base (http.DefaultTransport when nil).
func NewRequestIDTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestIDTransport{base: base}
}

func (t *RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(requestid.Header) != "" {
		return t.base.RoundTrip(req)
	}
	id := requestid.GetRequestID(req.Context())
	if id == "" {
		return t.base.RoundTrip(req)
	}

	// headers are shared with the caller's request
	r := req.Clone(req.Context())
	r.Header.Set(requestid.Header, id)
	return t.base.RoundTrip(r)
}
