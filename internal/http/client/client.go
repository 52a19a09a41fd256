package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRedirects = 10

// New returns an http.Client with a hard timeout, request-id propagation and
// otel client spans. Extra wrappers are applied innermost first.
func New(timeout time.Duration, wrappers ...func(http.RoundTripper) http.RoundTripper) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	for _, wrap := range wrappers {
		rt = wrap(rt)
	}
	rt = NewRequestIDTransport(rt)

	return &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// NewExternalHTTPClient is for third-party APIs, which get a longer timeout.
func NewExternalHTTPClient(wrappers ...func(http.RoundTripper) http.RoundTripper) *http.Client {
	return New(60*time.Second, wrappers...)
}

// WithBearer sets Authorization: Bearer <token> on every request that lacks one.
func WithBearer(token string) func(http.RoundTripper) http.RoundTripper {
	return func(base http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if token == "" || req.Header.Get("Authorization") != "" {
				return base.RoundTrip(req)
			}
			r := req.Clone(req.Context())
			r.Header.Set("Authorization", "Bearer "+token)
			return base.RoundTrip(r)
		})
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
