package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRequestTimeout = 30 * time.Second

	// responses larger than this are treated as malformed
	maxResponseSize = 16 * 1024 * 1024
)

// NewHTTPClient returns a client suitable for talking to cluster nodes.
// Redirects are never followed so that they reach the routing layer, which
// treats them as a sign that the leader has moved.
func NewHTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(base),
		Timeout:   defaultRequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func withClientTrace(ctx context.Context, enabled bool) context.Context {
	if !enabled {
		return ctx
	}
	return httptrace.WithClientTrace(ctx, otelhttptrace.NewClientTrace(ctx))
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if len(body) > maxResponseSize {
		return nil, errors.Errorf("response body exceeds %d bytes", maxResponseSize)
	}

	if resp.Header.Get("Content-Encoding") == "snappy" {
		decodedLen, err := snappy.DecodedLen(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode snappy response")
		}
		if decodedLen > maxResponseSize {
			return nil, errors.Errorf("decoded response body exceeds %d bytes", maxResponseSize)
		}

		decoded, err := snappy.Decode(make([]byte, decodedLen), body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode snappy response")
		}
		return decoded, nil
	}

	return body, nil
}
