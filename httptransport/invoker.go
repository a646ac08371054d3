package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

// maximum length of a response body quoted in an error
const maxErrorMessageLen = 512

type InvokerOptions struct {
	Logger      *zap.Logger
	HTTPClient  *http.Client
	ClientTrace bool
}

// Invoker performs JSON requests against a single node and classifies the
// outcome for the routing layer.
type Invoker struct {
	logger      *zap.Logger
	httpClient  *http.Client
	clientTrace bool
}

func NewInvoker(opts *InvokerOptions) *Invoker {
	if opts == nil {
		opts = &InvokerOptions{}
	}

	i := &Invoker{
		logger:      opts.Logger,
		httpClient:  opts.HTTPClient,
		clientTrace: opts.ClientTrace,
	}
	if i.logger == nil {
		i.logger = zap.NewNop()
	}
	if i.httpClient == nil {
		i.httpClient = NewHTTPClient(nil)
	}

	return i
}

// Do sends the request to node.  A 2xx response body is decoded into out when
// out is non-nil, other statuses become a client.RemoteError.
func (i *Invoker) Do(ctx context.Context, node *topology.Node, method, path string, body []byte, out interface{}) error {
	ctx = withClientTrace(ctx, i.clientTrace)
	url := strings.TrimRight(node.URL, "/") + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	err = authenticate(req, node.Credentials)
	if err != nil {
		return errors.Wrap(err, "failed to authenticate request")
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, url)
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorMessageLen {
			msg = msg[:maxErrorMessageLen]
		}
		if location := resp.Header.Get("Location"); location != "" {
			msg = strings.TrimSpace(msg + " (location: " + location + ")")
		}

		i.logger.Debug("request failed",
			zap.String("node", node.URL),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))

		return client.NewHTTPStatusError(node, resp.StatusCode, msg)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	err = json.Unmarshal(respBody, out)
	if err != nil {
		return errors.Wrapf(err, "failed to parse response from %s", node.URL)
	}

	return nil
}

// Operation adapts a single request into a client.Operation.
func (i *Invoker) Operation(method, path string, body []byte, out interface{}) client.Operation {
	return func(ctx context.Context, node *topology.Node) error {
		return i.Do(ctx, node, method, path, body, out)
	}
}
