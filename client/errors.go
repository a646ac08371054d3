package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/krptodr/ravendb/topology"
)

var (
	// ErrClusterUnreachable is matched by every ClusterUnreachableError.
	ErrClusterUnreachable = errors.New("cluster unreachable")

	ErrExecutorClosed = errors.New("cluster executor closed")
)

// ClusterUnreachableError is returned when no leader could be reached within
// the retry budget or the leader wait timeout.
type ClusterUnreachableError struct {
	Attempts int
	Cause    error
}

func (e *ClusterUnreachableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("cluster unreachable after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("cluster unreachable after %d attempts: %s", e.Attempts, e.Cause)
}

func (e *ClusterUnreachableError) Unwrap() error {
	return e.Cause
}

func (e *ClusterUnreachableError) Is(target error) bool {
	return target == ErrClusterUnreachable
}

// RemoteError is an operation failure whose retry classification has already
// been decided by the transport.  Only Retryable errors cause the leader to be
// invalidated and the operation to be dispatched again.
type RemoteError struct {
	Node       *topology.Node
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RemoteError) Error() string {
	msg := "remote failure"
	if e.Err != nil {
		msg = e.Err.Error()
	}

	switch {
	case e.Node != nil && e.StatusCode != 0:
		return fmt.Sprintf("node %s responded with status %d: %s", e.Node, e.StatusCode, msg)
	case e.Node != nil:
		return fmt.Sprintf("node %s: %s", e.Node, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) error {
	return &RemoteError{
		Retryable: true,
		Err:       err,
	}
}

// NewHTTPStatusError builds the error for a non-2xx response from node.  The
// status alone decides whether it is retryable.
func NewHTTPStatusError(node *topology.Node, statusCode int, msg string) error {
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &RemoteError{
		Node:       node,
		StatusCode: statusCode,
		Retryable:  IsRetryableHTTPStatus(statusCode),
		Err:        errors.New(msg),
	}
}

func IsRetryable(err error) bool {
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		return false
	}
	return remoteErr.Retryable
}
