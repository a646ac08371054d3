package client

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NotLeaderReason is the ErrorInfo reason a gRPC server attaches when it
// rejects a call because it is not the leader.
const NotLeaderReason = "NOT_LEADER"

// IsRetryableHTTPStatus reports whether a response status means the node is
// not the leader.  Redirects point at another node and 412 is returned by a
// node which has lost leadership.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect,
		http.StatusPreconditionFailed:
		return true
	}
	return false
}

// ClassifyGRPCError marks gRPC status errors which signal a stale leader as
// retryable.  Everything else is returned unchanged.
func ClassifyGRPCError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	if st.Code() == codes.FailedPrecondition {
		return NewRetryableError(err)
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if ok && info.GetReason() == NotLeaderReason {
			return NewRetryableError(err)
		}
	}

	return err
}
