// Package client routes operations to the leader of a document store
// cluster.
//
// A ClusterExecutor keeps a directory of known nodes, refreshes it from the
// nodes' topology documents and dispatches each Operation to the node that
// reports itself as leader.  Operations report a lost leader as a retryable
// RemoteError: HTTP transports build one with NewHTTPStatusError, gRPC based
// transports pass call errors through ClassifyGRPCError.  Every other error
// is returned to the caller unchanged.
package client
