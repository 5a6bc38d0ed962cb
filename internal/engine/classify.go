package engine

import (
	"errors"

	"github.com/thureinphyoecoder/larapee-sync/internal/api"
)

// Recommended next actions surfaced alongside each failed row. The UI
// renders these verbatim; keep them phrased for an operator.
const (
	// RecommendReauth: retrying without a fresh token cannot succeed.
	RecommendReauth = "log in again"
	// RecommendReview: the queued payload itself is invalid against
	// current server state (stock changed, variant deleted, conflict).
	RecommendReview = "review and correct the order data"
	// RecommendWait: transient server-side failure, expected to self-heal.
	RecommendWait = "wait and retry"
	// RecommendConnection: no response at all from the server.
	RecommendConnection = "check connection and retry"
	// RecommendUnsupported: row written by a newer client version, or
	// unreadable; never retried.
	RecommendUnsupported = "discard the entry or upgrade the client"
)

// Classify maps a delivery error to the recommended operator action.
func Classify(err error) string {
	var se *api.StatusError
	if !errors.As(err, &se) {
		// No HTTP response at all: transport-level failure.
		return RecommendConnection
	}

	switch {
	case se.Code == 401 || se.Code == 403:
		return RecommendReauth
	case se.Code == 409 || se.Code == 422:
		return RecommendReview
	case se.Code >= 500:
		return RecommendWait
	case se.Code >= 400:
		// Other 4xx: the request is the problem, not the connection.
		return RecommendReview
	default:
		return RecommendWait
	}
}
