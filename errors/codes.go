package errors

// Kind represents a machine-readable error kind.
type Kind string

// Client-facing kinds. These appear verbatim in ErrorResponse envelopes and
// in HTTP error bodies.
const (
	// KindBadPipeline indicates pipeline verification failed.
	KindBadPipeline Kind = "BAD_PIPELINE"
	// KindNoSuchRequest indicates polling or cancelling an unknown request.
	KindNoSuchRequest Kind = "NO_SUCH_REQUEST"
	// KindAdapterBadInput indicates an adapter rejected its params at run time.
	KindAdapterBadInput Kind = "ADAPTER_BAD_INPUT"
	// KindUpstreamUnavailable indicates an external data or inference service
	// was unreachable after the retry budget was exhausted.
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	// KindInternal indicates a broker or cache failure after retries.
	KindInternal Kind = "INTERNAL"
	// KindCancelled indicates explicit cancel, request timeout, or a failed
	// dependency.
	KindCancelled Kind = "CANCELLED"
)

// Auth kinds used by the HTTP surface.
const (
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
)

var retryableKinds = map[Kind]bool{
	KindUpstreamUnavailable: true,
}

// IsRetryableKind returns true if the kind indicates a retryable error.
func IsRetryableKind(kind Kind) bool {
	return retryableKinds[kind]
}
