// Package errors provides coded errors shared by the live service.
package errors

// Code is a machine-readable error code carried on error frames.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"
	// CodeInvalidArgument marks malformed frames or payloads.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeFailedPrecondition marks events rejected by session state.
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	// CodePermissionDenied marks events the connection's role may not issue.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeUnauthenticated marks missing or invalid identity tokens.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeResourceExhausted marks connections exceeding their frame budget.
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
)
