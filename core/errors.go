package core

import "errors"

// Error kinds the runtime and its transport plugins must distinguish (spec
// §7). Each is a distinct type rather than a sentinel value so callers can
// discriminate with errors.As while still carrying a message.

// TransactionFailure covers: target binder not found, transport
// disconnected, malformed parcel, oversize frame, or timeout.
type TransactionFailure struct {
	Message string
}

func (e *TransactionFailure) Error() string { return "binder: transaction failure: " + e.Message }

// RemoteException wraps a message carried verbatim from a peer's exception
// frame — the remote side's onTransact returned an error.
type RemoteException struct {
	Message string
}

func (e *RemoteException) Error() string { return "binder: remote exception: " + e.Message }

// IllegalStateError covers: using a shut-down Runtime, attaching a second
// Looper to a thread, or enqueuing into a quitting queue.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string { return "binder: illegal state: " + e.Message }

// ParseError reports a malformed binder reference (Runtime.ResolveBinderRef).
// Reads past the end of a Parcel return parcel.ErrUnderflow and malformed
// wire frames return plain errors instead; the transport plugins do not
// convert either into a TransactionFailure.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return "binder: parse error: " + e.Message }

// Sentinel errors for conditions that don't need a carried message.
var (
	ErrRuntimeShutdown = &IllegalStateError{Message: "runtime is shut down"}
	ErrNoSuchPlugin    = errors.New("binder: no transport plugin registered for scheme")
	ErrNoSuchBinder    = errors.New("binder: no binder registered at uri")
)
