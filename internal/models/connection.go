package models

// ConnectionState tracks where a single session attempt is in its
// lifecycle. It is owned by the lifecycle controller and never persisted.
type ConnectionState int

const (
	StateInitializing ConnectionState = iota
	StateAwaitingPairing
	StateOpen
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason classifies why a protocol session closed. The controller
// uses it to decide between reconnecting and terminating the attempt.
type CloseReason int

const (
	CloseUnknown CloseReason = iota

	// Terminal reasons. The session directory is purged and the
	// attempt ends.
	CloseLoggedOut
	CloseFatal
	CloseConnectionExhausted

	// Transient reasons. The controller reopens a handle against the
	// same session directory.
	CloseRestartRequired
	CloseConnectionLost
	CloseOtherTransient
)

func (r CloseReason) String() string {
	switch r {
	case CloseLoggedOut:
		return "logged_out"
	case CloseFatal:
		return "fatal"
	case CloseConnectionExhausted:
		return "connection_exhausted"
	case CloseRestartRequired:
		return "restart_required"
	case CloseConnectionLost:
		return "connection_lost"
	case CloseOtherTransient:
		return "other_transient"
	default:
		return "unknown"
	}
}

// Transient reports whether the close reason permits reopening a handle
// against the same session directory.
func (r CloseReason) Transient() bool {
	switch r {
	case CloseRestartRequired, CloseConnectionLost, CloseOtherTransient:
		return true
	default:
		return false
	}
}

// Remote status codes that map onto close reasons. These mirror the
// disconnect codes surfaced by the messaging service.
const (
	StatusLoggedOut       = 401
	StatusRestartRequired = 515
	StatusConnectionLost  = 408
)

// ClassifyCloseStatus maps a remote disconnect status code to a close
// reason. Unknown codes are treated as transient so a flaky remote does
// not burn a user's session unnecessarily.
func ClassifyCloseStatus(statusCode int, restartRequired bool) CloseReason {
	if restartRequired {
		return CloseRestartRequired
	}

	switch statusCode {
	case StatusLoggedOut:
		return CloseLoggedOut
	case StatusRestartRequired:
		return CloseRestartRequired
	case StatusConnectionLost:
		return CloseConnectionLost
	default:
		return CloseOtherTransient
	}
}
