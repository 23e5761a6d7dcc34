package common

// BenignPredicate reports whether an error is a known-benign transient
// network condition that should be suppressed from visible logging.
// The policy is injected wherever post-response errors are recovered so
// it stays testable and overridable.
type BenignPredicate func(error) bool

// NewSubstringPredicate builds a predicate matching errors whose text
// contains any of the given substrings, case-insensitively.
func NewSubstringPredicate(substrings []string) BenignPredicate {

	// Copy so later mutation of the config slice cannot change policy.
	patterns := make([]string, len(substrings))
	copy(patterns, substrings)

	return func(err error) bool {
		if err == nil {
			return false
		}

		msg := err.Error()
		for _, pattern := range patterns {
			if len(pattern) > 0 && ContainsInsensitive(msg, pattern) {
				return true
			}
		}
		return false
	}
}

// DefaultBenignSubstrings lists the transient conditions the messaging
// transport is known to emit during normal reconnect churn.
var DefaultBenignSubstrings = []string{
	"conflict",
	"not-authorized",
	"socket connection timeout",
	"rate-overlimit",
	"connection closed",
	"timed out",
	"value not found",
	"stream errored",
	"statusCode: 515",
	"statusCode: 503",
	"connection refused",
	"connection reset",
}
