package bridge

// AttemptState names a position in the publish fallback machine. One machine
// instance exists per inbound trigger event; it guarantees at most one
// externally visible post even across the credential fallback.
type AttemptState int

const (
	// StateAttemptUser publishes with the workspace's user credential for attribution.
	StateAttemptUser AttemptState = iota
	// StateAttemptPage publishes with the team-level page credential.
	StateAttemptPage
	// StateSucceeded terminates the machine after a successful publish.
	StateSucceeded
	// StateFailed terminates the machine after an unrecoverable failure.
	StateFailed
)

func (s AttemptState) String() string {
	switch s {
	case StateAttemptUser:
		return "attempt_user"
	case StateAttemptPage:
		return "attempt_page"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "failed"
	}
}

// Terminal reports whether the machine has stopped.
func (s AttemptState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Begin selects the starting state: prefer the user credential when one is
// allowed, otherwise go straight to the page credential.
func Begin(hasAllowedUser bool) AttemptState {
	if hasAllowedUser {
		return StateAttemptUser
	}
	return StateAttemptPage
}

// Next is the pure transition function applied after a failed attempt.
// From AttemptUser, an auth-class failure (expired/invalid) falls back to the
// page credential when one exists; the rejected user credential is never
// retried. Every other failure, and any failure at the page tier, terminates
// the machine. There is no fallback below the page tier.
func Next(s AttemptState, cat ErrorCategory, hasPage bool) AttemptState {
	switch s {
	case StateAttemptUser:
		if cat.IsAuth() && hasPage {
			return StateAttemptPage
		}
		return StateFailed
	case StateAttemptPage:
		return StateFailed
	default:
		return s
	}
}
