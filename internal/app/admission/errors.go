// internal/app/admission/errors.go
package admission

import "fmt"

// GuardReason names the specific terminal state that blocked an operation.
// Guard violations are reported to the invoking actor with this reason,
// never as a generic failure.
type GuardReason string

const (
	// ReasonAlreadyVerified: the member already accepted the declaration.
	ReasonAlreadyVerified GuardReason = "already_verified"
	// ReasonNotRegistered: no registration cycle exists for the member.
	// This is also what a second decline sees, since decline purges.
	ReasonNotRegistered GuardReason = "not_registered"
	// ReasonLeftGroup: the member's registration is archived as left.
	ReasonLeftGroup GuardReason = "left_group"
	// ReasonNotPending: a concurrent decision won the race and the state is
	// no longer pending; the loser is told instead of retried.
	ReasonNotPending GuardReason = "not_pending"
)

// GuardError reports that an operation arrived for a registration not in the
// state it requires. It is an expected outcome, not a fault.
type GuardError struct {
	Reason GuardReason
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("admission guard: %s", e.Reason)
}

// guard is a shorthand constructor.
func guard(reason GuardReason) *GuardError {
	return &GuardError{Reason: reason}
}
