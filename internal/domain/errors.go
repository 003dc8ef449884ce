package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference is returned when a booth index resolves to no booth document.
	ErrInvalidReference = errors.New("booth reference is invalid")
	// ErrAmbiguousBooth is returned when more than one booth document shares an index.
	// It wraps ErrInvalidReference so callers can treat both as an invalid link.
	ErrAmbiguousBooth = fmt.Errorf("%w: booth index shared by multiple documents", ErrInvalidReference)
	// ErrInsufficientBalance indicates a spend larger than the displayed balance.
	ErrInsufficientBalance = errors.New("insufficient mileage balance")
	// ErrInvalidState indicates malformed numeric fields on a stored account.
	ErrInvalidState = errors.New("account is in an invalid state")
	// ErrFeatureDisabled indicates the redemption gate is closed.
	ErrFeatureDisabled = errors.New("redemption is disabled")
	// ErrTransient wraps store failures the caller may retry by re-entering the operation.
	ErrTransient = errors.New("temporary store failure")

	// ErrUserNotFound is returned when an account document does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidStudent is returned when a display name does not carry a student identity.
	ErrInvalidStudent = errors.New("display name does not contain a student identity")
	// ErrInvalidStudentID is returned for student ids that are not five digits.
	ErrInvalidStudentID = errors.New("student id must be five digits")
	// ErrAmbiguousStudent is returned when several accounts match one student id.
	ErrAmbiguousStudent = errors.New("student id matches multiple accounts")
	// ErrNotWhitelisted is returned when a manual visit targets an unregistered student.
	ErrNotWhitelisted = errors.New("student is not whitelisted")
	// ErrInvalidMultiplier is returned for multipliers outside (0, 2].
	ErrInvalidMultiplier = errors.New("multiplier must be in (0, 2]")
	// ErrMultiplierAlreadySet is returned when the one-time multiplier was already applied.
	ErrMultiplierAlreadySet = errors.New("multiplier already applied")

	// ErrNoQuiz is returned when a booth does not carry a quiz.
	ErrNoQuiz = errors.New("booth has no quiz")
	// ErrInvalidAnswer is returned when a quiz answer index is out of range.
	ErrInvalidAnswer = errors.New("answer index out of range")

	// ErrInvalidRound is returned for round numbers outside 1..3.
	ErrInvalidRound = errors.New("round must be between 1 and 3")
	// ErrInvalidCandidates is returned when a candidate name is empty after trimming.
	ErrInvalidCandidates = errors.New("both candidate names are required")
	// ErrRoundInProgress is returned when starting a round while another is running.
	ErrRoundInProgress = errors.New("another round is still running")
	// ErrRoundNotRunning is returned when finalizing without a running round.
	ErrRoundNotRunning = errors.New("no running round")
	// ErrSemifinalIncomplete is returned when the final cannot be derived from rounds 1 and 2.
	ErrSemifinalIncomplete = errors.New("rounds 1 and 2 need a recorded winner")
	// ErrRoundClosed is returned for ballots outside the acceptance window.
	ErrRoundClosed = errors.New("round is not accepting ballots")
	// ErrInvalidChoice is returned for ballot choices other than 0 or 1.
	ErrInvalidChoice = errors.New("choice must be 0 or 1")

	// ErrUnauthenticated is returned when a request carries no valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when a non-administrator calls an admin operation.
	ErrForbidden = errors.New("administrator required")
)

// Transient marks err as a retryable store failure while keeping it inspectable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
