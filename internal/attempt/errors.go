package attempt

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/domain"
)

// Application error types returned by the attempt activities. Workflows
// branch on these with temporal.ApplicationError.Type.
const (
	// ErrTypeValidation is a malformed activity input or domain value. Non-retryable.
	ErrTypeValidation = "Validation"

	// ErrTypeTransition is an operation the answer's current state does not allow. Non-retryable.
	ErrTypeTransition = "Transition"

	// ErrTypeNotFound is a missing answer, exam or applicant. Non-retryable.
	ErrTypeNotFound = "NotFound"

	// ErrTypeConflict is a lost compare-and-swap. Retryable: the retry reloads the answer.
	ErrTypeConflict = "Conflict"

	// ErrTypeThrottled is a submission over the per-answer rate. Retryable after the reported delay.
	ErrTypeThrottled = "Throttled"

	// ErrTypeUnavailable is any other collaborator failure. Retryable.
	ErrTypeUnavailable = "Unavailable"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a Temporal retryable application error.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}

// classify converts a service failure into the application error the
// workflow sees. Domain failures are final; collaborator failures retry.
func classify(op string, err error) error {
	var throttle *assessment.ThrottleError
	switch {
	case err == nil:
		return nil

	case errors.As(err, &throttle):
		return temporal.NewApplicationErrorWithOptions(op+": submission throttled", ErrTypeThrottled,
			temporal.ApplicationErrorOptions{Cause: err, NextRetryDelay: throttle.RetryAfter})

	case errors.Is(err, domain.ErrConcurrentUpdate):
		return retryable(ErrTypeConflict, err, op+": concurrent update")

	case domain.IsStateError(err):
		return nonRetryable(ErrTypeTransition, err, op+": rejected by answer state")

	case errors.Is(err, domain.ErrNotFound), errors.Is(err, assessment.ErrApplicantNotFound):
		return nonRetryable(ErrTypeNotFound, err, op+": not found")

	case domain.IsValidationError(err):
		return nonRetryable(ErrTypeValidation, err, op+": invalid input")

	default:
		return retryable(ErrTypeUnavailable, err, op+": failed")
	}
}
