package assessment

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrApplicantNotFound indicates assignment to an applicant the directory does not know.
	ErrApplicantNotFound = errors.New("applicant not found")

	// ErrSubmitThrottled indicates a submission rejected by the per-answer rate limit.
	ErrSubmitThrottled = errors.New("submission rate exceeded")

	// ErrNoExams indicates an assignment request that names no exam.
	ErrNoExams = errors.New("assignment requires at least one exam")
)

// ThrottleError reports how long the caller should wait before submitting
// again to the same answer.
type ThrottleError struct {
	AnswerID   string
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("answer %s: %v, retry after %s", e.AnswerID, ErrSubmitThrottled, e.RetryAfter)
}

func (e *ThrottleError) Unwrap() error { return ErrSubmitThrottled }
