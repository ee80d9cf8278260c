package domain

import (
	"errors"
	"fmt"
)

// Validation errors returned by value-object constructors.
var (
	// ErrInvalidText indicates that a validated text field violated its bounds or allow-list.
	ErrInvalidText = errors.New("invalid text")

	// ErrInvalidIDLength indicates that an identity string is not 26 characters long.
	ErrInvalidIDLength = errors.New("invalid id length")

	// ErrInvalidIDCharacter indicates that an identity string contains a character
	// outside the base-32 alphabet.
	ErrInvalidIDCharacter = errors.New("invalid id character")

	// ErrNegativeScore indicates an attempt to build a Score below zero.
	ErrNegativeScore = errors.New("score must be non-negative")

	// ErrInvalidOptionKey indicates an option key outside the A-G alphabet.
	ErrInvalidOptionKey = errors.New("invalid option key")

	// ErrDuplicateOptionKey indicates the same option key was supplied twice.
	ErrDuplicateOptionKey = errors.New("duplicate option key")

	// ErrOptionCount indicates an option list outside the allowed 2-7 range.
	ErrOptionCount = errors.New("invalid option count")

	// ErrCorrectKeyMissing indicates the designated correct key is not among the options.
	ErrCorrectKeyMissing = errors.New("correct option key not among options")

	// ErrInvalidQuestion indicates a question input failed structural validation.
	ErrInvalidQuestion = errors.New("invalid question")

	// ErrMissingIdentity indicates a required identity was left at its zero value.
	ErrMissingIdentity = errors.New("missing identity")

	// ErrInvalidReviewer indicates a reviewer without a known type or identifier.
	ErrInvalidReviewer = errors.New("invalid reviewer")
)

// Aggregate and lifecycle errors.
var (
	// ErrQuestionNotFound indicates that no question with the given identity exists in the exam.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrDuplicateQuestion indicates that a question identity is already part of the exam.
	ErrDuplicateQuestion = errors.New("question already in exam")

	// ErrAlreadyAssigned indicates an answer already exists for the (evaluation, applicant) pair.
	ErrAlreadyAssigned = errors.New("evaluation already assigned to applicant")

	// ErrAlreadyStarted indicates start was requested on an answer that is no longer Created.
	ErrAlreadyStarted = errors.New("answer already started")

	// ErrNotInProgress indicates an operation that requires an InProgress answer.
	ErrNotInProgress = errors.New("answer is not in progress")

	// ErrNotFinished indicates review was requested before the answer was finished.
	ErrNotFinished = errors.New("answer is not finished")

	// ErrNotUnderReview indicates a review operation on an answer outside the review stage.
	ErrNotUnderReview = errors.New("answer is not under review")

	// ErrQuestionNotInEvaluation indicates a response targets a question outside the assigned evaluation.
	ErrQuestionNotInEvaluation = errors.New("question not in assigned evaluation")

	// ErrExamNotFound indicates a review observation targets an exam outside the assigned evaluation.
	ErrExamNotFound = errors.New("exam not found in assigned evaluation")

	// ErrEmptyEvaluation indicates an evaluation snapshot with no exams.
	ErrEmptyEvaluation = errors.New("evaluation has no exams")

	// ErrDuplicateExam indicates the same exam was listed twice in one evaluation.
	ErrDuplicateExam = errors.New("exam listed twice in evaluation")

	// ErrUnknownOperation indicates a lifecycle operation outside the transition table.
	ErrUnknownOperation = errors.New("unknown lifecycle operation")

	// ErrCorruptAnswer indicates a restored answer whose fields contradict its state.
	ErrCorruptAnswer = errors.New("answer fields inconsistent with state")

	// ErrInvalidRevisionStatus indicates a final revision status outside the known set.
	ErrInvalidRevisionStatus = errors.New("invalid revision status")
)

// Persistence port errors. Adapters return these so callers can branch with errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEvaluationNotFound indicates the target exam/evaluation of an append does not exist.
	ErrEvaluationNotFound = errors.New("evaluation not found")

	// ErrConcurrentUpdate indicates a compare-and-swap save lost against another writer.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// FieldError reports which field of a value object violated which rule.
// It always wraps one of the validation sentinels above.
type FieldError struct {
	Field string // Name of the offending field, e.g. "title".
	Rule  string // Violated rule: "required", "min", "max" or "charset".
	Limit int    // Bound involved for min/max rules.
	Err   error  // Underlying sentinel.
}

// Error formats the field, rule and bound.
func (e *FieldError) Error() string {
	switch e.Rule {
	case "min", "max":
		return fmt.Sprintf("%s: %s violates %s=%d", e.Err, e.Field, e.Rule, e.Limit)
	default:
		return fmt.Sprintf("%s: %s violates %s", e.Err, e.Field, e.Rule)
	}
}

// Unwrap exposes the sentinel for errors.Is.
func (e *FieldError) Unwrap() error { return e.Err }

// IDError reports a malformed identity string.
type IDError struct {
	Input    string
	Position int // Offending character position, -1 for length errors.
	Err      error
}

// Error returns a formatted description of the parse failure.
func (e *IDError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("%s: %q has %d characters, want %d", e.Err, e.Input, len(e.Input), idTextLength)
	}
	return fmt.Sprintf("%s: %q at position %d", e.Err, e.Input, e.Position)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *IDError) Unwrap() error { return e.Err }

// OptionError reports an option-set violation in a choice question.
type OptionError struct {
	Key   string // Offending key, empty for count errors.
	Count int    // Supplied option count for count errors.
	Err   error
}

// Error returns a formatted description of the option violation.
func (e *OptionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: got %d options, want %d-%d", e.Err, e.Count, MinOptions, MaxOptions)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Key)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *OptionError) Unwrap() error { return e.Err }

// IndexOutOfRangeError reports a positional access outside the question list.
// Max saturates at zero for an empty exam.
type IndexOutOfRangeError struct {
	Index int
	Max   int
}

// Error returns a formatted description of the range violation.
func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d]", e.Index, e.Max)
}

// TransitionError reports a lifecycle operation attempted from a state that does not allow it.
type TransitionError struct {
	From State
	Op   Operation
	Err  error
}

// Error returns a formatted description of the rejected transition.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", e.Err, e.Op, e.From)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *TransitionError) Unwrap() error { return e.Err }

// IsValidationError reports whether err stems from a value-object constructor.
// Callers at process boundaries use it to classify failures as non-retryable.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidText, ErrInvalidIDLength, ErrInvalidIDCharacter, ErrNegativeScore,
		ErrInvalidOptionKey, ErrDuplicateOptionKey, ErrOptionCount, ErrCorrectKeyMissing,
		ErrInvalidQuestion, ErrInvalidRevisionStatus, ErrEmptyEvaluation, ErrDuplicateQuestion,
		ErrDuplicateExam, ErrMissingIdentity, ErrInvalidReviewer, ErrCorruptAnswer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsStateError reports whether err is a lifecycle or membership failure.
func IsStateError(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return true
	}
	for _, target := range []error{
		ErrAlreadyAssigned, ErrQuestionNotInEvaluation, ErrExamNotFound,
		ErrQuestionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
