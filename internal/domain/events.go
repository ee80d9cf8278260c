package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventType identifies a lifecycle event for routing and projections.
// Using typed constants provides compile-time safety and enables
// exhaustive switch statements for event handling.
type EventType string

const (
	// EventAnswerAssigned is emitted once when an evaluation is assigned to an applicant.
	EventAnswerAssigned EventType = "answer.assigned"

	// EventAnswerStarted is emitted when the applicant opens the attempt.
	EventAnswerStarted EventType = "answer.started"

	// EventResponseSubmitted is emitted for every accepted per-question response.
	EventResponseSubmitted EventType = "answer.response_submitted"

	// EventAnswerFinished is emitted when the attempt closes and is scored.
	EventAnswerFinished EventType = "answer.finished"

	// EventReviewStarted is emitted when a reviewer takes the finished attempt.
	EventReviewStarted EventType = "answer.review_started"

	// EventObservationRecorded is emitted for every per-exam observation.
	EventObservationRecorded EventType = "answer.observation_recorded"

	// EventReviewFinalized is emitted once with the final revision status.
	EventReviewFinalized EventType = "answer.review_finalized"
)

// EventTypeFor maps a lifecycle operation to the event it produces.
func EventTypeFor(op Operation) EventType {
	switch op {
	case OpAssign:
		return EventAnswerAssigned
	case OpStart:
		return EventAnswerStarted
	case OpSubmit:
		return EventResponseSubmitted
	case OpFinish:
		return EventAnswerFinished
	case OpBeginReview:
		return EventReviewStarted
	case OpObserve:
		return EventObservationRecorded
	case OpFinalize:
		return EventReviewFinalized
	default:
		return EventType("answer." + op.String())
	}
}

// LifecyclePayload is the serialized body of a lifecycle event. Optional
// fields are populated only by the operations they describe.
type LifecyclePayload struct {
	AnswerID     string `json:"answer_id" validate:"required,len=26"`
	ApplicantID  string `json:"applicant_id" validate:"required,len=26"`
	EvaluationID string `json:"evaluation_id" validate:"required,len=26"`
	From         string `json:"from" validate:"required"`
	To           string `json:"to" validate:"required"`

	// Version is the answer version after the operation was applied.
	Version uint64 `json:"version" validate:"min=1"`

	QuestionID string   `json:"question_id,omitempty" validate:"omitempty,len=26"`
	ExamID     string   `json:"exam_id,omitempty" validate:"omitempty,len=26"`
	Points     *float64 `json:"points,omitempty" validate:"omitempty,min=0"`
	Revision   string   `json:"revision,omitempty"`
	Reviewer   string   `json:"reviewer,omitempty"`
}

// Validate checks the payload against its struct tags.
func (p *LifecyclePayload) Validate() error { return validate.Struct(p) }

// LifecycleEvent records one applied lifecycle operation.
type LifecycleEvent struct {
	Type       EventType
	Op         Operation
	OccurredAt time.Time
	Payload    LifecyclePayload
}

// IdempotencyKey is a deterministic key for deduplicating the event across
// retries: H(answer_id || ":" || type || ":" || version). Each version of an
// answer is produced by exactly one operation, so the key is unique per event.
func (e LifecycleEvent) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(e.Payload.AnswerID))
	h.Write([]byte(":" + string(e.Type) + ":"))
	h.Write([]byte(strconv.FormatUint(e.Payload.Version, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalPayload validates the payload and encodes it as JSON.
func (e LifecycleEvent) MarshalPayload() (json.RawMessage, error) {
	if err := e.Payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}
	return b, nil
}
