// Package attempt exposes the applicant-facing answer operations as Temporal
// activities. Inputs and outputs carry string identifiers so that they
// serialize through the default data converter.
package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/pkg/activity"
)

// Activities runs attempt operations against the assessment service.
type Activities struct {
	activity.BaseActivities
	svc *assessment.Service
}

// NewActivities creates the attempt activities. The embedded base supplies
// heartbeats and the execution-stamped event sink.
func NewActivities(base activity.BaseActivities, svc *assessment.Service) *Activities {
	return &Activities{BaseActivities: base, svc: svc}
}

// AnswerState is the activity view of an answer after an operation.
type AnswerState struct {
	AnswerID   string    `json:"answer_id"`
	State      string    `json:"state"`
	Version    uint64    `json:"version"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// SubmitInput carries one response to one question.
type SubmitInput struct {
	AnswerID   string   `json:"answer_id"`
	QuestionID string   `json:"question_id"`
	Response   []string `json:"response"`
}

// SubmitOutput reports the points awarded to an accepted response.
type SubmitOutput struct {
	QuestionID string  `json:"question_id"`
	ExamID     string  `json:"exam_id"`
	Points     float64 `json:"points"`
	MaxPoints  float64 `json:"max_points"`
	Version    uint64  `json:"version"`
}

// ExamPoints is the finish-time score of one exam.
type ExamPoints struct {
	ExamID string  `json:"exam_id"`
	Points float64 `json:"points"`
}

// FinishOutput reports the scored answer.
type FinishOutput struct {
	AnswerState
	Results     []ExamPoints  `json:"results"`
	TotalPoints float64       `json:"total_points"`
	Elapsed     time.Duration `json:"elapsed"`
}

// StartAttempt opens the answer identified by answerID. Starting an answer
// that is already in progress returns its current state, so a retry after a
// lost response succeeds.
func (a *Activities) StartAttempt(ctx context.Context, answerID string) (AnswerState, error) {
	id, err := domain.ParseID(answerID)
	if err != nil {
		return AnswerState{}, nonRetryable(ErrTypeValidation, err, "StartAttempt: invalid answer id")
	}

	ans, err := a.svc.Start(ctx, id)
	if errors.Is(err, domain.ErrAlreadyStarted) {
		if cur, ok := a.current(ctx, id, domain.StateInProgress); ok {
			return stateOf(cur), nil
		}
	}
	if err != nil {
		activity.SafeLogError(ctx, "StartAttempt failed", "answer_id", answerID, "error", err)
		return AnswerState{}, classify("StartAttempt", err)
	}
	return stateOf(ans), nil
}

// SubmitResponse records one response. A throttled submission is retried by
// Temporal after the delay the limiter reported.
func (a *Activities) SubmitResponse(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	answerID, err := domain.ParseID(in.AnswerID)
	if err != nil {
		return SubmitOutput{}, nonRetryable(ErrTypeValidation, err, "SubmitResponse: invalid answer id")
	}
	questionID, err := domain.ParseID(in.QuestionID)
	if err != nil {
		return SubmitOutput{}, nonRetryable(ErrTypeValidation, err, "SubmitResponse: invalid question id")
	}

	res, err := a.svc.Submit(ctx, answerID, questionID, domain.Response(in.Response))
	if err != nil {
		activity.SafeLogError(ctx, "SubmitResponse failed",
			"answer_id", in.AnswerID, "question_id", in.QuestionID, "error", err)
		return SubmitOutput{}, classify("SubmitResponse", err)
	}

	return SubmitOutput{
		QuestionID: res.QuestionID.String(),
		ExamID:     res.ExamID.String(),
		Points:     res.Points.Value(),
		MaxPoints:  res.MaxPoints.Value(),
		Version:    res.Version,
	}, nil
}

// FinishAttempt closes the answer and returns its per-exam points. Like
// StartAttempt it tolerates replay: an answer already finished (and not yet
// under review) reports its stored results.
func (a *Activities) FinishAttempt(ctx context.Context, answerID string) (FinishOutput, error) {
	id, err := domain.ParseID(answerID)
	if err != nil {
		return FinishOutput{}, nonRetryable(ErrTypeValidation, err, "FinishAttempt: invalid answer id")
	}

	ans, err := a.svc.Finish(ctx, id)
	if errors.Is(err, domain.ErrNotInProgress) {
		if cur, ok := a.current(ctx, id, domain.StateFinished); ok {
			ans, err = cur, nil
		}
	}
	if err != nil {
		activity.SafeLogError(ctx, "FinishAttempt failed", "answer_id", answerID, "error", err)
		return FinishOutput{}, classify("FinishAttempt", err)
	}
	a.RecordHeartbeat(ctx, "scored")

	total, err := ans.TotalPoints()
	if err != nil {
		return FinishOutput{}, nonRetryable(ErrTypeValidation, err, "FinishAttempt: total points")
	}

	results := ans.Results()
	out := FinishOutput{
		AnswerState: stateOf(ans),
		Results:     make([]ExamPoints, 0, len(results)),
		TotalPoints: total.Value(),
		Elapsed:     ans.FinishedAt().Sub(ans.StartedAt()),
	}
	for _, r := range results {
		out.Results = append(out.Results, ExamPoints{ExamID: r.ExamID.String(), Points: r.Points.Value()})
	}
	return out, nil
}

// current loads the answer and reports whether it is in state want.
func (a *Activities) current(ctx context.Context, id domain.ID, want domain.State) (*domain.Answer, bool) {
	ans, err := a.svc.LoadAnswer(ctx, id)
	if err != nil || ans.State() != want {
		return nil, false
	}
	return ans, true
}

func stateOf(a *domain.Answer) AnswerState {
	return AnswerState{
		AnswerID:   a.ID().String(),
		State:      a.State().String(),
		Version:    a.Version(),
		StartedAt:  a.StartedAt(),
		FinishedAt: a.FinishedAt(),
	}
}
