package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-examen/internal/attempt"
	"github.com/ahrav/go-examen/internal/domain"
)

// Signal and query names understood by AttemptWorkflow.
const (
	SignalStart  = "attempt.start"
	SignalSubmit = "attempt.submit"
	SignalFinish = "attempt.finish"
	QueryStatus  = "attempt.status"
)

// Attempt phases reported by the status query.
const (
	PhaseWaiting    = "waiting"
	PhaseInProgress = "in_progress"
	PhaseFinished   = "finished"
)

// ErrNotStarted is recorded when a submission or finish arrives before start.
var ErrNotStarted = errors.New("attempt not started")

// ErrTypeUnstartable is the failure type of a workflow whose answer can never
// be started: it is missing, malformed, or already past the in-progress state.
const ErrTypeUnstartable = "Unstartable"

// unstartable reports whether a start failure is final for the answer.
func unstartable(err error) bool {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Type() {
	case attempt.ErrTypeTransition, attempt.ErrTypeNotFound, attempt.ErrTypeValidation:
		return true
	default:
		return false
	}
}

// AttemptRequest starts one attempt workflow for an assigned answer.
type AttemptRequest struct {
	AnswerID string `json:"answer_id" validate:"required"`

	// TimeLimit auto-finishes the attempt this long after it starts. Zero
	// means no limit.
	TimeLimit time.Duration `json:"time_limit" validate:"min=0"`

	ActivityTimeout time.Duration `json:"activity_timeout" validate:"gt=0"`
	MaxAttempts     int32         `json:"max_attempts" validate:"min=1,max=20"`
}

var validate = validator.New()

// Validate checks the request shape and the answer identifier.
func (r AttemptRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if _, err := domain.ParseID(r.AnswerID); err != nil {
		return fmt.Errorf("answer id: %w", err)
	}
	return nil
}

// Submission is the payload of SignalSubmit.
type Submission struct {
	QuestionID string   `json:"question_id"`
	Response   []string `json:"response"`
}

// Status is returned by QueryStatus.
type Status struct {
	AnswerID  string             `json:"answer_id"`
	Phase     string             `json:"phase"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	Deadline  time.Time          `json:"deadline,omitempty"`
	Accepted  int                `json:"accepted"`
	Rejected  int                `json:"rejected"`
	Points    map[string]float64 `json:"points"`
	LastError string             `json:"last_error,omitempty"`
}

func (s *Status) reject(err error) {
	s.Rejected++
	s.LastError = err.Error()
}

// AttemptResult is the workflow result once the answer is finished.
type AttemptResult struct {
	attempt.FinishOutput
	AutoFinished bool `json:"auto_finished"`
	Accepted     int  `json:"accepted"`
	Rejected     int  `json:"rejected"`
}

type signalKind int

const (
	kindStart signalKind = iota + 1
	kindSubmit
	kindFinish
	kindDeadline
)

// AttemptWorkflow drives one applicant's answer from start to finish. It
// waits for SignalStart, applies every SignalSubmit in arrival order and
// finishes on SignalFinish or when the time limit elapses. Rejected signals
// are counted and reported through QueryStatus; they never fail the
// workflow. It fails only when the answer cannot be started at all or when
// finishing fails.
func AttemptWorkflow(ctx workflow.Context, req AttemptRequest) (*AttemptResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "attempt.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid attempt request", "Validation", err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: req.ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    req.MaxAttempts,
		},
	})
	logger := workflow.GetLogger(ctx)

	status := &Status{AnswerID: req.AnswerID, Phase: PhaseWaiting, Points: map[string]float64{}}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (Status, error) {
		return *status, nil
	}); err != nil {
		return nil, err
	}

	var (
		acts     *attempt.Activities
		startCh  = workflow.GetSignalChannel(ctx, SignalStart)
		submitCh = workflow.GetSignalChannel(ctx, SignalSubmit)
		finishCh = workflow.GetSignalChannel(ctx, SignalFinish)

		deadline    workflow.Future
		cancelTimer workflow.CancelFunc = func() {}
	)

	for {
		var (
			kind signalKind
			sub  Submission
		)
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(startCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
			kind = kindStart
		})
		sel.AddReceive(submitCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &sub)
			kind = kindSubmit
		})
		sel.AddReceive(finishCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
			kind = kindFinish
		})
		if deadline != nil {
			sel.AddFuture(deadline, func(workflow.Future) { kind = kindDeadline })
		}
		sel.Select(ctx)

		started := status.Phase == PhaseInProgress
		switch {
		case kind == kindStart && started:
			status.reject(domain.ErrAlreadyStarted)

		case kind == kindStart:
			var out attempt.AnswerState
			if err := workflow.ExecuteActivity(ctx, acts.StartAttempt, req.AnswerID).Get(ctx, &out); err != nil {
				logger.Warn("start rejected", "answer_id", req.AnswerID, "error", err)
				status.reject(err)
				if unstartable(err) {
					return nil, temporal.NewNonRetryableApplicationError("answer cannot be started", ErrTypeUnstartable, err)
				}
				continue
			}
			status.Phase = PhaseInProgress
			status.StartedAt = out.StartedAt
			if req.TimeLimit > 0 {
				var timerCtx workflow.Context
				timerCtx, cancelTimer = workflow.WithCancel(ctx)
				status.Deadline = workflow.Now(ctx).Add(req.TimeLimit)
				deadline = workflow.NewTimer(timerCtx, req.TimeLimit)
			}

		case !started:
			status.reject(ErrNotStarted)

		case kind == kindSubmit:
			var out attempt.SubmitOutput
			in := attempt.SubmitInput{AnswerID: req.AnswerID, QuestionID: sub.QuestionID, Response: sub.Response}
			if err := workflow.ExecuteActivity(ctx, acts.SubmitResponse, in).Get(ctx, &out); err != nil {
				logger.Warn("submission rejected", "answer_id", req.AnswerID, "question_id", sub.QuestionID, "error", err)
				status.reject(err)
				continue
			}
			status.Accepted++
			status.Points[out.QuestionID] = out.Points

		case kind == kindFinish, kind == kindDeadline:
			cancelTimer()
			var out attempt.FinishOutput
			if err := workflow.ExecuteActivity(ctx, acts.FinishAttempt, req.AnswerID).Get(ctx, &out); err != nil {
				status.LastError = err.Error()
				return nil, err
			}
			status.Phase = PhaseFinished
			logger.Info("attempt finished", "answer_id", req.AnswerID,
				"total_points", out.TotalPoints, "auto_finished", kind == kindDeadline)
			return &AttemptResult{
				FinishOutput: out,
				AutoFinished: kind == kindDeadline,
				Accepted:     status.Accepted,
				Rejected:     status.Rejected,
			}, nil
		}
	}
}
