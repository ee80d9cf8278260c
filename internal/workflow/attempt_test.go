package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/attempt"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/store/memory"
	"github.com/ahrav/go-examen/pkg/activity"
	"github.com/ahrav/go-examen/pkg/events"
)

type attemptFixture struct {
	env      *testsuite.TestWorkflowEnvironment
	acts     *attempt.Activities
	svc      *assessment.Service
	sink     *events.MemorySink
	answerID string
	question domain.SingleChoice
}

// newAttemptFixture assigns a one-question exam and registers the real
// attempt activities against an in-memory store.
func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	sink := events.NewMemorySink()
	base := activity.NewBaseActivities(sink)
	svc := assessment.NewService(store, store, store,
		assessment.WithEventSink(base.Sink()),
		assessment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	q, err := domain.NewSingleChoice(domain.QuestionInput{Content: "¿Cuánto es 2 + 2?"},
		[]domain.OptionInput{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}},
		"B", domain.MustScore(2))
	require.NoError(t, err)
	exam, err := svc.CreateExam(ctx, assessment.ExamInput{Title: "Aritmética", Questions: []domain.Question{q}})
	require.NoError(t, err)
	applicant := domain.NewID()
	store.RegisterApplicant(applicant)
	ans, err := svc.AssignEvaluation(ctx, domain.NewID(), applicant, []domain.ID{exam.ID()})
	require.NoError(t, err)

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	acts := attempt.NewActivities(base, svc)
	env.RegisterActivity(acts.StartAttempt)
	env.RegisterActivity(acts.SubmitResponse)
	env.RegisterActivity(acts.FinishAttempt)

	return &attemptFixture{env: env, acts: acts, svc: svc, sink: sink, answerID: ans.ID().String(), question: q}
}

func (f *attemptFixture) request(limit time.Duration) AttemptRequest {
	return AttemptRequest{
		AnswerID:        f.answerID,
		TimeLimit:       limit,
		ActivityTimeout: 10 * time.Second,
		MaxAttempts:     3,
	}
}

func (f *attemptFixture) signalAt(d time.Duration, name string, payload any) {
	f.env.RegisterDelayedCallback(func() { f.env.SignalWorkflow(name, payload) }, d)
}

func (f *attemptFixture) result(t *testing.T) AttemptResult {
	t.Helper()
	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())
	var res AttemptResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	return res
}

func TestAttemptWorkflow_FinishSignal(t *testing.T) {
	f := newAttemptFixture(t)
	f.signalAt(time.Minute, SignalStart, nil)
	f.signalAt(2*time.Minute, SignalSubmit, Submission{QuestionID: f.question.ID().String(), Response: []string{"B"}})
	f.env.RegisterDelayedCallback(func() {
		v, err := f.env.QueryWorkflow(QueryStatus)
		if !assert.NoError(t, err) {
			return
		}
		var st Status
		if assert.NoError(t, v.Get(&st)) {
			assert.Equal(t, PhaseInProgress, st.Phase)
			assert.Equal(t, 1, st.Accepted)
			assert.Equal(t, 2.0, st.Points[f.question.ID().String()])
			assert.False(t, st.Deadline.IsZero())
		}
	}, 3*time.Minute)
	f.signalAt(4*time.Minute, SignalFinish, nil)

	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(time.Hour))

	res := f.result(t)
	assert.False(t, res.AutoFinished)
	assert.Equal(t, 2.0, res.TotalPoints)
	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, domain.StateFinished.String(), res.State)
	assert.Equal(t, []string{
		string(domain.EventAnswerAssigned),
		string(domain.EventAnswerStarted),
		string(domain.EventResponseSubmitted),
		string(domain.EventAnswerFinished),
	}, f.sink.Types())
}

func TestAttemptWorkflow_TimeLimitAutoFinishes(t *testing.T) {
	f := newAttemptFixture(t)
	f.signalAt(time.Minute, SignalStart, nil)
	f.signalAt(5*time.Minute, SignalSubmit, Submission{QuestionID: f.question.ID().String(), Response: []string{"A"}})

	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(30*time.Minute))

	res := f.result(t)
	assert.True(t, res.AutoFinished)
	assert.Zero(t, res.TotalPoints)
	assert.Equal(t, 1, res.Accepted)
}

func TestAttemptWorkflow_SignalsBeforeStartAreRejected(t *testing.T) {
	f := newAttemptFixture(t)
	f.signalAt(10*time.Second, SignalSubmit, Submission{QuestionID: f.question.ID().String(), Response: []string{"B"}})
	f.signalAt(20*time.Second, SignalFinish, nil)
	f.signalAt(time.Minute, SignalStart, nil)
	f.signalAt(90*time.Second, SignalStart, nil)
	f.signalAt(2*time.Minute, SignalFinish, nil)

	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(0))

	res := f.result(t)
	assert.False(t, res.AutoFinished)
	assert.Equal(t, 3, res.Rejected, "submit and finish before start, then a second start")
	assert.Zero(t, res.Accepted)
}

func TestAttemptWorkflow_RejectedSubmissionKeepsRunning(t *testing.T) {
	f := newAttemptFixture(t)
	f.signalAt(time.Minute, SignalStart, nil)
	f.signalAt(2*time.Minute, SignalSubmit, Submission{QuestionID: domain.NewID().String(), Response: []string{"B"}})
	f.signalAt(3*time.Minute, SignalSubmit, Submission{QuestionID: f.question.ID().String(), Response: []string{"B"}})
	f.signalAt(4*time.Minute, SignalFinish, nil)

	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(time.Hour))

	res := f.result(t)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 2.0, res.TotalPoints)
}

func TestAttemptWorkflow_StartOnFinishedAnswerFails(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	id, err := domain.ParseID(f.answerID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.Finish(ctx, id)
	require.NoError(t, err)

	f.signalAt(time.Minute, SignalStart, nil)
	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(time.Hour))

	require.True(t, f.env.IsWorkflowCompleted())
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, f.env.GetWorkflowError(), &appErr)
	assert.Equal(t, ErrTypeUnstartable, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestAttemptWorkflow_StartOnUnknownAnswerFails(t *testing.T) {
	f := newAttemptFixture(t)
	req := f.request(time.Hour)
	req.AnswerID = domain.NewID().String()

	f.signalAt(time.Minute, SignalStart, nil)
	f.env.ExecuteWorkflow(AttemptWorkflow, req)

	require.True(t, f.env.IsWorkflowCompleted())
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, f.env.GetWorkflowError(), &appErr)
	assert.Equal(t, ErrTypeUnstartable, appErr.Type())
}

func TestUnstartable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transition", temporal.NewNonRetryableApplicationError("x", attempt.ErrTypeTransition, nil), true},
		{"not found", temporal.NewNonRetryableApplicationError("x", attempt.ErrTypeNotFound, nil), true},
		{"validation", temporal.NewNonRetryableApplicationError("x", attempt.ErrTypeValidation, nil), true},
		{"unavailable", temporal.NewApplicationError("x", attempt.ErrTypeUnavailable), false},
		{"plain", assert.AnError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unstartable(tt.err))
		})
	}
}

func TestAttemptWorkflow_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *AttemptRequest)
	}{
		{"malformed answer id", func(r *AttemptRequest) { r.AnswerID = "nope" }},
		{"missing answer id", func(r *AttemptRequest) { r.AnswerID = "" }},
		{"zero activity timeout", func(r *AttemptRequest) { r.ActivityTimeout = 0 }},
		{"negative time limit", func(r *AttemptRequest) { r.TimeLimit = -time.Minute }},
		{"zero attempts", func(r *AttemptRequest) { r.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAttemptFixture(t)
			req := f.request(time.Hour)
			tt.mutate(&req)

			f.env.ExecuteWorkflow(AttemptWorkflow, req)

			require.True(t, f.env.IsWorkflowCompleted())
			err := f.env.GetWorkflowError()
			var appErr *temporal.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "Validation", appErr.Type())
		})
	}
}

func TestAttemptWorkflow_FinishFailureFailsWorkflow(t *testing.T) {
	f := newAttemptFixture(t)
	f.env.OnActivity(f.acts.FinishAttempt, mock.Anything, mock.Anything).
		Return(attempt.FinishOutput{}, temporal.NewNonRetryableApplicationError("gone", attempt.ErrTypeNotFound, nil))
	f.signalAt(time.Minute, SignalStart, nil)
	f.signalAt(2*time.Minute, SignalFinish, nil)

	f.env.ExecuteWorkflow(AttemptWorkflow, f.request(time.Hour))

	require.True(t, f.env.IsWorkflowCompleted())
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, f.env.GetWorkflowError(), &appErr)
	assert.Equal(t, attempt.ErrTypeNotFound, appErr.Type())
}

func TestAttemptWorkflow_DeterministicReplays(t *testing.T) {
	for i := 0; i < 3; i++ {
		f := newAttemptFixture(t)
		f.signalAt(time.Minute, SignalStart, nil)
		f.signalAt(2*time.Minute, SignalFinish, nil)

		f.env.ExecuteWorkflow(AttemptWorkflow, f.request(time.Hour))

		res := f.result(t)
		assert.False(t, res.AutoFinished, "run %d", i+1)
	}
}
