package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/store/memory"
	"github.com/ahrav/go-examen/internal/workflow"
	"github.com/ahrav/go-examen/pkg/events"
)

func newTestEnv() *testsuite.TestWorkflowEnvironment {
	suite := &testsuite.WorkflowTestSuite{}
	return suite.NewTestWorkflowEnvironment()
}

func TestRegisterAll(t *testing.T) {
	cfg := configuration.DefaultConfig()
	store := memory.New()
	sink := events.NewMemorySink()
	env := newTestEnv()

	var svc *assessment.Service
	require.NotPanics(t, func() {
		svc = RegisterAll(env, cfg, Deps{
			Store:  store,
			Sink:   sink,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	})
	require.NotNil(t, svc)

	// The returned service emits through the registered sink.
	ctx := context.Background()
	q, err := domain.NewShortAnswer(domain.QuestionInput{Content: "¿Año de la independencia?"}, "1810", domain.MustScore(1))
	require.NoError(t, err)
	exam, err := svc.CreateExam(ctx, assessment.ExamInput{Title: "Historia", Questions: []domain.Question{q}})
	require.NoError(t, err)
	applicant := domain.NewID()
	store.RegisterApplicant(applicant)
	ans, err := svc.AssignEvaluation(ctx, domain.NewID(), applicant, []domain.ID{exam.ID()})
	require.NoError(t, err)
	assert.Equal(t, []string{string(domain.EventAnswerAssigned)}, sink.Types())

	// The registered workflow reaches every registered activity by name.
	env.RegisterDelayedCallback(func() { env.SignalWorkflow(workflow.SignalStart, nil) }, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(workflow.SignalSubmit, workflow.Submission{
			QuestionID: q.ID().String(), Response: []string{"1810"},
		})
	}, 2*time.Minute)
	env.RegisterDelayedCallback(func() { env.SignalWorkflow(workflow.SignalFinish, nil) }, 3*time.Minute)
	env.ExecuteWorkflow(workflow.AttemptWorkflow, AttemptRequest(cfg, ans.ID().String()))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var res workflow.AttemptResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, 1.0, res.TotalPoints)
	assert.Equal(t, 1, res.Accepted)
}

func TestRegisterAll_DefaultsOptionalDeps(t *testing.T) {
	env := newTestEnv()
	var svc *assessment.Service
	require.NotPanics(t, func() {
		svc = RegisterAll(env, configuration.DefaultConfig(), Deps{Store: memory.New()})
	})
	assert.NotNil(t, svc)
}

func TestAttemptRequest(t *testing.T) {
	cfg := configuration.DefaultConfig()
	id := domain.NewID().String()

	req := AttemptRequest(cfg, id)
	require.NoError(t, req.Validate())
	assert.Equal(t, id, req.AnswerID)
	assert.Equal(t, cfg.Attempt.TimeLimit, req.TimeLimit)
	assert.Equal(t, cfg.Attempt.MaxActivityAttempts, req.MaxAttempts)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory", func(t *testing.T) {
		b, err := OpenBackend(ctx, configuration.DefaultConfig(), logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, b.Store)
		assert.Nil(t, b.Client)

		applicant := domain.NewID()
		require.NoError(t, b.Applicants.RegisterApplicant(ctx, applicant))
		ok, err := b.Store.Exists(ctx, applicant)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, b.Close())
	})

	t.Run("event sinks", func(t *testing.T) {
		b, err := OpenBackend(ctx, configuration.DefaultConfig(), logger)
		require.NoError(t, err)

		cfg := configuration.DefaultConfig().Events
		sink, err := b.EventSink(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &events.SlogSink{}, sink)

		cfg.Sink = "none"
		sink, err = b.EventSink(cfg, logger)
		require.NoError(t, err)
		assert.NotNil(t, sink)

		cfg.Sink = "redis"
		_, err = b.EventSink(cfg, logger)
		assert.ErrorIs(t, err, configuration.ErrInvalidConfig, "no redis connection on the memory backend")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := configuration.DefaultConfig()
		cfg.Store.Backend = "etcd"
		_, err := OpenBackend(ctx, cfg, logger)
		assert.ErrorIs(t, err, configuration.ErrInvalidConfig)
	})
}
