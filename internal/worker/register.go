package worker

import (
	"log/slog"

	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/attempt"
	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/workflow"
	"github.com/ahrav/go-examen/pkg/activity"
	"github.com/ahrav/go-examen/pkg/events"
)

// Deps are the collaborators shared by every activity of the worker.
type Deps struct {
	Store   Store
	Sink    events.EventSink
	Metrics assessment.Metrics
	Logger  *slog.Logger
}

// Registry is the registration surface shared by sdkworker.Worker and the
// Temporal test environment.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

var _ Registry = sdkworker.Worker(nil)

// RegisterAll registers the attempt workflow and its activities with the
// Temporal worker and returns the service the activities run on. It must be
// called once, before the worker starts.
//
// The service emits through the base activities' sink, so events raised
// inside an activity carry the workflow and run IDs.
func RegisterAll(w Registry, cfg *configuration.Config, deps Deps) *assessment.Service {
	sink := deps.Sink
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = assessment.NopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := activity.NewBaseActivities(sink)
	svc := assessment.NewService(deps.Store, deps.Store, deps.Store,
		assessment.WithEventSink(base.Sink()),
		assessment.WithMetrics(metrics),
		assessment.WithLogger(logger),
		assessment.WithSubmitLimit(cfg.Submit.PerSecond, cfg.Submit.Burst, cfg.Submit.IdleTTL),
	)

	acts := attempt.NewActivities(base, svc)
	w.RegisterWorkflow(workflow.AttemptWorkflow)
	w.RegisterActivity(acts.StartAttempt)
	w.RegisterActivity(acts.SubmitResponse)
	w.RegisterActivity(acts.FinishAttempt)

	return svc
}

// AttemptRequest builds the workflow input for answerID from the configured
// attempt timing.
func AttemptRequest(cfg *configuration.Config, answerID string) workflow.AttemptRequest {
	return workflow.AttemptRequest{
		AnswerID:        answerID,
		TimeLimit:       cfg.Attempt.TimeLimit,
		ActivityTimeout: cfg.Attempt.ActivityTimeout,
		MaxAttempts:     cfg.Attempt.MaxActivityAttempts,
	}
}
