package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/record"
	"github.com/ahrav/go-examen/internal/store/memory"
	"github.com/ahrav/go-examen/internal/workflow"
)

type harness struct {
	app      *app
	out      *bytes.Buffer
	store    *memory.Store
	temporal *mocks.Client
	dials    int
}

type storeRegistrar struct{ store *memory.Store }

func (r storeRegistrar) RegisterApplicant(_ context.Context, id domain.ID) error {
	r.store.RegisterApplicant(id)
	return nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := configuration.DefaultConfig()
	cfg.Temporal.TaskQueue = "examen-test"
	cfg.Attempt.TimeLimit = 45 * time.Minute

	h := &harness{
		out:      &bytes.Buffer{},
		store:    memory.New(),
		temporal: &mocks.Client{},
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h.app = &app{
		cfg:        cfg,
		logger:     logger,
		out:        h.out,
		svc:        assessment.NewService(h.store, h.store, h.store, assessment.WithLogger(logger)),
		applicants: storeRegistrar{store: h.store},
		dial: func() (client.Client, error) {
			h.dials++
			return h.temporal, nil
		},
	}
	t.Cleanup(func() { h.temporal.AssertExpectations(t) })
	return h
}

// exec runs one command and returns its decoded JSON output.
func (h *harness) exec(t *testing.T, args []string, into any) error {
	t.Helper()
	h.out.Reset()
	cmd, rest, ok := lookup(args)
	require.True(t, ok, "unknown command %v", args)
	if err := cmd.run(context.Background(), h.app, rest); err != nil {
		return err
	}
	if into != nil {
		require.NoError(t, json.Unmarshal(h.out.Bytes(), into))
	}
	return nil
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const examJSON = `{
  "title": "Geografía",
  "instructions": "Responda todas las preguntas.",
  "questions": [
    {
      "kind": "single_choice",
      "content": "Capital de Francia",
      "options": [{"key": "A", "text": "Lyon"}, {"key": "B", "text": "París"}],
      "correct_key": "B",
      "score": 2
    },
    {"kind": "short_answer", "content": "Capital de Chile", "expected": "Santiago", "score": 3}
  ]
}`

func TestLookup(t *testing.T) {
	cmd, rest, ok := lookup([]string{"attempt", "submit", "-answer", "x"})
	require.True(t, ok)
	assert.Equal(t, commands["attempt submit"].summary, cmd.summary)
	assert.Equal(t, []string{"-answer", "x"}, rest)

	_, rest, ok = lookup([]string{"assign", "-applicant", "y"})
	require.True(t, ok)
	assert.Equal(t, []string{"-applicant", "y"}, rest)

	_, _, ok = lookup([]string{"exam"})
	assert.False(t, ok)
	_, _, ok = lookup(nil)
	assert.False(t, ok)
}

func TestUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	usage(&buf)
	for name := range commands {
		assert.Contains(t, buf.String(), name)
	}
}

func TestRun_RejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), "", []string{"nope"})
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_RejectsMemoryStore(t *testing.T) {
	err := run(context.Background(), "", []string{"review", "pending"})
	assert.ErrorIs(t, err, configuration.ErrInvalidConfig)
}

func TestAuthoringAndAssignment(t *testing.T) {
	h := newHarness(t)

	var exam record.ExamRecord
	require.NoError(t, h.exec(t, []string{"exam", "create", "-file", writeFile(t, "exam.json", examJSON)}, &exam))
	require.Len(t, exam.Questions, 2)
	assert.Equal(t, "Geografía", exam.Title)
	for _, q := range exam.Questions {
		_, err := domain.ParseID(q.ID)
		assert.NoError(t, err, "generated question id")
	}

	var bank []record.QuestionRecord
	require.NoError(t, h.exec(t, []string{"bank", "add", "-file", writeFile(t, "bank.json",
		`[{"kind": "free_text", "content": "Describa su ciudad"}]`)}, &bank))
	require.Len(t, bank, 1)

	require.NoError(t, h.exec(t, []string{"exam", "append", "-id", exam.ID, "-questions", bank[0].ID}, &exam))
	assert.Len(t, exam.Questions, 3)

	var shown record.ExamRecord
	require.NoError(t, h.exec(t, []string{"exam", "show", "-id", exam.ID}, &shown))
	assert.Equal(t, exam, shown)

	var applicant map[string]string
	require.NoError(t, h.exec(t, []string{"applicant", "add"}, &applicant))
	applicantID := applicant["applicant_id"]

	var answer record.AnswerRecord
	require.NoError(t, h.exec(t, []string{"assign", "-applicant", applicantID, "-exams", exam.ID}, &answer))
	assert.Equal(t, "created", answer.State)
	assert.Equal(t, applicantID, answer.ApplicantID)

	var current struct {
		record.AnswerRecord
		Elapsed string   `json:"elapsed"`
		Next    []string `json:"next_operations"`
	}
	require.NoError(t, h.exec(t, []string{"answer", "show", "-applicant", applicantID}, &current))
	assert.Equal(t, answer.ID, current.ID)
	assert.Equal(t, "0s", current.Elapsed)
	assert.Equal(t, []string{"start"}, current.Next)

	err := h.exec(t, []string{"assign", "-applicant", domain.NewID().String(), "-exams", exam.ID}, nil)
	assert.ErrorIs(t, err, assessment.ErrApplicantNotFound)
	assert.Zero(t, h.dials, "authoring must not dial temporal")
}

func TestExamEditing(t *testing.T) {
	h := newHarness(t)

	var exam examView
	require.NoError(t, h.exec(t, []string{"exam", "create", "-file", writeFile(t, "exam.json", examJSON)}, &exam))
	assert.Equal(t, 5.0, exam.MaxPoints)
	first, second := exam.Questions[0].ID, exam.Questions[1].ID

	var reordered struct {
		ExamID string   `json:"exam_id"`
		Order  []string `json:"order"`
	}
	require.NoError(t, h.exec(t, []string{"exam", "reorder", "-id", exam.ID, "-questions", second}, &reordered))
	assert.Equal(t, exam.ID, reordered.ExamID)
	assert.Equal(t, []string{second, first}, reordered.Order)

	require.NoError(t, h.exec(t, []string{"exam", "remove", "-id", exam.ID, "-index", "0"}, &exam))
	require.Len(t, exam.Questions, 1)
	assert.Equal(t, first, exam.Questions[0].ID)
	assert.Equal(t, 2.0, exam.MaxPoints)

	err := h.exec(t, []string{"exam", "remove", "-id", exam.ID, "-question", second}, nil)
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	require.NoError(t, h.exec(t, []string{"exam", "remove", "-id", exam.ID, "-question", first}, &exam))
	assert.Empty(t, exam.Questions)
	assert.Zero(t, exam.MaxPoints)

	err = h.exec(t, []string{"exam", "remove", "-id", exam.ID}, nil)
	assert.ErrorIs(t, err, errUsage)
	err = h.exec(t, []string{"exam", "remove", "-id", exam.ID, "-question", first, "-index", "0"}, nil)
	assert.ErrorIs(t, err, errUsage)
}

func TestCommandFlagErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"exam show without id", []string{"exam", "show"}, errUsage},
		{"append without questions", []string{"exam", "append", "-id", domain.NewID().String()}, errUsage},
		{"assign without exams", []string{"assign", "-applicant", domain.NewID().String()}, errUsage},
		{"answer show without selector", []string{"answer", "show"}, errUsage},
		{"attempt start without answer", []string{"attempt", "start"}, errUsage},
		{"unknown flag", []string{"review", "pending", "-x"}, errUsage},
		{"malformed answer id", []string{"attempt", "finish", "-answer", "nope"}, domain.ErrInvalidIDLength},
		{"unknown exam", []string{"exam", "show", "-id", domain.NewID().String()}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.exec(t, tt.args, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, h.dials)
}

func TestAttemptStart_SignalsWithStart(t *testing.T) {
	h := newHarness(t)
	answerID := domain.NewID().String()
	wfID := "attempt-" + answerID

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(wfID)
	run.On("GetRunID").Return("run-1")

	h.temporal.On("SignalWithStartWorkflow",
		mock.Anything, wfID, workflow.SignalStart, nil,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == wfID && o.TaskQueue == "examen-test"
		}),
		mock.Anything,
		mock.MatchedBy(func(r workflow.AttemptRequest) bool {
			return r.AnswerID == answerID && r.TimeLimit == 10*time.Minute
		}),
	).Return(run, nil).Once()

	var out map[string]string
	require.NoError(t, h.exec(t, []string{"attempt", "start", "-answer", answerID, "-time-limit", "10m"}, &out))
	assert.Equal(t, map[string]string{"workflow_id": wfID, "run_id": "run-1"}, out)
	assert.Equal(t, 1, h.dials)
}

func TestAttemptSubmitAndFinish_Signal(t *testing.T) {
	h := newHarness(t)
	answerID := domain.NewID().String()
	questionID := domain.NewID().String()
	wfID := "attempt-" + answerID

	h.temporal.On("SignalWorkflow", mock.Anything, wfID, "", workflow.SignalSubmit,
		workflow.Submission{QuestionID: questionID, Response: []string{"B", "C"}},
	).Return(nil).Once()
	h.temporal.On("SignalWorkflow", mock.Anything, wfID, "", workflow.SignalFinish, nil).
		Return(errors.New("workflow not found")).Once()

	require.NoError(t, h.exec(t, []string{
		"attempt", "submit", "-answer", answerID, "-question", questionID, "-value", "B", "-value", "C",
	}, nil))

	err := h.exec(t, []string{"attempt", "finish", "-answer", answerID}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to signal finish")
	assert.Equal(t, 1, h.dials, "client is dialed once and reused")
}

type statusValue struct{ st workflow.Status }

func (v statusValue) HasValue() bool { return true }

func (v statusValue) Get(ptr interface{}) error {
	*(ptr.(*workflow.Status)) = v.st
	return nil
}

func TestAttemptStatus_Queries(t *testing.T) {
	h := newHarness(t)
	answerID := domain.NewID().String()

	want := workflow.Status{
		AnswerID: answerID,
		Phase:    workflow.PhaseInProgress,
		Accepted: 2,
		Points:   map[string]float64{"q": 2},
	}
	h.temporal.On("QueryWorkflow", mock.Anything, "attempt-"+answerID, "", workflow.QueryStatus).
		Return(statusValue{st: want}, nil).Once()

	var got workflow.Status
	require.NoError(t, h.exec(t, []string{"attempt", "status", "-answer", answerID}, &got))
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.Accepted, got.Accepted)
	assert.Equal(t, want.Points, got.Points)
}

func TestReviewFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var exam record.ExamRecord
	require.NoError(t, h.exec(t, []string{"exam", "create", "-file", writeFile(t, "exam.json", examJSON)}, &exam))
	examID, err := domain.ParseID(exam.ID)
	require.NoError(t, err)

	applicantID := domain.NewID()
	h.store.RegisterApplicant(applicantID)
	ans, err := h.app.svc.AssignEvaluation(ctx, domain.NewID(), applicantID, []domain.ID{examID})
	require.NoError(t, err)
	answerID := ans.ID().String()

	var pending []pendingEntry
	require.NoError(t, h.exec(t, []string{"review", "pending"}, &pending))
	assert.Empty(t, pending, "unfinished answers are not pending review")

	_, err = h.app.svc.Start(ctx, ans.ID())
	require.NoError(t, err)
	_, err = h.app.svc.Finish(ctx, ans.ID())
	require.NoError(t, err)

	require.NoError(t, h.exec(t, []string{"review", "pending"}, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, answerID, pending[0].AnswerID)
	assert.Equal(t, "finished", pending[0].State)

	var rec record.AnswerRecord
	require.NoError(t, h.exec(t, []string{"review", "begin", "-answer", answerID}, &rec))
	assert.Equal(t, "under_review", rec.State)

	require.NoError(t, h.exec(t, []string{
		"review", "observe", "-answer", answerID, "-exam", exam.ID,
		"-note", "Sin respuestas", "-reviewer", "user:ana@example.com",
	}, &rec))
	require.Len(t, rec.Results, 1)
	assert.Equal(t, "Sin respuestas", rec.Results[0].Observation)

	err = h.exec(t, []string{
		"review", "final", "-answer", answerID, "-status", "bogus", "-reviewer", "user:ana@example.com",
	}, nil)
	assert.Error(t, err)

	require.NoError(t, h.exec(t, []string{
		"review", "final", "-answer", answerID, "-status", "approved", "-reviewer", "user:ana@example.com",
	}, &rec))
	assert.Equal(t, "reviewed", rec.State)
	assert.Equal(t, "approved", rec.Revision)
	assert.Equal(t, "user:ana@example.com", rec.ReviewedBy)
}
