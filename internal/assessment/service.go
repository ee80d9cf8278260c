// Package assessment is the application service over the domain core. It
// loads aggregates through the persistence ports, applies one lifecycle
// operation, saves with a version compare-and-swap, and then emits the
// resulting lifecycle events, records metrics and logs.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/pkg/events"
)

// Default submission throttle: a sustained 5 submissions per second per
// answer with bursts of 10, and buckets idle for ten minutes are dropped.
const (
	DefaultSubmitRate  = 5.0
	DefaultSubmitBurst = 10
	DefaultLimiterIdle = 10 * time.Minute
)

// Service coordinates exams, answers and applicants.
type Service struct {
	exams      domain.ExamRepository
	answers    domain.AnswerRepository
	applicants domain.ApplicantDirectory

	sink    events.EventSink
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
	limiter *submitLimiter
}

// Option configures a Service.
type Option func(*Service)

// WithEventSink sets where lifecycle events go. The default discards them.
func WithEventSink(sink events.EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithMetrics sets the metrics receiver.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSubmitLimit configures the per-answer submission throttle. A
// non-positive rate disables throttling.
func WithSubmitLimit(perSecond float64, burst int, idle time.Duration) Option {
	return func(s *Service) {
		s.limiter = newSubmitLimiter(perSecond, burst, idle)
	}
}

// NewService wires the ports.
func NewService(
	exams domain.ExamRepository,
	answers domain.AnswerRepository,
	applicants domain.ApplicantDirectory,
	opts ...Option,
) *Service {
	s := &Service{
		exams:      exams,
		answers:    answers,
		applicants: applicants,
		sink:       events.NewNoOpEventSink(),
		metrics:    NopMetrics{},
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		limiter:    newSubmitLimiter(DefaultSubmitRate, DefaultSubmitBurst, DefaultLimiterIdle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExamInput is the authoring form of an exam.
type ExamInput struct {
	Title        string
	Description  string
	Instructions string
	Questions    []domain.Question
}

// CreateExam validates and stores a new exam together with its questions.
func (s *Service) CreateExam(ctx context.Context, in ExamInput) (*domain.Exam, error) {
	exam, err := domain.NewExam(in.Title, in.Description, in.Instructions)
	if err != nil {
		return nil, err
	}
	for _, q := range in.Questions {
		if err := exam.AddQuestion(q); err != nil {
			return nil, err
		}
	}
	if err := s.exams.SaveExam(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to save exam: %w", err)
	}
	s.logger.InfoContext(ctx, "exam created",
		"exam_id", exam.ID().String(), "questions", exam.Len())
	return exam, nil
}

// AddToBank stores questions that exams can later append.
func (s *Service) AddToBank(ctx context.Context, qs ...domain.Question) error {
	for _, q := range qs {
		if err := s.exams.SaveQuestion(ctx, q); err != nil {
			return fmt.Errorf("failed to save question %s: %w", q.ID(), err)
		}
	}
	return nil
}

// AppendQuestions attaches bank questions to an exam.
func (s *Service) AppendQuestions(ctx context.Context, examID domain.ID, questionIDs []domain.ID) error {
	if err := s.exams.AppendQuestions(ctx, examID, questionIDs); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "questions appended",
		"exam_id", examID.String(), "requested", len(questionIDs))
	return nil
}

// ReorderQuestions moves the named questions to the front of the exam in the
// given order. Unknown identities are ignored.
func (s *Service) ReorderQuestions(ctx context.Context, examID domain.ID, questionIDs []domain.ID) (*domain.Exam, error) {
	return s.editExam(ctx, examID, "questions reordered", func(e *domain.Exam) error {
		e.Reorder(questionIDs)
		return nil
	})
}

// RemoveQuestion detaches a question from the exam. It stays in the bank, and
// evaluations already assigned keep their snapshot.
func (s *Service) RemoveQuestion(ctx context.Context, examID, questionID domain.ID) (*domain.Exam, error) {
	return s.editExam(ctx, examID, "question removed", func(e *domain.Exam) error {
		_, err := e.RemoveQuestion(questionID)
		return err
	})
}

// RemoveQuestionAt detaches the question at a zero-based position.
func (s *Service) RemoveQuestionAt(ctx context.Context, examID domain.ID, index int) (*domain.Exam, error) {
	return s.editExam(ctx, examID, "question removed", func(e *domain.Exam) error {
		_, err := e.RemoveQuestionAt(index)
		return err
	})
}

// editExam loads an exam, applies fn and stores the result. Exam edits are
// last-writer-wins; answers never read the live exam.
func (s *Service) editExam(
	ctx context.Context, examID domain.ID, msg string, fn func(*domain.Exam) error,
) (*domain.Exam, error) {
	exam, err := s.exams.LoadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := fn(exam); err != nil {
		return nil, err
	}
	if err := s.exams.SaveExam(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to save exam: %w", err)
	}
	s.logger.InfoContext(ctx, msg, "exam_id", examID.String(), "questions", exam.Len())
	return exam, nil
}

// LoadExam returns a stored exam.
func (s *Service) LoadExam(ctx context.Context, examID domain.ID) (*domain.Exam, error) {
	return s.exams.LoadExam(ctx, examID)
}

// AssignEvaluation snapshots the named exams into evaluation evaluationID and
// assigns it to the applicant. A second assignment of the same evaluation to
// the same applicant fails with domain.ErrAlreadyAssigned.
func (s *Service) AssignEvaluation(
	ctx context.Context, evaluationID, applicantID domain.ID, examIDs []domain.ID,
) (*domain.Answer, error) {
	a, err := s.assign(ctx, evaluationID, applicantID, examIDs)
	s.metrics.Transition(domain.OpAssign, outcomeOf(err))
	if err != nil {
		s.logger.InfoContext(ctx, "assignment rejected",
			"evaluation_id", evaluationID.String(), "applicant_id", applicantID.String(), "error", err)
		return nil, err
	}
	s.publish(ctx, a)
	s.logger.InfoContext(ctx, "evaluation assigned",
		"answer_id", a.ID().String(),
		"evaluation_id", evaluationID.String(),
		"applicant_id", applicantID.String(),
		"exams", len(examIDs),
		"questions", a.Evaluation().QuestionCount())
	return a, nil
}

func (s *Service) assign(
	ctx context.Context, evaluationID, applicantID domain.ID, examIDs []domain.ID,
) (*domain.Answer, error) {
	if len(examIDs) == 0 {
		return nil, ErrNoExams
	}
	ok, err := s.applicants.Exists(ctx, applicantID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up applicant: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("applicant %s: %w", applicantID, ErrApplicantNotFound)
	}

	exams := make([]*domain.Exam, 0, len(examIDs))
	for _, id := range examIDs {
		e, err := s.exams.LoadExam(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load exam %s: %w", id, err)
		}
		exams = append(exams, e)
	}
	ev, err := domain.NewEvaluation(evaluationID, exams)
	if err != nil {
		return nil, err
	}
	a, err := domain.NewAnswer(ev, applicantID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.answers.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// apply runs one lifecycle operation against the stored answer and saves it
// with a compare-and-swap on the version it was loaded at.
func (s *Service) apply(
	ctx context.Context, answerID domain.ID, op domain.Operation,
	fn func(a *domain.Answer, now time.Time) error,
) (*domain.Answer, error) {
	a, err := s.answers.LoadAnswer(ctx, answerID)
	if err != nil {
		s.metrics.Transition(op, OutcomeError)
		return nil, fmt.Errorf("failed to load answer %s: %w", answerID, err)
	}
	expected := a.Version()

	if err := fn(a, s.now()); err != nil {
		s.metrics.Transition(op, outcomeOf(err))
		s.logger.InfoContext(ctx, "lifecycle operation rejected",
			"answer_id", answerID.String(), "operation", op.String(), "state", a.State().String(), "error", err)
		return nil, err
	}
	if err := s.answers.SaveResponse(ctx, a, expected); err != nil {
		s.metrics.Transition(op, outcomeOf(err))
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			s.logger.WarnContext(ctx, "lifecycle operation lost a concurrent update",
				"answer_id", answerID.String(), "operation", op.String(), "expected_version", expected)
			return nil, err
		}
		return nil, fmt.Errorf("failed to save answer %s: %w", answerID, err)
	}

	s.metrics.Transition(op, OutcomeApplied)
	s.publish(ctx, a)
	s.logger.InfoContext(ctx, "lifecycle operation applied",
		"answer_id", answerID.String(),
		"applicant_id", a.ApplicantID().String(),
		"operation", op.String(),
		"state", a.State().String(),
		"version", a.Version())
	return a, nil
}

// Start opens the attempt.
func (s *Service) Start(ctx context.Context, answerID domain.ID) (*domain.Answer, error) {
	return s.apply(ctx, answerID, domain.OpStart, func(a *domain.Answer, now time.Time) error {
		return a.Start(now)
	})
}

// SubmitResult describes an accepted response.
type SubmitResult struct {
	QuestionID domain.ID
	ExamID     domain.ID
	Points     domain.Score
	MaxPoints  domain.Score
	Version    uint64
}

// Submit records the applicant's response to one question. Submissions to
// the same answer are throttled; a rejected submission returns a
// *ThrottleError without touching storage.
func (s *Service) Submit(
	ctx context.Context, answerID, questionID domain.ID, r domain.Response,
) (SubmitResult, error) {
	if wait, ok := s.limiter.allow(answerID, s.now()); !ok {
		s.metrics.Throttled()
		return SubmitResult{}, &ThrottleError{AnswerID: answerID.String(), RetryAfter: wait}
	}

	var points domain.Score
	a, err := s.apply(ctx, answerID, domain.OpSubmit, func(a *domain.Answer, now time.Time) error {
		var err error
		points, err = a.Submit(questionID, r, now)
		return err
	})
	if err != nil {
		return SubmitResult{}, err
	}

	sub, _ := a.Response(questionID)
	res := SubmitResult{
		QuestionID: questionID,
		ExamID:     sub.ExamID,
		Points:     points,
		Version:    a.Version(),
	}
	res.MaxPoints, err = s.answers.ScoreLookup(ctx, sub.ExamID, questionID)
	if err != nil {
		// The exam may have changed or been removed since assignment; the
		// snapshot is authoritative for the answer.
		q, _, _ := a.Evaluation().Question(questionID)
		res.MaxPoints = q.MaxScore()
		s.logger.DebugContext(ctx, "score lookup fell back to snapshot",
			"answer_id", answerID.String(), "question_id", questionID.String(), "error", err)
	}
	return res, nil
}

// Finish closes the attempt and scores every exam.
func (s *Service) Finish(ctx context.Context, answerID domain.ID) (*domain.Answer, error) {
	a, err := s.apply(ctx, answerID, domain.OpFinish, func(a *domain.Answer, now time.Time) error {
		return a.Finish(now)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range a.Results() {
		s.metrics.ExamScored(r.Points.Value())
	}
	return a, nil
}

// BeginReview moves a finished answer under review.
func (s *Service) BeginReview(ctx context.Context, answerID domain.ID) (*domain.Answer, error) {
	return s.apply(ctx, answerID, domain.OpBeginReview, func(a *domain.Answer, now time.Time) error {
		return a.BeginReview(now)
	})
}

// RecordObservation attaches a reviewer note to one exam of the answer.
func (s *Service) RecordObservation(
	ctx context.Context, answerID, examID domain.ID, note string, reviewer domain.Reviewer,
) (*domain.Answer, error) {
	return s.apply(ctx, answerID, domain.OpObserve, func(a *domain.Answer, now time.Time) error {
		return a.RecordObservation(examID, note, reviewer, now)
	})
}

// FinalizeReview closes the review with a final revision status.
func (s *Service) FinalizeReview(
	ctx context.Context, answerID domain.ID, status domain.RevisionStatus, reviewer domain.Reviewer,
) (*domain.Answer, error) {
	return s.apply(ctx, answerID, domain.OpFinalize, func(a *domain.Answer, now time.Time) error {
		return a.FinalizeReview(status, reviewer, now)
	})
}

// LoadAnswer returns a stored answer.
func (s *Service) LoadAnswer(ctx context.Context, answerID domain.ID) (*domain.Answer, error) {
	return s.answers.LoadAnswer(ctx, answerID)
}

// CurrentAnswer returns the applicant's most recently assigned answer.
func (s *Service) CurrentAnswer(ctx context.Context, applicantID domain.ID) (*domain.Answer, error) {
	return s.answers.LoadByApplicant(ctx, applicantID)
}

// PendingRevision lists finished answers that still await a final revision,
// oldest assignment first. Answers that were never finished are excluded.
func (s *Service) PendingRevision(ctx context.Context) ([]*domain.Answer, error) {
	all, err := s.answers.ListByRevisionStatus(ctx, domain.RevisionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending answers: %w", err)
	}
	out := all[:0]
	for _, a := range all {
		if a.State().Finished() {
			out = append(out, a)
		}
	}
	return out, nil
}

// Elapsed returns the time the applicant has spent on the answer so far.
func (s *Service) Elapsed(ctx context.Context, answerID domain.ID) (time.Duration, error) {
	a, err := s.answers.LoadAnswer(ctx, answerID)
	if err != nil {
		return 0, err
	}
	return a.Elapsed(s.now()), nil
}

// ElapsedSince measures from a stored RFC 3339 start timestamp. An
// unparsable timestamp yields zero and is logged.
func (s *Service) ElapsedSince(ctx context.Context, start string) time.Duration {
	d, ok := domain.ElapsedSince(start, s.now())
	if !ok {
		s.logger.WarnContext(ctx, "unparsable start timestamp, reporting zero elapsed", "start", start)
	}
	return d
}
