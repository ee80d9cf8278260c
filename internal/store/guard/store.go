package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-examen/internal/domain"
)

// Backend is the persistence surface being guarded.
type Backend interface {
	domain.ExamRepository
	domain.AnswerRepository
	domain.ApplicantDirectory
}

// Store forwards every port call to the wrapped backend through a Breaker.
// Domain outcomes such as ErrNotFound or ErrConcurrentUpdate prove the store
// is answering and count as successes; only infrastructure errors count as
// failures. Cancelled calls do not count either way.
type Store struct {
	next Backend
	cb   *Breaker
}

var _ Backend = (*Store)(nil)

// New wraps next with cb.
func New(next Backend, cb *Breaker) *Store {
	return &Store{next: next, cb: cb}
}

// Breaker returns the breaker guarding the store.
func (s *Store) Breaker() *Breaker { return s.cb }

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeIgnored
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrEvaluationNotFound),
		errors.Is(err, domain.ErrConcurrentUpdate),
		domain.IsStateError(err),
		domain.IsValidationError(err):
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}

func guard[T any](cb *Breaker, op string, fn func() (T, error)) (T, error) {
	release, err := cb.allow()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	v, err := fn()
	cb.record(classify(err))
	return v, err
}

func guardErr(cb *Breaker, op string, fn func() error) error {
	_, err := guard(cb, op, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// SaveExam implements domain.ExamRepository.
func (s *Store) SaveExam(ctx context.Context, exam *domain.Exam) error {
	return guardErr(s.cb, "save exam", func() error { return s.next.SaveExam(ctx, exam) })
}

// LoadExam implements domain.ExamRepository.
func (s *Store) LoadExam(ctx context.Context, id domain.ID) (*domain.Exam, error) {
	return guard(s.cb, "load exam", func() (*domain.Exam, error) { return s.next.LoadExam(ctx, id) })
}

// SaveQuestion implements domain.ExamRepository.
func (s *Store) SaveQuestion(ctx context.Context, q domain.Question) error {
	return guardErr(s.cb, "save question", func() error { return s.next.SaveQuestion(ctx, q) })
}

// AppendQuestions implements domain.ExamRepository.
func (s *Store) AppendQuestions(ctx context.Context, examID domain.ID, questionIDs []domain.ID) error {
	return guardErr(s.cb, "append questions", func() error {
		return s.next.AppendQuestions(ctx, examID, questionIDs)
	})
}

// Create implements domain.AnswerRepository.
func (s *Store) Create(ctx context.Context, a *domain.Answer) error {
	return guardErr(s.cb, "create answer", func() error { return s.next.Create(ctx, a) })
}

// SaveResponse implements domain.AnswerRepository.
func (s *Store) SaveResponse(ctx context.Context, a *domain.Answer, expectedVersion uint64) error {
	return guardErr(s.cb, "save answer", func() error { return s.next.SaveResponse(ctx, a, expectedVersion) })
}

// ScoreLookup implements domain.AnswerRepository.
func (s *Store) ScoreLookup(ctx context.Context, examID, questionID domain.ID) (domain.Score, error) {
	return guard(s.cb, "score lookup", func() (domain.Score, error) {
		return s.next.ScoreLookup(ctx, examID, questionID)
	})
}

// LoadByApplicant implements domain.AnswerRepository.
func (s *Store) LoadByApplicant(ctx context.Context, applicantID domain.ID) (*domain.Answer, error) {
	return guard(s.cb, "load by applicant", func() (*domain.Answer, error) {
		return s.next.LoadByApplicant(ctx, applicantID)
	})
}

// LoadAnswer implements domain.AnswerRepository.
func (s *Store) LoadAnswer(ctx context.Context, id domain.ID) (*domain.Answer, error) {
	return guard(s.cb, "load answer", func() (*domain.Answer, error) { return s.next.LoadAnswer(ctx, id) })
}

// ListByRevisionStatus implements domain.AnswerRepository.
func (s *Store) ListByRevisionStatus(ctx context.Context, status domain.RevisionStatus) ([]*domain.Answer, error) {
	return guard(s.cb, "list by revision", func() ([]*domain.Answer, error) {
		return s.next.ListByRevisionStatus(ctx, status)
	})
}

// Exists implements domain.ApplicantDirectory.
func (s *Store) Exists(ctx context.Context, applicantID domain.ID) (bool, error) {
	return guard(s.cb, "applicant exists", func() (bool, error) { return s.next.Exists(ctx, applicantID) })
}
