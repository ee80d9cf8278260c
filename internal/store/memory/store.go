// Package memory provides in-process implementations of the persistence ports.
// Values are kept in their record form so that callers never share mutable
// state with the store. Suitable for tests and single-process development;
// production deployments use the Redis adapter.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/record"
)

// assignmentKey identifies the (evaluation, applicant) pair an answer belongs to.
type assignmentKey struct {
	evaluation domain.ID
	applicant  domain.ID
}

// Store implements domain.ExamRepository, domain.AnswerRepository and
// domain.ApplicantDirectory behind a single RWMutex.
type Store struct {
	mu sync.RWMutex

	exams       map[domain.ID]record.ExamRecord
	bank        map[domain.ID]record.QuestionRecord
	answers     map[domain.ID]record.AnswerRecord
	assignments map[assignmentKey]domain.ID
	applicants  map[domain.ID]struct{}
}

var (
	_ domain.ExamRepository     = (*Store)(nil)
	_ domain.AnswerRepository   = (*Store)(nil)
	_ domain.ApplicantDirectory = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		exams:       make(map[domain.ID]record.ExamRecord),
		bank:        make(map[domain.ID]record.QuestionRecord),
		answers:     make(map[domain.ID]record.AnswerRecord),
		assignments: make(map[assignmentKey]domain.ID),
		applicants:  make(map[domain.ID]struct{}),
	}
}

// RegisterApplicant makes applicantID known to Exists.
func (s *Store) RegisterApplicant(applicantID domain.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applicants[applicantID] = struct{}{}
}

// Exists reports whether applicantID was registered.
func (s *Store) Exists(_ context.Context, applicantID domain.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applicants[applicantID]
	return ok, nil
}

// SaveExam stores the exam and adds its questions to the bank.
func (s *Store) SaveExam(_ context.Context, exam *domain.Exam) error {
	rec := record.FromExam(exam)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[exam.ID()] = rec
	for _, q := range rec.Questions {
		s.bank[domain.MustParseID(q.ID)] = q
	}
	return nil
}

// LoadExam decodes the stored exam.
func (s *Store) LoadExam(_ context.Context, id domain.ID) (*domain.Exam, error) {
	s.mu.RLock()
	rec, ok := s.exams[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exam %s: %w", id, domain.ErrNotFound)
	}
	return rec.ToDomain()
}

// SaveQuestion stores q in the bank.
func (s *Store) SaveQuestion(_ context.Context, q domain.Question) error {
	rec := record.FromQuestion(q)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bank[q.ID()] = rec
	return nil
}

// AppendQuestions attaches bank questions to an exam. The exam is rebuilt
// through the domain so every invariant is rechecked before the swap.
func (s *Store) AppendQuestions(_ context.Context, examID domain.ID, questionIDs []domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.exams[examID]
	if !ok {
		return fmt.Errorf("exam %s: %w", examID, domain.ErrEvaluationNotFound)
	}
	exam, err := rec.ToDomain()
	if err != nil {
		return err
	}
	for _, qid := range questionIDs {
		if exam.Contains(qid) {
			continue
		}
		qr, ok := s.bank[qid]
		if !ok {
			return fmt.Errorf("question %s: %w", qid, domain.ErrNotFound)
		}
		q, err := qr.ToDomain()
		if err != nil {
			return err
		}
		if err := exam.AddQuestion(q); err != nil {
			return err
		}
	}
	s.exams[examID] = record.FromExam(exam)
	return nil
}

// Create inserts a if no answer exists for its (evaluation, applicant) pair.
func (s *Store) Create(_ context.Context, a *domain.Answer) error {
	rec := record.FromAnswer(a)
	key := assignmentKey{evaluation: a.Evaluation().ID(), applicant: a.ApplicantID()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.assignments[key]; dup {
		return fmt.Errorf("applicant %s evaluation %s: %w", key.applicant, key.evaluation, domain.ErrAlreadyAssigned)
	}
	if _, dup := s.answers[a.ID()]; dup {
		return fmt.Errorf("answer %s: %w", a.ID(), domain.ErrAlreadyAssigned)
	}
	s.assignments[key] = a.ID()
	s.answers[a.ID()] = rec
	return nil
}

// SaveResponse replaces the stored answer when its version still equals
// expectedVersion.
func (s *Store) SaveResponse(_ context.Context, a *domain.Answer, expectedVersion uint64) error {
	rec := record.FromAnswer(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.answers[a.ID()]
	if !ok {
		return fmt.Errorf("answer %s: %w", a.ID(), domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("answer %s at version %d, expected %d: %w",
			a.ID(), cur.Version, expectedVersion, domain.ErrConcurrentUpdate)
	}
	s.answers[a.ID()] = rec
	return nil
}

// ScoreLookup returns the maximum score of questionID within examID.
func (s *Store) ScoreLookup(_ context.Context, examID, questionID domain.ID) (domain.Score, error) {
	s.mu.RLock()
	rec, ok := s.exams[examID]
	s.mu.RUnlock()
	if !ok {
		return domain.Score{}, fmt.Errorf("exam %s: %w", examID, domain.ErrNotFound)
	}

	want := questionID.String()
	for _, qr := range rec.Questions {
		if qr.ID != want {
			continue
		}
		q, err := qr.ToDomain()
		if err != nil {
			return domain.Score{}, err
		}
		return q.MaxScore(), nil
	}
	return domain.Score{}, fmt.Errorf("question %s in exam %s: %w", questionID, examID, domain.ErrNotFound)
}

// LoadAnswer decodes the stored answer.
func (s *Store) LoadAnswer(_ context.Context, id domain.ID) (*domain.Answer, error) {
	s.mu.RLock()
	rec, ok := s.answers[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("answer %s: %w", id, domain.ErrNotFound)
	}
	return rec.ToDomain()
}

// LoadByApplicant returns the applicant's most recently assigned answer.
// ULIDs sort by creation time, so the greatest answer ID breaks ties between
// equal assignment timestamps.
func (s *Store) LoadByApplicant(_ context.Context, applicantID domain.ID) (*domain.Answer, error) {
	s.mu.RLock()
	var latest []record.AnswerRecord
	for key, id := range s.assignments {
		if key.applicant == applicantID {
			latest = append(latest, s.answers[id])
		}
	}
	s.mu.RUnlock()

	if len(latest) == 0 {
		return nil, fmt.Errorf("applicant %s: %w", applicantID, domain.ErrNotFound)
	}
	answers, err := decodeAll(latest)
	if err != nil {
		return nil, err
	}
	return answers[len(answers)-1], nil
}

// ListByRevisionStatus returns the matching answers, oldest assignment first.
func (s *Store) ListByRevisionStatus(_ context.Context, status domain.RevisionStatus) ([]*domain.Answer, error) {
	want := status.String()

	s.mu.RLock()
	var matched []record.AnswerRecord
	for _, rec := range s.answers {
		if rec.Revision == want {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	return decodeAll(matched)
}

// decodeAll decodes records and orders them by assignment time, then identity.
func decodeAll(recs []record.AnswerRecord) ([]*domain.Answer, error) {
	out := make([]*domain.Answer, 0, len(recs))
	for _, rec := range recs {
		a, err := rec.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y *domain.Answer) int {
		if c := x.AssignedAt().Compare(y.AssignedAt()); c != 0 {
			return c
		}
		return x.ID().Compare(y.ID())
	})
	return out, nil
}
