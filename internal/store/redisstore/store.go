// Package redisstore persists exams and answers in Redis as JSON records.
//
// Invariants that span keys are enforced in Lua scripts so that they hold
// across worker processes: assignment is an insert-if-absent keyed by
// (evaluation, applicant), and every answer save is a compare-and-swap on the
// record's version. Secondary indexes (answers per applicant, answers per
// revision status) are sorted sets scored by assignment time and are updated
// inside the same scripts.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/record"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "examen"

// maxExamSwapAttempts bounds the optimistic retries of AppendQuestions.
const maxExamSwapAttempts = 5

// revisions lists every status in the order its index key is passed to saveAnswer.
var revisions = []domain.RevisionStatus{
	domain.RevisionPending,
	domain.RevisionApproved,
	domain.RevisionRejected,
	domain.RevisionNeedsFollowUp,
}

var errUnexpectedScriptResult = errors.New("unexpected script result")

// Store implements domain.ExamRepository, domain.AnswerRepository and
// domain.ApplicantDirectory on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var (
	_ domain.ExamRepository     = (*Store)(nil)
	_ domain.AnswerRepository   = (*Store)(nil)
	_ domain.ApplicantDirectory = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) examKey(id domain.ID) string { return s.prefix + ":exam:" + id.String() }
func (s *Store) questionKey(id domain.ID) string { return s.prefix + ":question:" + id.String() }
func (s *Store) answerKey(id domain.ID) string { return s.prefix + ":answer:" + id.String() }
func (s *Store) applicantsKey() string { return s.prefix + ":applicants" }

func (s *Store) assignmentKey(evaluationID, applicantID domain.ID) string {
	return s.prefix + ":assignment:" + evaluationID.String() + ":" + applicantID.String()
}

func (s *Store) byApplicantKey(applicantID domain.ID) string {
	return s.prefix + ":idx:applicant:" + applicantID.String()
}

func (s *Store) byRevisionKey(status domain.RevisionStatus) string {
	return s.prefix + ":idx:revision:" + status.String()
}

// RegisterApplicant makes applicantID known to Exists.
func (s *Store) RegisterApplicant(ctx context.Context, applicantID domain.ID) error {
	if err := s.client.SAdd(ctx, s.applicantsKey(), applicantID.String()).Err(); err != nil {
		return fmt.Errorf("failed to register applicant %s: %w", applicantID, err)
	}
	return nil
}

// Exists reports whether applicantID was registered.
func (s *Store) Exists(ctx context.Context, applicantID domain.ID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.applicantsKey(), applicantID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up applicant %s: %w", applicantID, err)
	}
	return ok, nil
}

// SaveExam writes the exam and every question it holds in one transaction.
func (s *Store) SaveExam(ctx context.Context, exam *domain.Exam) error {
	rec := record.FromExam(exam)
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode exam %s: %w", exam.ID(), err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.examKey(exam.ID()), raw, 0)
		for _, q := range exam.Questions() {
			qraw, err := json.Marshal(record.FromQuestion(q))
			if err != nil {
				return fmt.Errorf("failed to encode question %s: %w", q.ID(), err)
			}
			p.Set(ctx, s.questionKey(q.ID()), qraw, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save exam %s: %w", exam.ID(), err)
	}
	return nil
}

// LoadExam decodes the stored exam.
func (s *Store) LoadExam(ctx context.Context, id domain.ID) (*domain.Exam, error) {
	_, rec, err := s.readExam(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.ToDomain()
}

func (s *Store) readExam(ctx context.Context, id domain.ID) (string, record.ExamRecord, error) {
	raw, err := s.client.Get(ctx, s.examKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", record.ExamRecord{}, fmt.Errorf("exam %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", record.ExamRecord{}, fmt.Errorf("failed to read exam %s: %w", id, err)
	}
	var rec record.ExamRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", record.ExamRecord{}, fmt.Errorf("failed to decode exam %s: %w", id, err)
	}
	return raw, rec, nil
}

// SaveQuestion stores q in the bank.
func (s *Store) SaveQuestion(ctx context.Context, q domain.Question) error {
	raw, err := json.Marshal(record.FromQuestion(q))
	if err != nil {
		return fmt.Errorf("failed to encode question %s: %w", q.ID(), err)
	}
	if err := s.client.Set(ctx, s.questionKey(q.ID()), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save question %s: %w", q.ID(), err)
	}
	return nil
}

func (s *Store) loadQuestion(ctx context.Context, id domain.ID) (domain.Question, error) {
	raw, err := s.client.Get(ctx, s.questionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("question %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read question %s: %w", id, err)
	}
	var rec record.QuestionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode question %s: %w", id, err)
	}
	return rec.ToDomain()
}

// AppendQuestions rebuilds the exam with the new questions and swaps it in
// only if no other writer changed it meanwhile, retrying a bounded number of
// times.
func (s *Store) AppendQuestions(ctx context.Context, examID domain.ID, questionIDs []domain.ID) error {
	for attempt := 1; attempt <= maxExamSwapAttempts; attempt++ {
		before, rec, err := s.readExam(ctx, examID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("exam %s: %w", examID, domain.ErrEvaluationNotFound)
		}
		if err != nil {
			return err
		}
		exam, err := rec.ToDomain()
		if err != nil {
			return err
		}
		for _, qid := range questionIDs {
			if exam.Contains(qid) {
				continue
			}
			q, err := s.loadQuestion(ctx, qid)
			if err != nil {
				return err
			}
			if err := exam.AddQuestion(q); err != nil {
				return err
			}
		}
		after, err := json.Marshal(record.FromExam(exam))
		if err != nil {
			return fmt.Errorf("failed to encode exam %s: %w", examID, err)
		}

		res, err := swapExam.Run(ctx, s.client, []string{s.examKey(examID)}, before, after).Int64()
		if err != nil {
			return fmt.Errorf("failed to append to exam %s: %w", examID, err)
		}
		switch res {
		case 1:
			return nil
		case -1:
			return fmt.Errorf("exam %s: %w", examID, domain.ErrEvaluationNotFound)
		case 0:
			s.logger.Debug("exam changed during append, retrying", "exam_id", examID.String(), "attempt", attempt)
		default:
			return fmt.Errorf("%w: %d", errUnexpectedScriptResult, res)
		}
	}
	return fmt.Errorf("exam %s after %d attempts: %w", examID, maxExamSwapAttempts, domain.ErrConcurrentUpdate)
}

// Create inserts a if no answer exists for its (evaluation, applicant) pair.
func (s *Store) Create(ctx context.Context, a *domain.Answer) error {
	raw, err := json.Marshal(record.FromAnswer(a))
	if err != nil {
		return fmt.Errorf("failed to encode answer %s: %w", a.ID(), err)
	}
	keys := []string{
		s.assignmentKey(a.Evaluation().ID(), a.ApplicantID()),
		s.answerKey(a.ID()),
		s.byApplicantKey(a.ApplicantID()),
		s.byRevisionKey(a.Revision()),
	}
	res, err := createAnswer.Run(ctx, s.client, keys, a.ID().String(), raw, a.AssignedAt().UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("failed to create answer %s: %w", a.ID(), err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("applicant %s evaluation %s: %w", a.ApplicantID(), a.Evaluation().ID(), domain.ErrAlreadyAssigned)
	default:
		return fmt.Errorf("%w: %d", errUnexpectedScriptResult, res)
	}
}

// SaveResponse replaces the stored answer when its version still equals
// expectedVersion.
func (s *Store) SaveResponse(ctx context.Context, a *domain.Answer, expectedVersion uint64) error {
	raw, err := json.Marshal(record.FromAnswer(a))
	if err != nil {
		return fmt.Errorf("failed to encode answer %s: %w", a.ID(), err)
	}

	keys := make([]string, 0, 1+len(revisions))
	keys = append(keys, s.answerKey(a.ID()))
	target := 0
	for i, r := range revisions {
		keys = append(keys, s.byRevisionKey(r))
		if r == a.Revision() {
			target = i + 2 // Lua arrays are 1-based and KEYS[1] is the answer.
		}
	}
	if target == 0 {
		return fmt.Errorf("answer %s: %w", a.ID(), domain.ErrInvalidRevisionStatus)
	}

	res, err := saveAnswer.Run(ctx, s.client, keys,
		expectedVersion, raw, a.ID().String(), a.AssignedAt().UnixMilli(), target).Int64()
	if err != nil {
		return fmt.Errorf("failed to save answer %s: %w", a.ID(), err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("answer %s expected version %d: %w", a.ID(), expectedVersion, domain.ErrConcurrentUpdate)
	case -1:
		return fmt.Errorf("answer %s: %w", a.ID(), domain.ErrNotFound)
	default:
		return fmt.Errorf("%w: %d", errUnexpectedScriptResult, res)
	}
}

// ScoreLookup returns the maximum score of questionID within examID.
func (s *Store) ScoreLookup(ctx context.Context, examID, questionID domain.ID) (domain.Score, error) {
	_, rec, err := s.readExam(ctx, examID)
	if err != nil {
		return domain.Score{}, err
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
func (s *Store) LoadAnswer(ctx context.Context, id domain.ID) (*domain.Answer, error) {
	raw, err := s.client.Get(ctx, s.answerKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("answer %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read answer %s: %w", id, err)
	}
	return decodeAnswer(raw)
}

// LoadByApplicant returns the applicant's most recently assigned answer. The
// index is scored by assignment time; members with equal scores order
// lexically, which for ULIDs is creation order.
func (s *Store) LoadByApplicant(ctx context.Context, applicantID domain.ID) (*domain.Answer, error) {
	ids, err := s.client.ZRevRange(ctx, s.byApplicantKey(applicantID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read applicant index %s: %w", applicantID, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("applicant %s: %w", applicantID, domain.ErrNotFound)
	}
	id, err := domain.ParseID(ids[0])
	if err != nil {
		return nil, fmt.Errorf("corrupt applicant index %s: %w", applicantID, err)
	}
	return s.LoadAnswer(ctx, id)
}

// ListByRevisionStatus returns the matching answers, oldest assignment first.
func (s *Store) ListByRevisionStatus(ctx context.Context, status domain.RevisionStatus) ([]*domain.Answer, error) {
	ids, err := s.client.ZRange(ctx, s.byRevisionKey(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revision index %s: %w", status, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, raw := range ids {
		id, err := domain.ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt revision index %s: %w", status, err)
		}
		keys[i] = s.answerKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read answers for %s: %w", status, err)
	}

	out := make([]*domain.Answer, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a record; the script keeps them in step, so
			// this only happens after manual key deletion.
			s.logger.Warn("revision index references missing answer", "key", keys[i], "status", status.String())
			continue
		}
		a, err := decodeAnswer([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeAnswer(raw []byte) (*domain.Answer, error) {
	var rec record.AnswerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorruptAnswer, err)
	}
	return rec.ToDomain()
}
