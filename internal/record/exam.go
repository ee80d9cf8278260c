package record

import (
	"fmt"

	"github.com/ahrav/go-examen/internal/domain"
)

// ExamRecord is the boundary form of an exam with its questions inlined in order.
type ExamRecord struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Questions    []QuestionRecord `json:"questions"`
}

// FromExam encodes an exam.
func FromExam(e *domain.Exam) ExamRecord {
	qs := e.Questions()
	rec := ExamRecord{
		ID:           e.ID().String(),
		Title:        e.Title().String(),
		Description:  e.Description().String(),
		Instructions: e.Instructions().String(),
		Questions:    make([]QuestionRecord, len(qs)),
	}
	for i, q := range qs {
		rec.Questions[i] = FromQuestion(q)
	}
	return rec
}

// ToDomain decodes the record, re-validating every bound and the
// question-identity invariant.
func (r ExamRecord) ToDomain() (*domain.Exam, error) {
	id, err := domain.ParseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("exam id: %w", err)
	}
	qs := make([]domain.Question, len(r.Questions))
	for i, qr := range r.Questions {
		q, err := qr.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("exam %s question %d: %w", r.ID, i, err)
		}
		qs[i] = q
	}
	return domain.RestoreExam(id, r.Title, r.Description, r.Instructions, qs)
}

// EvaluationRecord is the boundary form of an evaluation snapshot.
type EvaluationRecord struct {
	ID    string       `json:"id"`
	Exams []ExamRecord `json:"exams"`
}

// FromEvaluation encodes an evaluation snapshot.
func FromEvaluation(ev *domain.Evaluation) EvaluationRecord {
	exams := ev.Exams()
	rec := EvaluationRecord{ID: ev.ID().String(), Exams: make([]ExamRecord, len(exams))}
	for i, e := range exams {
		rec.Exams[i] = FromExam(e)
	}
	return rec
}

// ToDomain decodes the snapshot.
func (r EvaluationRecord) ToDomain() (*domain.Evaluation, error) {
	id, err := domain.ParseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("evaluation id: %w", err)
	}
	exams := make([]*domain.Exam, len(r.Exams))
	for i, er := range r.Exams {
		e, err := er.ToDomain()
		if err != nil {
			return nil, err
		}
		exams[i] = e
	}
	return domain.NewEvaluation(id, exams)
}
