// Package domain provides the core types and rules for authoring evaluations and
// tracking applicants' answers. It defines validated value objects (identity,
// text, score), the closed set of question variants with their scoring
// contracts, the exam aggregate, and the answer lifecycle state machine.
// The package performs no I/O; persistence is expressed as ports that
// adapters implement.
package domain

import "fmt"

// Evaluation is the set of exams assigned to an applicant, frozen at
// assignment time. Later edits to the source exams never reach an answer
// that already holds a snapshot.
type Evaluation struct {
	id    ID
	exams []*Exam
}

// NewEvaluation snapshots exams under the evaluation identity id.
// At least one exam is required and no exam may be listed twice.
func NewEvaluation(id ID, exams []*Exam) (*Evaluation, error) {
	if id.IsZero() {
		return nil, &FieldError{Field: "evaluation_id", Rule: "required", Err: ErrMissingIdentity}
	}
	if len(exams) == 0 {
		return nil, ErrEmptyEvaluation
	}

	seen := make(map[ID]struct{}, len(exams))
	snapshot := make([]*Exam, 0, len(exams))
	for _, e := range exams {
		if e == nil {
			return nil, fmt.Errorf("%w: nil exam", ErrEmptyEvaluation)
		}
		if _, dup := seen[e.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateExam, e.ID())
		}
		seen[e.ID()] = struct{}{}
		snapshot = append(snapshot, e.Clone())
	}
	return &Evaluation{id: id, exams: snapshot}, nil
}

// ID returns the evaluation identity.
func (ev *Evaluation) ID() ID { return ev.id }

// Len returns the number of exams.
func (ev *Evaluation) Len() int { return len(ev.exams) }

// Exams returns copies of the snapshotted exams in assignment order.
func (ev *Evaluation) Exams() []*Exam {
	out := make([]*Exam, len(ev.exams))
	for i, e := range ev.exams {
		out[i] = e.Clone()
	}
	return out
}

// ExamIDs returns the exam identities in assignment order.
func (ev *Evaluation) ExamIDs() []ID {
	ids := make([]ID, len(ev.exams))
	for i, e := range ev.exams {
		ids[i] = e.ID()
	}
	return ids
}

// HasExam reports whether examID is part of the snapshot.
func (ev *Evaluation) HasExam(examID ID) bool {
	for _, e := range ev.exams {
		if e.ID() == examID {
			return true
		}
	}
	return false
}

// Question finds a question anywhere in the snapshot along with the first
// exam that contains it.
func (ev *Evaluation) Question(questionID ID) (Question, ID, bool) {
	for _, e := range ev.exams {
		if q, ok := e.QuestionByID(questionID); ok {
			return q, e.ID(), true
		}
	}
	return nil, ZeroID, false
}

// Contains reports whether questionID belongs to any exam of the snapshot.
func (ev *Evaluation) Contains(questionID ID) bool {
	for _, e := range ev.exams {
		if e.Contains(questionID) {
			return true
		}
	}
	return false
}

// QuestionCount returns the total number of questions across all exams.
func (ev *Evaluation) QuestionCount() int {
	n := 0
	for _, e := range ev.exams {
		n += e.Len()
	}
	return n
}

// each calls fn for every exam in order without copying.
func (ev *Evaluation) each(fn func(*Exam)) {
	for _, e := range ev.exams {
		fn(e)
	}
}
