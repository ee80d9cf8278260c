package domain

import "context"

// ExamRepository persists exams and the question bank they draw from.
type ExamRepository interface {
	// SaveExam inserts or replaces the exam and every question it holds.
	SaveExam(ctx context.Context, exam *Exam) error

	// LoadExam returns ErrNotFound when no exam has the given identity.
	LoadExam(ctx context.Context, id ID) (*Exam, error)

	// SaveQuestion stores a question in the bank without attaching it to an exam.
	SaveQuestion(ctx context.Context, q Question) error

	// AppendQuestions attaches bank questions to an exam in the given order.
	// It returns ErrEvaluationNotFound when the exam does not exist and
	// ErrNotFound when a question identity is not in the bank. Identities the
	// exam already holds are skipped. The append is all-or-nothing.
	AppendQuestions(ctx context.Context, examID ID, questionIDs []ID) error
}

// AnswerRepository persists answers. Implementations must make Create an
// atomic insert-if-absent keyed by (evaluation, applicant) and SaveResponse a
// compare-and-swap on Answer.Version.
type AnswerRepository interface {
	// Create stores a newly assigned answer, returning ErrAlreadyAssigned when
	// the applicant already holds an answer for the same evaluation.
	Create(ctx context.Context, a *Answer) error

	// SaveResponse stores a if the persisted version still equals
	// expectedVersion, otherwise it returns ErrConcurrentUpdate.
	SaveResponse(ctx context.Context, a *Answer, expectedVersion uint64) error

	// ScoreLookup returns the maximum score of a question within an exam, or
	// ErrNotFound.
	ScoreLookup(ctx context.Context, examID, questionID ID) (Score, error)

	// LoadByApplicant returns the applicant's most recently assigned answer, or
	// ErrNotFound.
	LoadByApplicant(ctx context.Context, applicantID ID) (*Answer, error)

	// LoadAnswer returns the answer with the given identity, or ErrNotFound.
	LoadAnswer(ctx context.Context, id ID) (*Answer, error)

	// ListByRevisionStatus returns every answer whose revision equals status,
	// oldest assignment first.
	ListByRevisionStatus(ctx context.Context, status RevisionStatus) ([]*Answer, error)
}

// ApplicantDirectory answers whether an applicant exists. It is consulted
// before assignment.
type ApplicantDirectory interface {
	Exists(ctx context.Context, applicantID ID) (bool, error)
}
