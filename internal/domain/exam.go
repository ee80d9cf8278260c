package domain

// Exam is an ordered, mutable collection of questions with a title, an
// optional description and optional instructions. It is only mutated through
// its methods, which keep question identities unique.
type Exam struct {
	id           ID
	title        Text
	description  Text
	instructions Text
	questions    []Question
	members      map[ID]struct{}
}

// NewExam validates the descriptive fields and returns an exam with a fresh
// identity and no questions.
func NewExam(title, description, instructions string) (*Exam, error) {
	return RestoreExam(NewID(), title, description, instructions, nil)
}

// RestoreExam rebuilds an exam with a known identity, re-validating every
// field bound and the question-identity invariant.
func RestoreExam(id ID, title, description, instructions string, questions []Question) (*Exam, error) {
	e := &Exam{id: id, members: make(map[ID]struct{}, len(questions))}
	if err := e.UpdateDetails(title, description, instructions); err != nil {
		return nil, err
	}
	for _, q := range questions {
		if err := e.AddQuestion(q); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// UpdateDetails replaces title, description and instructions atomically:
// on error the exam is unchanged.
func (e *Exam) UpdateDetails(title, description, instructions string) error {
	t, err := NewText("title", title, TitleBounds)
	if err != nil {
		return err
	}
	d, err := OptionalText("description", description, DescriptionBounds)
	if err != nil {
		return err
	}
	in, err := OptionalText("instructions", instructions, InstructionsBounds)
	if err != nil {
		return err
	}
	e.title, e.description, e.instructions = t, d, in
	return nil
}

// ID returns the exam identity.
func (e *Exam) ID() ID { return e.id }

// Title returns the exam title.
func (e *Exam) Title() Text { return e.title }

// Description returns the optional description; empty when unset.
func (e *Exam) Description() Text { return e.description }

// Instructions returns the optional instructions; empty when unset.
func (e *Exam) Instructions() Text { return e.instructions }

// AddQuestion appends q. Questions are freshly identified at construction,
// so a repeated identity means the same question was added twice.
func (e *Exam) AddQuestion(q Question) error {
	if _, dup := e.members[q.ID()]; dup {
		return ErrDuplicateQuestion
	}
	e.questions = append(e.questions, q)
	e.members[q.ID()] = struct{}{}
	return nil
}

// RemoveQuestion removes and returns the question with the given identity.
func (e *Exam) RemoveQuestion(id ID) (Question, error) {
	for i, q := range e.questions {
		if q.ID() == id {
			return e.removeAt(i), nil
		}
	}
	return nil, ErrQuestionNotFound
}

// RemoveQuestionAt removes and returns the question at index.
// The reported Max saturates at 0 for an empty exam.
func (e *Exam) RemoveQuestionAt(index int) (Question, error) {
	if index < 0 || index >= len(e.questions) {
		return nil, e.outOfRange(index)
	}
	return e.removeAt(index), nil
}

func (e *Exam) removeAt(i int) Question {
	q := e.questions[i]
	copy(e.questions[i:], e.questions[i+1:])
	e.questions[len(e.questions)-1] = nil
	e.questions = e.questions[:len(e.questions)-1]
	delete(e.members, q.ID())
	return q
}

func (e *Exam) outOfRange(index int) *IndexOutOfRangeError {
	return &IndexOutOfRangeError{Index: index, Max: max(len(e.questions)-1, 0)}
}

// Reorder places the questions named in ids first, in that order, followed by
// every other question in its prior relative order. Unknown identities are
// ignored and repeated identities keep their first position, so no question is
// ever dropped or duplicated.
func (e *Exam) Reorder(ids []ID) {
	if len(ids) == 0 || len(e.questions) == 0 {
		return
	}

	byID := make(map[ID]Question, len(e.questions))
	for _, q := range e.questions {
		byID[q.ID()] = q
	}

	ordered := make([]Question, 0, len(e.questions))
	placed := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if _, done := placed[id]; done {
			continue
		}
		placed[id] = struct{}{}
		ordered = append(ordered, q)
	}
	for _, q := range e.questions {
		if _, done := placed[q.ID()]; !done {
			ordered = append(ordered, q)
		}
	}
	e.questions = ordered
}

// QuestionByID looks a question up by identity.
func (e *Exam) QuestionByID(id ID) (Question, bool) {
	if _, ok := e.members[id]; !ok {
		return nil, false
	}
	for _, q := range e.questions {
		if q.ID() == id {
			return q, true
		}
	}
	return nil, false
}

// QuestionAt returns the question at index.
func (e *Exam) QuestionAt(index int) (Question, error) {
	if index < 0 || index >= len(e.questions) {
		return nil, e.outOfRange(index)
	}
	return e.questions[index], nil
}

// Contains reports whether a question with the given identity belongs to the exam.
func (e *Exam) Contains(id ID) bool {
	_, ok := e.members[id]
	return ok
}

// Len returns the number of questions.
func (e *Exam) Len() int { return len(e.questions) }

// IsEmpty reports whether the exam has no questions.
func (e *Exam) IsEmpty() bool { return len(e.questions) == 0 }

// Questions returns a copy of the ordered question list.
// Questions themselves are immutable values, so a shallow copy is sufficient.
func (e *Exam) Questions() []Question { return append([]Question(nil), e.questions...) }

// QuestionIDs returns the identities in order.
func (e *Exam) QuestionIDs() []ID {
	ids := make([]ID, len(e.questions))
	for i, q := range e.questions {
		ids[i] = q.ID()
	}
	return ids
}

// MaxPoints returns the highest total any attempt can earn automatically.
func (e *Exam) MaxPoints() (Score, error) {
	scores := make([]Score, len(e.questions))
	for i, q := range e.questions {
		scores[i] = q.MaxScore()
	}
	return SumScores(scores...)
}

// Clone returns an independent copy whose question list can be mutated
// without affecting e.
func (e *Exam) Clone() *Exam {
	c := &Exam{
		id:           e.id,
		title:        e.title,
		description:  e.description,
		instructions: e.instructions,
		questions:    e.Questions(),
		members:      make(map[ID]struct{}, len(e.members)),
	}
	for id := range e.members {
		c.members[id] = struct{}{}
	}
	return c
}
