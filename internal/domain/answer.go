package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubmittedResponse is the latest response an applicant gave to one question
// and the points it earned when last scored.
type SubmittedResponse struct {
	QuestionID  ID
	ExamID      ID
	Response    Response
	Points      Score
	SubmittedAt time.Time
}

// ExamResult is the outcome of one exam within an answer. Points is the sum
// awarded on finish; the observation fields are set during review.
type ExamResult struct {
	ExamID      ID
	Points      Score
	Observation Text
	ObservedBy  Reviewer
	ObservedAt  time.Time
}

// Answer is one applicant's attempt at an assigned evaluation. Its lifecycle
// position is a single State advanced only through Transition; timestamps,
// responses and results are consistent with that state by construction.
//
// Every successful operation increments Version. Persistence adapters use the
// version observed before an operation as the expected value of a
// compare-and-swap so that concurrent transitions on the same answer cannot
// both succeed.
type Answer struct {
	id          ID
	applicantID ID
	evaluation  *Evaluation

	state      State
	assignedAt time.Time
	startedAt  time.Time
	finishedAt time.Time

	responses map[ID]SubmittedResponse
	results   []ExamResult

	revision   RevisionStatus
	reviewedBy Reviewer
	reviewedAt time.Time

	version uint64
	pending []LifecycleEvent
}

// NewAnswer assigns evaluation to applicantID. Uniqueness of the
// (evaluation, applicant) pair is enforced by AnswerRepository.Create.
func NewAnswer(evaluation *Evaluation, applicantID ID, now time.Time) (*Answer, error) {
	if evaluation == nil {
		return nil, ErrEmptyEvaluation
	}
	if applicantID.IsZero() {
		return nil, &FieldError{Field: "applicant_id", Rule: "required", Err: ErrMissingIdentity}
	}

	a := &Answer{
		id:          NewID(),
		applicantID: applicantID,
		evaluation:  evaluation,
		state:       StateNone,
		assignedAt:  now,
		responses:   make(map[ID]SubmittedResponse),
		results:     zeroResults(evaluation),
		revision:    RevisionPending,
	}
	to, err := Transition(a.state, OpAssign)
	if err != nil {
		return nil, err
	}
	a.commit(OpAssign, to, now, nil)
	return a, nil
}

func zeroResults(ev *Evaluation) []ExamResult {
	results := make([]ExamResult, 0, ev.Len())
	ev.each(func(e *Exam) {
		results = append(results, ExamResult{ExamID: e.ID()})
	})
	return results
}

// commit applies a validated transition and records its event.
func (a *Answer) commit(op Operation, to State, now time.Time, detail func(*LifecyclePayload)) {
	from := a.state
	a.state = to
	a.version++

	p := LifecyclePayload{
		AnswerID:     a.id.String(),
		ApplicantID:  a.applicantID.String(),
		EvaluationID: a.evaluation.ID().String(),
		From:         from.String(),
		To:           to.String(),
		Version:      a.version,
	}
	if detail != nil {
		detail(&p)
	}
	a.pending = append(a.pending, LifecycleEvent{Type: EventTypeFor(op), Op: op, OccurredAt: now, Payload: p})
}

// Start opens the attempt and records the start time.
func (a *Answer) Start(now time.Time) error {
	to, err := Transition(a.state, OpStart)
	if err != nil {
		return err
	}
	a.startedAt = now
	a.commit(OpStart, to, now, nil)
	return nil
}

// Submit records r as the latest response to questionID and returns the points
// it earns. The question must belong to the assigned evaluation.
func (a *Answer) Submit(questionID ID, r Response, now time.Time) (Score, error) {
	to, err := Transition(a.state, OpSubmit)
	if err != nil {
		return Score{}, err
	}
	q, examID, ok := a.evaluation.Question(questionID)
	if !ok {
		return Score{}, fmt.Errorf("%w: %s", ErrQuestionNotInEvaluation, questionID)
	}

	points := q.Award(r)
	a.responses[questionID] = SubmittedResponse{
		QuestionID:  questionID,
		ExamID:      examID,
		Response:    append(Response(nil), r...),
		Points:      points,
		SubmittedAt: now,
	}
	a.commit(OpSubmit, to, now, func(p *LifecyclePayload) {
		p.QuestionID = questionID.String()
		p.ExamID = examID.String()
	})
	return points, nil
}

// Finish closes the attempt, records the finish time and scores every exam.
func (a *Answer) Finish(now time.Time) error {
	to, err := Transition(a.state, OpFinish)
	if err != nil {
		return err
	}
	if err := a.Rescore(); err != nil {
		return err
	}
	total, err := a.TotalPoints()
	if err != nil {
		return err
	}
	a.finishedAt = now
	a.commit(OpFinish, to, now, func(p *LifecyclePayload) {
		v := total.Value()
		p.Points = &v
	})
	return nil
}

// Rescore recomputes per-question points and per-exam totals from the stored
// responses and the evaluation snapshot. It is idempotent: with unchanged
// responses a second call produces identical totals. A question absent from
// the responses contributes nothing.
func (a *Answer) Rescore() error {
	results := append([]ExamResult(nil), a.results...)
	scored := make(map[ID]Score, len(a.responses))

	var err error
	i := 0
	a.evaluation.each(func(e *Exam) {
		if err != nil {
			return
		}
		total := ZeroScore()
		for _, q := range e.questions {
			sub, ok := a.responses[q.ID()]
			if !ok {
				continue
			}
			pts := q.Award(sub.Response)
			scored[q.ID()] = pts
			if total, err = total.Add(pts); err != nil {
				err = fmt.Errorf("scoring exam %s: %w", e.ID(), err)
				return
			}
		}
		results[i].Points = total
		i++
	})
	if err != nil {
		return err
	}

	for id, pts := range scored {
		sub := a.responses[id]
		sub.Points = pts
		a.responses[id] = sub
	}
	a.results = results
	return nil
}

// BeginReview hands a finished attempt to a reviewer.
func (a *Answer) BeginReview(now time.Time) error {
	to, err := Transition(a.state, OpBeginReview)
	if err != nil {
		return err
	}
	a.commit(OpBeginReview, to, now, nil)
	return nil
}

// RecordObservation attaches note to the result of examID. A later
// observation on the same exam replaces the earlier one.
func (a *Answer) RecordObservation(examID ID, note string, reviewer Reviewer, now time.Time) error {
	to, err := Transition(a.state, OpObserve)
	if err != nil {
		return err
	}
	idx := a.resultIndex(examID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrExamNotFound, examID)
	}
	text, err := NewText("observation", note, ObservationBounds)
	if err != nil {
		return err
	}
	if err := reviewer.Validate(); err != nil {
		return err
	}

	a.results[idx].Observation = text
	a.results[idx].ObservedBy = reviewer
	a.results[idx].ObservedAt = now
	a.commit(OpObserve, to, now, func(p *LifecyclePayload) {
		p.ExamID = examID.String()
		p.Reviewer = reviewer.String()
	})
	return nil
}

// FinalizeReview closes the review with a final revision status.
func (a *Answer) FinalizeReview(status RevisionStatus, reviewer Reviewer, now time.Time) error {
	to, err := Transition(a.state, OpFinalize)
	if err != nil {
		return err
	}
	if !status.Final() {
		return fmt.Errorf("%w: %s cannot close a review", ErrInvalidRevisionStatus, status)
	}
	if err := reviewer.Validate(); err != nil {
		return err
	}

	a.revision = status
	a.reviewedBy = reviewer
	a.reviewedAt = now
	a.commit(OpFinalize, to, now, func(p *LifecyclePayload) {
		p.Revision = status.String()
		p.Reviewer = reviewer.String()
	})
	return nil
}

func (a *Answer) resultIndex(examID ID) int {
	for i, r := range a.results {
		if r.ExamID == examID {
			return i
		}
	}
	return -1
}

// ID returns the answer identity.
func (a *Answer) ID() ID { return a.id }

// ApplicantID returns the applicant who owns the attempt.
func (a *Answer) ApplicantID() ID { return a.applicantID }

// Evaluation returns the snapshot assigned to the applicant.
func (a *Answer) Evaluation() *Evaluation { return a.evaluation }

// State returns the lifecycle position.
func (a *Answer) State() State { return a.state }

// AssignedAt returns when the evaluation was assigned.
func (a *Answer) AssignedAt() time.Time { return a.assignedAt }

// StartedAt returns the start time; zero until started.
func (a *Answer) StartedAt() time.Time { return a.startedAt }

// FinishedAt returns the finish time; zero until finished.
func (a *Answer) FinishedAt() time.Time { return a.finishedAt }

// Revision returns the reviewer's verdict, RevisionPending until finalized.
func (a *Answer) Revision() RevisionStatus { return a.revision }

// ReviewedBy returns who finalized the review.
func (a *Answer) ReviewedBy() Reviewer { return a.reviewedBy }

// ReviewedAt returns when the review was finalized.
func (a *Answer) ReviewedAt() time.Time { return a.reviewedAt }

// Version returns the optimistic-concurrency counter.
func (a *Answer) Version() uint64 { return a.version }

// Response returns the latest response to questionID.
func (a *Answer) Response(questionID ID) (SubmittedResponse, bool) {
	sub, ok := a.responses[questionID]
	if ok {
		sub.Response = append(Response(nil), sub.Response...)
	}
	return sub, ok
}

// Responses returns the submitted responses in evaluation question order.
func (a *Answer) Responses() []SubmittedResponse {
	out := make([]SubmittedResponse, 0, len(a.responses))
	seen := make(map[ID]struct{}, len(a.responses))
	a.evaluation.each(func(e *Exam) {
		for _, q := range e.questions {
			if _, dup := seen[q.ID()]; dup {
				continue
			}
			if sub, ok := a.Response(q.ID()); ok {
				seen[q.ID()] = struct{}{}
				out = append(out, sub)
			}
		}
	})
	return out
}

// Results returns the per-exam results in evaluation order.
func (a *Answer) Results() []ExamResult { return append([]ExamResult(nil), a.results...) }

// Result returns the result for examID.
func (a *Answer) Result(examID ID) (ExamResult, bool) {
	if i := a.resultIndex(examID); i >= 0 {
		return a.results[i], true
	}
	return ExamResult{}, false
}

// TotalPoints sums the points of every exam result.
func (a *Answer) TotalPoints() (Score, error) {
	scores := make([]Score, len(a.results))
	for i, r := range a.results {
		scores[i] = r.Points
	}
	return SumScores(scores...)
}

// PullEvents returns the events recorded since the last call and clears them.
func (a *Answer) PullEvents() []LifecycleEvent {
	events := a.pending
	a.pending = nil
	return events
}

// Elapsed returns how long the attempt has run: zero before start, now minus
// start while in progress, and frozen at finish minus start afterwards.
// Clock skew never produces a negative duration.
func (a *Answer) Elapsed(now time.Time) time.Duration {
	if a.startedAt.IsZero() {
		return 0
	}
	end := now
	if !a.finishedAt.IsZero() {
		end = a.finishedAt
	}
	return max(end.Sub(a.startedAt), 0)
}

// ElapsedSince computes now minus a stored RFC 3339 start timestamp. An
// unparsable timestamp yields zero and false rather than an error, so a read of
// many answers is not failed by one corrupt record; callers are expected to
// log the false case.
func ElapsedSince(start string, now time.Time) (time.Duration, bool) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(start))
	if err != nil {
		return 0, false
	}
	return max(now.Sub(t), 0), true
}

// AnswerSnapshot is the full persisted form of an Answer. Adapters produce it
// with Answer.Snapshot and rebuild answers with RestoreAnswer.
type AnswerSnapshot struct {
	ID          ID
	ApplicantID ID
	Evaluation  *Evaluation
	State       State
	AssignedAt  time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Responses   []SubmittedResponse
	Results     []ExamResult
	Revision    RevisionStatus
	ReviewedBy  Reviewer
	ReviewedAt  time.Time
	Version     uint64
}

// Snapshot copies the answer into its persisted form. Pending events are not
// part of the snapshot.
func (a *Answer) Snapshot() AnswerSnapshot {
	return AnswerSnapshot{
		ID:          a.id,
		ApplicantID: a.applicantID,
		Evaluation:  a.evaluation,
		State:       a.state,
		AssignedAt:  a.assignedAt,
		StartedAt:   a.startedAt,
		FinishedAt:  a.finishedAt,
		Responses:   a.Responses(),
		Results:     a.Results(),
		Revision:    a.revision,
		ReviewedBy:  a.reviewedBy,
		ReviewedAt:  a.reviewedAt,
		Version:     a.version,
	}
}

// RestoreAnswer rebuilds an answer from its persisted form, rejecting any
// snapshot whose fields contradict its state.
func RestoreAnswer(s AnswerSnapshot) (*Answer, error) {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrCorruptAnswer}, args...)...)
	}

	switch {
	case s.ID.IsZero():
		return nil, &FieldError{Field: "id", Rule: "required", Err: ErrMissingIdentity}
	case s.ApplicantID.IsZero():
		return nil, &FieldError{Field: "applicant_id", Rule: "required", Err: ErrMissingIdentity}
	case s.Evaluation == nil:
		return nil, ErrEmptyEvaluation
	case s.State < StateCreated || s.State > StateReviewed:
		return nil, corrupt("state %d", s.State)
	case s.Version == 0:
		return nil, corrupt("version 0")
	case s.StartedAt.IsZero() == s.State.Started():
		return nil, corrupt("start time inconsistent with %s", s.State)
	case s.FinishedAt.IsZero() == s.State.Finished():
		return nil, corrupt("finish time inconsistent with %s", s.State)
	case !s.Revision.Valid():
		return nil, corrupt("revision %d", s.Revision)
	case s.Revision.Final() != (s.State == StateReviewed):
		return nil, corrupt("revision %s inconsistent with %s", s.Revision, s.State)
	}

	a := &Answer{
		id:          s.ID,
		applicantID: s.ApplicantID,
		evaluation:  s.Evaluation,
		state:       s.State,
		assignedAt:  s.AssignedAt,
		startedAt:   s.StartedAt,
		finishedAt:  s.FinishedAt,
		responses:   make(map[ID]SubmittedResponse, len(s.Responses)),
		revision:    s.Revision,
		reviewedBy:  s.ReviewedBy,
		reviewedAt:  s.ReviewedAt,
		version:     s.Version,
	}

	if len(s.Responses) > 0 && !s.State.Started() {
		return nil, corrupt("responses recorded before start")
	}
	for _, sub := range s.Responses {
		if !s.Evaluation.Contains(sub.QuestionID) {
			return nil, fmt.Errorf("%w: %w: %s", ErrCorruptAnswer, ErrQuestionNotInEvaluation, sub.QuestionID)
		}
		sub.Response = append(Response(nil), sub.Response...)
		a.responses[sub.QuestionID] = sub
	}

	if len(s.Results) == 0 {
		a.results = zeroResults(s.Evaluation)
		return a, nil
	}
	examIDs := s.Evaluation.ExamIDs()
	if len(s.Results) != len(examIDs) {
		return nil, corrupt("%d results for %d exams", len(s.Results), len(examIDs))
	}
	for i, r := range s.Results {
		if r.ExamID != examIDs[i] {
			return nil, fmt.Errorf("%w: %w: %s", ErrCorruptAnswer, ErrExamNotFound, r.ExamID)
		}
	}
	a.results = append([]ExamResult(nil), s.Results...)
	return a, nil
}
