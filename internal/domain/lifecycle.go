package domain

import (
	"fmt"
	"strings"
)

// State is the lifecycle position of an answer. The zero value means the
// answer does not exist yet; StateCreated is the only initial state and
// StateReviewed is terminal.
type State uint8

const (
	// StateNone is the position before assignment.
	StateNone State = iota

	// StateCreated means the evaluation is assigned but not started.
	StateCreated

	// StateInProgress means the applicant is answering.
	StateInProgress

	// StateFinished means the attempt is closed and scored.
	StateFinished

	// StateUnderReview means a reviewer is adding observations.
	StateUnderReview

	// StateReviewed means the revision is final.
	StateReviewed
)

// String returns the stable wire name of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCreated:
		return "created"
	case StateInProgress:
		return "in_progress"
	case StateFinished:
		return "finished"
	case StateUnderReview:
		return "under_review"
	case StateReviewed:
		return "reviewed"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String for the assignable states.
func ParseState(s string) (State, error) {
	for st := StateCreated; st <= StateReviewed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StateNone, fmt.Errorf("%w: unknown state %q", ErrCorruptAnswer, s)
}

// isTerminal reports whether no operation can leave s.
func (s State) isTerminal() bool { return s == StateReviewed }

// Started reports whether s is past StateCreated.
func (s State) Started() bool { return s >= StateInProgress && s <= StateReviewed }

// Finished reports whether the attempt has been closed.
func (s State) Finished() bool { return s >= StateFinished && s <= StateReviewed }

// Operation is a lifecycle command applied to an answer.
type Operation uint8

const (
	OpAssign Operation = iota + 1
	OpStart
	OpSubmit
	OpFinish
	OpBeginReview
	OpObserve
	OpFinalize
)

// String returns the operation name used in errors and events.
func (o Operation) String() string {
	switch o {
	case OpAssign:
		return "assign"
	case OpStart:
		return "start"
	case OpSubmit:
		return "submit"
	case OpFinish:
		return "finish"
	case OpBeginReview:
		return "begin_review"
	case OpObserve:
		return "observe"
	case OpFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

type edge struct {
	from State
	op   Operation
}

// transitions is the complete lifecycle table. Any (state, operation) pair
// missing here is rejected.
var transitions = map[edge]State{
	{StateNone, OpAssign}:          StateCreated,
	{StateCreated, OpStart}:        StateInProgress,
	{StateInProgress, OpSubmit}:    StateInProgress,
	{StateInProgress, OpFinish}:    StateFinished,
	{StateFinished, OpBeginReview}: StateUnderReview,
	{StateUnderReview, OpObserve}:  StateUnderReview,
	{StateUnderReview, OpFinalize}: StateReviewed,
}

// rejections names the failure reported when op is applied from a state the
// table does not allow.
var rejections = map[Operation]error{
	OpAssign:      ErrAlreadyAssigned,
	OpStart:       ErrAlreadyStarted,
	OpSubmit:      ErrNotInProgress,
	OpFinish:      ErrNotInProgress,
	OpBeginReview: ErrNotFinished,
	OpObserve:     ErrNotUnderReview,
	OpFinalize:    ErrNotUnderReview,
}

// Transition returns the state reached by applying op in from, or a
// *TransitionError wrapping the sentinel for that operation.
func Transition(from State, op Operation) (State, error) {
	if to, ok := transitions[edge{from, op}]; ok {
		return to, nil
	}
	cause, ok := rejections[op]
	if !ok {
		cause = ErrUnknownOperation
	}
	return from, &TransitionError{From: from, Op: op, Err: cause}
}

// Allowed lists the operations accepted from s, in declaration order.
func Allowed(s State) []Operation {
	if s.isTerminal() {
		return nil
	}
	var ops []Operation
	for op := OpAssign; op <= OpFinalize; op++ {
		if _, ok := transitions[edge{s, op}]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// RevisionStatus is the reviewer's verdict on an answer. It is tracked
// separately from State: an answer is RevisionPending from assignment until a
// review is finalized.
type RevisionStatus uint8

const (
	RevisionPending RevisionStatus = iota + 1
	RevisionApproved
	RevisionRejected
	RevisionNeedsFollowUp
)

// String returns the stable wire name of the status.
func (r RevisionStatus) String() string {
	switch r {
	case RevisionPending:
		return "pending"
	case RevisionApproved:
		return "approved"
	case RevisionRejected:
		return "rejected"
	case RevisionNeedsFollowUp:
		return "needs_follow_up"
	default:
		return "unknown"
	}
}

// ParseRevisionStatus accepts the wire names case-insensitively.
func ParseRevisionStatus(s string) (RevisionStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for r := RevisionPending; r <= RevisionNeedsFollowUp; r++ {
		if r.String() == norm {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRevisionStatus, s)
}

// Valid reports whether r is a known status.
func (r RevisionStatus) Valid() bool { return r >= RevisionPending && r <= RevisionNeedsFollowUp }

// Final reports whether r can close a review.
func (r RevisionStatus) Final() bool { return r.Valid() && r != RevisionPending }
