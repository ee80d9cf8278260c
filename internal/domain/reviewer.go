package domain

import (
	"fmt"
	"strings"
)

// ReviewerType distinguishes human reviewers from automated graders.
type ReviewerType string

const (
	// ReviewerUser is a person grading by hand.
	ReviewerUser ReviewerType = "user"

	// ReviewerService is an automated system acting as reviewer.
	ReviewerService ReviewerType = "service"
)

// Reviewer attributes observations and final revisions to the entity that
// made them.
type Reviewer struct {
	// Type indicates whether this is a user or service reviewer.
	Type ReviewerType `json:"type" validate:"required,oneof=user service"`

	// ID identifies the reviewer: a username or email for users, a service
	// account name for services.
	ID string `json:"id" validate:"required,min=1,max=200"`
}

// NewReviewer validates and returns a reviewer.
func NewReviewer(t ReviewerType, id string) (Reviewer, error) {
	r := Reviewer{Type: t, ID: strings.TrimSpace(id)}
	if err := r.Validate(); err != nil {
		return Reviewer{}, err
	}
	return r, nil
}

// Validate checks the reviewer type and identifier.
func (r Reviewer) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidReviewer, err.Error())
	}
	return nil
}

// IsZero reports whether no reviewer is recorded.
func (r Reviewer) IsZero() bool { return r.Type == "" && r.ID == "" }

// String returns a human-readable representation of the reviewer.
func (r Reviewer) String() string { return fmt.Sprintf("%s:%s", r.Type, r.ID) }

// ParseReviewer is the inverse of Reviewer.String.
func ParseReviewer(s string) (Reviewer, error) {
	t, id, ok := strings.Cut(s, ":")
	if !ok {
		return Reviewer{}, fmt.Errorf("%w: %q", ErrInvalidReviewer, s)
	}
	return NewReviewer(ReviewerType(t), id)
}
