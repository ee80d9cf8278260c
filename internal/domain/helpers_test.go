package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func abcOptions() []OptionInput {
	return []OptionInput{
		{Key: "A", Text: "Madrid"},
		{Key: "B", Text: "Lima"},
		{Key: "C", Text: "Bogotá"},
	}
}

func newSingleChoice(t *testing.T, correct string, points float64) SingleChoice {
	t.Helper()
	q, err := NewSingleChoice(
		QuestionInput{Content: "¿Cuál es la capital de Colombia?"},
		abcOptions(), correct, MustScore(points),
	)
	require.NoError(t, err)
	return q
}

func newFreeText(t *testing.T, content string) FreeText {
	t.Helper()
	q, err := NewFreeText(QuestionInput{Content: content})
	require.NoError(t, err)
	return q
}

func newExam(t *testing.T, title string, questions ...Question) *Exam {
	t.Helper()
	e, err := NewExam(title, "", "")
	require.NoError(t, err)
	for _, q := range questions {
		require.NoError(t, e.AddQuestion(q))
	}
	return e
}

func newEvaluation(t *testing.T, exams ...*Exam) *Evaluation {
	t.Helper()
	ev, err := NewEvaluation(NewID(), exams)
	require.NoError(t, err)
	return ev
}

func testReviewer(t *testing.T) Reviewer {
	t.Helper()
	r, err := NewReviewer(ReviewerUser, "reviewer@example.com")
	require.NoError(t, err)
	return r
}

func questionIDs(qs []Question) []ID {
	ids := make([]ID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID()
	}
	return ids
}
