package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Score is a non-negative point value. The zero value is a valid zero score.
// Every arithmetic result is re-validated, so a negative or NaN value can never
// enter an exam total.
type Score struct {
	value float64
}

// NewScore validates x and wraps it. Negative, NaN and infinite inputs are rejected.
func NewScore(x float64) (Score, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return Score{}, fmt.Errorf("%w: %v", ErrNegativeScore, x)
	}
	return Score{value: x}, nil
}

// MustScore is NewScore for constants. It panics on invalid input.
func MustScore(x float64) Score {
	s, err := NewScore(x)
	if err != nil {
		panic(err)
	}
	return s
}

// ZeroScore returns a score of 0.
func ZeroScore() Score { return Score{} }

// OneScore returns a score of 1.
func OneScore() Score { return Score{value: 1} }

// Value returns the raw float.
func (s Score) Value() float64 { return s.value }

// IsZero reports whether the score is exactly zero.
func (s Score) IsZero() bool { return s.value == 0 }

// Add returns the re-validated sum of two scores.
// The sum of two finite non-negative floats can only fail validation on overflow.
func (s Score) Add(other Score) (Score, error) { return NewScore(s.value + other.value) }

// Max returns the larger of two scores.
func (s Score) Max(other Score) Score {
	if other.value > s.value {
		return other
	}
	return s
}

// String formats the score without trailing zeros (e.g. 1, 0.5, 2.75).
func (s Score) String() string { return strconv.FormatFloat(s.value, 'f', -1, 64) }

// SumScores adds scores left to right, stopping at the first invalid sum.
func SumScores(scores ...Score) (Score, error) {
	total := ZeroScore()
	for _, s := range scores {
		next, err := total.Add(s)
		if err != nil {
			return Score{}, err
		}
		total = next
	}
	return total, nil
}
