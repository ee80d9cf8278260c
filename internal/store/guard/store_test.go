package guard_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/store/guard"
	"github.com/ahrav/go-examen/internal/store/memory"
)

var errDown = errors.New("dial tcp 10.0.0.7:6379: connection refused")

// mockBackend stubs the answer lookups; the other port methods are unused here.
type mockBackend struct {
	guard.Backend
	mock.Mock
}

func (m *mockBackend) LoadAnswer(ctx context.Context, id domain.ID) (*domain.Answer, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*domain.Answer)
	return a, args.Error(1)
}

func (m *mockBackend) Exists(ctx context.Context, id domain.ID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func newGuarded(t *testing.T, next guard.Backend) *guard.Store {
	t.Helper()
	cb := guard.NewBreaker(
		guard.Config{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour, HalfOpenProbes: 1},
		guard.WithoutJitter(),
		guard.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return guard.New(next, cb)
}

func TestStore_InfrastructureErrorsOpenTheCircuit(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("LoadAnswer", mock.Anything, mock.Anything).Return(nil, errDown).Twice()
	s := newGuarded(t, backend)

	for i := 0; i < 2; i++ {
		_, err := s.LoadAnswer(ctx, domain.NewID())
		assert.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, guard.StateOpen, s.Breaker().State())

	_, err := s.LoadAnswer(ctx, domain.NewID())
	assert.ErrorIs(t, err, guard.ErrOpen)
	_, err = s.Exists(ctx, domain.NewID())
	assert.ErrorIs(t, err, guard.ErrOpen, "the circuit covers every port method")

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
}

func TestStore_DomainOutcomesKeepTheCircuitClosed(t *testing.T) {
	ctx := context.Background()
	outcomes := []error{
		domain.ErrNotFound,
		fmt.Errorf("save: %w", domain.ErrConcurrentUpdate),
		domain.ErrAlreadyAssigned,
		domain.ErrCorruptAnswer,
		context.Canceled,
	}

	backend := &mockBackend{}
	for _, err := range outcomes {
		backend.On("LoadAnswer", mock.Anything, mock.Anything).Return(nil, err).Twice()
	}
	s := newGuarded(t, backend)

	for _, want := range outcomes {
		for i := 0; i < 2; i++ {
			_, err := s.LoadAnswer(ctx, domain.NewID())
			assert.ErrorIs(t, err, want)
		}
	}
	assert.Equal(t, guard.StateClosed, s.Breaker().State())
}

func TestStore_PassesThroughToBackend(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := newGuarded(t, mem)

	q, err := domain.NewShortAnswer(domain.QuestionInput{Content: "¿Río más largo de Sudamérica?"}, "amazonas", domain.MustScore(4))
	require.NoError(t, err)
	exam, err := domain.NewExam("Geografía", "", "")
	require.NoError(t, err)
	require.NoError(t, exam.AddQuestion(q))

	require.NoError(t, s.SaveExam(ctx, exam))
	loaded, err := s.LoadExam(ctx, exam.ID())
	require.NoError(t, err)
	assert.Equal(t, exam.ID(), loaded.ID())

	score, err := s.ScoreLookup(ctx, exam.ID(), q.ID())
	require.NoError(t, err)
	assert.Equal(t, 4.0, score.Value())

	applicant := domain.NewID()
	mem.RegisterApplicant(applicant)
	ok, err := s.Exists(ctx, applicant)
	require.NoError(t, err)
	assert.True(t, ok)
}
