//go:build integration
// +build integration

package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/store/redisstore"
)

var t0 = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

// setupStore starts a Redis container and returns a store bound to it.
// The container is terminated when the test completes.
func setupStore(t *testing.T) (*redisstore.Store, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return redisstore.New(client, redisstore.WithPrefix("test")), client
}

func singleChoice(t *testing.T, correct string, points float64) domain.SingleChoice {
	t.Helper()
	q, err := domain.NewSingleChoice(domain.QuestionInput{Content: "Elige una opción"},
		[]domain.OptionInput{{Key: "A", Text: "Uno"}, {Key: "B", Text: "Dos"}, {Key: "C", Text: "Tres"}},
		correct, domain.MustScore(points))
	require.NoError(t, err)
	return q
}

func evaluationWith(t *testing.T, qs ...domain.Question) (*domain.Evaluation, *domain.Exam) {
	t.Helper()
	exam, err := domain.NewExam("Examen de integración", "", "")
	require.NoError(t, err)
	for _, q := range qs {
		require.NoError(t, exam.AddQuestion(q))
	}
	ev, err := domain.NewEvaluation(domain.NewID(), []*domain.Exam{exam})
	require.NoError(t, err)
	return ev, exam
}

func TestRedisStore_ExamAndBank_RealRedis(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	first := singleChoice(t, "C", 1)
	_, exam := evaluationWith(t, first)
	require.NoError(t, s.SaveExam(ctx, exam))

	banked := singleChoice(t, "A", 2)
	require.NoError(t, s.SaveQuestion(ctx, banked))

	require.NoError(t, s.AppendQuestions(ctx, exam.ID(), []domain.ID{banked.ID(), first.ID()}))
	loaded, err := s.LoadExam(ctx, exam.ID())
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{first.ID(), banked.ID()}, loaded.QuestionIDs())

	got, err := s.ScoreLookup(ctx, exam.ID(), banked.ID())
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Value())

	assert.ErrorIs(t, s.AppendQuestions(ctx, exam.ID(), []domain.ID{domain.NewID()}), domain.ErrNotFound)
	assert.ErrorIs(t, s.AppendQuestions(ctx, domain.NewID(), nil), domain.ErrEvaluationNotFound)
}

func TestRedisStore_ConcurrentAssignment_RealRedis(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	ev, _ := evaluationWith(t, singleChoice(t, "C", 1))
	applicant := domain.NewID()

	const workers = 20
	var (
		wg         sync.WaitGroup
		wins, dups atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := domain.NewAnswer(ev, applicant, t0)
			if err != nil {
				return
			}
			switch err := s.Create(ctx, a); {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, domain.ErrAlreadyAssigned):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), dups.Load())
}

func TestRedisStore_VersionCompareAndSwap_RealRedis(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	q := singleChoice(t, "C", 1)
	ev, exam := evaluationWith(t, q)
	applicant := domain.NewID()

	a, err := domain.NewAnswer(ev, applicant, t0)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, a))

	winner, err := s.LoadAnswer(ctx, a.ID())
	require.NoError(t, err)
	loser, err := s.LoadAnswer(ctx, a.ID())
	require.NoError(t, err)

	v := winner.Version()
	require.NoError(t, winner.Start(t0.Add(time.Minute)))
	_, err = winner.Submit(q.ID(), domain.Response{"C"}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.SaveResponse(ctx, winner, v))

	require.NoError(t, loser.Start(t0.Add(3*time.Minute)))
	assert.ErrorIs(t, s.SaveResponse(ctx, loser, v), domain.ErrConcurrentUpdate)

	latest, err := s.LoadByApplicant(ctx, applicant)
	require.NoError(t, err)
	assert.Equal(t, winner.Version(), latest.Version())
	resp, ok := latest.Response(q.ID())
	require.True(t, ok)
	assert.Equal(t, 1.0, resp.Points.Value())

	reviewer, err := domain.NewReviewer(domain.ReviewerService, "auto-grader")
	require.NoError(t, err)
	v = latest.Version()
	require.NoError(t, latest.Finish(t0.Add(time.Hour)))
	require.NoError(t, latest.BeginReview(t0.Add(2*time.Hour)))
	require.NoError(t, latest.RecordObservation(exam.ID(), "Sin comentarios", reviewer, t0.Add(3*time.Hour)))
	require.NoError(t, latest.FinalizeReview(domain.RevisionNeedsFollowUp, reviewer, t0.Add(4*time.Hour)))
	require.NoError(t, s.SaveResponse(ctx, latest, v))

	pending, err := s.ListByRevisionStatus(ctx, domain.RevisionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	follow, err := s.ListByRevisionStatus(ctx, domain.RevisionNeedsFollowUp)
	require.NoError(t, err)
	require.Len(t, follow, 1)
	assert.Equal(t, a.ID(), follow[0].ID())
	assert.Equal(t, domain.StateReviewed, follow[0].State())
}

func TestRedisStore_ApplicantDirectory_RealRedis(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	id := domain.NewID()

	ok, err := s.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RegisterApplicant(ctx, id))
	ok, err = s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_CorruptRecord_RealRedis(t *testing.T) {
	s, client := setupStore(t)
	ctx := context.Background()
	id := domain.NewID()

	require.NoError(t, client.Set(ctx, "test:answer:"+id.String(), `{"id": broken`, 0).Err())
	_, err := s.LoadAnswer(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCorruptAnswer)
}
