package record

import (
	"fmt"
	"time"

	"github.com/ahrav/go-examen/internal/domain"
)

// ResponseRecord is one submitted response.
type ResponseRecord struct {
	QuestionID  string   `json:"question_id"`
	ExamID      string   `json:"exam_id"`
	Values      []string `json:"values"`
	Points      float64  `json:"points"`
	SubmittedAt string   `json:"submitted_at,omitempty"`
}

// ResultRecord is the per-exam outcome. Points is the exam's
// puntos_obtenidos.
type ResultRecord struct {
	ExamID      string  `json:"exam_id"`
	Points      float64 `json:"points"`
	Observation string  `json:"observation,omitempty"`
	ObservedBy  string  `json:"observed_by,omitempty"`
	ObservedAt  string  `json:"observed_at,omitempty"`
}

// AnswerRecord is the boundary form of an answer. Timestamps are RFC 3339
// strings; an empty string means the timestamp is unset.
type AnswerRecord struct {
	ID          string           `json:"id"`
	ApplicantID string           `json:"applicant_id"`
	Evaluation  EvaluationRecord `json:"evaluation"`
	State       string           `json:"state"`
	AssignedAt  string           `json:"assigned_at"`
	StartedAt   string           `json:"started_at,omitempty"`
	FinishedAt  string           `json:"finished_at,omitempty"`
	Responses   []ResponseRecord `json:"responses,omitempty"`
	Results     []ResultRecord   `json:"results"`
	Revision    string           `json:"revision"`
	ReviewedBy  string           `json:"reviewed_by,omitempty"`
	ReviewedAt  string           `json:"reviewed_at,omitempty"`
	Version     uint64           `json:"version"`
}

// FromAnswer encodes an answer.
func FromAnswer(a *domain.Answer) AnswerRecord {
	s := a.Snapshot()
	rec := AnswerRecord{
		ID:          s.ID.String(),
		ApplicantID: s.ApplicantID.String(),
		Evaluation:  FromEvaluation(s.Evaluation),
		State:       s.State.String(),
		AssignedAt:  FormatTime(s.AssignedAt),
		StartedAt:   FormatTime(s.StartedAt),
		FinishedAt:  FormatTime(s.FinishedAt),
		Responses:   make([]ResponseRecord, len(s.Responses)),
		Results:     make([]ResultRecord, len(s.Results)),
		Revision:    s.Revision.String(),
		ReviewedAt:  FormatTime(s.ReviewedAt),
		Version:     s.Version,
	}
	if !s.ReviewedBy.IsZero() {
		rec.ReviewedBy = s.ReviewedBy.String()
	}
	for i, r := range s.Responses {
		rec.Responses[i] = ResponseRecord{
			QuestionID:  r.QuestionID.String(),
			ExamID:      r.ExamID.String(),
			Values:      append([]string(nil), r.Response...),
			Points:      r.Points.Value(),
			SubmittedAt: FormatTime(r.SubmittedAt),
		}
	}
	for i, r := range s.Results {
		rr := ResultRecord{
			ExamID:      r.ExamID.String(),
			Points:      r.Points.Value(),
			Observation: r.Observation.String(),
			ObservedAt:  FormatTime(r.ObservedAt),
		}
		if !r.ObservedBy.IsZero() {
			rr.ObservedBy = r.ObservedBy.String()
		}
		rec.Results[i] = rr
	}
	return rec
}

// ToDomain decodes the record and restores the answer, which re-checks that
// every field agrees with the lifecycle state.
func (r AnswerRecord) ToDomain() (*domain.Answer, error) {
	var (
		s   domain.AnswerSnapshot
		err error
	)
	if s.ID, err = domain.ParseID(r.ID); err != nil {
		return nil, fmt.Errorf("answer id: %w", err)
	}
	if s.ApplicantID, err = domain.ParseID(r.ApplicantID); err != nil {
		return nil, fmt.Errorf("applicant id: %w", err)
	}
	if s.Evaluation, err = r.Evaluation.ToDomain(); err != nil {
		return nil, err
	}
	if s.State, err = domain.ParseState(r.State); err != nil {
		return nil, err
	}
	if s.Revision, err = domain.ParseRevisionStatus(r.Revision); err != nil {
		return nil, err
	}
	if r.ReviewedBy != "" {
		if s.ReviewedBy, err = domain.ParseReviewer(r.ReviewedBy); err != nil {
			return nil, err
		}
	}
	for _, ts := range []struct {
		field string
		value string
		dst   *time.Time
	}{
		{"assigned_at", r.AssignedAt, &s.AssignedAt},
		{"started_at", r.StartedAt, &s.StartedAt},
		{"finished_at", r.FinishedAt, &s.FinishedAt},
		{"reviewed_at", r.ReviewedAt, &s.ReviewedAt},
	} {
		if *ts.dst, err = parseTime(ts.field, ts.value); err != nil {
			return nil, err
		}
	}
	s.Version = r.Version

	s.Responses = make([]domain.SubmittedResponse, len(r.Responses))
	for i, rr := range r.Responses {
		sub, err := rr.toDomain()
		if err != nil {
			return nil, err
		}
		s.Responses[i] = sub
	}
	s.Results = make([]domain.ExamResult, len(r.Results))
	for i, rr := range r.Results {
		res, err := rr.toDomain()
		if err != nil {
			return nil, err
		}
		s.Results[i] = res
	}
	return domain.RestoreAnswer(s)
}

func (r ResponseRecord) toDomain() (domain.SubmittedResponse, error) {
	qid, err := domain.ParseID(r.QuestionID)
	if err != nil {
		return domain.SubmittedResponse{}, fmt.Errorf("response question id: %w", err)
	}
	eid, err := domain.ParseID(r.ExamID)
	if err != nil {
		return domain.SubmittedResponse{}, fmt.Errorf("response exam id: %w", err)
	}
	pts, err := domain.NewScore(r.Points)
	if err != nil {
		return domain.SubmittedResponse{}, err
	}
	at, err := parseTime("submitted_at", r.SubmittedAt)
	if err != nil {
		return domain.SubmittedResponse{}, err
	}
	return domain.SubmittedResponse{
		QuestionID:  qid,
		ExamID:      eid,
		Response:    append(domain.Response(nil), r.Values...),
		Points:      pts,
		SubmittedAt: at,
	}, nil
}

func (r ResultRecord) toDomain() (domain.ExamResult, error) {
	eid, err := domain.ParseID(r.ExamID)
	if err != nil {
		return domain.ExamResult{}, fmt.Errorf("result exam id: %w", err)
	}
	pts, err := domain.NewScore(r.Points)
	if err != nil {
		return domain.ExamResult{}, err
	}
	note, err := domain.OptionalText("observation", r.Observation, domain.ObservationBounds)
	if err != nil {
		return domain.ExamResult{}, err
	}
	at, err := parseTime("observed_at", r.ObservedAt)
	if err != nil {
		return domain.ExamResult{}, err
	}
	res := domain.ExamResult{ExamID: eid, Points: pts, Observation: note, ObservedAt: at}
	if r.ObservedBy != "" {
		if res.ObservedBy, err = domain.ParseReviewer(r.ObservedBy); err != nil {
			return domain.ExamResult{}, err
		}
	}
	return res, nil
}

// FormatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", domain.ErrCorruptAnswer, field, err)
	}
	return t, nil
}
