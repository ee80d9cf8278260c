// Package record defines the boundary representations of exams, questions and
// answers. Records are plain JSON-tagged structs used by persistence adapters
// and activity payloads; decoding always re-runs the domain constructors, so a
// record can never smuggle an invalid value into the domain.
package record

import (
	"fmt"

	"github.com/ahrav/go-examen/internal/domain"
)

// OptionRecord is one option of a choice question. Score is set only for
// weighted-choice options.
type OptionRecord struct {
	Key   string   `json:"key"`
	Text  string   `json:"text"`
	Score *float64 `json:"score,omitempty"`
}

// SlotRecord is one SI/NO slot of a yes/no question.
type SlotRecord struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// QuestionRecord is the flattened form of every question variant. Kind
// selects which of the variant-specific fields are meaningful.
type QuestionRecord struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
	Label   string `json:"label,omitempty"`

	Options    []OptionRecord `json:"options,omitempty"`
	CorrectKey string         `json:"correct_key,omitempty"`
	Score      *float64       `json:"score,omitempty"`
	Yes        *SlotRecord    `json:"yes,omitempty"`
	No         *SlotRecord    `json:"no,omitempty"`
	Expected   string         `json:"expected,omitempty"`
}

// FromQuestion encodes any question variant.
func FromQuestion(q domain.Question) QuestionRecord {
	enc := questionEncoder{rec: QuestionRecord{
		ID:      q.ID().String(),
		Kind:    q.Kind().String(),
		Content: q.Content().String(),
		Image:   q.Image(),
		Label:   q.Label().String(),
	}}
	q.Accept(&enc)
	return enc.rec
}

// questionEncoder fills the variant-specific fields. Implementing
// domain.QuestionVisitor makes a new variant a compile error here.
type questionEncoder struct {
	rec QuestionRecord
}

func (e *questionEncoder) VisitSingleChoice(q domain.SingleChoice) {
	e.rec.Options = plainOptions(q.Options())
	e.rec.CorrectKey = q.CorrectKey().String()
	e.rec.Score = scorePtr(q.Score())
}

func (e *questionEncoder) VisitWeightedChoice(q domain.WeightedChoice) {
	opts := q.Options()
	e.rec.Options = make([]OptionRecord, len(opts))
	for i, o := range opts {
		e.rec.Options[i] = OptionRecord{Key: o.Key.String(), Text: o.Text.String(), Score: scorePtr(o.Score)}
	}
}

func (e *questionEncoder) VisitFreeText(domain.FreeText) {}

func (e *questionEncoder) VisitYesNo(q domain.YesNo) {
	yes, no := q.Slot(domain.YesKey), q.Slot(domain.NoKey)
	e.rec.Yes = &SlotRecord{Text: yes.Text.String(), Score: yes.Score.Value()}
	e.rec.No = &SlotRecord{Text: no.Text.String(), Score: no.Score.Value()}
}

func (e *questionEncoder) VisitShortAnswer(q domain.ShortAnswer) {
	e.rec.Expected = q.Expected().String()
	e.rec.Score = scorePtr(q.Score())
}

// ToDomain decodes the record through the constructor of its kind.
func (r QuestionRecord) ToDomain() (domain.Question, error) {
	id, err := domain.ParseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("question id: %w", err)
	}
	kind, err := domain.ParseQuestionKind(r.Kind)
	if err != nil {
		return nil, err
	}
	in := domain.QuestionInput{ID: id, Content: r.Content, Image: r.Image, Label: r.Label}

	switch kind {
	case domain.KindSingleChoice:
		score, err := requiredScore(r.Score)
		if err != nil {
			return nil, err
		}
		return widen[domain.SingleChoice](domain.NewSingleChoice(in, optionInputs(r.Options), r.CorrectKey, score))

	case domain.KindWeightedChoice:
		inputs := make([]domain.WeightedOptionInput, len(r.Options))
		for i, o := range r.Options {
			s, err := requiredScore(o.Score)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", o.Key, err)
			}
			inputs[i] = domain.WeightedOptionInput{Key: o.Key, Text: o.Text, Score: s}
		}
		return widen[domain.WeightedChoice](domain.NewWeightedChoice(in, inputs))

	case domain.KindFreeText:
		return widen[domain.FreeText](domain.NewFreeText(in))

	case domain.KindYesNo:
		if r.Yes == nil || r.No == nil {
			return nil, fmt.Errorf("%w: yes_no requires both slots", domain.ErrInvalidQuestion)
		}
		yes, err := slotInput(*r.Yes)
		if err != nil {
			return nil, err
		}
		no, err := slotInput(*r.No)
		if err != nil {
			return nil, err
		}
		return widen[domain.YesNo](domain.NewYesNo(in, yes, no))

	case domain.KindShortAnswer:
		score, err := requiredScore(r.Score)
		if err != nil {
			return nil, err
		}
		return widen[domain.ShortAnswer](domain.NewShortAnswer(in, r.Expected, score))

	default:
		return nil, fmt.Errorf("%w: unhandled kind %s", domain.ErrInvalidQuestion, kind)
	}
}

// widen converts a concrete constructor result to the Question interface
// without wrapping a zero variant on failure.
func widen[Q domain.Question](q Q, err error) (domain.Question, error) {
	if err != nil {
		return nil, err
	}
	return q, nil
}

func plainOptions(opts []domain.Option) []OptionRecord {
	out := make([]OptionRecord, len(opts))
	for i, o := range opts {
		out[i] = OptionRecord{Key: o.Key.String(), Text: o.Text.String()}
	}
	return out
}

func optionInputs(opts []OptionRecord) []domain.OptionInput {
	out := make([]domain.OptionInput, len(opts))
	for i, o := range opts {
		out[i] = domain.OptionInput{Key: o.Key, Text: o.Text}
	}
	return out
}

func slotInput(s SlotRecord) (domain.YesNoSlotInput, error) {
	score, err := domain.NewScore(s.Score)
	if err != nil {
		return domain.YesNoSlotInput{}, err
	}
	return domain.YesNoSlotInput{Text: s.Text, Score: score}, nil
}

func scorePtr(s domain.Score) *float64 {
	v := s.Value()
	return &v
}

func requiredScore(v *float64) (domain.Score, error) {
	if v == nil {
		return domain.Score{}, fmt.Errorf("%w: score is required", domain.ErrInvalidQuestion)
	}
	return domain.NewScore(*v)
}
