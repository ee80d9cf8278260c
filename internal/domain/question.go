package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// QuestionKind enumerates the closed set of question variants.
// Using typed constants provides compile-time safety and enables
// exhaustive switch statements at every consumer.
type QuestionKind uint8

const (
	// KindSingleChoice has one correct option worth one score.
	KindSingleChoice QuestionKind = iota + 1

	// KindWeightedChoice maps every option to its own score (e.g. a Likert scale).
	KindWeightedChoice

	// KindFreeText collects prose and is never scored automatically.
	KindFreeText

	// KindYesNo has two fixed SI/NO slots with independent scores.
	KindYesNo

	// KindShortAnswer compares a short response to one expected answer.
	KindShortAnswer
)

// String returns the stable wire name of the kind.
func (k QuestionKind) String() string {
	switch k {
	case KindSingleChoice:
		return "single_choice"
	case KindWeightedChoice:
		return "weighted_choice"
	case KindFreeText:
		return "free_text"
	case KindYesNo:
		return "yes_no"
	case KindShortAnswer:
		return "short_answer"
	default:
		return "unknown"
	}
}

// ParseQuestionKind is the inverse of QuestionKind.String.
func ParseQuestionKind(s string) (QuestionKind, error) {
	switch s {
	case "single_choice":
		return KindSingleChoice, nil
	case "weighted_choice":
		return KindWeightedChoice, nil
	case "free_text":
		return KindFreeText, nil
	case "yes_no":
		return KindYesNo, nil
	case "short_answer":
		return KindShortAnswer, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuestion, s)
	}
}

// Response is what an applicant submitted for one question. Choice questions
// expect exactly one value (an option key); text questions join all values.
type Response []string

// single returns the only value of r, or false if r does not hold exactly one non-blank value.
func (r Response) single() (string, bool) {
	var found string
	n := 0
	for _, v := range r {
		if strings.TrimSpace(v) == "" {
			continue
		}
		found = v
		n++
	}
	return found, n == 1
}

// Question is the sealed sum type of the five question variants. Scoring is a
// method of every variant, and QuestionVisitor forces consumers that need the
// concrete variant (serialization, display) to handle all of them.
type Question interface {
	ID() ID
	Kind() QuestionKind
	Content() Text
	Image() string
	Label() Text

	// Award returns the points r earns under this variant's scoring contract.
	Award(r Response) Score

	// MaxScore returns the highest score any response can earn.
	MaxScore() Score

	// Accept dispatches to the visitor method for the concrete variant.
	Accept(v QuestionVisitor)

	sealed()
}

// QuestionVisitor has one method per variant. Adding a variant adds a method,
// which breaks every implementation until it handles the new case.
type QuestionVisitor interface {
	VisitSingleChoice(q SingleChoice)
	VisitWeightedChoice(q WeightedChoice)
	VisitFreeText(q FreeText)
	VisitYesNo(q YesNo)
	VisitShortAnswer(q ShortAnswer)
}

// QuestionInput carries the fields shared by every variant.
// A zero ID asks the constructor to mint a fresh identity.
type QuestionInput struct {
	ID      ID
	Content string `validate:"required"`
	Image   string `validate:"omitempty,max=2048,printascii"`
	Label   string `validate:"omitempty,max=100"`
}

// LabelBounds limits the classification label.
var LabelBounds = TextBounds{Min: 0, Max: 100}

type questionBase struct {
	id      ID
	content Text
	image   string
	label   Text
}

func newQuestionBase(in QuestionInput) (questionBase, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			field := strings.ToLower(f.Field())
			if field == "content" {
				return questionBase{}, &FieldError{Field: "content", Rule: "required", Err: ErrInvalidText}
			}
			return questionBase{}, fmt.Errorf("%w: %s violates %s", ErrInvalidQuestion, field, f.Tag())
		}
		return questionBase{}, fmt.Errorf("%w: %w", ErrInvalidQuestion, err)
	}

	content, err := NewText("content", in.Content, ContentBounds)
	if err != nil {
		return questionBase{}, err
	}
	label, err := OptionalText("label", in.Label, LabelBounds)
	if err != nil {
		return questionBase{}, err
	}

	id := in.ID
	if id.IsZero() {
		id = NewID()
	}
	return questionBase{id: id, content: content, image: strings.TrimSpace(in.Image), label: label}, nil
}

func (b questionBase) ID() ID { return b.id }
func (b questionBase) Content() Text { return b.content }
func (b questionBase) Image() string { return b.image }
func (b questionBase) Label() Text { return b.label }
func (questionBase) sealed() {}

// SingleChoice has 2-7 options and exactly one correct key worth Score.
type SingleChoice struct {
	questionBase
	options []Option
	correct OptionKey
	score   Score
}

// NewSingleChoice validates the options and that the correct key is among them.
func NewSingleChoice(in QuestionInput, options []OptionInput, correct string, score Score) (SingleChoice, error) {
	base, err := newQuestionBase(in)
	if err != nil {
		return SingleChoice{}, err
	}
	opts, err := buildOptions(options)
	if err != nil {
		return SingleChoice{}, err
	}
	key, err := ParseOptionKey(correct)
	if err != nil {
		return SingleChoice{}, err
	}
	if _, ok := findOption(opts, key); !ok {
		return SingleChoice{}, &OptionError{Key: string(key), Err: ErrCorrectKeyMissing}
	}
	return SingleChoice{questionBase: base, options: opts, correct: key, score: score}, nil
}

func (SingleChoice) Kind() QuestionKind { return KindSingleChoice }

// Options returns a copy of the options in display order.
func (q SingleChoice) Options() []Option { return append([]Option(nil), q.options...) }

// CorrectKey returns the designated correct option.
func (q SingleChoice) CorrectKey() OptionKey { return q.correct }

// Score returns the points awarded for the correct option.
func (q SingleChoice) Score() Score { return q.score }

// Award returns Score only when r selects exactly the correct key.
func (q SingleChoice) Award(r Response) Score {
	v, ok := r.single()
	if !ok {
		return ZeroScore()
	}
	key, err := ParseOptionKey(v)
	if err != nil || key != q.correct {
		return ZeroScore()
	}
	return q.score
}

func (q SingleChoice) MaxScore() Score { return q.score }
func (q SingleChoice) Accept(v QuestionVisitor) { v.VisitSingleChoice(q) }

// WeightedOption is an option that carries its own score.
type WeightedOption struct {
	Option
	Score Score
}

// WeightedChoice has 2-7 options, each mapped to its own score. No option is "correct".
type WeightedChoice struct {
	questionBase
	options []WeightedOption
}

// NewWeightedChoice validates the option set; every option must carry a score.
func NewWeightedChoice(in QuestionInput, options []WeightedOptionInput) (WeightedChoice, error) {
	base, err := newQuestionBase(in)
	if err != nil {
		return WeightedChoice{}, err
	}
	plain := make([]OptionInput, len(options))
	for i, o := range options {
		plain[i] = OptionInput{Key: o.Key, Text: o.Text}
	}
	opts, err := buildOptions(plain)
	if err != nil {
		return WeightedChoice{}, err
	}
	weighted := make([]WeightedOption, len(opts))
	for i, o := range opts {
		weighted[i] = WeightedOption{Option: o, Score: options[i].Score}
	}
	return WeightedChoice{questionBase: base, options: weighted}, nil
}

func (WeightedChoice) Kind() QuestionKind { return KindWeightedChoice }

// Options returns a copy of the weighted options in display order.
func (q WeightedChoice) Options() []WeightedOption {
	return append([]WeightedOption(nil), q.options...)
}

// ScoreFor returns the score mapped to key.
func (q WeightedChoice) ScoreFor(key OptionKey) (Score, bool) {
	for _, o := range q.options {
		if o.Key == key {
			return o.Score, true
		}
	}
	return Score{}, false
}

// Award returns the score of whichever option r selects; zero for no or unknown selection.
func (q WeightedChoice) Award(r Response) Score {
	v, ok := r.single()
	if !ok {
		return ZeroScore()
	}
	key, err := ParseOptionKey(v)
	if err != nil {
		return ZeroScore()
	}
	s, _ := q.ScoreFor(key)
	return s
}

func (q WeightedChoice) MaxScore() Score {
	best := ZeroScore()
	for _, o := range q.options {
		best = best.Max(o.Score)
	}
	return best
}

func (q WeightedChoice) Accept(v QuestionVisitor) { v.VisitWeightedChoice(q) }

// FreeText collects prose that a reviewer grades by hand.
type FreeText struct {
	questionBase
}

// NewFreeText validates the shared question fields.
func NewFreeText(in QuestionInput) (FreeText, error) {
	base, err := newQuestionBase(in)
	if err != nil {
		return FreeText{}, err
	}
	return FreeText{questionBase: base}, nil
}

func (FreeText) Kind() QuestionKind { return KindFreeText }
func (FreeText) Award(Response) Score { return ZeroScore() }
func (FreeText) MaxScore() Score { return ZeroScore() }
func (q FreeText) Accept(v QuestionVisitor) { v.VisitFreeText(q) }

// YesNo has the two fixed slots SI and NO, each with its own text and score.
type YesNo struct {
	questionBase
	yes YesNoSlot
	no  YesNoSlot
}

// NewYesNo validates both slot texts.
func NewYesNo(in QuestionInput, yes, no YesNoSlotInput) (YesNo, error) {
	base, err := newQuestionBase(in)
	if err != nil {
		return YesNo{}, err
	}
	yesText, err := NewText("option SI", yes.Text, OptionTextBounds)
	if err != nil {
		return YesNo{}, err
	}
	noText, err := NewText("option NO", no.Text, OptionTextBounds)
	if err != nil {
		return YesNo{}, err
	}
	return YesNo{
		questionBase: base,
		yes:          YesNoSlot{Text: yesText, Score: yes.Score},
		no:           YesNoSlot{Text: noText, Score: no.Score},
	}, nil
}

func (YesNo) Kind() QuestionKind { return KindYesNo }

// Slot returns the SI or NO slot.
func (q YesNo) Slot(key YesNoKey) YesNoSlot {
	if key == YesKey {
		return q.yes
	}
	return q.no
}

// Award returns the score of the selected slot; zero for anything else.
func (q YesNo) Award(r Response) Score {
	v, ok := r.single()
	if !ok {
		return ZeroScore()
	}
	key, ok := ParseYesNoKey(v)
	if !ok {
		return ZeroScore()
	}
	return q.Slot(key).Score
}

func (q YesNo) MaxScore() Score { return q.yes.Score.Max(q.no.Score) }
func (q YesNo) Accept(v QuestionVisitor) { v.VisitYesNo(q) }

// ShortAnswer awards Score when the response matches the expected answer
// after case folding and whitespace collapsing.
type ShortAnswer struct {
	questionBase
	expected Text
	score    Score
}

// ExpectedBounds limits the expected answer of a ShortAnswer.
var ExpectedBounds = TextBounds{Min: 1, Max: 200}

// NewShortAnswer validates the expected answer.
func NewShortAnswer(in QuestionInput, expected string, score Score) (ShortAnswer, error) {
	base, err := newQuestionBase(in)
	if err != nil {
		return ShortAnswer{}, err
	}
	exp, err := NewText("expected", expected, ExpectedBounds)
	if err != nil {
		return ShortAnswer{}, err
	}
	return ShortAnswer{questionBase: base, expected: exp, score: score}, nil
}

func (ShortAnswer) Kind() QuestionKind { return KindShortAnswer }

// Expected returns the expected answer as authored.
func (q ShortAnswer) Expected() Text { return q.expected }

// Score returns the points awarded for a match.
func (q ShortAnswer) Score() Score { return q.score }

// Award compares the normalized response to the normalized expected answer.
func (q ShortAnswer) Award(r Response) Score {
	if normalizeAnswer(strings.Join(r, " ")) == normalizeAnswer(q.expected.String()) {
		return q.score
	}
	return ZeroScore()
}

func (q ShortAnswer) MaxScore() Score { return q.score }
func (q ShortAnswer) Accept(v QuestionVisitor) { v.VisitShortAnswer(q) }

// normalizeAnswer lower-cases s and collapses all whitespace runs to one space.
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
