package domain

import (
	"strings"
)

// Option count limits for choice questions.
const (
	MinOptions = 2
	MaxOptions = 7
)

// OptionKey labels a choice option. Valid keys are the letters A through G.
type OptionKey string

// Option keys in display order.
const (
	OptionA OptionKey = "A"
	OptionB OptionKey = "B"
	OptionC OptionKey = "C"
	OptionD OptionKey = "D"
	OptionE OptionKey = "E"
	OptionF OptionKey = "F"
	OptionG OptionKey = "G"
)

// ParseOptionKey normalizes case and surrounding space and validates the key domain.
func ParseOptionKey(s string) (OptionKey, error) {
	k := OptionKey(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", &OptionError{Key: s, Err: ErrInvalidOptionKey}
	}
	return k, nil
}

// Valid reports whether k is one of A-G.
func (k OptionKey) Valid() bool { return len(k) == 1 && k[0] >= 'A' && k[0] <= 'G' }

// String returns the key letter.
func (k OptionKey) String() string { return string(k) }

// Option is one labeled alternative of a choice question.
type Option struct {
	Key  OptionKey
	Text Text
}

// OptionInput is the unvalidated form of an Option.
type OptionInput struct {
	Key  string
	Text string
}

// WeightedOptionInput is the unvalidated form of an option that carries its own score.
type WeightedOptionInput struct {
	Key   string
	Text  string
	Score Score
}

// buildOptions validates count, key domain, key uniqueness and option text.
func buildOptions(inputs []OptionInput) ([]Option, error) {
	if len(inputs) < MinOptions || len(inputs) > MaxOptions {
		return nil, &OptionError{Count: len(inputs), Err: ErrOptionCount}
	}

	seen := make(map[OptionKey]struct{}, len(inputs))
	options := make([]Option, 0, len(inputs))
	for _, in := range inputs {
		key, err := ParseOptionKey(in.Key)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			return nil, &OptionError{Key: string(key), Err: ErrDuplicateOptionKey}
		}
		seen[key] = struct{}{}

		text, err := NewText("option "+string(key), in.Text, OptionTextBounds)
		if err != nil {
			return nil, err
		}
		options = append(options, Option{Key: key, Text: text})
	}
	return options, nil
}

func findOption(options []Option, key OptionKey) (Option, bool) {
	for _, o := range options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// YesNoKey identifies one of the two fixed slots of a Yes/No question.
type YesNoKey string

// The two Yes/No slots.
const (
	YesKey YesNoKey = "SI"
	NoKey  YesNoKey = "NO"
)

// ParseYesNoKey accepts SI/SÍ/NO in any case.
func ParseYesNoKey(s string) (YesNoKey, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SI", "SÍ":
		return YesKey, true
	case "NO":
		return NoKey, true
	default:
		return "", false
	}
}

// YesNoSlot is one slot of a Yes/No question: its display text and the score it awards.
type YesNoSlot struct {
	Text  Text
	Score Score
}

// YesNoSlotInput is the unvalidated form of a YesNoSlot.
type YesNoSlotInput struct {
	Text  string
	Score Score
}
