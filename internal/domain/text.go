package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextBounds is the inclusive [Min, Max] rune-length window of a validated text field.
type TextBounds struct {
	Min int
	Max int
}

// Field bounds used across the aggregate.
var (
	TitleBounds        = TextBounds{Min: 3, Max: 150}
	DescriptionBounds  = TextBounds{Min: 0, Max: 250}
	InstructionsBounds = TextBounds{Min: 0, Max: 500}
	ContentBounds      = TextBounds{Min: 1, Max: 500}
	OptionTextBounds   = TextBounds{Min: 1, Max: 200}
	ObservationBounds  = TextBounds{Min: 1, Max: 1000}
)

// allowedPunctuation is the fixed punctuation set accepted besides letters, digits and spaces.
const allowedPunctuation = ".,;:!?¡¿'\"()[]-_/%&@#*+=$"

// Text is an immutable, trimmed string that satisfied its bounds and the
// character allow-list at construction. The zero value is the empty text and
// is only meaningful for optional fields.
type Text struct {
	value string
}

// NewText trims s and validates it against bounds and the allow-list.
// field names the value in the returned *FieldError.
func NewText(field, s string, bounds TextBounds) (Text, error) {
	trimmed := strings.TrimSpace(s)
	n := utf8.RuneCountInString(trimmed)

	if n == 0 && bounds.Min > 0 {
		return Text{}, &FieldError{Field: field, Rule: "required", Err: ErrInvalidText}
	}
	if n < bounds.Min {
		return Text{}, &FieldError{Field: field, Rule: "min", Limit: bounds.Min, Err: ErrInvalidText}
	}
	if n > bounds.Max {
		return Text{}, &FieldError{Field: field, Rule: "max", Limit: bounds.Max, Err: ErrInvalidText}
	}
	for _, r := range trimmed {
		if !allowedRune(r) {
			return Text{}, &FieldError{Field: field, Rule: "charset", Err: ErrInvalidText}
		}
	}
	return Text{value: trimmed}, nil
}

// OptionalText validates s only when it is non-blank; blank input yields the zero Text.
func OptionalText(field, s string, bounds TextBounds) (Text, error) {
	if strings.TrimSpace(s) == "" {
		return Text{}, nil
	}
	return NewText(field, s, TextBounds{Min: max(bounds.Min, 1), Max: bounds.Max})
}

// mustText builds a Text from a compile-time constant.
func mustText(field, s string, bounds TextBounds) Text {
	t, err := NewText(field, s, bounds)
	if err != nil {
		panic(err)
	}
	return t
}

func allowedRune(r rune) bool {
	switch {
	case r == utf8.RuneError:
		return false
	case unicode.IsControl(r):
		return false
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return true
	case r == ' ':
		return true
	default:
		return strings.ContainsRune(allowedPunctuation, r)
	}
}

// String returns the trimmed content.
func (t Text) String() string { return t.value }

// IsEmpty reports whether the text holds no content.
func (t Text) IsEmpty() bool { return t.value == "" }

// Len returns the length in runes.
func (t Text) Len() int { return utf8.RuneCountInString(t.value) }

// Compare orders texts by content. Returns -1, 0 or +1.
func (t Text) Compare(other Text) int { return strings.Compare(t.value, other.value) }
