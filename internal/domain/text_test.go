package domain

import (
	"errors"
	"strings"
	"testing"
	"testing/quick"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	bounds := TextBounds{Min: 3, Max: 10}

	tests := []struct {
		name     string
		input    string
		want     string
		wantRule string
	}{
		{name: "plain", input: "Álgebra", want: "Álgebra"},
		{name: "trimmed", input: "  Física \t", want: "Física"},
		{name: "punctuation", input: "¿Qué? ¡Sí!", want: "¿Qué? ¡Sí!"},
		{name: "exact min", input: "abc", want: "abc"},
		{name: "exact max", input: "ñandú-1234", want: "ñandú-1234"},
		{name: "blank", input: "   ", wantRule: "required"},
		{name: "too short", input: "ab", wantRule: "min"},
		{name: "too long in runes", input: "ñññññññññññ", wantRule: "max"},
		{name: "backslash", input: `a\b c`, wantRule: "charset"},
		{name: "pipe", input: "a|b c", wantRule: "charset"},
		{name: "braces", input: "{abc}", wantRule: "charset"},
		{name: "angle brackets", input: "<b>x</b>", wantRule: "charset"},
		{name: "inner control", input: "ab\x07cd", wantRule: "charset"},
		{name: "inner newline", input: "ab\ncd", wantRule: "charset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewText("title", tt.input, bounds)
			if tt.wantRule != "" {
				require.ErrorIs(t, err, ErrInvalidText)
				var fe *FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "title", fe.Field)
				assert.Equal(t, tt.wantRule, fe.Rule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, utf8.RuneCountInString(tt.want), got.Len())
		})
	}
}

func TestFieldError_ReportsBound(t *testing.T) {
	_, err := NewText("title", "ab", TitleBounds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min=3")
	assert.Contains(t, err.Error(), "title")
}

func TestOptionalText(t *testing.T) {
	empty, err := OptionalText("description", "  ", DescriptionBounds)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	got, err := OptionalText("description", " Repaso ", DescriptionBounds)
	require.NoError(t, err)
	assert.Equal(t, "Repaso", got.String())

	_, err = OptionalText("description", strings.Repeat("x", 251), DescriptionBounds)
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestText_Compare(t *testing.T) {
	a := mustText("a", "alfa", ContentBounds)
	b := mustText("b", "beta", ContentBounds)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(mustText("c", " alfa ", ContentBounds)))
	assert.Equal(t, a, mustText("c", "alfa", ContentBounds))
}

// Property: NewText fails iff the trimmed input is empty, out of bounds, or
// contains a disallowed rune.
func TestNewText_Characterization_Property(t *testing.T) {
	bounds := TextBounds{Min: 1, Max: 40}
	f := func(s string) bool {
		trimmed := strings.TrimSpace(s)
		n := utf8.RuneCountInString(trimmed)
		allowed := true
		for _, r := range trimmed {
			if !allowedRune(r) {
				allowed = false
				break
			}
		}
		shouldFail := n == 0 || n < bounds.Min || n > bounds.Max || !allowed

		got, err := NewText("field", s, bounds)
		if shouldFail {
			return err != nil
		}
		return err == nil && got.String() == trimmed
	}

	if err := quick.Check(f, nil); err != nil {
		t.Errorf("characterization property failed: %v", err)
	}
}

// FuzzNewText checks that construction never panics and that accepted text is
// trimmed and within bounds.
func FuzzNewText(f *testing.F) {
	f.Add("Examen de ingreso")
	f.Add("  ")
	f.Add("a\\b")
	f.Add("¿Cuántos lados tiene un hexágono?")
	f.Add("\x00\xff")
	f.Add(strings.Repeat("á", 151))

	f.Fuzz(func(t *testing.T, s string) {
		got, err := NewText("title", s, TitleBounds)
		if err != nil {
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("untyped error for %q: %v", s, err)
			}
			return
		}
		if got.String() != strings.TrimSpace(got.String()) {
			t.Fatalf("untrimmed text %q", got.String())
		}
		if n := got.Len(); n < TitleBounds.Min || n > TitleBounds.Max {
			t.Fatalf("length %d outside bounds", n)
		}
	})
}
