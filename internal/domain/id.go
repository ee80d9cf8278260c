package domain

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idTextLength is the length of the canonical base-32 text form.
const idTextLength = ulid.EncodedSize

// crockford is the 32-symbol alphabet of the text form. It excludes I, L, O and U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ID identifies every entity in the system. It is a 128-bit ULID: a 48-bit
// millisecond timestamp followed by 80 bits of entropy, so the lexicographic
// order of the text form equals chronological order.
// The zero value is the nil identity and never produced by a Generator.
type ID struct {
	u ulid.ULID
}

// ZeroID is the nil identity.
var ZeroID ID

// Generator produces identities from an injectable clock and entropy source.
// Tests supply a fixed clock and a deterministic Entropy to get reproducible sequences.
type Generator struct {
	now     func() time.Time
	entropy io.Reader
}

// NewGenerator creates a generator. A nil clock defaults to time.Now and a nil
// entropy source defaults to NewDefaultEntropy.
func NewGenerator(now func() time.Time, entropy io.Reader) *Generator {
	if now == nil {
		now = time.Now
	}
	if entropy == nil {
		entropy = NewDefaultEntropy()
	}
	return &Generator{now: now, entropy: entropy}
}

// Next returns a new identity. It fails only when the entropy source fails.
func (g *Generator) Next() (ID, error) {
	u, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return ZeroID, err
	}
	return ID{u: u}, nil
}

var (
	defaultGenOnce sync.Once
	defaultGen     *Generator
)

// NewID returns a fresh identity from the process-wide generator.
// The default entropy source never fails, so a failure here is a programming error.
func NewID() ID {
	defaultGenOnce.Do(func() { defaultGen = NewGenerator(nil, nil) })
	id, err := defaultGen.Next()
	if err != nil {
		panic("domain: default id generator failed: " + err.Error())
	}
	return id
}

// ParseID decodes the 26-character text form. Parsing is case-insensitive and
// normalizes the confusable characters O to 0 and I/L to 1 before decoding.
func ParseID(text string) (ID, error) {
	if len(text) != idTextLength {
		return ZeroID, &IDError{Input: text, Position: -1, Err: ErrInvalidIDLength}
	}

	normalized := normalizeID(text)
	for i := 0; i < len(normalized); i++ {
		if strings.IndexByte(crockford, normalized[i]) < 0 {
			return ZeroID, &IDError{Input: text, Position: i, Err: ErrInvalidIDCharacter}
		}
	}

	u, err := ulid.ParseStrict(normalized)
	if err != nil {
		// The leading character encodes more than 48 bits of timestamp.
		if errors.Is(err, ulid.ErrOverflow) {
			return ZeroID, &IDError{Input: text, Position: 0, Err: ErrInvalidIDCharacter}
		}
		return ZeroID, &IDError{Input: text, Position: -1, Err: ErrInvalidIDCharacter}
	}
	return ID{u: u}, nil
}

// MustParseID is ParseID for literals in tests and fixtures. It panics on malformed input.
func MustParseID(text string) ID {
	id, err := ParseID(text)
	if err != nil {
		panic(err)
	}
	return id
}

func normalizeID(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'O', 'o':
			return '0'
		case 'I', 'i', 'L', 'l':
			return '1'
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, text)
}

// String returns the canonical 26-character upper-case text form.
func (id ID) String() string { return id.u.String() }

// IsZero reports whether id is the nil identity.
func (id ID) IsZero() bool { return id == ZeroID }

// Time returns the embedded millisecond timestamp.
func (id ID) Time() time.Time { return ulid.Time(id.u.Time()) }

// Compare orders identities by timestamp, then entropy.
// Returns -1, 0 or +1.
func (id ID) Compare(other ID) int { return id.u.Compare(other.u) }

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields ZeroID.
func (id *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = ZeroID
		return nil
	}
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
