package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// Entropy is the identity generator's randomness source. Each Read mixes an
// atomic counter, a per-source seed and a timing jitter sample through SHA-256,
// so concurrent callers never coordinate beyond the counter increment.
//
// With a fixed seed and a constant jitter function the byte stream is fully
// deterministic, which is what tests use.
type Entropy struct {
	counter atomic.Uint64
	seed    uint64
	jitter  func() int64
}

// NewEntropy creates an entropy source from an explicit seed and jitter sampler.
// A nil jitter samples the monotonic clock.
func NewEntropy(seed uint64, jitter func() int64) *Entropy {
	if jitter == nil {
		jitter = clockJitter
	}
	return &Entropy{seed: seed, jitter: jitter}
}

// NewDefaultEntropy seeds a source from the operating system's CSPRNG and
// samples clock jitter on every read.
func NewDefaultEntropy() *Entropy {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fall back to wall-clock nanoseconds; the counter still keeps reads distinct.
		binary.BigEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
	}
	return NewEntropy(binary.BigEndian.Uint64(b[:]), nil)
}

var processStart = time.Now()

// clockJitter returns nanoseconds since process start; the low bits vary with scheduling.
func clockJitter() int64 { return int64(time.Since(processStart)) }

// Read fills p with mixed entropy. It never returns an error.
func (e *Entropy) Read(p []byte) (int, error) {
	var block [24]byte
	written := 0
	for written < len(p) {
		n := e.counter.Add(1)
		binary.BigEndian.PutUint64(block[0:8], e.seed)
		binary.BigEndian.PutUint64(block[8:16], n)
		binary.BigEndian.PutUint64(block[16:24], uint64(e.jitter()))
		sum := sha256.Sum256(block[:])
		written += copy(p[written:], sum[:])
	}
	return written, nil
}
