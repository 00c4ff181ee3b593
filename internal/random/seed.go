// Package random provides crypto-seeded pseudo-random sources.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Picker returns uniform indexes in [0, n) and is safe for concurrent use.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker builds a Picker seeded from crypto/rand.
func NewPicker() (*Picker, error) {
	hi, err := NewSeed()
	if err != nil {
		return nil, err
	}
	lo, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewPickerWithSeed(hi, lo), nil
}

// NewPickerWithSeed builds a deterministic Picker for tests and replays.
func NewPickerWithSeed(hi, lo uint64) *Picker {
	return &Picker{rng: rand.New(rand.NewPCG(hi, lo))}
}

// Pick returns a uniform index in [0, n). It returns 0 when n <= 1.
func (p *Picker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}
