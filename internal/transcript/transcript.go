// Package transcript implements the Fiat-Shamir transcript shared by the
// proof systems. Every absorbed value is labelled and length-prefixed, and
// every challenge is fed back into the running state.
package transcript

import (
	"anoncoin/internal/group"
)

// Transcript is a running hash over a proof's public data.
type Transcript struct {
	h *group.Hasher
}

// New starts a transcript under a protocol domain label.
func New(domain string) *Transcript {
	return &Transcript{h: group.NewHasher(domain)}
}

func (t *Transcript) label(l string) {
	t.h.WriteBytes([]byte(l))
}

// AddBytes absorbs b under label l.
func (t *Transcript) AddBytes(l string, b []byte) {
	t.label(l)
	t.h.WriteBytes(b)
}

func (t *Transcript) AddUint64(l string, v uint64) {
	t.label(l)
	t.h.WriteUint64(v)
}

func (t *Transcript) AddScalar(l string, s group.Scalar) {
	t.label(l)
	t.h.WriteScalar(s)
}

func (t *Transcript) AddScalars(l string, ss []group.Scalar) {
	t.label(l)
	t.h.WriteUint64(uint64(len(ss)))
	for _, s := range ss {
		t.h.WriteScalar(s)
	}
}

func (t *Transcript) AddPoint(l string, p group.Point) {
	t.label(l)
	t.h.WritePoint(p)
}

func (t *Transcript) AddPoints(l string, ps []group.Point) {
	t.label(l)
	t.h.WriteUint64(uint64(len(ps)))
	for _, p := range ps {
		t.h.WritePoint(p)
	}
}

// Challenge derives a scalar challenge and absorbs it.
func (t *Transcript) Challenge(l string) group.Scalar {
	t.label(l)
	c := t.h.Scalar()
	t.h.WriteScalar(c)
	return c
}
