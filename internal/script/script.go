// Package script recognizes mint outputs and spend inputs by their leading
// marker byte and splits off the payload the proof layer consumes.
package script

import (
	"errors"
	"fmt"
	"math"

	"anoncoin/internal/group"
)

// Marker is the first byte of an anonymous-coin script.
type Marker byte

const (
	SigmaMint  Marker = 0xc3
	SigmaSpend Marker = 0xc4
	SparkMint  Marker = 0xd1
	SparkSpend Marker = 0xd3
)

func (m Marker) String() string {
	switch m {
	case SigmaMint:
		return "sigma-mint"
	case SigmaSpend:
		return "sigma-spend"
	case SparkMint:
		return "spark-mint"
	case SparkSpend:
		return "spark-spend"
	default:
		return fmt.Sprintf("Marker(0x%02x)", byte(m))
	}
}

var (
	ErrNoMarker     = errors.New("script: missing marker")
	ErrShortPayload = errors.New("script: payload too short")
	ErrGroupID      = errors.New("script: group id out of range")
)

// Classify returns the marker of s, or ErrNoMarker if s is not an
// anonymous-coin script.
func Classify(s []byte) (Marker, error) {
	if len(s) == 0 {
		return 0, ErrNoMarker
	}
	switch m := Marker(s[0]); m {
	case SigmaMint, SigmaSpend, SparkMint, SparkSpend:
		return m, nil
	default:
		return 0, ErrNoMarker
	}
}

// IsMint reports whether s is a mint output script.
func IsMint(s []byte) bool {
	m, err := Classify(s)
	return err == nil && (m == SigmaMint || m == SparkMint)
}

// IsSpend reports whether s is a spend input script.
func IsSpend(s []byte) bool {
	m, err := Classify(s)
	return err == nil && (m == SigmaSpend || m == SparkSpend)
}

// NewSigmaMint returns the output script for a public coin commitment.
func NewSigmaMint(coin group.Point) []byte {
	b := coin.Bytes()
	return append([]byte{byte(SigmaMint)}, b[:]...)
}

// ParseSigmaMint returns the commitment of a Sigma mint output.
func ParseSigmaMint(s []byte) (group.Point, error) {
	if len(s) == 0 || Marker(s[0]) != SigmaMint {
		return group.Point{}, ErrNoMarker
	}
	if len(s) < 1+group.PointSize {
		return group.Point{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(s))
	}
	p, err := group.PointFromBytes(s[1 : 1+group.PointSize])
	if err != nil {
		return group.Point{}, err
	}
	if p.IsIdentity() {
		return group.Point{}, fmt.Errorf("%w: identity coin", group.ErrInvalidPoint)
	}
	return p, nil
}

// New returns marker followed by payload.
func New(m Marker, payload []byte) []byte {
	return append([]byte{byte(m)}, payload...)
}

// Payload strips the expected marker from s.
func Payload(m Marker, s []byte) ([]byte, error) {
	if len(s) == 0 || Marker(s[0]) != m {
		return nil, ErrNoMarker
	}
	if len(s) == 1 {
		return nil, ErrShortPayload
	}
	return s[1:], nil
}

// CheckGroupID validates a group id carried in an input's previous-output
// index. Valid ids lie in [1, MaxInt32).
func CheckGroupID(id uint32) error {
	if id < 1 || id >= math.MaxInt32 {
		return fmt.Errorf("%w: %d", ErrGroupID, id)
	}
	return nil
}
