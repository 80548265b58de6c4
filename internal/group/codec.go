// codec.go - Binary encoding of scalars, points and vectors of both.
//
// Vectors carry a 4-byte little-endian length. Decoding is sticky: after the
// first error every further read is a no-op and Err reports the failure.

package group

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxVectorLen bounds every decoded vector length.
const MaxVectorLen = 1 << 20

// ErrTruncated is returned when an encoding ends early.
var ErrTruncated = errors.New("group: truncated encoding")

// Encoder writes the canonical binary form of protocol values.
type Encoder struct {
	buf bytes.Buffer
}

func (e *Encoder) PutUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) PutScalar(s Scalar) {
	b := s.Bytes()
	e.buf.Write(b[:])
}

func (e *Encoder) PutPoint(p Point) {
	b := p.Bytes()
	e.buf.Write(b[:])
}

func (e *Encoder) PutScalars(ss []Scalar) {
	e.PutUint32(uint32(len(ss)))
	for _, s := range ss {
		e.PutScalar(s)
	}
}

func (e *Encoder) PutPoints(ps []Point) {
	e.PutUint32(uint32(len(ps)))
	for _, p := range ps {
		e.PutPoint(p)
	}
}

// PutBytes writes b with a length prefix.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.buf.Write(b)
}

// PutRaw writes b without a length prefix.
func (e *Encoder) PutRaw(b []byte) {
	e.buf.Write(b)
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Decoder reads values written by Encoder.
type Decoder struct {
	b   []byte
	err error
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.b)
}

// Finish reports an error if decoding failed or input is left over.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.b) != 0 {
		return fmt.Errorf("group: %d trailing bytes", len(d.b))
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.b) < n {
		d.err = ErrTruncated
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) Scalar() Scalar {
	b := d.take(ScalarSize)
	if b == nil {
		return Scalar{}
	}
	s, err := ScalarFromBytes(b)
	if err != nil {
		d.err = err
	}
	return s
}

func (d *Decoder) Point() Point {
	b := d.take(PointSize)
	if b == nil {
		return Point{}
	}
	p, err := PointFromBytes(b)
	if err != nil {
		d.err = err
	}
	return p
}

func (d *Decoder) length() int {
	n := d.Uint32()
	if d.err != nil {
		return 0
	}
	if n > MaxVectorLen {
		d.err = fmt.Errorf("group: vector length %d exceeds limit", n)
		return 0
	}
	return int(n)
}

func (d *Decoder) Scalars() []Scalar {
	n := d.length()
	out := make([]Scalar, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.Scalar())
	}
	return out
}

func (d *Decoder) Points() []Point {
	n := d.length()
	out := make([]Point, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.Point())
	}
	return out
}

func (d *Decoder) Bytes() []byte {
	n := d.length()
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Raw reads exactly n bytes.
func (d *Decoder) Raw(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
