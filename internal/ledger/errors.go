// errors.go - Rejection codes and state invariant failures.

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGroup is returned when a spend cites a group or accumulator
	// block the state does not know.
	ErrNoGroup = errors.New("ledger: no such group/coin")

	// ErrDoubleSpend is returned for a serial that is already spent or
	// reserved.
	ErrDoubleSpend = errors.New("ledger: serial already used")

	// ErrStateCorrupted marks a broken state invariant. Once returned, the
	// validator refuses all further work.
	ErrStateCorrupted = errors.New("ledger: state corrupted")

	ErrUnknownBlock = errors.New("ledger: unknown block")
	ErrNotTip       = errors.New("ledger: block does not extend the tip")
)

// RejectCode classifies a rejected transaction or block so callers can
// apply different penalties.
type RejectCode uint8

// Codes follow the values of the bitcoin reject message.
const (
	RejectMalformed   RejectCode = 0x01
	RejectInvalid     RejectCode = 0x10
	RejectDoubleSpend RejectCode = 0x12
	RejectPolicy      RejectCode = 0x40
)

func (c RejectCode) String() string {
	switch c {
	case RejectMalformed:
		return "REJECT_MALFORMED"
	case RejectInvalid:
		return "REJECT_INVALID"
	case RejectDoubleSpend:
		return "REJECT_DUPLICATE"
	case RejectPolicy:
		return "REJECT_POLICY"
	default:
		return fmt.Sprintf("RejectCode(%d)", uint8(c))
	}
}

// RejectError reports why a transaction or block was refused.
type RejectError struct {
	Code   RejectCode
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

func reject(code RejectCode, reason string, err error) error {
	return &RejectError{Code: code, Reason: reason, Err: err}
}

// RejectCodeOf extracts the reject code carried by err.
func RejectCodeOf(err error) (RejectCode, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}

// InvariantError describes a violated state invariant. It unwraps to
// ErrStateCorrupted.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrStateCorrupted, e.Op, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrStateCorrupted }

func invariant(op, format string, args ...interface{}) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
