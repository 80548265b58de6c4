package spark

import "errors"

var (
	// ErrBadSemantics reports a malformed transaction: vector lengths that
	// disagree with the input count, oversized cover sets, unknown cover
	// set ids. It is never returned for a proof that fails to verify.
	ErrBadSemantics = errors.New("spark: bad transaction semantics")

	// ErrInvalidProof reports a well-formed transaction whose proofs fail.
	ErrInvalidProof = errors.New("spark: invalid proof")

	ErrInvalidLength   = errors.New("spark: invalid address length")
	ErrInvalidChecksum = errors.New("spark: invalid address checksum")
	ErrInvalidHex      = errors.New("spark: invalid address hex")

	// ErrBadDiversifier is returned when an encrypted diversifier has the
	// wrong size or does not belong to the view key.
	ErrBadDiversifier = errors.New("spark: bad diversifier")

	// ErrNotOwned is returned when a coin cannot be identified with the
	// supplied view key.
	ErrNotOwned = errors.New("spark: coin not owned by view key")

	ErrMemoTooLong = errors.New("spark: memo too long")
	ErrCoinType    = errors.New("spark: unknown coin type")
)
