package spark

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Small cover sets and aggregation keep proofs fast in tests.
var testParams = MustNewParams(DefaultMemoBytes, 4, 2, 3)

type wallet struct {
	sk  *SpendKey
	fvk *FullViewKey
	ivk *IncomingViewKey
}

func newWallet(p *Params) *wallet {
	sk := NewSpendKey(p)
	fvk := NewFullViewKey(sk)
	return &wallet{sk: sk, fvk: fvk, ivk: NewIncomingViewKey(fvk)}
}

func TestDeriveSpendKey(t *testing.T) {
	var seed [32]byte
	copy(seed[:], "a deterministic wallet seed....")

	a := DeriveSpendKey(testParams, seed)
	b := DeriveSpendKey(testParams, seed)
	require.True(t, a.s1.Equal(b.s1))
	require.True(t, a.s2.Equal(b.s2))
	require.True(t, a.r.Equal(b.r))
	require.False(t, a.s1.Equal(a.s2))

	seed[0] ^= 1
	c := DeriveSpendKey(testParams, seed)
	require.False(t, a.s1.Equal(c.s1))

	fa := NewFullViewKey(a)
	fb := NewFullViewKey(b)
	require.True(t, fa.D.Equal(fb.D))
	require.True(t, fa.P2.Equal(fb.P2))
}

func TestAddressDiversifier(t *testing.T) {
	w := newWallet(testParams)

	rapid.Check(t, func(rt *rapid.T) {
		i := rapid.Uint64().Draw(rt, "i")
		j := rapid.Uint64().Draw(rt, "j")

		ai := NewAddress(w.ivk, i)
		got, err := w.ivk.Diversifier(ai.D)
		if err != nil || got != i {
			rt.Fatalf("diversifier %d recovered as %d (%v)", i, got, err)
		}
		if i != j && ai.Equal(NewAddress(w.ivk, j)) {
			rt.Fatalf("addresses %d and %d collide", i, j)
		}
		if !ai.Equal(NewAddress(w.ivk, i)) {
			rt.Fatalf("address %d is not deterministic", i)
		}
	})
}

func TestVerifyAddress(t *testing.T) {
	w := newWallet(testParams)
	other := newWallet(testParams)

	addr := NewAddress(w.ivk, 42)
	i, err := w.ivk.VerifyAddress(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(42), i)

	// Another key decrypts the diversifier to garbage that does not
	// reproduce the address.
	_, err = other.ivk.VerifyAddress(addr)
	require.ErrorIs(t, err, ErrBadDiversifier)

	forged := *addr
	forged.Q2 = NewAddress(w.ivk, 43).Q2
	_, err = w.ivk.VerifyAddress(&forged)
	require.ErrorIs(t, err, ErrBadDiversifier)

	_, err = w.ivk.Diversifier(addr.D[:8])
	require.ErrorIs(t, err, ErrBadDiversifier)
}

func TestAddressEncoding(t *testing.T) {
	w := newWallet(testParams)
	addr := NewAddress(w.ivk, 7)
	s := addr.Encode()
	require.Len(t, s, EncodedAddressLen)
	require.Equal(t, byte(DefaultAddressVersion), s[0])

	t.Run("round trip", func(t *testing.T) {
		dec, err := DecodeAddress(testParams, s)
		require.NoError(t, err)
		require.True(t, addr.Equal(dec))
	})

	t.Run("checksum corruption", func(t *testing.T) {
		last := s[len(s)-1]
		repl := byte('0')
		if last == '0' {
			repl = '1'
		}
		bad := s[:len(s)-1] + string(repl)
		_, err := DecodeAddress(testParams, bad)
		require.ErrorIs(t, err, ErrInvalidChecksum)
	})

	t.Run("payload corruption", func(t *testing.T) {
		// Flip a hex digit of d, which is never rejected by point decoding.
		pos := 1 + 2*2*33 + 3
		c := s[pos]
		repl := byte('a')
		if c == 'a' {
			repl = 'b'
		}
		bad := s[:pos] + string(repl) + s[pos+1:]
		_, err := DecodeAddress(testParams, bad)
		require.ErrorIs(t, err, ErrInvalidChecksum)
	})

	t.Run("uppercase payload", func(t *testing.T) {
		payload := s[1 : 1+2*addressPayloadSize]
		upper := s[:1] + strings.ToUpper(payload) + s[1+2*addressPayloadSize:]
		require.NotEqual(t, s, upper)
		_, err := DecodeAddress(testParams, upper)
		require.ErrorIs(t, err, ErrInvalidChecksum)

		_, err = DecodeAddress(testParams, strings.ToUpper(s))
		require.Error(t, err)
	})

	t.Run("length", func(t *testing.T) {
		_, err := DecodeAddress(testParams, s[:len(s)-2])
		require.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("hex", func(t *testing.T) {
		bad := s[:5] + "zz" + s[7:]
		_, err := DecodeAddress(testParams, bad)
		require.ErrorIs(t, err, ErrInvalidHex)
	})

	t.Run("version", func(t *testing.T) {
		bad := "x" + s[1:]
		_, err := DecodeAddress(testParams, bad)
		require.ErrorIs(t, err, ErrInvalidChecksum)
	})
}
