package script

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"anoncoin/internal/group"
)

func TestSigmaMint(t *testing.T) {
	coin := group.Generator().Mul(group.ScalarFromUint64(77))
	s := NewSigmaMint(coin)
	require.True(t, IsMint(s))
	require.False(t, IsSpend(s))

	got, err := ParseSigmaMint(s)
	require.NoError(t, err)
	require.True(t, coin.Equal(got))

	_, err = ParseSigmaMint(s[:20])
	require.ErrorIs(t, err, ErrShortPayload)

	_, err = ParseSigmaMint(append([]byte{byte(SparkMint)}, s[1:]...))
	require.ErrorIs(t, err, ErrNoMarker)

	_, err = ParseSigmaMint(NewSigmaMint(group.Identity()))
	require.ErrorIs(t, err, group.ErrInvalidPoint)

	bad := append([]byte(nil), s...)
	bad[1] = 0x07
	_, err = ParseSigmaMint(bad)
	require.ErrorIs(t, err, group.ErrInvalidPoint)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		script []byte
		marker Marker
		err    error
	}{
		{nil, 0, ErrNoMarker},
		{[]byte{0x76, 0xa9}, 0, ErrNoMarker},
		{[]byte{0xc3, 1}, SigmaMint, nil},
		{[]byte{0xc4, 1}, SigmaSpend, nil},
		{[]byte{0xd1, 1}, SparkMint, nil},
		{[]byte{0xd3, 1}, SparkSpend, nil},
	}
	for _, tc := range cases {
		m, err := Classify(tc.script)
		require.ErrorIs(t, err, tc.err)
		require.Equal(t, tc.marker, m)
	}
}

func TestPayload(t *testing.T) {
	s := New(SparkSpend, []byte("proof"))
	p, err := Payload(SparkSpend, s)
	require.NoError(t, err)
	require.Equal(t, []byte("proof"), p)

	_, err = Payload(SigmaSpend, s)
	require.ErrorIs(t, err, ErrNoMarker)

	_, err = Payload(SparkSpend, []byte{byte(SparkSpend)})
	require.ErrorIs(t, err, ErrShortPayload)
}

func TestCheckGroupID(t *testing.T) {
	require.ErrorIs(t, CheckGroupID(0), ErrGroupID)
	require.NoError(t, CheckGroupID(1))
	require.NoError(t, CheckGroupID(math.MaxInt32-1))
	require.ErrorIs(t, CheckGroupID(math.MaxInt32), ErrGroupID)
	require.ErrorIs(t, CheckGroupID(math.MaxUint32), ErrGroupID)
}
