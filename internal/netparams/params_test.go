package netparams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	for _, p := range []*Params{RegTest, MainNet} {
		t.Run(p.Name, func(t *testing.T) {
			require.Same(t, p.Sigma(), p.Sigma())
			require.Same(t, p.Spark(), p.Spark())
			l := p.Limits()
			require.NoError(t, l.Validate(p.Sigma().Params().MaxSetSize(), p.Spark().CoverSetSize()))
		})
	}

	require.Equal(t, 16, RegTest.Sigma().Params().MaxSetSize())
	require.Equal(t, 16, RegTest.Spark().CoverSetSize())
	require.Same(t, RegTest, Select(true))
	require.Same(t, MainNet, Select(false))
}
