package resampler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deskmedia/internal/resampler"
)

func TestOutputLengthIsDeterministic(t *testing.T) {
	cases := []struct {
		from, to, chunk, channels int
	}{
		{48000, 48000, 960, 2},
		{44100, 48000, 960, 2},
		{48000, 44100, 960, 2},
		{16000, 48000, 320, 1},
	}

	for _, c := range cases {
		r := resampler.New(c.from, c.to, c.chunk, c.channels)
		in := make([]float32, c.chunk*c.channels)
		out := r.Process(in)

		wantFrames := (c.chunk*c.to + c.from - 1) / c.from
		require.Equal(t, wantFrames, r.OutputFrames())
		require.Len(t, out, wantFrames*c.channels)
	}
}

func TestProcessPadsShortInput(t *testing.T) {
	r := resampler.New(48000, 48000, 960, 2)
	short := make([]float32, 100) // far fewer than 960*2
	out := r.Process(short)
	require.Len(t, out, r.OutputFrames()*2)
}

func TestNewPanicsOnInvalidDimensions(t *testing.T) {
	require.Panics(t, func() { resampler.New(0, 48000, 960, 2) })
	require.Panics(t, func() { resampler.New(48000, 0, 960, 2) })
	require.Panics(t, func() { resampler.New(48000, 48000, 0, 2) })
	require.Panics(t, func() { resampler.New(48000, 48000, 960, 0) })
}

func TestIdentityRatePreservesFrameCount(t *testing.T) {
	r := resampler.New(48000, 48000, 960, 1)
	require.Equal(t, 960, r.OutputFrames())
}
