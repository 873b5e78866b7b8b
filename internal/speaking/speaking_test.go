package speaking_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deskmedia/internal/speaking"
)

func loud(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.5
	}
	return s
}

func quiet(n int) []float32 {
	return make([]float32, n) // all zero
}

func TestTransitionsOnlyOnChange(t *testing.T) {
	d := speaking.New()

	_, changed := d.Process(loud(10), 1)
	require.True(t, changed, "first loud frame should transition to speaking")

	_, changed = d.Process(loud(10), 1)
	require.False(t, changed, "repeated loud frames should not re-emit")
}

func TestHoldTimerExactly250ms(t *testing.T) {
	d := speaking.New()

	speaking1, changed := d.Process(loud(10), 1)
	require.True(t, changed)
	require.True(t, speaking1)

	// The hold timer only starts counting down from the last frame whose
	// smoothed RMS is still above threshold, not from the loud frame
	// itself: with emaRelease=0.05, smoothedRMS decays as 0.2*0.95^n and
	// does not drop below speakThreshold=0.015 until the 51st quiet frame
	// (n=50 gives ~0.01539, n=51 gives ~0.01462), so holdUntil keeps
	// getting refreshed through quiet frame 50 (clock=51ms) to
	// holdUntil=301ms. From there, speaking stays true while clock < 301,
	// i.e. through quiet frame 299 (clock=300ms); quiet frame 300
	// (clock=301ms) is the first frame where clock is no longer less than
	// holdUntil, so that's where the not-speaking transition fires.
	for i := 0; i < 299; i++ {
		_, changed := d.Process(quiet(10), 1)
		require.False(t, changed, "should still be within hold window at frame %d", i)
	}

	isSpeaking, changed := d.Process(quiet(10), 1)
	require.True(t, changed, "hold window should have elapsed")
	require.False(t, isSpeaking)
}

func TestEmptyFrameIsNoOp(t *testing.T) {
	d := speaking.New()
	_, changed := d.Process(nil, 20)
	require.False(t, changed)
}

func TestResetClearsState(t *testing.T) {
	d := speaking.New()
	d.Process(loud(10), 20)
	d.Reset()
	_, changed := d.Process(quiet(10), 20)
	require.False(t, changed, "after reset, starting quiet should not transition")
}
