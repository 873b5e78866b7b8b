// Package resampler converts interleaved float PCM between sample rates
// using a fixed-input-size FFT resampling engine.
package resampler

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Resampler converts fixed-size chunks of interleaved PCM from one sample
// rate to another. Each call to Process accepts up to inputFrames frames
// per channel (interleaved) and returns a deterministic number of output
// frames: ceil(inputFrames * toRate / fromRate).
//
// Construction is fatal-on-failure (mirrors a native resampler library
// rejecting degenerate rates); steady-state Process never fails.
type Resampler struct {
	fromRate    int
	toRate      int
	inputFrames int
	outFrames   int
	channels    int

	fwd *fourier.FFT
	inv *fourier.FFT

	chanBuf  [][]float64
	coeffBuf []complex128
}

// New creates a resampler converting fromRate -> toRate. chunkSize is the
// number of frames per input chunk (per channel); channels is the
// interleaved channel count. Panics if any dimension is non-positive:
// construction failure here is unrecoverable at startup.
func New(fromRate, toRate, chunkSize, channels int) *Resampler {
	if fromRate <= 0 || toRate <= 0 || chunkSize <= 0 || channels <= 0 {
		panic(fmt.Sprintf("resampler: invalid dimensions from=%d to=%d chunk=%d ch=%d",
			fromRate, toRate, chunkSize, channels))
	}
	outFrames := ceilDiv(chunkSize*toRate, fromRate)

	r := &Resampler{
		fromRate:    fromRate,
		toRate:      toRate,
		inputFrames: chunkSize,
		outFrames:   outFrames,
		channels:    channels,
		fwd:         fourier.NewFFT(chunkSize),
		inv:         fourier.NewFFT(outFrames),
	}
	r.chanBuf = make([][]float64, channels)
	for c := range r.chanBuf {
		r.chanBuf[c] = make([]float64, chunkSize)
	}
	return r
}

// OutputFrames returns the deterministic number of frames per channel
// produced by each call to Process.
func (r *Resampler) OutputFrames() int { return r.outFrames }

// Process resamples one chunk of interleaved float32 samples. Input shorter
// than inputFrames*channels is zero-padded at the tail. Returns
// OutputFrames()*channels interleaved samples.
func (r *Resampler) Process(interleaved []float32) []float32 {
	frames := len(interleaved) / r.channels

	for c := 0; c < r.channels; c++ {
		buf := r.chanBuf[c]
		for i := 0; i < r.inputFrames; i++ {
			if i < frames {
				buf[i] = float64(interleaved[i*r.channels+c])
			} else {
				buf[i] = 0
			}
		}
	}

	out := make([]float32, r.outFrames*r.channels)
	// gonum's forward/inverse real FFT pair is unnormalized: Sequence sums
	// raw coefficients with no 1/N factor, so the amplitude introduced by
	// the forward transform (a factor of inputFrames) must be divided back
	// out here — the inverse transform's own length (outFrames) does not
	// enter the scale.
	scale := 1.0 / float64(r.inputFrames)

	for c := 0; c < r.channels; c++ {
		coeff := r.fwd.Coefficients(r.coeffBuf, r.chanBuf[c])
		r.coeffBuf = coeff

		resized := resizeSpectrum(coeff, r.inv.Len()/2+1)
		seq := r.inv.Sequence(nil, resized)

		for i := 0; i < r.outFrames; i++ {
			out[i*r.channels+c] = float32(seq[i] * scale)
		}
	}

	return out
}

// resizeSpectrum truncates or zero-pads a one-sided real-FFT spectrum
// (length n/2+1 for an even transform of size n) to match the bin count
// expected by a transform of a different length, preserving low
// frequencies — the standard technique for FFT-domain resampling.
func resizeSpectrum(src []complex128, dstLen int) []complex128 {
	dst := make([]complex128, dstLen)
	n := len(src)
	if dstLen < n {
		copy(dst, src[:dstLen])
	} else {
		copy(dst, src)
	}
	// Nyquist bin of an even-length real transform carries no imaginary
	// part; zero it after resizing to avoid injecting energy when the
	// bin count changes parity.
	if dstLen > 0 {
		last := dst[len(dst)-1]
		dst[len(dst)-1] = complex(real(last), 0)
	}
	return dst
}

func ceilDiv(a, b int) int {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
