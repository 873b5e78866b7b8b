// Package hwenc abstracts H.264 encoding over a software (OpenH264) path
// and two hardware-accelerated paths (NVENC, VAAPI), selected once at
// construction time by feature probing and falling back to software on any
// initialisation failure.
package hwenc

import "log"

// Encoder is the polymorphic H.264 encoder surface every screen-share
// session drives: one encode call per frame, plus an explicit keyframe
// request independent of the periodic IDR cadence driven by the caller.
type Encoder interface {
	// Encode compresses one I420 (software), NV12 (VAAPI) or packed BGRA (NVENC)
	// frame at the encoder's fixed dimensions and returns zero or more
	// complete Annex-B NALUs concatenated with start codes.
	Encode(frame []byte, forceKeyframe bool) ([]byte, error)
	// ForceKeyframe requests an IDR on the next Encode call.
	ForceKeyframe()
	// Close releases the underlying encoder handle and any hardware
	// surfaces bound to it.
	Close() error
}

// Params describes the fixed encoder configuration derived from the
// first captured frame's dimensions.
type Params struct {
	Width, Height int
	BitrateKbps   int // 5000 nominal
	FPS           int // 30 nominal
	GOP           int // 60 nominal
}

// DefaultParams returns the screen-share encoder configuration mandated
// for any backend.
func DefaultParams(width, height int) Params {
	return Params{Width: width, Height: height, BitrateKbps: 5000, FPS: 30, GOP: 60}
}

// Select builds the best available encoder for params, probing NVENC
// first, then VAAPI, then falling back to software OpenH264. Any
// construction failure in a hardware path falls through to the next
// candidate; software construction failure is returned as an error since
// there is nothing left to fall back to.
func Select(params Params) (Encoder, error) {
	if enc, err := newNVENCEncoder(params); err == nil {
		log.Printf("[hwenc] using NVENC backend")
		return enc, nil
	} else {
		log.Printf("[hwenc] NVENC unavailable: %v", err)
	}

	if enc, err := newVAAPIEncoder(params); err == nil {
		log.Printf("[hwenc] using VAAPI backend")
		return enc, nil
	} else {
		log.Printf("[hwenc] VAAPI unavailable: %v", err)
	}

	enc, err := newSoftwareEncoder(params)
	if err != nil {
		return nil, err
	}
	log.Printf("[hwenc] using software (OpenH264) backend")
	return enc, nil
}
