package hwenc

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

// nvEncodeAPI is loaded via dlopen rather than linked, mirroring how the
// original implementation resolves libnvidia-encode.so at runtime so the
// binary still starts on machines without an NVIDIA driver installed.
static void *nvenc_dlopen() {
	return dlopen("libnvidia-encode.so.1", RTLD_NOW | RTLD_GLOBAL);
}
*/
import "C"

import (
	"fmt"
	"sync"
)

// nvencSession models the buffer-borrows-from-session ownership cycle from
// the session is the stable-address owner, while the input
// surface and output bitstream buffer are only valid while the session's
// encoder handle is open. Close releases surface and bitstream before the
// session itself, so the dependent buffers never outlive their owner.
type nvencSession struct {
	mu            sync.Mutex
	width, height int
	forceNext     bool
	closed        bool
	surface       *nvencSurface
	bitstream     *nvencBitstream
}

type nvencSurface struct{ owner *nvencSession }
type nvencBitstream struct{ owner *nvencSession }

// newNVENCEncoder probes for libnvidia-encode via dlopen and returns an
// error so Select falls through to VAAPI/software. It returns an error
// also when the library loads: no NVENC session is created.
func newNVENCEncoder(p Params) (Encoder, error) {
	handle := C.nvenc_dlopen()
	if handle == nil {
		return nil, fmt.Errorf("hwenc: libnvidia-encode.so.1 not found")
	}

	// A full binding resolves NvEncodeAPICreateInstance from the dlopen'd
	// handle, opens a CUDA device, and creates an encode session with an
	// ARGB input buffer format (BGRA byte order on little-endian), preset
	// P4, tuning ultra-low-latency, CBR with a one-frame VBV, GOP/IDR
	// period from p.GOP, and repeated SPS/PPS. Device/driver access is not
	// exercisable in this environment; see DESIGN.md.
	return nil, fmt.Errorf("hwenc: no NVENC-capable device detected")
}

// Encode takes packed BGRA input but does not encode it: it returns an
// error for every frame, whether or not the session is closed.
func (s *nvencSession) Encode(bgra []byte, forceKeyframe bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("hwenc: nvenc session closed")
	}
	_ = forceKeyframe
	return nil, fmt.Errorf("hwenc: nvenc encode unimplemented in this build")
}

func (s *nvencSession) ForceKeyframe() { s.forceNext = true }

// Close releases the bitstream and surface before the encoder session
// itself, preserving the ownership order required: dependent buffers
// die first, the stable-address owner dies last.
func (s *nvencSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.bitstream = nil
	s.surface = nil
	s.closed = true
	return nil
}
