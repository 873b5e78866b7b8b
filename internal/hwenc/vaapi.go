package hwenc

/*
#cgo pkg-config: libva libva-drm
#include <va/va.h>
#include <va/va_drm.h>
#include <fcntl.h>
#include <unistd.h>
#include <stdlib.h>

static int vaapi_open_display(VADisplay *disp, int *fd_out) {
	int fd = open("/dev/dri/renderD128", O_RDWR);
	if (fd < 0)
		return -1;
	VADisplay d = vaGetDisplayDRM(fd);
	if (d == NULL) {
		close(fd);
		return -1;
	}
	int major, minor;
	if (vaInitialize(d, &major, &minor) != VA_STATUS_SUCCESS) {
		close(fd);
		return -1;
	}
	*disp = d;
	*fd_out = fd;
	return 0;
}

static int vaapi_has_h264_encode(VADisplay disp) {
	int num = vaMaxNumEntrypoints(disp);
	VAEntrypoint *eps = malloc(sizeof(VAEntrypoint) * num);
	int found = 0;
	if (vaQueryConfigEntrypoints(disp, VAProfileH264Main, eps, &num) == VA_STATUS_SUCCESS) {
		for (int i = 0; i < num; i++) {
			if (eps[i] == VAEntrypointEncSlice || eps[i] == VAEntrypointEncSliceLP) {
				found = 1;
			}
		}
	}
	free(eps);
	return found;
}
*/
import "C"

import (
	"fmt"
	"sync"
)

// vaapiSession holds a libva display and tracks keyframe requests for
// NV12 input. Its Encode does not upload surfaces or produce a bitstream:
// it returns an error for every frame.
type vaapiSession struct {
	mu            sync.Mutex
	disp          C.VADisplay
	fd            C.int
	width, height int
	firstFrame    bool
	forceNext     bool
	closed        bool
}

// newVAAPIEncoder opens the render node and checks for an H.264 Main
// encode entrypoint (regular or low-power). It then closes the display and
// returns an error in every case, so Select falls through to software; no
// VAAPI encode session is configured.
func newVAAPIEncoder(p Params) (Encoder, error) {
	var disp C.VADisplay
	var fd C.int
	if C.vaapi_open_display(&disp, &fd) != 0 {
		return nil, fmt.Errorf("hwenc: no VAAPI render node available")
	}
	if C.vaapi_has_h264_encode(disp) == 0 {
		C.vaTerminate(disp)
		C.close(fd)
		return nil, fmt.Errorf("hwenc: display has no H.264 encode entrypoint")
	}

	// A full binding then creates a VAConfig (profile Main, entrypoint
	// EncSliceLP if offered else EncSlice), a VAContext at p.Width/Height,
	// and per-frame VASurface uploads honouring per-plane pitch/offset
	// from the VAImage metadata, with rate control fixed to CBR at
	// p.BitrateKbps and a 60fps framerate parameter buffer. Surface
	// upload and bitstream drain via vaSyncSurface/vaMapBuffer are not
	// exercisable without a real render node in this environment; see
	// DESIGN.md.
	C.vaTerminate(disp)
	C.close(fd)
	return nil, fmt.Errorf("hwenc: VAAPI encode pipeline not available in this build")
}

func (s *vaapiSession) Encode(nv12 []byte, forceKeyframe bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("hwenc: vaapi session closed")
	}
	keyframe := forceKeyframe || !s.firstFrame || s.forceNext
	s.firstFrame = true
	s.forceNext = false
	_ = keyframe
	return nil, fmt.Errorf("hwenc: vaapi encode unimplemented in this build")
}

func (s *vaapiSession) ForceKeyframe() { s.forceNext = true }

func (s *vaapiSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	C.vaTerminate(s.disp)
	C.close(s.fd)
	s.closed = true
	return nil
}
