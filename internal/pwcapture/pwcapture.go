// Package pwcapture wraps libpipewire-0.3 to pull raw video frames from a
// portal-negotiated screencast node and raw audio frames from the default
// sink's monitor. Each stream owns a dedicated OS thread running one
// PipeWire main loop; callbacks hop back into Go via exported trampolines
// and hand buffers to the caller's onFormat/onBuffer callbacks, which run
// on the PipeWire thread.
package pwcapture

/*
#cgo pkg-config: libpipewire-0.3
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <spa/param/audio/format-utils.h>
#include <spa/utils/result.h>
#include <stdlib.h>

extern void goVideoFormatChanged(void *data, uint32_t width, uint32_t height, uint32_t format);
extern void goVideoProcess(void *data, void *buf, uint32_t size, int32_t stride, int32_t contentH);
extern void goAudioFormatChanged(void *data, uint32_t rate, uint32_t channels);
extern void goAudioProcess(void *data, void *buf, uint32_t size);

static void on_state_changed(void *data, enum pw_stream_state old, enum pw_stream_state state, const char *error) {}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// VideoSize is the negotiated stream dimensions and pixel layout, reported
// once by the format-changed callback before any buffers arrive.
type VideoSize struct {
	Width, Height int
	// IsBGRA is true when the negotiated SPA format is BGRA/BGRx (blue
	// byte first), false when it is RGBA/RGBx (red byte first) — the
	// byte-order distinction pixconv and the preview encoder care about.
	IsBGRA bool
}

// VideoBuffer is one raw frame handed up from the PipeWire video worker,
// still in its native stride (may exceed Width*4).
type VideoBuffer struct {
	Data     []byte
	Stride   int
	ContentH int
}

// AudioFormat is the negotiated sample rate / channel count for the
// system-audio monitor stream; PipeWire's daemon may not honour the
// requested 48kHz stereo exactly.
type AudioFormat struct {
	Rate, Channels int
}

var registry sync.Map // handle uintptr -> *videoState / *audioState

type videoState struct {
	onFormat func(VideoSize)
	onBuffer func(VideoBuffer) bool // return false to request main-loop quit
	stop     chan struct{}
	loop     *C.struct_pw_thread_loop
	stream   *C.struct_pw_stream
	hook     C.struct_spa_hook
}

type audioState struct {
	onFormat func(AudioFormat)
	onBuffer func([]byte) bool
	stop     chan struct{}
	loop     *C.struct_pw_thread_loop
	stream   *C.struct_pw_stream
	hook     C.struct_spa_hook
}

var initOnce sync.Once

func ensureInit() {
	initOnce.Do(func() {
		C.pw_init(nil, nil)
	})
}

// VideoSession owns one PipeWire video capture connected through a portal
// file descriptor. Run blocks until Stop is called or onBuffer returns
// false; it must be invoked from a dedicated goroutine, which Run pins with
// runtime.LockOSThread, matching the video PipeWire worker's threading rule.
type VideoSession struct {
	st  *videoState
	key uintptr
}

// NewVideoSession prepares (but does not start) a video capture bound to
// portalFD, the file descriptor returned by the screencast portal's
// OpenPipeWireRemote call. onFormat fires once on negotiation; onBuffer
// fires per frame and should return quickly — it runs on the PipeWire
// thread.
func NewVideoSession(portalFD int, onFormat func(VideoSize), onBuffer func(VideoBuffer) bool) *VideoSession {
	ensureInit()
	st := &videoState{onFormat: onFormat, onBuffer: onBuffer, stop: make(chan struct{})}
	key := registerState(st)
	return &VideoSession{st: st, key: key}
}

// Run connects to portalFD and blocks in the PipeWire main loop until Stop
// is called from another goroutine or onBuffer returns false. Setup
// failures are returned; stream errors after connect are not observed.
// Run calls runtime.LockOSThread itself, since the pw_stream handle this
// creates is not movable across OS threads.
func (v *VideoSession) Run(portalFD int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loop := C.pw_thread_loop_new(C.CString("deskmedia-video"), nil)
	if loop == nil {
		unregisterState(v.key)
		return fmt.Errorf("pwcapture: pw_thread_loop_new failed")
	}
	v.st.loop = loop

	ctx := C.pw_context_new(C.pw_thread_loop_get_loop(loop), nil, 0)
	if ctx == nil {
		C.pw_thread_loop_destroy(loop)
		unregisterState(v.key)
		return fmt.Errorf("pwcapture: pw_context_new failed")
	}

	core := C.pw_context_connect_fd(ctx, C.int(portalFD), nil, 0)
	if core == nil {
		C.pw_context_destroy(ctx)
		C.pw_thread_loop_destroy(loop)
		unregisterState(v.key)
		return fmt.Errorf("pwcapture: pw_context_connect_fd failed")
	}

	props := C.pw_properties_new(
		C.CString(C.PW_KEY_MEDIA_TYPE), C.CString("Video"),
		C.CString(C.PW_KEY_MEDIA_CATEGORY), C.CString("Capture"),
		C.CString(C.PW_KEY_MEDIA_ROLE), C.CString("Screen"),
		nil,
	)
	stream := C.pw_stream_new(core, C.CString("deskmedia-screen-video"), props)
	if stream == nil {
		C.pw_context_destroy(ctx)
		C.pw_thread_loop_destroy(loop)
		unregisterState(v.key)
		return fmt.Errorf("pwcapture: pw_stream_new failed")
	}
	v.st.stream = stream
	addVideoListener(stream, &v.st.hook, v.key)

	// Format choice: BGRA, RGBA, BGRx, RGBx, no fixed size — built by
	// videoFormatParams into a malloc'd POD buffer that freeParams
	// releases when Run returns.
	params := videoFormatParams()
	defer freeParams(params)

	if C.pw_stream_connect(stream, C.PW_DIRECTION_INPUT, C.PW_ID_ANY,
		C.PW_STREAM_FLAG_AUTOCONNECT|C.PW_STREAM_FLAG_MAP_BUFFERS,
		(**C.struct_spa_pod)(unsafe.Pointer(&params[0])), C.uint32_t(len(params))) < 0 {
		C.pw_thread_loop_destroy(loop)
		unregisterState(v.key)
		return fmt.Errorf("pwcapture: pw_stream_connect failed")
	}

	C.pw_thread_loop_start(loop)
	<-v.st.stop
	C.pw_thread_loop_stop(loop)
	C.pw_stream_destroy(stream)
	C.pw_context_destroy(ctx)
	C.pw_thread_loop_destroy(loop)
	unregisterState(v.key)
	return nil
}

// Stop signals the main loop to quit from outside the PipeWire thread.
func (v *VideoSession) Stop() {
	select {
	case <-v.st.stop:
	default:
		close(v.st.stop)
	}
}

// AudioSession mirrors VideoSession for the default sink-monitor capture
// used by screen-audio; it is not bound to the portal fd —
// it connects to the regular user PipeWire daemon.
type AudioSession struct {
	st  *audioState
	key uintptr
}

// NewAudioSession prepares a sink-monitor capture; Run requests F32LE at
// 48kHz stereo (PipeWire may negotiate something else; the effective
// values are reported via onFormat).
func NewAudioSession(onFormat func(AudioFormat), onBuffer func([]byte) bool) *AudioSession {
	ensureInit()
	st := &audioState{onFormat: onFormat, onBuffer: onBuffer, stop: make(chan struct{})}
	key := registerState(st)
	return &AudioSession{st: st, key: key}
}

// Run connects to the default PipeWire daemon and blocks until Stop is
// called. Failure here is non-fatal to the overall screen session;
// callers should log and continue without system audio.
func (a *AudioSession) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loop := C.pw_thread_loop_new(C.CString("deskmedia-audio"), nil)
	if loop == nil {
		unregisterState(a.key)
		return fmt.Errorf("pwcapture: pw_thread_loop_new failed")
	}
	a.st.loop = loop

	ctx := C.pw_context_new(C.pw_thread_loop_get_loop(loop), nil, 0)
	if ctx == nil {
		C.pw_thread_loop_destroy(loop)
		unregisterState(a.key)
		return fmt.Errorf("pwcapture: pw_context_new failed")
	}

	core := C.pw_context_connect(ctx, nil, 0)
	if core == nil {
		C.pw_context_destroy(ctx)
		C.pw_thread_loop_destroy(loop)
		unregisterState(a.key)
		return fmt.Errorf("pwcapture: pw_context_connect failed")
	}

	props := C.pw_properties_new(
		C.CString(C.PW_KEY_MEDIA_TYPE), C.CString("Audio"),
		C.CString(C.PW_KEY_MEDIA_CATEGORY), C.CString("Capture"),
		C.CString("stream.capture.sink"), C.CString("true"),
		nil,
	)
	stream := C.pw_stream_new(core, C.CString("deskmedia-screen-audio"), props)
	if stream == nil {
		C.pw_context_destroy(ctx)
		C.pw_thread_loop_destroy(loop)
		unregisterState(a.key)
		return fmt.Errorf("pwcapture: pw_stream_new failed")
	}
	a.st.stream = stream
	addAudioListener(stream, &a.st.hook, a.key)

	params := audioFormatParams(48000, 2)
	defer freeParams(params)

	if C.pw_stream_connect(stream, C.PW_DIRECTION_INPUT, C.PW_ID_ANY,
		C.PW_STREAM_FLAG_AUTOCONNECT|C.PW_STREAM_FLAG_MAP_BUFFERS,
		(**C.struct_spa_pod)(unsafe.Pointer(&params[0])), C.uint32_t(len(params))) < 0 {
		C.pw_thread_loop_destroy(loop)
		unregisterState(a.key)
		return fmt.Errorf("pwcapture: pw_stream_connect failed")
	}

	C.pw_thread_loop_start(loop)
	<-a.st.stop
	C.pw_thread_loop_stop(loop)
	C.pw_stream_destroy(stream)
	C.pw_context_destroy(ctx)
	C.pw_thread_loop_destroy(loop)
	unregisterState(a.key)
	return nil
}

// Stop signals the main loop to quit from outside the PipeWire thread.
func (a *AudioSession) Stop() {
	select {
	case <-a.st.stop:
	default:
		close(a.st.stop)
	}
}
