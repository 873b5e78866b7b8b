package pwcapture

/*
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <spa/param/video/raw-utils.h>
*/
import "C"

import (
	"sync/atomic"
	"unsafe"
)

var stateCounter atomic.Uintptr

// registry maps an opaque handle (passed through cgo as a uintptr disguised
// as a void*, since Go pointers may not be stored in C memory) to the
// video/audio state the exported callbacks below dispatch into.
func registerState(st any) uintptr {
	key := stateCounter.Add(1)
	registry.Store(key, st)
	return key
}

func unregisterState(key uintptr) {
	registry.Delete(key)
}

func lookupVideo(data unsafe.Pointer) *videoState {
	key := uintptr(data)
	v, ok := registry.Load(key)
	if !ok {
		return nil
	}
	st, _ := v.(*videoState)
	return st
}

func lookupAudio(data unsafe.Pointer) *audioState {
	key := uintptr(data)
	v, ok := registry.Load(key)
	if !ok {
		return nil
	}
	st, _ := v.(*audioState)
	return st
}

//export goVideoFormatChanged
func goVideoFormatChanged(data unsafe.Pointer, width, height, format C.uint32_t) {
	st := lookupVideo(data)
	if st == nil || st.onFormat == nil {
		return
	}
	// BGRA/BGRx put blue first; RGBA/RGBx put red first. Anything else
	// negotiated outside the BGRA/RGBA/BGRx/RGBx choice set (shouldn't
	// happen given videoFormatParams' enum) defaults to BGRA's byte order.
	isBGRA := format != C.SPA_VIDEO_FORMAT_RGBA && format != C.SPA_VIDEO_FORMAT_RGBx
	st.onFormat(VideoSize{Width: int(width), Height: int(height), IsBGRA: isBGRA})
}

//export goVideoProcess
func goVideoProcess(data unsafe.Pointer, buf unsafe.Pointer, size C.uint32_t, stride C.int32_t, contentH C.int32_t) {
	st := lookupVideo(data)
	if st == nil || st.onBuffer == nil {
		return
	}
	b := C.GoBytes(buf, C.int(size))
	cont := st.onBuffer(VideoBuffer{Data: b, Stride: int(stride), ContentH: int(contentH)})
	if !cont {
		st.quitOnce()
	}
}

//export goAudioFormatChanged
func goAudioFormatChanged(data unsafe.Pointer, rate, channels C.uint32_t) {
	st := lookupAudio(data)
	if st == nil || st.onFormat == nil {
		return
	}
	st.onFormat(AudioFormat{Rate: int(rate), Channels: int(channels)})
}

//export goAudioProcess
func goAudioProcess(data unsafe.Pointer, buf unsafe.Pointer, size C.uint32_t) {
	st := lookupAudio(data)
	if st == nil || st.onBuffer == nil {
		return
	}
	b := C.GoBytes(buf, C.int(size))
	if !st.onBuffer(b) {
		st.quitOnce()
	}
}

func (st *videoState) quitOnce() {
	select {
	case <-st.stop:
	default:
		close(st.stop)
	}
}

func (st *audioState) quitOnce() {
	select {
	case <-st.stop:
	default:
		close(st.stop)
	}
}
