package pwcapture

/*
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <spa/param/audio/format-utils.h>
#include <spa/pod/builder.h>

// build_video_format_params fills a small fixed-size POD buffer with one
// spa_format choice enumerating BGRA/RGBA/BGRx/RGBx at any size, the shape
// PipeWire expects for SPA_PARAM_EnumFormat, built with
// spa_pod_builder_add_object over the caller-supplied buffer. The first
// enum entry (BGRA) is the default.
static struct spa_pod *build_video_format_params(uint8_t *buf, size_t bufsize) {
	struct spa_pod_builder b = SPA_POD_BUILDER_INIT(buf, bufsize);
	return spa_pod_builder_add_object(&b,
		SPA_TYPE_OBJECT_Format, SPA_PARAM_EnumFormat,
		SPA_FORMAT_mediaType,    SPA_POD_Id(SPA_MEDIA_TYPE_video),
		SPA_FORMAT_mediaSubtype, SPA_POD_Id(SPA_MEDIA_SUBTYPE_raw),
		SPA_FORMAT_VIDEO_format, SPA_POD_CHOICE_ENUM_Id(5,
			SPA_VIDEO_FORMAT_BGRA, SPA_VIDEO_FORMAT_BGRA, SPA_VIDEO_FORMAT_RGBA,
			SPA_VIDEO_FORMAT_BGRx, SPA_VIDEO_FORMAT_RGBx),
		0);
}

static struct spa_pod *build_audio_format_params(uint8_t *buf, size_t bufsize, uint32_t rate, uint32_t channels) {
	struct spa_pod_builder b = SPA_POD_BUILDER_INIT(buf, bufsize);
	return spa_pod_builder_add_object(&b,
		SPA_TYPE_OBJECT_Format, SPA_PARAM_EnumFormat,
		SPA_FORMAT_mediaType,    SPA_POD_Id(SPA_MEDIA_TYPE_audio),
		SPA_FORMAT_mediaSubtype, SPA_POD_Id(SPA_MEDIA_SUBTYPE_raw),
		SPA_FORMAT_AUDIO_format, SPA_POD_Id(SPA_AUDIO_FORMAT_F32LE),
		SPA_FORMAT_AUDIO_rate,   SPA_POD_Int(rate),
		SPA_FORMAT_AUDIO_channels, SPA_POD_Int(channels),
		0);
}
*/
import "C"

import "unsafe"

// paramBufSize is generous headroom for the single-object POD each of
// these builders produces.
const paramBufSize = 1024

func videoFormatParams() []*C.struct_spa_pod {
	buf := C.malloc(C.size_t(paramBufSize))
	pod := C.build_video_format_params((*C.uint8_t)(buf), C.size_t(paramBufSize))
	return []*C.struct_spa_pod{pod}
}

func audioFormatParams(rate, channels int) []*C.struct_spa_pod {
	buf := C.malloc(C.size_t(paramBufSize))
	pod := C.build_audio_format_params((*C.uint8_t)(buf), C.size_t(paramBufSize), C.uint32_t(rate), C.uint32_t(channels))
	return []*C.struct_spa_pod{pod}
}

func freeParams(params []*C.struct_spa_pod) {
	for _, p := range params {
		if p != nil {
			C.free(unsafe.Pointer(p))
		}
	}
}
