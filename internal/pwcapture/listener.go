package pwcapture

/*
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <spa/param/audio/format-utils.h>
#include <spa/param/video/raw-utils.h>
#include <spa/param/audio/raw-utils.h>

extern void goVideoFormatChanged(void *data, uint32_t width, uint32_t height, uint32_t format);
extern void goVideoProcess(void *data, void *buf, uint32_t size, int32_t stride, int32_t contentH);
extern void goAudioFormatChanged(void *data, uint32_t rate, uint32_t channels);
extern void goAudioProcess(void *data, void *buf, uint32_t size);

static void video_on_param_changed(void *data, uint32_t id, const struct spa_pod *param) {
	struct spa_video_info_raw info;
	if (param == NULL || id != SPA_PARAM_Format)
		return;
	if (spa_format_video_raw_parse(param, &info) < 0)
		return;
	goVideoFormatChanged(data, info.size.width, info.size.height, info.format);
}

static void video_on_process(void *data, struct pw_stream *stream) {
	struct pw_buffer *b = pw_stream_dequeue_buffer(stream);
	if (b == NULL)
		return;
	struct spa_buffer *buf = b->buffer;
	if (buf->datas[0].data != NULL) {
		struct spa_chunk *chunk = buf->datas[0].chunk;
		goVideoProcess(data, buf->datas[0].data, chunk->size, chunk->stride, (int32_t)chunk->size / (chunk->stride ? chunk->stride : 1));
	}
	pw_stream_queue_buffer(stream, b);
}

static void audio_on_param_changed(void *data, uint32_t id, const struct spa_pod *param) {
	struct spa_audio_info_raw info;
	if (param == NULL || id != SPA_PARAM_Format)
		return;
	if (spa_format_audio_raw_parse(param, &info) < 0)
		return;
	goAudioFormatChanged(data, info.rate, info.channels);
}

static void audio_on_process(void *data, struct pw_stream *stream) {
	struct pw_buffer *b = pw_stream_dequeue_buffer(stream);
	if (b == NULL)
		return;
	struct spa_buffer *buf = b->buffer;
	if (buf->datas[0].data != NULL) {
		goAudioProcess(data, buf->datas[0].data, buf->datas[0].chunk->size);
	}
	pw_stream_queue_buffer(stream, b);
}

static struct pw_stream_events video_stream_events = {
	.version = PW_VERSION_STREAM_EVENTS,
	.param_changed = video_on_param_changed,
	.process = video_on_process,
};

static struct pw_stream_events audio_stream_events = {
	.version = PW_VERSION_STREAM_EVENTS,
	.param_changed = audio_on_param_changed,
	.process = audio_on_process,
};

static void add_video_listener(struct pw_stream *stream, struct spa_hook *hook, void *data) {
	pw_stream_add_listener(stream, hook, &video_stream_events, data);
}

static void add_audio_listener(struct pw_stream *stream, struct spa_hook *hook, void *data) {
	pw_stream_add_listener(stream, hook, &audio_stream_events, data);
}
*/
import "C"

import "unsafe"

// addVideoListener wires the process/param_changed trampolines above to
// stream, tagging each callback invocation with handle so the Go-side
// trampoline can look the state back up via the package registry.
func addVideoListener(stream *C.struct_pw_stream, hook *C.struct_spa_hook, handle uintptr) {
	C.add_video_listener(stream, hook, unsafe.Pointer(handle))
}

func addAudioListener(stream *C.struct_pw_stream, hook *C.struct_spa_hook, handle uintptr) {
	C.add_audio_listener(stream, hook, unsafe.Pointer(handle))
}
