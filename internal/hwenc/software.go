package hwenc

/*
#cgo pkg-config: openh264
#include <wels/codec_api.h>
#include <wels/codec_app_def.h>
#include <stdlib.h>

static int create_encoder(ISVCEncoder **enc) {
	return WelsCreateSVCEncoder(enc);
}
static void destroy_encoder(ISVCEncoder *enc) {
	WelsDestroySVCEncoder(enc);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// softwareEncoder wraps OpenH264's ISVCEncoder, the backend Select falls
// back to when neither hardware path can be constructed. OpenH264 encoder handles are not safe to share across
// goroutines; callers must confine Encode calls to a single worker.
type softwareEncoder struct {
	handle        *C.ISVCEncoder
	width, height int
	frameIdx      int
	forceNext     bool
}

func newSoftwareEncoder(p Params) (Encoder, error) {
	var handle *C.ISVCEncoder
	if rc := C.create_encoder(&handle); rc != 0 || handle == nil {
		return nil, fmt.Errorf("hwenc: WelsCreateSVCEncoder failed (rc=%d)", int(rc))
	}

	var params C.SEncParamExt
	handle.GetDefaultParams(handle, &params)
	params.iUsageType = C.SCREEN_CONTENT_REAL_TIME
	params.iPicWidth = C.int(p.Width)
	params.iPicHeight = C.int(p.Height)
	params.iTargetBitrate = C.int(p.BitrateKbps * 1000)
	params.fMaxFrameRate = C.float(p.FPS)
	params.iRCMode = C.RC_BITRATE_MODE
	params.bEnableFrameSkip = 0
	params.uiIntraPeriod = C.uint(p.GOP)

	if rc := handle.InitializeExt(handle, &params); rc != 0 {
		C.destroy_encoder(handle)
		return nil, fmt.Errorf("hwenc: software encoder InitializeExt failed (rc=%d)", int(rc))
	}

	return &softwareEncoder{handle: handle, width: p.Width, height: p.Height}, nil
}

// Encode accepts an I420 frame exactly width*height*3/2 bytes long.
func (e *softwareEncoder) Encode(i420 []byte, forceKeyframe bool) ([]byte, error) {
	if forceKeyframe || e.forceNext {
		e.handle.ForceIntraFrame(e.handle, 1)
		e.forceNext = false
	}

	ySize := e.width * e.height
	uvSize := ySize / 4

	var pic C.SSourcePicture
	pic.iPicWidth = C.int(e.width)
	pic.iPicHeight = C.int(e.height)
	pic.iColorFormat = C.videoFormatI420
	pic.iStride[0] = C.int(e.width)
	pic.iStride[1] = C.int(e.width / 2)
	pic.iStride[2] = C.int(e.width / 2)
	pic.pData[0] = (*C.uchar)(unsafe.Pointer(&i420[0]))
	pic.pData[1] = (*C.uchar)(unsafe.Pointer(&i420[ySize]))
	pic.pData[2] = (*C.uchar)(unsafe.Pointer(&i420[ySize+uvSize]))

	var info C.SFrameBSInfo
	if rc := e.handle.EncodeFrame(e.handle, &pic, &info); rc != 0 {
		return nil, fmt.Errorf("hwenc: EncodeFrame failed (rc=%d)", int(rc))
	}
	if info.eFrameType == C.videoFrameTypeSkip {
		return nil, nil
	}

	var out []byte
	for l := 0; l < int(info.iLayerNum); l++ {
		layer := info.sLayerInfo[l]
		layerSize := 0
		nalSizes := unsafe.Slice(layer.pNalLengthInByte, int(layer.iNalCount))
		for _, n := range nalSizes {
			layerSize += int(n)
		}
		out = append(out, C.GoBytes(unsafe.Pointer(layer.pBsBuf), C.int(layerSize))...)
	}
	e.frameIdx++
	return out, nil
}

func (e *softwareEncoder) ForceKeyframe() { e.forceNext = true }

func (e *softwareEncoder) Close() error {
	if e.handle != nil {
		C.Uninitialize(e.handle)
		C.destroy_encoder(e.handle)
		e.handle = nil
	}
	return nil
}
