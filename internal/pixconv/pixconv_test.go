package pixconv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deskmedia/internal/pixconv"
)

func solidBGRA(width, height int, b, g, r, a byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[i*4] = b
		buf[i*4+1] = g
		buf[i*4+2] = r
		buf[i*4+3] = a
	}
	return buf
}

func TestSolidColourBGRAToI420(t *testing.T) {
	const w, h = 4, 4
	buf := solidBGRA(w, h, 128, 128, 128, 255)

	yuv := pixconv.BGRAToI420(buf, w, h)
	require.Len(t, yuv, w*h+2*(w/2)*(h/2))

	ySize := w * h
	for _, y := range yuv[:ySize] {
		require.EqualValues(t, 126, y)
	}
	for _, c := range yuv[ySize:] {
		require.EqualValues(t, 128, c)
	}
}

func TestSolidColourRGBAToNV12(t *testing.T) {
	const w, h = 4, 4
	rgba := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		rgba[i*4] = 128
		rgba[i*4+1] = 128
		rgba[i*4+2] = 128
		rgba[i*4+3] = 255
	}

	nv12 := pixconv.RGBAToNV12(rgba, w, h)
	ySize := w * h
	require.Len(t, nv12, ySize+ySize/2)

	for _, y := range nv12[:ySize] {
		require.EqualValues(t, 126, y)
	}
	for _, c := range nv12[ySize:] {
		require.EqualValues(t, 128, c)
	}
}

func TestI420AndNV12AgreeOnChroma(t *testing.T) {
	const w, h = 8, 6
	bgra := solidBGRA(w, h, 40, 200, 10, 255)

	i420 := pixconv.BGRAToI420(bgra, w, h)
	nv12 := pixconv.BGRAToNV12(bgra, w, h)

	ySize := w * h
	require.Equal(t, i420[:ySize], nv12[:ySize], "Y planes must match between layouts")

	uPlane := i420[ySize : ySize+(w/2)*(h/2)]
	vPlane := i420[ySize+(w/2)*(h/2):]
	uv := nv12[ySize:]
	for i := range uPlane {
		require.Equal(t, uPlane[i], uv[i*2], "U sample %d mismatch", i)
		require.Equal(t, vPlane[i], uv[i*2+1], "V sample %d mismatch", i)
	}
}
