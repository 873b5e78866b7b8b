package screen

import "testing"

func makeFrame(width, height int, fill byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 3; i < len(buf); i += 4 {
		buf[i] = fill
	}
	return buf
}

func setAlpha(buf []byte, width, x, y int, a byte) {
	buf[(y*width+x)*4+3] = a
}

func TestDetectCrop_FullyOpaque(t *testing.T) {
	buf := makeFrame(64, 48, 255)
	d := DetectCrop(buf, 64, 48)
	if d.Kind != CropFull {
		t.Fatalf("kind = %v, want CropFull", d.Kind)
	}
}

func TestDetectCrop_FullyTransparent(t *testing.T) {
	buf := makeFrame(64, 48, 0)
	d := DetectCrop(buf, 64, 48)
	if d.Kind != CropEmptyFrame {
		t.Fatalf("kind = %v, want CropEmptyFrame", d.Kind)
	}
}

func TestDetectCrop_SinglePixel(t *testing.T) {
	buf := makeFrame(100, 100, 0)
	setAlpha(buf, 100, 42, 17, 255)

	d := DetectCrop(buf, 100, 100)
	if d.Kind != CropRegion {
		t.Fatalf("kind = %v, want CropRegion", d.Kind)
	}
	if d.X != 42 || d.Y != 17 || d.W != 1 || d.H != 1 {
		t.Fatalf("region = %+v, want {42,17,1,1}", d)
	}

	// After even-rounding during extraction, a 1x1 crop becomes a no-op
	// frame; the caller must drop it.
	extracted := ExtractCrop(buf, 100*4, 100, d)
	if extracted.Data != nil {
		t.Fatalf("expected nil data for a 1x1 crop after even-rounding, got %d bytes", len(extracted.Data))
	}
}

func TestDetectCrop_PartialRegion(t *testing.T) {
	buf := makeFrame(100, 100, 0)
	for y := 10; y < 30; y++ {
		for x := 20; x < 50; x++ {
			setAlpha(buf, 100, x, y, 255)
		}
	}
	d := DetectCrop(buf, 100, 100)
	if d.Kind != CropRegion {
		t.Fatalf("kind = %v, want CropRegion", d.Kind)
	}
	if d.X != 20 || d.Y != 10 || d.W != 30 || d.H != 20 {
		t.Fatalf("region = %+v, want {20,10,30,20}", d)
	}
}
