package hwenc

import "testing"

func TestDefaultParams(t *testing.T) {
	p := DefaultParams(1920, 1080)
	if p.Width != 1920 || p.Height != 1080 {
		t.Fatalf("unexpected dimensions: %+v", p)
	}
	if p.BitrateKbps != 5000 {
		t.Errorf("bitrate = %d, want 5000", p.BitrateKbps)
	}
	if p.FPS != 30 {
		t.Errorf("fps = %d, want 30", p.FPS)
	}
	if p.GOP != 60 {
		t.Errorf("gop = %d, want 60", p.GOP)
	}
}
