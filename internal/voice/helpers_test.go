package voice

import "testing"

func TestToStereoDuplicatesMono(t *testing.T) {
	out := toStereo([]float32{0.5, -0.25}, 1)
	want := []float32{0.5, 0.5, -0.25, -0.25}
	for i, w := range want {
		if out[i] != w {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestToStereoPassesThroughStereo(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := toStereo(in, 2)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	mono := downmix([]float32{1.0, -1.0, 0.5, 0.5})
	if len(mono) != 2 {
		t.Fatalf("len = %d, want 2", len(mono))
	}
	if mono[0] != 0 {
		t.Fatalf("mono[0] = %v, want 0", mono[0])
	}
	if mono[1] != 0.5 {
		t.Fatalf("mono[1] = %v, want 0.5", mono[1])
	}
}

func TestFloatToInt16Clamps(t *testing.T) {
	if got := floatToInt16(2.0); got != 32767 {
		t.Fatalf("floatToInt16(2.0) = %d, want 32767", got)
	}
	if got := floatToInt16(-2.0); got != -32767 {
		t.Fatalf("floatToInt16(-2.0) = %d, want -32767", got)
	}
	if got := floatToInt16(0); got != 0 {
		t.Fatalf("floatToInt16(0) = %d, want 0", got)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{10, 2, 5},
		{11, 2, 6},
		{1, 1, 1},
		{0, 3, 0},
	}
	for _, c := range cases {
		if got := ceilDiv(c.a, c.b); got != c.want {
			t.Fatalf("ceilDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestAdaptChannelsDownmixToMono(t *testing.T) {
	out := adaptChannels([]float32{1.0, -1.0, 0.5, 0.5}, 2, 1)
	want := []float32{0, 0.5}
	for i, w := range want {
		if out[i] != w {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestAdaptChannelsUpmixDuplicatesFirst(t *testing.T) {
	out := adaptChannels([]float32{0.5, -0.5}, 1, 2)
	want := []float32{0.5, 0.5, -0.5, -0.5}
	for i, w := range want {
		if out[i] != w {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestAdaptChannelsSameCountIsNoOp(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := adaptChannels(in, 2, 2)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestSampleRingFIFO(t *testing.T) {
	r := newSampleRing(4)
	for _, v := range []float32{1, 2, 3} {
		if !r.push(v) {
			t.Fatalf("push(%v) failed unexpectedly", v)
		}
	}
	for _, want := range []float32{1, 2, 3} {
		got, ok := r.pop()
		if !ok {
			t.Fatalf("pop() returned ok=false, want true")
		}
		if got != want {
			t.Fatalf("pop() = %v, want %v", got, want)
		}
	}
	if _, ok := r.pop(); ok {
		t.Fatalf("pop() on empty ring returned ok=true")
	}
}

func TestSampleRingDropsWhenFull(t *testing.T) {
	r := newSampleRing(2)
	if !r.push(1) {
		t.Fatal("first push should succeed")
	}
	if !r.push(2) {
		t.Fatal("second push should succeed")
	}
	if r.push(3) {
		t.Fatal("push into a full ring should report false")
	}
}
