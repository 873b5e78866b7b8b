package screen

// DetectCrop scans the alpha channel of a packed BGRA/RGBA buffer (alpha is
// byte offset 3 regardless of channel order) and returns the bounding box
// of pixels with alpha > 0. If the four corners are opaque the frame is
// assumed fully visible (FullFrame) without a full scan; otherwise the scan
// runs in full to find the tightest bounding box.
func DetectCrop(buf []byte, width, height int) CropDecision {
	if width <= 0 || height <= 0 {
		return CropDecision{Kind: CropEmptyFrame}
	}

	corners := [4][2]int{
		{0, 0}, {width - 1, 0}, {0, height - 1}, {width - 1, height - 1},
	}
	allOpaque := true
	for _, c := range corners {
		if alphaAt(buf, width, c[0], c[1]) == 0 {
			allOpaque = false
			break
		}
	}
	if allOpaque {
		return CropDecision{Kind: CropFull, X: 0, Y: 0, W: width, H: height}
	}

	minX, minY, maxX, maxY := width, height, -1, -1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if alphaAt(buf, width, x, y) == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < 0 {
		return CropDecision{Kind: CropEmptyFrame}
	}

	w := maxX - minX + 1
	h := maxY - minY + 1
	if minX == 0 && minY == 0 && w == width && h == height {
		return CropDecision{Kind: CropFull, X: 0, Y: 0, W: width, H: height}
	}
	return CropDecision{Kind: CropRegion, X: minX, Y: minY, W: w, H: h}
}

func alphaAt(buf []byte, width, x, y int) byte {
	off := (y*width + x) * 4
	return buf[off+3]
}

// ExtractCrop copies the region described by d out of src (stride bytes per
// row), rounding width/height down to even and copying row-by-row so the
// source's stride need not equal width*4. FullFrame still trims to even
// dimensions. CropEmptyFrame callers should drop the frame before calling
// this.
func ExtractCrop(src []byte, stride, srcH int, d CropDecision) VideoFrame {
	x, y, w, h := d.X, d.Y, d.W, d.H
	w &^= 1
	h &^= 1
	if w <= 0 || h <= 0 {
		return VideoFrame{}
	}
	if y+h > srcH {
		h = (srcH - y) &^ 1
	}

	out := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		srcOff := (y+row)*stride + x*4
		dstOff := row * w * 4
		copy(out[dstOff:dstOff+w*4], src[srcOff:srcOff+w*4])
	}
	return VideoFrame{Data: out, Width: w, Height: h}
}
