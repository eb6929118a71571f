package frame

// Pyramid is a coarse-to-fine stack of half-resolution frames. Level 0 is
// the full-resolution input; each subsequent level halves both dimensions
// with a 2x2 box filter. Optical flow walks it top-down.
type Pyramid struct {
	Levels []*Frame
}

// BuildPyramid constructs a pyramid with up to maxLevels levels. Levels
// stop early once a dimension would drop below the minimum frame size, so
// small inputs get shallower pyramids rather than degenerate ones.
func BuildPyramid(f *Frame, maxLevels int) *Pyramid {
	if maxLevels < 1 {
		maxLevels = 1
	}
	levels := make([]*Frame, 0, maxLevels)
	levels = append(levels, f)

	for len(levels) < maxLevels {
		prev := levels[len(levels)-1]
		w := prev.Width / 2
		h := prev.Height / 2
		if w < MinDimension || h < MinDimension {
			break
		}
		levels = append(levels, downsample(prev, w, h))
	}
	return &Pyramid{Levels: levels}
}

// downsample halves a frame with a 2x2 box filter.
func downsample(src *Frame, w, h int) *Frame {
	dst := New(w, h)
	for y := 0; y < h; y++ {
		srcRow0 := 2 * y * src.Stride
		srcRow1 := srcRow0 + src.Stride
		dstRow := y * dst.Stride
		for x := 0; x < w; x++ {
			sx := 2 * x
			sum := int(src.Pix[srcRow0+sx]) + int(src.Pix[srcRow0+sx+1]) +
				int(src.Pix[srcRow1+sx]) + int(src.Pix[srcRow1+sx+1])
			dst.Pix[dstRow+x] = uint8((sum + 2) / 4)
		}
	}
	return dst
}
