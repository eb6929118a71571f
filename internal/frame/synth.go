package frame

import (
	"math/rand"

	"vidstab/pkg/geometry"
)

// Synthetic frame generation for the test harness. Scenes are built from
// random bright rectangles over a mid-gray background, then box-blurred
// once so gradients are wide enough for pyramidal tracking to lock onto.

// Textured generates a deterministic synthetic scene for a given seed.
func Textured(width, height int, seed int64) *Frame {
	rng := rand.New(rand.NewSource(seed))
	f := New(width, height)

	for i := range f.Pix {
		f.Pix[i] = 96
	}

	// Density scales with area so feature detection behaves the same
	// across resolutions.
	blocks := width * height / 2500
	if blocks < 40 {
		blocks = 40
	}
	for i := 0; i < blocks; i++ {
		bw := 8 + rng.Intn(24)
		bh := 8 + rng.Intn(24)
		bx := rng.Intn(width - bw)
		by := rng.Intn(height - bh)
		v := uint8(140 + rng.Intn(116))
		for y := by; y < by+bh; y++ {
			row := y * f.Stride
			for x := bx; x < bx+bw; x++ {
				f.Pix[row+x] = v
			}
		}
	}

	return boxBlur3(f)
}

// Translated resamples the frame shifted by (dx, dy), with subpixel
// accuracy. Pixels shifted in from outside the source replicate the border.
func Translated(src *Frame, dx, dy float64) *Frame {
	dst := New(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		row := y * dst.Stride
		for x := 0; x < src.Width; x++ {
			v := src.Bilinear(float64(x)-dx, float64(y)-dy)
			dst.Pix[row+x] = clampU8(v)
		}
	}
	return dst
}

// Warped resamples the frame through the inverse of the given transform,
// producing the frame a camera moved by t would have captured.
func Warped(src *Frame, t geometry.AffineTransform) *Frame {
	inv, ok := t.Inverse()
	if !ok {
		return src.Clone()
	}
	dst := New(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		row := y * dst.Stride
		fy := float64(y)
		for x := 0; x < src.Width; x++ {
			p := inv.Apply(geometry.Point2D{X: float64(x), Y: fy})
			dst.Pix[row+x] = clampU8(src.Bilinear(p.X, p.Y))
		}
	}
	return dst
}

func boxBlur3(src *Frame) *Frame {
	dst := New(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		row := y * dst.Stride
		for x := 0; x < src.Width; x++ {
			var sum int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(src.AtClamped(x+dx, y+dy))
				}
			}
			dst.Pix[row+x] = uint8((sum + 4) / 9)
		}
	}
	return dst
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
