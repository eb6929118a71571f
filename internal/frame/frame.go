// Package frame provides the single-plane luminance buffer consumed by the
// stabilization pipeline, plus the image pyramid used by optical flow.
//
// The core borrows a Frame for the duration of one call and never retains
// the caller's pixel slice; Clone is used wherever a copy must outlive the
// call (the tracker keeps the previous frame this way).
package frame

import (
	"fmt"
	"image"
	"math"
)

// Dimension limits carried over from the host's supported formats.
// Frames outside these bounds are rejected as invalid input.
const (
	MinDimension = 32
	MaxWidth     = 7680
	MaxHeight    = 4320
)

// Frame is a 2D single-channel (luminance) sample buffer. Pix holds
// Height rows of Stride bytes each; only the first Width bytes of each
// row are samples.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []uint8
}

// New allocates a Frame with a packed stride.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Stride: width,
		Pix:    make([]uint8, width*height),
	}
}

// Validate checks dimensions and buffer size against the supported limits.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if f.Width < MinDimension || f.Height < MinDimension {
		return fmt.Errorf("frame %dx%d below minimum %dx%d",
			f.Width, f.Height, MinDimension, MinDimension)
	}
	if f.Width > MaxWidth || f.Height > MaxHeight {
		return fmt.Errorf("frame %dx%d exceeds maximum %dx%d",
			f.Width, f.Height, MaxWidth, MaxHeight)
	}
	if f.Stride < f.Width {
		return fmt.Errorf("stride %d smaller than width %d", f.Stride, f.Width)
	}
	if len(f.Pix) < f.Stride*(f.Height-1)+f.Width {
		return fmt.Errorf("pixel buffer too small: %d bytes for %dx%d stride %d",
			len(f.Pix), f.Width, f.Height, f.Stride)
	}
	return nil
}

// At returns the sample at (x, y). No bounds checking.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Stride+x]
}

// Set writes the sample at (x, y). No bounds checking.
func (f *Frame) Set(x, y int, v uint8) {
	f.Pix[y*f.Stride+x] = v
}

// AtClamped returns the sample at (x, y) with coordinates clamped to the
// frame borders. Used by interpolation near edges.
func (f *Frame) AtClamped(x, y int) uint8 {
	if x < 0 {
		x = 0
	} else if x >= f.Width {
		x = f.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.Height {
		y = f.Height - 1
	}
	return f.Pix[y*f.Stride+x]
}

// Bilinear samples the frame at a subpixel position with border clamping.
func (f *Frame) Bilinear(x, y float64) float64 {
	x0 := int(x)
	y0 := int(y)
	if x < 0 {
		x0 = -1
	}
	if y < 0 {
		y0 = -1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := float64(f.AtClamped(x0, y0))
	p10 := float64(f.AtClamped(x0+1, y0))
	p01 := float64(f.AtClamped(x0, y0+1))
	p11 := float64(f.AtClamped(x0+1, y0+1))

	top := p00 + fx*(p10-p00)
	bot := p01 + fx*(p11-p01)
	return top + fy*(bot-top)
}

// Clone returns a packed deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := New(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+f.Width],
			f.Pix[y*f.Stride:y*f.Stride+f.Width])
	}
	return out
}

// Diagonal returns the frame diagonal in pixels. Motion magnitudes are
// normalized against this when classifying motion.
func (f *Frame) Diagonal() float64 {
	w := float64(f.Width)
	h := float64(f.Height)
	return math.Sqrt(w*w + h*h)
}

// FromGray wraps an image.Gray as a Frame without copying.
func FromGray(img *image.Gray) *Frame {
	b := img.Bounds()
	return &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: img.Stride,
		Pix:    img.Pix,
	}
}

// ToGray copies the frame into a freshly allocated image.Gray.
func (f *Frame) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width],
			f.Pix[y*f.Stride:y*f.Stride+f.Width])
	}
	return img
}
