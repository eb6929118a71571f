// Package warp applies a corrective transform to a frame and handles the
// edges the correction reveals. This is caller-side work: the stabilizer
// core only reports the transform and the configured edge mode, it never
// touches output pixels.
package warp

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"

	"vidstab/internal/frame"
	"vidstab/internal/stabilizer"
	"vidstab/pkg/geometry"
)

// Content detection bounds for ScaleFit: samples darker than
// contentThreshold count as revealed border, and the search gives up after
// borderSearchMax pixels from each edge.
const (
	contentThreshold = 10
	borderSearchMax  = 100
)

// cropMarginPct is the centered crop applied in EdgeCrop mode. A fixed
// margin keeps the output zoom constant across frames, which matters more
// than maximizing the visible area per frame.
const cropMarginPct = 5.0

// Apply warps the frame through the corrective transform and resolves the
// revealed edges according to mode. The input frame is not modified.
func Apply(f *frame.Frame, t geometry.AffineTransform, mode stabilizer.EdgeMode) *frame.Frame {
	border := gocv.BorderConstant
	if mode == stabilizer.EdgeCrop {
		border = gocv.BorderReplicate
	}

	warped := warpAffine(f, t, border)
	switch mode {
	case stabilizer.EdgeCrop:
		return cropAndZoom(warped)
	case stabilizer.EdgeScaleFit:
		return scaleFit(warped)
	default:
		return warped
	}
}

// warpAffine runs the gocv affine warp on a luminance frame.
func warpAffine(f *frame.Frame, t geometry.AffineTransform, border gocv.BorderType) *frame.Frame {
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, packedPix(f))
	if err != nil {
		return f.Clone()
	}
	defer src.Close()

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, t.A)
	m.SetDoubleAt(0, 1, t.B)
	m.SetDoubleAt(0, 2, t.TX)
	m.SetDoubleAt(1, 0, t.C)
	m.SetDoubleAt(1, 1, t.D)
	m.SetDoubleAt(1, 2, t.TY)
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpAffineWithParams(src, &dst, m, image.Point{f.Width, f.Height},
		gocv.InterpolationLinear, border, color.RGBA{})

	out := frame.New(f.Width, f.Height)
	copy(out.Pix, dst.ToBytes())
	return out
}

// cropAndZoom cuts a fixed centered margin and rescales back to the
// original size, so corrected motion never exposes an edge.
func cropAndZoom(f *frame.Frame) *frame.Frame {
	mx := int(float64(f.Width) * cropMarginPct / 100)
	my := int(float64(f.Height) * cropMarginPct / 100)
	if mx == 0 && my == 0 {
		return f
	}
	return scaleRegion(f, image.Rect(mx, my, f.Width-mx, f.Height-my))
}

// scaleFit finds the content region left after warping (scanning inward
// past constant-fill border pixels) and rescales it to fill the frame.
func scaleFit(f *frame.Frame) *frame.Frame {
	r := contentBounds(f)
	if r.Dx() <= 0 || r.Dy() <= 0 || r == image.Rect(0, 0, f.Width, f.Height) {
		return f
	}
	return scaleRegion(f, r)
}

// scaleRegion rescales a subregion of the frame to the full frame size
// with Catmull-Rom resampling.
func scaleRegion(f *frame.Frame, r image.Rectangle) *frame.Frame {
	src := f.ToGray()
	dst := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, r, xdraw.Src, nil)
	return frame.FromGray(dst)
}

// contentBounds scans inward from each edge for the first row/column that
// contains content, bounded by borderSearchMax.
func contentBounds(f *frame.Frame) image.Rectangle {
	top := 0
	for ; top < borderSearchMax && top < f.Height/2; top++ {
		if rowHasContent(f, top) {
			break
		}
	}
	bottom := f.Height
	for ; f.Height-bottom < borderSearchMax && bottom > f.Height/2; bottom-- {
		if rowHasContent(f, bottom-1) {
			break
		}
	}
	left := 0
	for ; left < borderSearchMax && left < f.Width/2; left++ {
		if colHasContent(f, left) {
			break
		}
	}
	right := f.Width
	for ; f.Width-right < borderSearchMax && right > f.Width/2; right-- {
		if colHasContent(f, right-1) {
			break
		}
	}
	return image.Rect(left, top, right, bottom)
}

func rowHasContent(f *frame.Frame, y int) bool {
	row := y * f.Stride
	for x := 0; x < f.Width; x++ {
		if f.Pix[row+x] > contentThreshold {
			return true
		}
	}
	return false
}

func colHasContent(f *frame.Frame, x int) bool {
	for y := 0; y < f.Height; y++ {
		if f.Pix[y*f.Stride+x] > contentThreshold {
			return true
		}
	}
	return false
}

// packedPix returns the frame samples as a contiguous buffer, copying only
// when the stride has padding.
func packedPix(f *frame.Frame) []uint8 {
	if f.Stride == f.Width {
		return f.Pix
	}
	packed := make([]uint8, f.Width*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(packed[y*f.Width:(y+1)*f.Width], f.Pix[y*f.Stride:y*f.Stride+f.Width])
	}
	return packed
}
