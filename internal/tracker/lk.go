package tracker

import (
	"math"

	"vidstab/internal/frame"
	"vidstab/pkg/geometry"
)

// Pyramidal Lucas-Kanade sparse optical flow. Each point's displacement is
// solved coarse-to-fine: the flow found at a half-resolution level seeds
// the next finer level, which lets a 21x21 window follow motion far larger
// than the window itself.

const minEigenThreshold = 1e-4

func trackPyramidal(prev, curr *frame.Frame, pts FeatureSet, p Params) CorrespondenceSet {
	prevPyr := frame.BuildPyramid(prev, p.PyramidLevels)
	currPyr := frame.BuildPyramid(curr, p.PyramidLevels)
	levels := len(prevPyr.Levels)
	if len(currPyr.Levels) < levels {
		levels = len(currPyr.Levels)
	}

	cs := make(CorrespondenceSet, len(pts))
	for i, pt := range pts {
		nx, ny, err, ok := trackPoint(prevPyr, currPyr, levels, pt, p)
		cs[i] = Correspondence{
			Prev:    pt,
			Curr:    geometry.Point2D{X: nx, Y: ny},
			Tracked: ok && err <= p.ErrorThreshold,
			Err:     err,
		}
	}
	return cs
}

// trackPoint returns the tracked position, the mean absolute residual over
// the window at full resolution, and whether the solve stayed well
// conditioned and inside the frame.
func trackPoint(prevPyr, currPyr *frame.Pyramid, levels int, pt geometry.Point2D, p Params) (x, y, residual float64, ok bool) {
	r := p.WindowRadius
	var vx, vy float64 // flow, in the coordinates of the current level
	evaluated := false // whether the full-resolution level was solved

	for level := levels - 1; level >= 0; level-- {
		prevL := prevPyr.Levels[level]
		currL := currPyr.Levels[level]
		scale := float64(int(1) << uint(level))
		px := pt.X / scale
		py := pt.Y / scale

		if px < float64(r) || py < float64(r) ||
			px >= float64(prevL.Width-r-1) || py >= float64(prevL.Height-r-1) {
			// Window does not fit at this level; rely on finer levels.
			if level > 0 {
				vx *= 2
				vy *= 2
			}
			continue
		}

		side := 2*r + 1
		n := side * side
		patch := make([]float64, n)
		gradX := make([]float64, n)
		gradY := make([]float64, n)

		var gxx, gxy, gyy float64
		idx := 0
		for wy := -r; wy <= r; wy++ {
			for wx := -r; wx <= r; wx++ {
				sx := px + float64(wx)
				sy := py + float64(wy)
				patch[idx] = prevL.Bilinear(sx, sy)
				gx := (prevL.Bilinear(sx+1, sy) - prevL.Bilinear(sx-1, sy)) / 2
				gy := (prevL.Bilinear(sx, sy+1) - prevL.Bilinear(sx, sy-1)) / 2
				gradX[idx] = gx
				gradY[idx] = gy
				gxx += gx * gx
				gxy += gx * gy
				gyy += gy * gy
				idx++
			}
		}

		det := gxx*gyy - gxy*gxy
		tr := gxx + gyy
		minEigen := (tr - math.Sqrt(tr*tr-4*det)) / 2
		if minEigen < minEigenThreshold*float64(n) || det == 0 {
			return pt.X, pt.Y, math.Inf(1), false
		}
		invDet := 1.0 / det

		for iter := 0; iter < p.MaxIterations; iter++ {
			var bx, by float64
			idx = 0
			for wy := -r; wy <= r; wy++ {
				for wx := -r; wx <= r; wx++ {
					diff := patch[idx] - currL.Bilinear(px+vx+float64(wx), py+vy+float64(wy))
					bx += diff * gradX[idx]
					by += diff * gradY[idx]
					idx++
				}
			}
			dx := (gyy*bx - gxy*by) * invDet
			dy := (gxx*by - gxy*bx) * invDet
			vx += dx
			vy += dy
			if dx*dx+dy*dy < p.Epsilon*p.Epsilon {
				break
			}
		}

		if level > 0 {
			vx *= 2
			vy *= 2
		} else {
			// Residual over the full-resolution window.
			evaluated = true
			var sum float64
			idx = 0
			for wy := -r; wy <= r; wy++ {
				for wx := -r; wx <= r; wx++ {
					sum += math.Abs(patch[idx] - currL.Bilinear(px+vx+float64(wx), py+vy+float64(wy)))
					idx++
				}
			}
			residual = sum / float64(n)
		}
	}

	nx := pt.X + vx
	ny := pt.Y + vy
	full := currPyr.Levels[0]
	if !evaluated || nx < 0 || ny < 0 || nx >= float64(full.Width) || ny >= float64(full.Height) {
		return nx, ny, math.Inf(1), false
	}
	return nx, ny, residual, true
}
