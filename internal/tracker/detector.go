package tracker

import (
	"math"
	"sort"

	"vidstab/internal/frame"
	"vidstab/pkg/geometry"
)

// Shi-Tomasi corner detection: minimum eigenvalue of the 3x3 structure
// tensor over Sobel gradients, thresholded relative to the strongest
// corner, then greedily thinned to the minimum separation distance.

type cornerCandidate struct {
	x, y  int
	score float64
}

func detectCorners(f *frame.Frame, maxFeatures int, quality, minDistance float64) FeatureSet {
	w, h := f.Width, f.Height
	if w < 8 || h < 8 {
		return nil
	}

	ix, iy := sobelGradients(f)

	// Min-eigenvalue response. The 1px gradient border plus the 1px
	// tensor window leaves a 2px dead margin.
	score := make([]float64, w*h)
	var maxScore float64
	for y := 2; y < h-2; y++ {
		for x := 2; x < w-2; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				row := (y + dy) * w
				for dx := -1; dx <= 1; dx++ {
					gx := ix[row+x+dx]
					gy := iy[row+x+dx]
					sxx += gx * gx
					syy += gy * gy
					sxy += gx * gy
				}
			}
			tr := sxx + syy
			det := sxx*syy - sxy*sxy
			// Smaller eigenvalue of [[sxx sxy][sxy syy]].
			lambda := tr/2 - math.Sqrt(tr*tr/4-det)
			score[y*w+x] = lambda
			if lambda > maxScore {
				maxScore = lambda
			}
		}
	}
	if maxScore <= 0 {
		return nil
	}

	threshold := quality * maxScore
	candidates := make([]cornerCandidate, 0, 1024)
	for y := 2; y < h-2; y++ {
		row := y * w
		for x := 2; x < w-2; x++ {
			s := score[row+x]
			if s < threshold {
				continue
			}
			// 3x3 non-maximum suppression keeps one candidate per
			// local peak before distance thinning.
			if s < score[row+x-1] || s < score[row+x+1] ||
				s < score[row-w+x] || s < score[row+w+x] ||
				s < score[row-w+x-1] || s < score[row-w+x+1] ||
				s < score[row+w+x-1] || s < score[row+w+x+1] {
				continue
			}
			candidates = append(candidates, cornerCandidate{x: x, y: y, score: s})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Stable order for equal scores keeps detection deterministic.
		if candidates[i].y != candidates[j].y {
			return candidates[i].y < candidates[j].y
		}
		return candidates[i].x < candidates[j].x
	})

	return thinByDistance(candidates, maxFeatures, minDistance)
}

// thinByDistance accepts candidates strongest-first, skipping any within
// minDistance of an already accepted corner. A coarse occupancy grid keeps
// the scan linear.
func thinByDistance(candidates []cornerCandidate, maxFeatures int, minDistance float64) FeatureSet {
	if minDistance < 1 {
		minDistance = 1
	}
	cell := int(minDistance)
	minDistSq := minDistance * minDistance

	type cellKey struct{ cx, cy int }
	grid := make(map[cellKey][]geometry.Point2D)

	features := make(FeatureSet, 0, maxFeatures)
	for _, c := range candidates {
		if len(features) >= maxFeatures {
			break
		}
		p := geometry.Point2D{X: float64(c.x), Y: float64(c.y)}
		cx, cy := c.x/cell, c.y/cell

		ok := true
	neighbors:
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				for _, q := range grid[cellKey{cx + dx, cy + dy}] {
					ddx := p.X - q.X
					ddy := p.Y - q.Y
					if ddx*ddx+ddy*ddy < minDistSq {
						ok = false
						break neighbors
					}
				}
			}
		}
		if !ok {
			continue
		}
		grid[cellKey{cx, cy}] = append(grid[cellKey{cx, cy}], p)
		features = append(features, p)
	}
	return features
}

// sobelGradients computes Sobel x/y derivatives, zero on the 1px border.
func sobelGradients(f *frame.Frame) (ix, iy []float64) {
	w, h := f.Width, f.Height
	ix = make([]float64, w*h)
	iy = make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		r0 := (y - 1) * f.Stride
		r1 := y * f.Stride
		r2 := (y + 1) * f.Stride
		out := y * w
		for x := 1; x < w-1; x++ {
			p00 := float64(f.Pix[r0+x-1])
			p01 := float64(f.Pix[r0+x])
			p02 := float64(f.Pix[r0+x+1])
			p10 := float64(f.Pix[r1+x-1])
			p12 := float64(f.Pix[r1+x+1])
			p20 := float64(f.Pix[r2+x-1])
			p21 := float64(f.Pix[r2+x])
			p22 := float64(f.Pix[r2+x+1])

			ix[out+x] = (p02 + 2*p12 + p22) - (p00 + 2*p10 + p20)
			iy[out+x] = (p20 + 2*p21 + p22) - (p00 + 2*p01 + p02)
		}
	}
	return ix, iy
}
