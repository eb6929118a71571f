// Package estimator fits a similarity transform (rotation, uniform scale,
// translation) to tracked point correspondences.
//
// The fit is RANSAC over 2-point minimal samples with a least-squares refit
// on the inlier set. Two points fully determine a similarity, so the
// iteration count stays small enough for the real-time path while still
// rejecting the foreground-object outliers that plain least squares would
// absorb.
package estimator

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"vidstab/internal/tracker"
	"vidstab/pkg/geometry"
)

// Params bounds the fit and the sanity validation of its result.
type Params struct {
	MaxTranslation    float64 // per-frame pixel cap for a valid transform
	InlierThreshold   float64 // reprojection distance for RANSAC inlier counting
	ResidualThreshold float64 // mean inlier reprojection error above which the fit is rejected
	Iterations        int     // RANSAC iterations
	MinInlierFraction float64 // reject fits supported by fewer tracked points than this
}

// DefaultParams returns the tuning the pipeline ships with.
func DefaultParams() Params {
	return Params{
		MaxTranslation:    200,
		InlierThreshold:   3.0,
		ResidualThreshold: 10.0,
		Iterations:        100,
		MinInlierFraction: 0.4,
	}
}

// Estimator is reusable across frames; the random source is owned so two
// estimators never contend and a seeded instance is reproducible in tests.
type Estimator struct {
	params Params
	rng    *rand.Rand
}

// New creates an estimator. Seed fixes the RANSAC sampling sequence.
func New(params Params, seed int64) *Estimator {
	if params.Iterations <= 0 {
		params = DefaultParams()
	}
	return &Estimator{
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetMaxTranslation updates the validation cap without resetting the
// sampler.
func (e *Estimator) SetMaxTranslation(px float64) {
	if px > 0 {
		e.params.MaxTranslation = px
	}
}

// Estimate fits a similarity transform to the tracked correspondences.
// Returns ok=false when fewer than the minimum correspondence count is
// tracked, the fit cannot be constrained, the residual is above threshold,
// or the result fails sanity validation.
func (e *Estimator) Estimate(cs tracker.CorrespondenceSet) (geometry.AffineTransform, bool) {
	prev, curr := cs.TrackedPairs()
	if len(prev) < tracker.MinCorrespondences {
		return geometry.AffineTransform{}, false
	}

	inliers := e.ransacInliers(prev, curr)
	minInliers := int(e.params.MinInlierFraction * float64(len(prev)))
	if minInliers < tracker.MinCorrespondences {
		minInliers = tracker.MinCorrespondences
	}
	if len(inliers) < minInliers {
		return geometry.AffineTransform{}, false
	}

	inPrev := make([]geometry.Point2D, len(inliers))
	inCurr := make([]geometry.Point2D, len(inliers))
	for i, idx := range inliers {
		inPrev[i] = prev[idx]
		inCurr[i] = curr[idx]
	}

	t, err := similarityLeastSquares(inPrev, inCurr)
	if err != nil {
		return geometry.AffineTransform{}, false
	}
	if meanReprojectionError(inPrev, inCurr, t) > e.params.ResidualThreshold {
		return geometry.AffineTransform{}, false
	}
	if !t.Valid(e.params.MaxTranslation) {
		return geometry.AffineTransform{}, false
	}
	return t, true
}

// ransacInliers returns the indices of the largest consensus set found.
func (e *Estimator) ransacInliers(prev, curr []geometry.Point2D) []int {
	n := len(prev)
	thresholdSq := e.params.InlierThreshold * e.params.InlierThreshold
	var best []int

	for iter := 0; iter < e.params.Iterations; iter++ {
		i0 := e.rng.Intn(n)
		i1 := e.rng.Intn(n)
		if i0 == i1 {
			continue
		}

		t, ok := similarityFrom2(prev[i0], prev[i1], curr[i0], curr[i1])
		if !ok {
			continue
		}

		var inliers []int
		for i := range prev {
			mapped := t.Apply(prev[i])
			dx := mapped.X - curr[i].X
			dy := mapped.Y - curr[i].Y
			if dx*dx+dy*dy < thresholdSq {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(best) {
			best = inliers
			if len(best) == n {
				break
			}
		}
	}
	return best
}

// similarityFrom2 solves the similarity mapping two source points onto two
// destination points exactly.
func similarityFrom2(s0, s1, d0, d1 geometry.Point2D) (geometry.AffineTransform, bool) {
	sv := s1.Sub(s0)
	dv := d1.Sub(d0)
	srcLen := sv.Norm()
	dstLen := dv.Norm()
	if srcLen < 1e-3 || dstLen < 1e-3 {
		return geometry.AffineTransform{}, false
	}

	theta := math.Atan2(dv.Y, dv.X) - math.Atan2(sv.Y, sv.X)
	scale := dstLen / srcLen

	a := scale * math.Cos(theta)
	b := scale * math.Sin(theta)
	tx := d0.X - (a*s0.X - b*s0.Y)
	ty := d0.Y - (b*s0.X + a*s0.Y)

	return geometry.AffineTransform{
		A: a, B: -b, TX: tx,
		C: b, D: a, TY: ty,
	}, true
}

// similarityLeastSquares solves the overdetermined system for the four
// similarity parameters (a, b, tx, ty) with
//
//	x' = a*x - b*y + tx
//	y' = b*x + a*y + ty
//
// using QR decomposition.
func similarityLeastSquares(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	n := len(src)
	A := mat.NewDense(n*2, 4, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, -y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 0, y)
		A.Set(i*2+1, 1, x)
		A.Set(i*2+1, 3, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, err
	}

	a := params.AtVec(0)
	b := params.AtVec(1)
	return geometry.AffineTransform{
		A: a, B: -b, TX: params.AtVec(2),
		C: b, D: a, TY: params.AtVec(3),
	}, nil
}

func meanReprojectionError(src, dst []geometry.Point2D, t geometry.AffineTransform) float64 {
	if len(src) == 0 {
		return math.Inf(1)
	}
	var total float64
	for i := range src {
		total += t.Apply(src[i]).Distance(dst[i])
	}
	return total / float64(len(src))
}
