package estimator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidstab/internal/tracker"
	"vidstab/pkg/geometry"
)

// correspondences maps a grid of source points through t, optionally
// corrupting the first nOutliers with large random offsets.
func correspondences(t geometry.AffineTransform, n, nOutliers int) tracker.CorrespondenceSet {
	rng := rand.New(rand.NewSource(11))
	cs := make(tracker.CorrespondenceSet, n)
	for i := range cs {
		p := geometry.Point2D{
			X: 50 + float64(i%10)*40,
			Y: 50 + float64(i/10)*40,
		}
		q := t.Apply(p)
		if i < nOutliers {
			q.X += 40 + rng.Float64()*80
			q.Y -= 40 + rng.Float64()*80
		}
		cs[i] = tracker.Correspondence{Prev: p, Curr: q, Tracked: true}
	}
	return cs
}

func TestEstimateExactTranslation(t *testing.T) {
	truth := geometry.Translation(5, -3)
	e := New(DefaultParams(), 1)

	got, ok := e.Estimate(correspondences(truth, 40, 0))
	require.True(t, ok)
	assert.InDelta(t, 5, got.TX, 0.01)
	assert.InDelta(t, -3, got.TY, 0.01)
	assert.InDelta(t, 1, got.A, 1e-6)
	assert.InDelta(t, 0, got.B, 1e-6)
}

func TestEstimateRotationAndScale(t *testing.T) {
	truth := geometry.Similarity(2, 1, 0.02, 1.05)
	e := New(DefaultParams(), 2)

	got, ok := e.Estimate(correspondences(truth, 40, 0))
	require.True(t, ok)

	dx, dy, angle, scale := got.Decompose()
	assert.InDelta(t, 2, dx, 0.05)
	assert.InDelta(t, 1, dy, 0.05)
	assert.InDelta(t, 0.02, angle, 1e-4)
	assert.InDelta(t, 1.05, scale, 1e-4)
}

func TestEstimateRejectsOutliers(t *testing.T) {
	truth := geometry.Translation(8, 2)
	e := New(DefaultParams(), 3)

	// 12 of 40 points belong to a moving foreground object.
	got, ok := e.Estimate(correspondences(truth, 40, 12))
	require.True(t, ok)
	assert.InDelta(t, 8, got.TX, 0.1)
	assert.InDelta(t, 2, got.TY, 0.1)
}

func TestEstimateTooFewCorrespondences(t *testing.T) {
	e := New(DefaultParams(), 4)

	cs := correspondences(geometry.Translation(1, 1), 10, 0)
	for i := 3; i < len(cs); i++ {
		cs[i].Tracked = false
	}

	_, ok := e.Estimate(cs)
	assert.False(t, ok)
}

func TestEstimateRejectsHugeTranslation(t *testing.T) {
	e := New(DefaultParams(), 5)

	// A perfectly consistent but physically impossible per-frame jump.
	_, ok := e.Estimate(correspondences(geometry.Translation(10000, 0), 40, 0))
	assert.False(t, ok)
}

func TestEstimateRejectsIncoherentMotion(t *testing.T) {
	e := New(DefaultParams(), 6)

	// Every point moves independently: no consensus set can reach the
	// inlier fraction.
	rng := rand.New(rand.NewSource(21))
	cs := make(tracker.CorrespondenceSet, 40)
	for i := range cs {
		p := geometry.Point2D{X: rng.Float64() * 400, Y: rng.Float64() * 300}
		cs[i] = tracker.Correspondence{
			Prev:    p,
			Curr:    geometry.Point2D{X: rng.Float64() * 400, Y: rng.Float64() * 300},
			Tracked: true,
		}
	}

	_, ok := e.Estimate(cs)
	assert.False(t, ok)
}

func TestEstimateDeterministicForSeed(t *testing.T) {
	cs := correspondences(geometry.Similarity(3, -2, 0.01, 1.0), 40, 8)

	a, okA := New(DefaultParams(), 9).Estimate(cs)
	b, okB := New(DefaultParams(), 9).Estimate(cs)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}

func TestSetMaxTranslation(t *testing.T) {
	e := New(DefaultParams(), 7)
	e.SetMaxTranslation(4)

	_, ok := e.Estimate(correspondences(geometry.Translation(8, 0), 40, 0))
	assert.False(t, ok, "translation above the lowered cap must be rejected")

	got, ok := e.Estimate(correspondences(geometry.Translation(3, 0), 40, 0))
	require.True(t, ok)
	assert.InDelta(t, 3, got.TX, 0.01)
}

func TestSimilarityFrom2Degenerate(t *testing.T) {
	p := geometry.Point2D{X: 10, Y: 10}
	_, ok := similarityFrom2(p, p, geometry.Point2D{X: 1, Y: 1}, geometry.Point2D{X: 2, Y: 2})
	assert.False(t, ok)
}

func TestMeanReprojectionError(t *testing.T) {
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}}
	dst := []geometry.Point2D{{X: 3, Y: 4}, {X: 13, Y: 4}}

	assert.InDelta(t, 5, meanReprojectionError(src, dst, geometry.Identity()), 1e-9)
	assert.InDelta(t, 0, meanReprojectionError(src, dst, geometry.Translation(3, 4)), 1e-9)
	assert.True(t, math.IsInf(meanReprojectionError(nil, nil, geometry.Identity()), 1))
}
