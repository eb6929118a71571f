package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidstab/internal/frame"
)

func testFrame(seed int64) *frame.Frame {
	return frame.Textured(320, 240, seed)
}

func TestDetectFindsFeatures(t *testing.T) {
	tr := New(DefaultParams())
	feats := tr.Detect(testFrame(1))

	require.GreaterOrEqual(t, len(feats), MinCorrespondences)
	assert.LessOrEqual(t, len(feats), DefaultParams().MaxFeatures)
}

func TestDetectDeterministic(t *testing.T) {
	tr := New(DefaultParams())
	f := testFrame(2)

	a := tr.Detect(f)
	b := tr.Detect(f)
	assert.Equal(t, a, b)
}

func TestDetectRespectsMinDistance(t *testing.T) {
	params := DefaultParams()
	params.MinDistance = 12
	tr := New(params)

	feats := tr.Detect(testFrame(3))
	require.NotEmpty(t, feats)

	for i := range feats {
		for j := i + 1; j < len(feats); j++ {
			assert.GreaterOrEqual(t, feats[i].Distance(feats[j]), 12.0,
				"features %d and %d too close", i, j)
		}
	}
}

func TestDetectFlatFrameFindsNothing(t *testing.T) {
	tr := New(DefaultParams())
	flat := frame.New(320, 240)
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}

	feats := tr.Detect(flat)
	assert.Empty(t, feats)
}

func TestDetectScalesBudgetWithResolution(t *testing.T) {
	params := DefaultParams()
	params.MaxFeatures = 1000
	tr := New(params)

	// 320x240 is 76800 pixels: about 50 features after the floor.
	feats := tr.Detect(testFrame(4))
	assert.LessOrEqual(t, len(feats), 50)
}

func TestTrackRecoversTranslation(t *testing.T) {
	prev := testFrame(5)
	curr := frame.Translated(prev, 5, 0)

	tr := New(DefaultParams())
	feats := tr.Detect(prev)
	require.GreaterOrEqual(t, len(feats), MinCorrespondences)

	cs := tr.Track(prev, curr, feats)
	require.Equal(t, len(feats), len(cs))
	require.GreaterOrEqual(t, cs.TrackedCount(), MinCorrespondences)

	// Most tracked points should land within half a pixel of the
	// injected shift.
	good := 0
	for _, c := range cs {
		if !c.Tracked {
			continue
		}
		dx := c.Curr.X - c.Prev.X
		dy := c.Curr.Y - c.Prev.Y
		if dx > 4.5 && dx < 5.5 && dy > -0.5 && dy < 0.5 {
			good++
		}
	}
	assert.Greater(t, good, cs.TrackedCount()/2)
}

func TestTrackZeroMotion(t *testing.T) {
	f := testFrame(6)

	tr := New(DefaultParams())
	feats := tr.Detect(f)
	require.NotEmpty(t, feats)

	cs := tr.Track(f, f, feats)
	require.GreaterOrEqual(t, cs.TrackedCount(), MinCorrespondences)

	for _, c := range cs {
		if c.Tracked {
			assert.InDelta(t, c.Prev.X, c.Curr.X, 0.1)
			assert.InDelta(t, c.Prev.Y, c.Curr.Y, 0.1)
		}
	}
}

func TestTrackBorderPointMarkedUntracked(t *testing.T) {
	f := testFrame(7)
	tr := New(DefaultParams())

	// A point whose window never fits inside any pyramid level cannot
	// be evaluated and must not be reported as tracked.
	cs := tr.Track(f, f, FeatureSet{{X: 1, Y: 1}})
	require.Len(t, cs, 1)
	assert.False(t, cs[0].Tracked)
}

func TestSuccessRateEmptySet(t *testing.T) {
	var cs CorrespondenceSet
	assert.Equal(t, 0.0, cs.SuccessRate())
}

func TestTrackedPairsFiltersUntracked(t *testing.T) {
	cs := CorrespondenceSet{
		{Tracked: true},
		{Tracked: false},
		{Tracked: true},
	}
	prev, curr := cs.TrackedPairs()
	assert.Len(t, prev, 2)
	assert.Len(t, curr, 2)
	assert.Equal(t, 2, cs.TrackedCount())
}

func TestObserveResultCollapse(t *testing.T) {
	tr := New(DefaultParams())
	cs := CorrespondenceSet{{Tracked: true}, {Tracked: true}}

	assert.True(t, tr.ObserveResult(cs), "a collapsed set must force a refresh")
}

func TestObserveResultFeatureFloor(t *testing.T) {
	tr := New(DefaultParams())

	// Attrition to 30 live points: healthy success rate, but below the
	// refresh floor.
	worn := make(CorrespondenceSet, 60)
	for i := 0; i < 30; i++ {
		worn[i].Tracked = true
	}
	assert.True(t, tr.ObserveResult(worn), "attrition below the floor must refresh immediately")

	healthy := make(CorrespondenceSet, 60)
	for i := 0; i < 50; i++ {
		healthy[i].Tracked = true
	}
	assert.False(t, tr.ObserveResult(healthy))
}

func TestObserveResultSustainedLowRate(t *testing.T) {
	params := DefaultParams()
	params.MinFeatures = 4
	params.RefreshThreshold = 3
	params.MinSuccessRate = 0.5
	tr := New(params)

	// 4 of 10 tracked: above the collapse floor, below the rate floor.
	cs := make(CorrespondenceSet, 10)
	for i := 0; i < 4; i++ {
		cs[i].Tracked = true
	}

	assert.False(t, tr.ObserveResult(cs))
	assert.False(t, tr.ObserveResult(cs))
	assert.True(t, tr.ObserveResult(cs), "third consecutive low-rate frame must trigger a refresh")
}

func TestObserveResultRateRecovers(t *testing.T) {
	params := DefaultParams()
	params.MinFeatures = 4
	params.RefreshThreshold = 2
	tr := New(params)

	low := make(CorrespondenceSet, 10)
	for i := 0; i < 4; i++ {
		low[i].Tracked = true
	}
	high := make(CorrespondenceSet, 10)
	for i := range high {
		high[i].Tracked = true
	}

	assert.False(t, tr.ObserveResult(low))
	assert.False(t, tr.ObserveResult(high), "healthy frame must clear the streak")
	assert.False(t, tr.ObserveResult(low))
}

func TestSetParamsKeepsCounters(t *testing.T) {
	params := DefaultParams()
	params.MinFeatures = 4
	params.RefreshThreshold = 3
	tr := New(params)

	low := make(CorrespondenceSet, 10)
	for i := 0; i < 4; i++ {
		low[i].Tracked = true
	}
	assert.False(t, tr.ObserveResult(low))
	assert.False(t, tr.ObserveResult(low))

	// A parameter retune must not reset the exhaustion streak.
	p := tr.Params()
	p.MaxFeatures = 150
	tr.SetParams(p)
	assert.True(t, tr.ObserveResult(low))
}
