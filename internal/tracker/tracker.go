// Package tracker detects salient corner points and tracks them
// frame-to-frame with pyramidal sparse optical flow.
package tracker

import (
	"github.com/sirupsen/logrus"

	"vidstab/internal/frame"
	"vidstab/pkg/geometry"
)

// Params controls detection and tracking. Zero values are replaced by
// defaults in Normalize.
type Params struct {
	MaxFeatures    int     // detection cap, 100-1000
	QualityLevel   float64 // corner score threshold relative to the best corner
	MinDistance    float64 // minimum pixel separation between detected corners
	ErrorThreshold float64 // per-point tracking residual above which a point is dropped
	PyramidLevels  int
	WindowRadius   int // half-size of the tracking window
	MaxIterations  int
	Epsilon        float64 // convergence threshold for the iterative update

	MinSuccessRate   float64 // tracked fraction below which the tracker is exhausted
	MinFeatures      int     // live tracked-point count below which a refresh fires
	RefreshThreshold int     // consecutive low-rate frames before a forced re-detect
	RefreshInterval  int     // frames between periodic re-detects, 0 disables
}

// DefaultParams mirrors the tracking constants the pipeline was tuned with.
func DefaultParams() Params {
	return Params{
		MaxFeatures:      200,
		QualityLevel:     0.01,
		MinDistance:      10,
		ErrorThreshold:   30.0,
		PyramidLevels:    3,
		WindowRadius:     10, // 21x21 window
		MaxIterations:    30,
		Epsilon:          0.01,
		MinSuccessRate:   0.5,
		MinFeatures:      50,
		RefreshThreshold: 25,
		RefreshInterval:  0,
	}
}

// Normalize fills unset fields with defaults.
func (p Params) Normalize() Params {
	d := DefaultParams()
	if p.MaxFeatures <= 0 {
		p.MaxFeatures = d.MaxFeatures
	}
	if p.QualityLevel <= 0 {
		p.QualityLevel = d.QualityLevel
	}
	if p.MinDistance <= 0 {
		p.MinDistance = d.MinDistance
	}
	if p.ErrorThreshold <= 0 {
		p.ErrorThreshold = d.ErrorThreshold
	}
	if p.PyramidLevels <= 0 {
		p.PyramidLevels = d.PyramidLevels
	}
	if p.WindowRadius <= 0 {
		p.WindowRadius = d.WindowRadius
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.Epsilon <= 0 {
		p.Epsilon = d.Epsilon
	}
	if p.MinSuccessRate <= 0 {
		p.MinSuccessRate = d.MinSuccessRate
	}
	if p.MinFeatures <= 0 {
		p.MinFeatures = d.MinFeatures
	}
	if p.MinFeatures < MinCorrespondences {
		p.MinFeatures = MinCorrespondences
	}
	if p.RefreshThreshold <= 0 {
		p.RefreshThreshold = d.RefreshThreshold
	}
	return p
}

// FeatureSet is an ordered set of detected feature points.
type FeatureSet []geometry.Point2D

// Correspondence pairs a previous-frame point with its tracked position.
// Untracked correspondences carry the reason in Err and are excluded from
// estimation.
type Correspondence struct {
	Prev    geometry.Point2D
	Curr    geometry.Point2D
	Tracked bool
	Err     float64
}

// CorrespondenceSet is the per-frame tracking result.
type CorrespondenceSet []Correspondence

// TrackedPairs splits the tracked correspondences into parallel point
// slices for the estimator.
func (cs CorrespondenceSet) TrackedPairs() (prev, curr []geometry.Point2D) {
	for _, c := range cs {
		if c.Tracked {
			prev = append(prev, c.Prev)
			curr = append(curr, c.Curr)
		}
	}
	return prev, curr
}

// TrackedCount returns the number of successfully tracked points.
func (cs CorrespondenceSet) TrackedCount() int {
	n := 0
	for _, c := range cs {
		if c.Tracked {
			n++
		}
	}
	return n
}

// SuccessRate returns the tracked fraction, 0 for an empty set.
func (cs CorrespondenceSet) SuccessRate() float64 {
	if len(cs) == 0 {
		return 0
	}
	return float64(cs.TrackedCount()) / float64(len(cs))
}

// MinCorrespondences is the smallest tracked-pair count that still
// constrains a similarity transform with any redundancy.
const MinCorrespondences = 4

// FeatureTracker runs detection and tracking and owns the refresh policy.
// One instance belongs to one stabilizer session; not safe for concurrent
// use.
type FeatureTracker struct {
	params Params

	framesSinceDetect int
	lowRateStreak     int

	log *logrus.Entry
}

// New creates a tracker with normalized parameters.
func New(params Params) *FeatureTracker {
	return &FeatureTracker{
		params: params.Normalize(),
		log:    logrus.WithField("component", "tracker"),
	}
}

// Params returns the active parameter set.
func (t *FeatureTracker) Params() Params {
	return t.params
}

// SetParams swaps the parameter set without touching tracking state, so an
// adaptive retune never forces a feature refresh by itself.
func (t *FeatureTracker) SetParams(params Params) {
	t.params = params.Normalize()
}

// Detect finds up to MaxFeatures well-separated corner points. The budget
// additionally scales with resolution (about one feature per 10000 pixels,
// floor 50) so small frames are not over-seeded. Deterministic for
// identical input and parameters.
func (t *FeatureTracker) Detect(f *frame.Frame) FeatureSet {
	budget := f.Width * f.Height / 10000
	if budget < 50 {
		budget = 50
	}
	if budget > t.params.MaxFeatures {
		budget = t.params.MaxFeatures
	}

	features := detectCorners(f, budget, t.params.QualityLevel, t.params.MinDistance)
	t.framesSinceDetect = 0
	t.lowRateStreak = 0

	t.log.WithFields(logrus.Fields{
		"found":  len(features),
		"budget": budget,
	}).Debug("feature detection")
	return features
}

// Track follows each previous point into the current frame. Points whose
// tracking residual exceeds ErrorThreshold, or that leave the frame, are
// marked untracked but kept in the set so indices stay parallel.
func (t *FeatureTracker) Track(prev, curr *frame.Frame, pts FeatureSet) CorrespondenceSet {
	if len(pts) == 0 {
		return nil
	}
	cs := trackPyramidal(prev, curr, pts, t.params)
	t.framesSinceDetect++
	return cs
}

// ObserveResult feeds a tracking result into the refresh policy and
// reports whether the tracker is exhausted: the live point count fell
// below the MinFeatures floor, the success rate stayed under its floor
// for RefreshThreshold consecutive frames, or a periodic refresh
// interval expired. Attrition hits the floor long before the set
// collapses outright, so a degrading set is replenished early.
func (t *FeatureTracker) ObserveResult(cs CorrespondenceSet) bool {
	rate := cs.SuccessRate()
	if rate < t.params.MinSuccessRate {
		t.lowRateStreak++
	} else {
		t.lowRateStreak = 0
	}

	switch {
	case cs.TrackedCount() < t.params.MinFeatures:
		t.log.WithFields(logrus.Fields{
			"tracked": cs.TrackedCount(),
			"floor":   t.params.MinFeatures,
		}).Debug("feature set below refresh floor")
		return true
	case t.lowRateStreak >= t.params.RefreshThreshold:
		t.log.WithFields(logrus.Fields{
			"rate":   rate,
			"streak": t.lowRateStreak,
		}).Debug("sustained low success rate")
		return true
	case t.params.RefreshInterval > 0 && t.framesSinceDetect >= t.params.RefreshInterval:
		return true
	}
	return false
}

// Reset clears refresh-policy counters. Called on session reset and on
// error recovery.
func (t *FeatureTracker) Reset() {
	t.framesSinceDetect = 0
	t.lowRateStreak = 0
}
