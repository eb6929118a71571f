// Package motion buckets recent transform history into a coarse motion
// type from magnitude, variance and frequency statistics. It operates on
// transform history only and never touches pixels, so classification cost
// is independent of frame resolution.
package motion

import (
	"vidstab/pkg/geometry"
)

// Type is the coarse classification of recent camera motion.
type Type int

const (
	Static Type = iota
	SlowMotion
	FastMotion
	CameraShake
	PanZoom
)

func (t Type) String() string {
	switch t {
	case Static:
		return "static"
	case SlowMotion:
		return "slow-motion"
	case FastMotion:
		return "fast-motion"
	case CameraShake:
		return "camera-shake"
	case PanZoom:
		return "pan-zoom"
	default:
		return "unknown"
	}
}

// Metrics are derived fresh from transform history each classification
// pass and never persisted. Magnitudes are percentages of the frame
// diagonal.
type Metrics struct {
	MeanMagnitude       float64 // average per-frame motion, % of diagonal
	MagnitudeVariance   float64 // variance of per-frame motion, % of diagonal
	DirectionalVariance float64 // spread of the translation direction, % of diagonal
	ConsistencyScore    float64 // mean normalized dot of consecutive translations, -1..1
	HighFrequencyRatio  float64 // second-difference energy over total, 0..1
	SampleCount         int
}

// Classification thresholds, in percent of the frame diagonal where
// applicable. Rules are evaluated in declaration order; the first match
// wins, and no match retains the previous label.
const (
	staticMeanMax      = 1.0
	staticVarianceMax  = 0.5
	slowMeanMax        = 5.0
	slowVarianceMax    = 3.0
	fastMeanMax        = 15.0
	fastVarianceMax    = 8.0
	shakeVarianceMin   = 8.0
	shakeHighFreqMin   = 0.6
	panConsistencyMin  = 0.7
	panDirectVarMax    = 2.0
	minFrequencyWindow = 6
)

// Classifier applies the threshold rules over a sliding window of the
// transform history. The analysis window is independent of the smoothing
// radius. The only state is the current label, carried for rule-6
// hysteresis so borderline metrics do not oscillate.
type Classifier struct {
	window   int
	diagonal float64
	current  Type
}

// NewClassifier creates a classifier for frames with the given diagonal
// length in pixels.
func NewClassifier(window int, diagonal float64) *Classifier {
	if window <= 0 {
		window = 30
	}
	if diagonal <= 0 {
		diagonal = 1
	}
	return &Classifier{window: window, diagonal: diagonal, current: Static}
}

// Current returns the label from the most recent classification pass.
func (c *Classifier) Current() Type {
	return c.current
}

// SetDiagonal rebinds the classifier to a new frame size.
func (c *Classifier) SetDiagonal(d float64) {
	if d > 0 {
		c.diagonal = d
	}
}

// Reset returns the classifier to the initial Static label.
func (c *Classifier) Reset() {
	c.current = Static
}

// Classify labels the most recent window of transforms. Identical history
// and identical prior label always produce the same result.
func (c *Classifier) Classify(history []geometry.AffineTransform) Type {
	if len(history) == 0 {
		return c.current
	}
	if len(history) > c.window {
		history = history[len(history)-c.window:]
	}

	m := ComputeMetrics(history, c.diagonal)
	if label, ok := classifyMetrics(m); ok {
		c.current = label
	}
	return c.current
}

// classifyMetrics applies the ordered rules. The second return is false
// when no rule matches, in which case the caller keeps its previous label.
func classifyMetrics(m Metrics) (Type, bool) {
	switch {
	case m.MeanMagnitude < staticMeanMax && m.MagnitudeVariance < staticVarianceMax:
		return Static, true
	case m.MeanMagnitude >= staticMeanMax && m.MeanMagnitude < slowMeanMax &&
		m.MagnitudeVariance < slowVarianceMax:
		return SlowMotion, true
	case m.MeanMagnitude >= slowMeanMax && m.MeanMagnitude < fastMeanMax &&
		m.MagnitudeVariance < fastVarianceMax:
		return FastMotion, true
	case m.MagnitudeVariance > shakeVarianceMin || m.HighFrequencyRatio > shakeHighFreqMin:
		// Checked ahead of pan/zoom so a shaky pan is not mistaken
		// for deliberate motion.
		return CameraShake, true
	case m.ConsistencyScore > panConsistencyMin && m.DirectionalVariance < panDirectVarMax:
		return PanZoom, true
	}
	return Static, false
}
