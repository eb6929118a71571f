// Package adaptive maps motion classifications to pipeline parameter sets
// and applies them without visible discontinuity: a new classification
// must hold for two consecutive passes before it takes effect, and the
// active parameters then glide toward the target instead of jumping.
package adaptive

import (
	"math"

	"github.com/sirupsen/logrus"

	"vidstab/internal/motion"
)

// ParameterSet is the tunable profile selected per motion type.
type ParameterSet struct {
	SmoothingRadius  int
	MaxCorrectionPct float64
	MaxFeatures      int
	QualityLevel     float64
	RefreshInterval  int // frames between periodic feature re-detects
}

// Profile table per motion type. Static scenes need little smoothing and
// few features; shake wants a long window, heavy correction and a dense
// feature set refreshed often.
var profiles = map[motion.Type]ParameterSet{
	motion.Static:      {SmoothingRadius: 8, MaxCorrectionPct: 15, MaxFeatures: 120, QualityLevel: 0.015, RefreshInterval: 50},
	motion.SlowMotion:  {SmoothingRadius: 25, MaxCorrectionPct: 25, MaxFeatures: 175, QualityLevel: 0.010, RefreshInterval: 40},
	motion.FastMotion:  {SmoothingRadius: 50, MaxCorrectionPct: 35, MaxFeatures: 250, QualityLevel: 0.010, RefreshInterval: 30},
	motion.CameraShake: {SmoothingRadius: 65, MaxCorrectionPct: 45, MaxFeatures: 350, QualityLevel: 0.005, RefreshInterval: 20},
	motion.PanZoom:     {SmoothingRadius: 15, MaxCorrectionPct: 20, MaxFeatures: 225, QualityLevel: 0.010, RefreshInterval: 35},
}

// ParamsFor returns the static profile for a motion type.
func ParamsFor(t motion.Type) ParameterSet {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[motion.Static]
}

// Debounce and blending constants. transitionRate is the fraction of the
// remaining distance covered per classification pass.
const (
	debouncePasses = 2
	transitionRate = 0.1
)

// Controller owns the debounce state and the continuously blended
// parameter set. One instance per stabilizer session.
type Controller struct {
	active motion.Type // classification currently driving the target

	candidate       motion.Type
	candidateStreak int

	// Blended values, kept as floats so repeated small steps do not
	// quantize away.
	radius     float64
	correction float64
	features   float64
	quality    float64
	refresh    float64

	log *logrus.Entry
}

// NewController starts from the profile of the given initial type.
func NewController(initial motion.Type) *Controller {
	p := ParamsFor(initial)
	return &Controller{
		active:     initial,
		candidate:  initial,
		radius:     float64(p.SmoothingRadius),
		correction: p.MaxCorrectionPct,
		features:   float64(p.MaxFeatures),
		quality:    p.QualityLevel,
		refresh:    float64(p.RefreshInterval),
		log:        logrus.WithField("component", "adaptive"),
	}
}

// Active returns the motion type currently driving the parameter target.
func (c *Controller) Active() motion.Type {
	return c.active
}

// Observe feeds one classification pass into the controller and returns
// the parameter set to apply. The returned set moves toward the profile of
// the debounced classification by transitionRate per pass; in-flight
// transform history is never invalidated by a parameter change.
func (c *Controller) Observe(label motion.Type) ParameterSet {
	if label != c.active {
		if label == c.candidate {
			c.candidateStreak++
		} else {
			c.candidate = label
			c.candidateStreak = 1
		}
		if c.candidateStreak >= debouncePasses {
			c.log.WithFields(logrus.Fields{
				"from": c.active.String(),
				"to":   label.String(),
			}).Debug("motion profile switch")
			c.active = label
			c.candidateStreak = 0
		}
	} else {
		c.candidate = label
		c.candidateStreak = 0
	}

	target := ParamsFor(c.active)
	c.radius = blend(c.radius, float64(target.SmoothingRadius))
	c.correction = blend(c.correction, target.MaxCorrectionPct)
	c.features = blend(c.features, float64(target.MaxFeatures))
	c.quality = blend(c.quality, target.QualityLevel)
	c.refresh = blend(c.refresh, float64(target.RefreshInterval))

	return c.Current()
}

// Current returns the blended parameter set without advancing it.
func (c *Controller) Current() ParameterSet {
	return ParameterSet{
		SmoothingRadius:  int(math.Round(c.radius)),
		MaxCorrectionPct: c.correction,
		MaxFeatures:      int(math.Round(c.features)),
		QualityLevel:     c.quality,
		RefreshInterval:  int(math.Round(c.refresh)),
	}
}

// Relax shrinks the feature budget toward the floor, used when the
// pipeline degrades and needs a faster profile rather than a denser one.
func (c *Controller) Relax() ParameterSet {
	c.features = math.Max(50, c.features*0.5)
	c.quality = math.Max(0.005, c.quality*0.5)
	c.log.WithField("features", int(c.features)).Debug("relaxed parameters")
	return c.Current()
}

func blend(current, target float64) float64 {
	return current + (target-current)*transitionRate
}
