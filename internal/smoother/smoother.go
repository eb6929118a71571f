// Package smoother turns raw inter-frame transform history into a
// corrective transform that cancels unwanted motion.
//
// Smoothing happens in similarity parameter space (dx, dy, angle,
// log-scale) over the cumulative trajectory: the low-pass target is a
// moving average of the cumulative motion, and the corrective transform
// moves the latest actual position back toward that target. Strategies for
// specific motion types adjust how much of the difference is corrected.
package smoother

import (
	"math"

	"vidstab/internal/motion"
	"vidstab/pkg/geometry"
)

// Params controls the smoothing window and correction limits.
type Params struct {
	Radius           int     // moving-average window over the trajectory
	MaxCorrectionPct float64 // translation correction cap, % of frame dimension
	FrameWidth       int
	FrameHeight      int
}

// Correction caps for the non-translation components. Large rotation or
// scale corrections are more visible than the motion they remove.
const (
	maxAngleCorrection = 0.05 // radians
	maxLogScaleCorrect = 0.05

	shakeRetention  = 0.3 // high-frequency residual kept for CameraShake
	panPreservation = 0.8 // fraction of motion parallel to a pan left alone
)

// trajectoryPoint is a position on the cumulative motion path.
type trajectoryPoint struct {
	dx, dy   float64
	angle    float64
	logScale float64
}

func (p trajectoryPoint) add(q trajectoryPoint) trajectoryPoint {
	return trajectoryPoint{p.dx + q.dx, p.dy + q.dy, p.angle + q.angle, p.logScale + q.logScale}
}

func (p trajectoryPoint) sub(q trajectoryPoint) trajectoryPoint {
	return trajectoryPoint{p.dx - q.dx, p.dy - q.dy, p.angle - q.angle, p.logScale - q.logScale}
}

func (p trajectoryPoint) scale(f float64) trajectoryPoint {
	return trajectoryPoint{p.dx * f, p.dy * f, p.angle * f, p.logScale * f}
}

// strategy reshapes the raw correction (target minus actual) for one
// motion type. history is the incremental transform window.
type strategy func(correction trajectoryPoint, history []geometry.AffineTransform) trajectoryPoint

// Smoother computes corrective transforms. One instance per stabilizer
// session; not safe for concurrent use.
type Smoother struct {
	params     Params
	strategies map[motion.Type]strategy
}

// New creates a smoother with the motion-type strategy table installed.
func New(params Params) *Smoother {
	if params.Radius <= 0 {
		params.Radius = 30
	}
	if params.MaxCorrectionPct <= 0 {
		params.MaxCorrectionPct = 20
	}
	s := &Smoother{params: params}
	s.strategies = map[motion.Type]strategy{
		motion.CameraShake: shakeStrategy,
		motion.PanZoom:     panZoomStrategy,
	}
	return s
}

// SetRadius updates the moving-average window. In-flight history is
// unaffected; the next Smooth call simply reads a different span.
func (s *Smoother) SetRadius(radius int) {
	if radius > 0 {
		s.params.Radius = radius
	}
}

// SetMaxCorrection updates the translation correction cap.
func (s *Smoother) SetMaxCorrection(pct float64) {
	if pct > 0 {
		s.params.MaxCorrectionPct = pct
	}
}

// SetFrameSize binds the correction cap to actual frame dimensions.
func (s *Smoother) SetFrameSize(width, height int) {
	s.params.FrameWidth = width
	s.params.FrameHeight = height
}

// Params returns the active parameter set.
func (s *Smoother) Params() Params {
	return s.params
}

// Smooth produces the corrective transform for the newest entry of the
// incremental transform history. A history of length 1 yields the
// identity: there is nothing to smooth against yet.
func (s *Smoother) Smooth(history []geometry.AffineTransform, motionType motion.Type) geometry.AffineTransform {
	if len(history) == 0 {
		return geometry.Identity()
	}
	if len(history) > s.params.Radius {
		history = history[len(history)-s.params.Radius:]
	}

	// Cumulative trajectory across the window.
	trajectory := make([]trajectoryPoint, len(history))
	var cum trajectoryPoint
	for i, t := range history {
		dx, dy, angle, scale := t.Decompose()
		if scale <= 0 {
			scale = 1
		}
		cum = cum.add(trajectoryPoint{dx, dy, angle, math.Log(scale)})
		trajectory[i] = cum
	}

	// Low-pass target: moving average of the trajectory.
	var target trajectoryPoint
	for _, p := range trajectory {
		target = target.add(p)
	}
	target = target.scale(1 / float64(len(trajectory)))

	correction := target.sub(trajectory[len(trajectory)-1])
	if st, ok := s.strategies[motionType]; ok {
		correction = st(correction, history)
	}
	correction = s.clamp(correction)

	return geometry.Similarity(correction.dx, correction.dy,
		correction.angle, math.Exp(correction.logScale))
}

// clamp bounds each correction component so a bad window can never push
// the frame further than the configured limits.
func (s *Smoother) clamp(c trajectoryPoint) trajectoryPoint {
	if s.params.FrameWidth > 0 {
		maxDx := float64(s.params.FrameWidth) * s.params.MaxCorrectionPct / 100
		c.dx = clampAbs(c.dx, maxDx)
	}
	if s.params.FrameHeight > 0 {
		maxDy := float64(s.params.FrameHeight) * s.params.MaxCorrectionPct / 100
		c.dy = clampAbs(c.dy, maxDy)
	}
	c.angle = clampAbs(c.angle, maxAngleCorrection)
	c.logScale = clampAbs(c.logScale, maxLogScaleCorrect)
	return c
}

// shakeStrategy keeps a fraction of the high-frequency residual instead of
// cancelling it completely. Full cancellation over-smooths shake into a
// floaty drift; retaining ~30% reads as stable without the artifact.
func shakeStrategy(correction trajectoryPoint, _ []geometry.AffineTransform) trajectoryPoint {
	return correction.scale(1 - shakeRetention)
}

// panZoomStrategy preserves motion along the dominant pan direction and
// corrects the perpendicular jitter component aggressively.
func panZoomStrategy(correction trajectoryPoint, history []geometry.AffineTransform) trajectoryPoint {
	var sumX, sumY float64
	for _, t := range history {
		sumX += t.TX
		sumY += t.TY
	}
	norm := math.Sqrt(sumX*sumX + sumY*sumY)
	if norm < 1e-6 {
		return correction
	}
	ux := sumX / norm
	uy := sumY / norm

	// Split translation correction into components parallel and
	// perpendicular to the pan direction.
	parallel := correction.dx*ux + correction.dy*uy
	perpX := correction.dx - parallel*ux
	perpY := correction.dy - parallel*uy

	kept := parallel * (1 - panPreservation)
	correction.dx = perpX + kept*ux
	correction.dy = perpY + kept*uy
	return correction
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
