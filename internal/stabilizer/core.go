// Package stabilizer orchestrates the per-frame stabilization pipeline:
// track features, estimate inter-frame motion, smooth the trajectory, and
// hand the caller a corrective transform. It owns the error/recovery state
// machine and the thread-safe configuration snapshot.
//
// A Core instance is driven synchronously by exactly one caller thread,
// one frame at a time. The only cross-thread entry points are
// UpdateConfig, Status and GetMetrics.
package stabilizer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vidstab/internal/adaptive"
	"vidstab/internal/estimator"
	"vidstab/internal/frame"
	"vidstab/internal/motion"
	"vidstab/internal/smoother"
	"vidstab/internal/tracker"
	"vidstab/pkg/geometry"
)

// Failure escalation thresholds. Soft failures degrade, they never kill
// the session; only repeated critical faults reach Failed.
const (
	degradeAfterFailures  = 5 // consecutive soft failures before Degraded
	recoverAfterSuccesses = 5 // consecutive successes before Degraded returns to Active
	maxRecoveryFailures   = 3 // critical faults before Failed

	classifyEvery = 5 // frames between classification passes

	// Frames smaller than this track too few stable corners to
	// initialize against, even though they pass buffer validation.
	minInitDimension = 50
)

// Core is the stabilization engine for one video session.
type Core struct {
	// configMu guards only the snapshot pointer swap; it is never held
	// across frame processing.
	configMu sync.Mutex
	config   *Config

	appliedConfig *Config // last snapshot pushed into the components

	// status is written on the frame thread and polled by control
	// threads, so it is stored atomically.
	status atomic.Int32

	tracker    *tracker.FeatureTracker
	est        *estimator.Estimator
	classifier *motion.Classifier
	smoother   *smoother.Smoother
	controller *adaptive.Controller
	history    *TransformHistory

	// estimate is the estimation entry point, indirected so fault
	// injection tests can exercise the recovery path.
	estimate func(tracker.CorrespondenceSet) (geometry.AffineTransform, bool)

	prevFrame *frame.Frame
	features  tracker.FeatureSet

	frameW, frameH int

	frameCount          int
	successStreak       int
	consecutiveFailures int
	recoveryFailures    int
	errorCount          uint64

	metricsMu sync.Mutex
	metrics   Metrics

	log *logrus.Entry
}

// NewCore creates an uninitialized core. It stays Inactive and passes
// every frame through until Initialize is called.
func NewCore() *Core {
	return &Core{
		log: logrus.WithField("component", "stabilizer"),
	}
}

// Initialize (re)builds the pipeline from a configuration snapshot and
// moves the state machine to Initializing. It is the only exit from
// Failed.
func (c *Core) Initialize(cfg Config) {
	clamped := cfg.Clamp()

	c.configMu.Lock()
	c.config = &clamped
	c.configMu.Unlock()

	c.tracker = tracker.New(trackerParams(clamped))
	c.est = estimator.New(estimatorParams(clamped), time.Now().UnixNano())
	c.estimate = nil
	c.classifier = motion.NewClassifier(30, 1)
	c.smoother = smoother.New(smoother.Params{
		Radius:           clamped.SmoothingRadius,
		MaxCorrectionPct: clamped.MaxCorrectionPct,
	})
	c.controller = adaptive.NewController(motion.Static)
	c.history = NewTransformHistory(clamped.SmoothingRadius)

	c.appliedConfig = &clamped
	c.prevFrame = nil
	c.features = nil
	c.frameW, c.frameH = 0, 0
	c.frameCount = 0
	c.successStreak = 0
	c.consecutiveFailures = 0
	c.recoveryFailures = 0

	c.setStatus(Initializing)
	c.log.WithFields(logrus.Fields{
		"smoothing": clamped.SmoothingRadius,
		"features":  clamped.MaxFeatures,
	}).Info("stabilizer initialized")
}

// Reset clears all per-session state and returns to Inactive.
func (c *Core) Reset() {
	c.prevFrame = nil
	c.features = nil
	if c.history != nil {
		c.history.Clear()
	}
	if c.tracker != nil {
		c.tracker.Reset()
	}
	if c.classifier != nil {
		c.classifier.Reset()
	}
	c.frameCount = 0
	c.successStreak = 0
	c.consecutiveFailures = 0
	c.recoveryFailures = 0
	c.setStatus(Inactive)
	c.log.Info("stabilizer reset")
}

// UpdateConfig publishes a new configuration snapshot. Safe to call from a
// control thread at any time: the whole value is swapped as one unit, and
// the frame path picks it up at its next frame boundary.
func (c *Core) UpdateConfig(cfg Config) {
	clamped := cfg.Clamp()
	c.configMu.Lock()
	c.config = &clamped
	c.configMu.Unlock()
}

// currentConfig reads the published snapshot. The lock is held only for
// the pointer copy.
func (c *Core) currentConfig() *Config {
	c.configMu.Lock()
	cfg := c.config
	c.configMu.Unlock()
	return cfg
}

// Status returns the current state machine position.
func (c *Core) Status() Status {
	return Status(c.status.Load())
}

func (c *Core) setStatus(s Status) {
	c.status.Store(int32(s))
}

// GetMetrics returns the most recent metrics snapshot.
func (c *Core) GetMetrics() Metrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	m := c.metrics
	m.Status = c.Status()
	return m
}

// ProcessFrame runs the per-frame pipeline and returns the corrective
// transform for this frame. It never blocks, never panics across the call
// boundary, and on any failure tier degrades to pass-through.
func (c *Core) ProcessFrame(f *frame.Frame) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = c.criticalFailure(fmt.Sprintf("internal fault: %v", r))
		}
		c.recordMetrics(res, time.Since(start))
	}()

	cfg := c.currentConfig()
	if cfg == nil || c.Status() == Inactive || !cfg.Enabled {
		return passThrough("")
	}
	if c.Status() == Failed {
		return passThrough("stabilization failed; reinitialize to resume")
	}

	c.applyConfigIfChanged(cfg)

	if err := f.Validate(); err != nil {
		return c.criticalFailure("invalid frame: " + err.Error())
	}
	c.bindFrameSize(f)

	return c.runPipeline(f, cfg)
}

// runPipeline executes one frame of the track/estimate/smooth flow.
func (c *Core) runPipeline(f *frame.Frame, cfg *Config) Result {
	// Acquisition frame: no previous frame or no live feature set.
	// Detect and wait for the next frame to produce an estimate.
	if c.prevFrame == nil || len(c.features) == 0 {
		if f.Width < minInitDimension || f.Height < minInitDimension {
			return c.softFailure(fmt.Sprintf(
				"frame %dx%d too small for reliable feature detection", f.Width, f.Height))
		}
		feats := c.tracker.Detect(f)
		c.prevFrame = f.Clone()
		if len(feats) < tracker.MinCorrespondences {
			c.features = nil
			return c.softFailure("insufficient feature points detected")
		}
		c.features = feats
		return passThrough("")
	}

	cs := c.tracker.Track(c.prevFrame, f, c.features)
	needRefresh := c.tracker.ObserveResult(cs)
	c.prevFrame = f.Clone()

	if cs.TrackedCount() < tracker.MinCorrespondences {
		c.features = nil
		return c.softFailure("insufficient correspondences for estimation")
	}

	t, ok := c.estimateTransform(cs)
	if !ok {
		c.features = nil
		return c.softFailure("transform estimation rejected")
	}

	c.history.Push(t)
	c.onSuccess()

	c.frameCount++
	if c.frameCount%classifyEvery == 0 {
		label := c.classifier.Classify(c.history.Snapshot())
		if cfg.AdaptiveRefresh {
			c.applyAdaptiveParams(c.controller.Observe(label))
		}
	}

	corrective := c.smoother.Smooth(c.history.Snapshot(), c.classifier.Current())

	// Carry tracked positions forward; a refresh re-detects on this
	// frame so no applied frame is lost to re-acquisition. History
	// survives either way.
	if needRefresh {
		c.features = c.tracker.Detect(f)
	} else {
		c.features = trackedPositions(cs)
	}

	c.setStability(t)
	return Result{Applied: true, Transform: corrective}
}

// estimateTransform dispatches to the injected estimation hook, or the
// real estimator.
func (c *Core) estimateTransform(cs tracker.CorrespondenceSet) (geometry.AffineTransform, bool) {
	if c.estimate != nil {
		return c.estimate(cs)
	}
	return c.est.Estimate(cs)
}

// onSuccess advances the state machine after a successful estimate.
func (c *Core) onSuccess() {
	c.consecutiveFailures = 0
	c.successStreak++

	switch c.Status() {
	case Initializing, ErrorRecovery:
		c.recoveryFailures = 0
		c.setStatus(Active)
		c.log.Info("stabilization active")
	case Degraded:
		if c.successStreak >= recoverAfterSuccesses {
			c.setStatus(Active)
			c.log.Info("recovered from degraded mode")
		}
	}
}

// softFailure handles the recoverable tier: the frame passes through, the
// next frame retries, and only a sustained run of failures degrades the
// session. Soft failures never reach Failed.
func (c *Core) softFailure(reason string) Result {
	c.errorCount++
	c.consecutiveFailures++
	c.successStreak = 0

	if c.consecutiveFailures > degradeAfterFailures && c.Status() != Degraded {
		c.setStatus(Degraded)
		relaxed := c.controller.Relax()
		c.applyAdaptiveParams(relaxed)
		c.log.WithFields(logrus.Fields{
			"failures": c.consecutiveFailures,
			"features": relaxed.MaxFeatures,
		}).Warn("sustained tracking failure, degraded mode")
	}
	return passThrough(reason)
}

// criticalFailure handles the critical tier: reset all per-session mutable
// state and re-acquire. Repeated critical faults are terminal.
func (c *Core) criticalFailure(reason string) Result {
	c.errorCount++
	c.recoveryFailures++
	c.successStreak = 0

	c.history.Clear()
	c.features = nil
	c.prevFrame = nil
	c.tracker.Reset()
	c.classifier.Reset()

	if c.recoveryFailures > maxRecoveryFailures {
		c.setStatus(Failed)
		c.log.WithField("reason", reason).Error("stabilization failed after repeated recovery faults")
	} else {
		c.setStatus(ErrorRecovery)
		c.log.WithField("reason", reason).Warn("entering error recovery")
	}
	return passThrough(reason)
}

// applyConfigIfChanged pushes a newly published snapshot into the
// components. Identity of the pointer marks the applied generation.
func (c *Core) applyConfigIfChanged(cfg *Config) {
	if cfg == c.appliedConfig {
		return
	}
	c.appliedConfig = cfg

	c.tracker.SetParams(trackerParams(*cfg))
	c.est.SetMaxTranslation(cfg.MaxTranslation)
	c.smoother.SetRadius(cfg.SmoothingRadius)
	c.smoother.SetMaxCorrection(cfg.MaxCorrectionPct)
	c.history.SetCapacity(cfg.SmoothingRadius)

	c.log.WithFields(logrus.Fields{
		"smoothing": cfg.SmoothingRadius,
		"features":  cfg.MaxFeatures,
	}).Debug("configuration applied")
}

// applyAdaptiveParams retunes tracker and smoother from the controller's
// blended profile. Transform history is never cleared here.
func (c *Core) applyAdaptiveParams(p adaptive.ParameterSet) {
	tp := c.tracker.Params()
	tp.MaxFeatures = p.MaxFeatures
	tp.QualityLevel = p.QualityLevel
	tp.RefreshInterval = p.RefreshInterval
	c.tracker.SetParams(tp)

	c.smoother.SetRadius(p.SmoothingRadius)
	c.smoother.SetMaxCorrection(p.MaxCorrectionPct)
	c.history.SetCapacity(p.SmoothingRadius)
}

// bindFrameSize rebinds resolution-dependent components when the frame
// size first appears or changes.
func (c *Core) bindFrameSize(f *frame.Frame) {
	if f.Width == c.frameW && f.Height == c.frameH {
		return
	}
	c.frameW, c.frameH = f.Width, f.Height
	c.classifier.SetDiagonal(f.Diagonal())
	c.smoother.SetFrameSize(f.Width, f.Height)
}

// setStability derives the transform stability score from the latest raw
// estimate: identity motion scores 1, 100px of motion scores 0.
func (c *Core) setStability(t geometry.AffineTransform) {
	stability := math.Max(0, 1-t.TranslationMagnitude()/100)
	c.metricsMu.Lock()
	c.metrics.TransformStability = stability
	c.metricsMu.Unlock()
}

func (c *Core) recordMetrics(res Result, elapsed time.Duration) {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	c.metrics.ProcessingTime = elapsed
	c.metrics.ErrorCount = c.errorCount
	if res.Applied {
		c.metrics.TrackedFeatures = len(c.features)
	}
}

func trackedPositions(cs tracker.CorrespondenceSet) tracker.FeatureSet {
	pts := make(tracker.FeatureSet, 0, len(cs))
	for _, corr := range cs {
		if corr.Tracked {
			pts = append(pts, corr.Curr)
		}
	}
	return pts
}

func trackerParams(cfg Config) tracker.Params {
	p := tracker.DefaultParams()
	p.MaxFeatures = cfg.MaxFeatures
	p.QualityLevel = cfg.MinFeatureQuality
	p.ErrorThreshold = cfg.ErrorThreshold
	p.RefreshThreshold = cfg.RefreshThreshold
	return p
}

func estimatorParams(cfg Config) estimator.Params {
	p := estimator.DefaultParams()
	p.MaxTranslation = cfg.MaxTranslation
	return p
}
