package stabilizer

import (
	"time"

	"vidstab/pkg/geometry"
)

// Status reflects the error/recovery state machine. It is mutated only by
// the orchestrator on the frame-processing thread.
type Status int

const (
	// Inactive: not initialized, or explicitly reset.
	Inactive Status = iota
	// Initializing: first frames after (re)start, no history to smooth
	// against yet.
	Initializing
	// Active: normal per-frame pipeline execution.
	Active
	// Degraded: sustained low confidence; reduced feature count and
	// relaxed thresholds, processing continues.
	Degraded
	// ErrorRecovery: recovering from an internal fault; per-session
	// state was reset and features are being re-acquired.
	ErrorRecovery
	// Failed: terminal until explicit reinitialization; every frame
	// passes through unmodified.
	Failed
)

func (s Status) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Degraded:
		return "degraded"
	case ErrorRecovery:
		return "error-recovery"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the per-frame output. When Applied is false the caller must
// output the frame unmodified; Transform is the identity in that case.
type Result struct {
	Applied   bool
	Transform geometry.AffineTransform
	Err       string
}

// passThrough builds the identity result, optionally with a diagnostic.
func passThrough(err string) Result {
	return Result{Applied: false, Transform: geometry.Identity(), Err: err}
}

// Metrics is the on-demand observability snapshot.
type Metrics struct {
	TrackedFeatures    int
	ProcessingTime     time.Duration
	TransformStability float64 // 1 fully stable, 0 at 100px of residual motion
	ErrorCount         uint64
	Status             Status
}
