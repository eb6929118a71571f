package stabilizer

// EdgeMode selects how the caller fills the border revealed by a
// corrective shift. The core reports it but never applies pixels.
type EdgeMode int

const (
	// EdgeCrop zooms slightly so corrected frames never show a border.
	EdgeCrop EdgeMode = iota
	// EdgePad fills revealed edges with black.
	EdgePad
	// EdgeScaleFit warps then rescales the valid region to fill the frame.
	EdgeScaleFit
)

func (m EdgeMode) String() string {
	switch m {
	case EdgeCrop:
		return "crop"
	case EdgePad:
		return "pad"
	case EdgeScaleFit:
		return "scale-fit"
	default:
		return "unknown"
	}
}

// Config is an immutable snapshot of stabilizer settings. The caller
// builds a value and publishes it with Core.UpdateConfig; the core never
// mutates a published snapshot.
type Config struct {
	SmoothingRadius int     // trajectory window, clamped to [10, 100]
	MaxFeatures     int     // detection cap, clamped to [100, 1000]
	ErrorThreshold  float64 // tracking residual cap, clamped to [10, 100]

	MinFeatureQuality float64 // relative corner quality floor
	RefreshThreshold  int     // consecutive low-rate frames before a forced refresh
	AdaptiveRefresh   bool    // let the adaptive controller drive parameters

	MaxCorrectionPct float64 // translation correction cap, % of frame dimension
	MaxTranslation   float64 // per-frame transform validation cap, pixels

	EdgeMode EdgeMode
	Enabled  bool
}

// Configuration bounds. Out-of-range values are clamped, never rejected:
// a slider wired to the host UI must not be able to break the pipeline.
const (
	minSmoothingRadius = 10
	maxSmoothingRadius = 100
	minMaxFeatures     = 100
	maxMaxFeatures     = 1000
	minErrorThreshold  = 10.0
	maxErrorThreshold  = 100.0
)

// DefaultConfig returns the general-purpose profile.
func DefaultConfig() Config {
	return Config{
		SmoothingRadius:   30,
		MaxFeatures:       200,
		ErrorThreshold:    30.0,
		MinFeatureQuality: 0.01,
		RefreshThreshold:  25,
		AdaptiveRefresh:   true,
		MaxCorrectionPct:  20,
		MaxTranslation:    200,
		EdgeMode:          EdgeCrop,
		Enabled:           true,
	}
}

// GamingConfig favors latency: short window, light feature load.
func GamingConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingRadius = 25
	cfg.MaxFeatures = 150
	cfg.MinFeatureQuality = 0.015
	cfg.MaxCorrectionPct = 40
	return cfg
}

// StreamingConfig balances latency against quality for live output.
func StreamingConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingRadius = 30
	cfg.MaxFeatures = 200
	cfg.MaxCorrectionPct = 30
	return cfg
}

// RecordingConfig favors quality: long window, dense features.
func RecordingConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingRadius = 50
	cfg.MaxFeatures = 400
	cfg.MinFeatureQuality = 0.005
	cfg.MaxCorrectionPct = 20
	return cfg
}

// Clamp returns a copy with every field forced into its valid range.
func (c Config) Clamp() Config {
	c.SmoothingRadius = clampInt(c.SmoothingRadius, minSmoothingRadius, maxSmoothingRadius)
	c.MaxFeatures = clampInt(c.MaxFeatures, minMaxFeatures, maxMaxFeatures)
	c.ErrorThreshold = clampFloat(c.ErrorThreshold, minErrorThreshold, maxErrorThreshold)
	if c.MinFeatureQuality <= 0 {
		c.MinFeatureQuality = 0.01
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 25
	}
	if c.MaxCorrectionPct <= 0 {
		c.MaxCorrectionPct = 20
	}
	if c.MaxTranslation <= 0 {
		c.MaxTranslation = 200
	}
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
