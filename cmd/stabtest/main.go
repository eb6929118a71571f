// Command stabtest runs the stabilization pipeline over synthetic motion
// scenarios or an image sequence and prints per-frame results.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"vidstab/internal/frame"
	"vidstab/internal/stabilizer"
	"vidstab/internal/version"
	"vidstab/internal/warp"
	"vidstab/pkg/geometry"
)

// fileConfig is the YAML shape of the harness configuration.
type fileConfig struct {
	Preset           string  `yaml:"preset"`
	SmoothingRadius  int     `yaml:"smoothing_radius"`
	MaxFeatures      int     `yaml:"max_features"`
	ErrorThreshold   float64 `yaml:"error_threshold"`
	AdaptiveRefresh  *bool   `yaml:"adaptive_refresh"`
	MaxCorrectionPct float64 `yaml:"max_correction_pct"`
	EdgeMode         string  `yaml:"edge_mode"`
}

func main() {
	configPath := flag.String("c", "", "Path to YAML config")
	scenario := flag.String("scenario", "", "Synthetic scenario: static, translate, shake, pan")
	seqDir := flag.String("seq", "", "Directory of image frames to stabilize")
	outDir := flag.String("out", "", "Directory for corrected output frames")
	width := flag.Int("w", 1280, "Synthetic frame width")
	height := flag.Int("h", 720, "Synthetic frame height")
	frames := flag.Int("n", 60, "Synthetic frame count")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stabtest %s (built %s, commit %s)\n",
			version.Version, version.BuildTime, version.GitCommit)
		return
	}

	if *scenario == "" && *seqDir == "" {
		fmt.Println("Usage: stabtest -scenario <name> | -seq <dir> [-c config.yaml] [-out <dir>]")
		os.Exit(1)
	}

	logrus.SetLevel(logrus.WarnLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	core := stabilizer.NewCore()
	core.Initialize(cfg)

	var frameSeq []*frame.Frame
	var truth []geometry.AffineTransform
	if *scenario != "" {
		fmt.Printf("=== Scenario: %s (%dx%d, %d frames) ===\n", *scenario, *width, *height, *frames)
		frameSeq, truth, err = syntheticSequence(*scenario, *width, *height, *frames)
	} else {
		fmt.Printf("=== Sequence: %s ===\n", *seqDir)
		frameSeq, err = loadSequence(*seqDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build frame sequence: %v\n", err)
		os.Exit(1)
	}

	run(core, cfg, frameSeq, truth, *outDir)
}

// run drives the core over the sequence. truth carries the injected
// per-frame motion for synthetic scenarios and is nil for loaded ones.
func run(core *stabilizer.Core, cfg stabilizer.Config, frames []*frame.Frame, truth []geometry.AffineTransform, outDir string) {
	fmt.Printf("%-6s %-14s %-9s %-9s %-8s %-9s %s\n", "frame", "status", "dx", "dy", "applied", "residual", "err")

	for i, f := range frames {
		res := core.ProcessFrame(f)
		residual := "-"
		if truth != nil && res.Applied {
			residual = fmt.Sprintf("%.2f", residualMotion(truth[i], res.Transform))
		}
		fmt.Printf("%-6d %-14s %-9.2f %-9.2f %-8v %-9s %s\n",
			i, core.Status(), res.Transform.TX, res.Transform.TY, res.Applied, residual, res.Err)

		if outDir != "" {
			out := f
			if res.Applied {
				out = warp.Apply(f, res.Transform, cfg.EdgeMode)
			}
			path := filepath.Join(outDir, fmt.Sprintf("frame_%04d.png", i))
			if err := writePNG(path, out); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
				os.Exit(1)
			}
		}
	}

	m := core.GetMetrics()
	fmt.Printf("\n=== Metrics ===\n")
	fmt.Printf("status:             %s\n", m.Status)
	fmt.Printf("tracked features:   %d\n", m.TrackedFeatures)
	fmt.Printf("last frame time:    %s\n", m.ProcessingTime)
	fmt.Printf("stability score:    %.3f\n", m.TransformStability)
	fmt.Printf("cumulative errors:  %d\n", m.ErrorCount)
}

func loadConfig(path string) (stabilizer.Config, error) {
	cfg := stabilizer.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, err
	}

	switch strings.ToLower(fc.Preset) {
	case "", "default":
	case "gaming":
		cfg = stabilizer.GamingConfig()
	case "streaming":
		cfg = stabilizer.StreamingConfig()
	case "recording":
		cfg = stabilizer.RecordingConfig()
	default:
		return cfg, fmt.Errorf("unknown preset %q", fc.Preset)
	}

	if fc.SmoothingRadius != 0 {
		cfg.SmoothingRadius = fc.SmoothingRadius
	}
	if fc.MaxFeatures != 0 {
		cfg.MaxFeatures = fc.MaxFeatures
	}
	if fc.ErrorThreshold != 0 {
		cfg.ErrorThreshold = fc.ErrorThreshold
	}
	if fc.AdaptiveRefresh != nil {
		cfg.AdaptiveRefresh = *fc.AdaptiveRefresh
	}
	if fc.MaxCorrectionPct != 0 {
		cfg.MaxCorrectionPct = fc.MaxCorrectionPct
	}
	switch strings.ToLower(fc.EdgeMode) {
	case "":
	case "crop":
		cfg.EdgeMode = stabilizer.EdgeCrop
	case "pad":
		cfg.EdgeMode = stabilizer.EdgePad
	case "scale-fit", "scalefit":
		cfg.EdgeMode = stabilizer.EdgeScaleFit
	default:
		return cfg, fmt.Errorf("unknown edge mode %q", fc.EdgeMode)
	}

	return cfg.Clamp(), nil
}

// syntheticSequence builds a camera-motion scenario over one textured
// scene, returning the frames and the injected per-frame motion.
func syntheticSequence(name string, w, h, n int) ([]*frame.Frame, []geometry.AffineTransform, error) {
	base := frame.Textured(w, h, 42)
	rng := rand.New(rand.NewSource(7))
	frames := make([]*frame.Frame, 0, n)
	truth := make([]geometry.AffineTransform, 0, n)

	var cumX, cumY float64
	for i := 0; i < n; i++ {
		prevX, prevY := cumX, cumY
		switch name {
		case "static":
			// No motion at all.
		case "translate":
			cumX += 5
		case "pan":
			cumX += 8
			cumY += 0.5
		case "shake":
			cumX += rng.NormFloat64() * 6
			cumY += rng.NormFloat64() * 6
		default:
			return nil, nil, fmt.Errorf("unknown scenario %q", name)
		}
		frames = append(frames, frame.Translated(base, cumX, cumY))
		truth = append(truth, geometry.Translation(cumX-prevX, cumY-prevY))
	}
	return frames, truth, nil
}

func loadSequence(dir string) ([]*frame.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image frames in %s", dir)
	}

	frames := make([]*frame.Frame, 0, len(paths))
	for _, path := range paths {
		f, err := loadLuminance(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// loadLuminance decodes an image and reduces it to the single-plane
// luminance buffer the core consumes.
func loadLuminance(path string) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, err
	}

	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return frame.FromGray(gray), nil
}

func writePNG(path string, f *frame.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return png.Encode(fh, f.ToGray())
}

// residualMotion is the translation left over after the corrective
// transform is composed with the injected motion.
func residualMotion(raw, corrective geometry.AffineTransform) float64 {
	composed := corrective.Compose(raw)
	return math.Sqrt(composed.TX*composed.TX + composed.TY*composed.TY)
}
