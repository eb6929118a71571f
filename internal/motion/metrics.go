package motion

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"vidstab/pkg/geometry"
)

// Weights folding scale and rotation deviation into a single pixel-scale
// magnitude alongside translation. A 1% scale change or a small rotation
// moves border pixels by roughly these factors.
const (
	scaleWeight    = 100.0
	rotationWeight = 200.0
)

// ComputeMetrics derives classification metrics from a transform window.
// diagonal is the frame diagonal in pixels; magnitudes are reported as
// percentages of it.
func ComputeMetrics(history []geometry.AffineTransform, diagonal float64) Metrics {
	m := Metrics{SampleCount: len(history)}
	if len(history) == 0 || diagonal <= 0 {
		return m
	}

	toPct := 100.0 / diagonal

	mags := make([]float64, len(history))
	for i, t := range history {
		mags[i] = magnitude(t) * toPct
	}

	m.MeanMagnitude = stat.Mean(mags, nil)
	if len(mags) >= 2 {
		m.MagnitudeVariance = variancePop(mags, m.MeanMagnitude)
	}
	m.DirectionalVariance = directionalVariance(history) * toPct
	m.ConsistencyScore = consistencyScore(history)
	m.HighFrequencyRatio = highFrequencyRatio(mags)

	return m
}

// magnitude collapses a transform into a single pixel-scale motion size:
// translation length plus weighted scale and rotation deviation.
func magnitude(t geometry.AffineTransform) float64 {
	_, _, angle, scale := t.Decompose()
	return t.TranslationMagnitude() +
		math.Abs(scale-1)*scaleWeight +
		math.Abs(angle)*rotationWeight
}

// variancePop is the population variance around a precomputed mean.
// stat.Variance is sample variance; classification thresholds were tuned
// against the population form.
func variancePop(xs []float64, mean float64) float64 {
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// directionalVariance measures the spread of the per-frame translation
// around its mean direction, in pixels.
func directionalVariance(history []geometry.AffineTransform) float64 {
	n := float64(len(history))
	dxs := make([]float64, len(history))
	dys := make([]float64, len(history))
	for i, t := range history {
		dxs[i] = t.TX
		dys[i] = t.TY
	}
	meanDx := stat.Mean(dxs, nil)
	meanDy := stat.Mean(dys, nil)

	var varDx, varDy float64
	for i := range history {
		ddx := dxs[i] - meanDx
		ddy := dys[i] - meanDy
		varDx += ddx * ddx
		varDy += ddy * ddy
	}
	return math.Sqrt((varDx + varDy) / n)
}

// consistencyScore is the mean cosine between consecutive translation
// vectors. Sustained pans score near 1, jitter near 0 or below.
func consistencyScore(history []geometry.AffineTransform) float64 {
	if len(history) < 2 {
		return 1.0
	}
	var dotSum, count float64
	for i := 1; i < len(history); i++ {
		prev := geometry.Point2D{X: history[i-1].TX, Y: history[i-1].TY}
		curr := geometry.Point2D{X: history[i].TX, Y: history[i].TY}
		magPrev := prev.Norm()
		magCurr := curr.Norm()
		if magPrev > 1e-3 && magCurr > 1e-3 {
			dotSum += prev.Dot(curr) / (magPrev * magCurr)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return dotSum / count
}

// highFrequencyRatio compares second-difference energy of the magnitude
// series against total energy. Shake produces alternating accelerations
// and pushes the ratio toward 1; smooth motion keeps it low. Needs at
// least minFrequencyWindow samples to say anything.
func highFrequencyRatio(mags []float64) float64 {
	if len(mags) < minFrequencyWindow {
		return 0
	}

	var highEnergy, lowEnergy float64
	for i := 2; i < len(mags); i++ {
		diff1 := mags[i] - mags[i-1]
		diff2 := mags[i-1] - mags[i-2]
		highEnergy += math.Abs(diff1 - diff2)
		lowEnergy += math.Abs(mags[i]-mags[i-2]) * 0.5
	}

	total := highEnergy + lowEnergy
	if total < 1e-3 {
		return 0
	}
	return highEnergy / total
}
