// Package geometry provides the 2D point and affine transform value types
// shared by the stabilization pipeline.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// Norm returns the distance from the origin.
func (p Point2D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Dot returns the dot product with another point treated as a vector.
func (p Point2D) Dot(other Point2D) float64 {
	return p.X*other.X + p.Y*other.Y
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Similarity builds a transform from translation, rotation angle (radians)
// and uniform scale.
func Similarity(tx, ty, angle, scale float64) AffineTransform {
	cos := scale * math.Cos(angle)
	sin := scale * math.Sin(angle)
	return AffineTransform{
		A: cos, B: -sin, TX: tx,
		C: sin, D: cos, TY: ty,
	}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other).
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// Decompose extracts similarity components: translation, rotation angle
// (radians) and uniform scale. For a non-similarity matrix the scale is the
// first-column norm, which is exact for the transforms the estimator
// produces.
func (t AffineTransform) Decompose() (tx, ty, angle, scale float64) {
	tx = t.TX
	ty = t.TY
	angle = math.Atan2(t.C, t.A)
	scale = math.Sqrt(math.Max(0, t.A*t.A+t.C*t.C))
	return tx, ty, angle, scale
}

// TranslationMagnitude returns the length of the translation component.
func (t AffineTransform) TranslationMagnitude() float64 {
	return math.Sqrt(t.TX*t.TX + t.TY*t.TY)
}

// ScaleFactor returns the uniform scale component.
func (t AffineTransform) ScaleFactor() float64 {
	return math.Sqrt(math.Max(0, t.A*t.A+t.C*t.C))
}

// RotationAngle returns the rotation component in radians.
func (t AffineTransform) RotationAngle() float64 {
	return math.Atan2(t.C, t.A)
}

// Sanity bounds for estimated inter-frame transforms. A real camera cannot
// rescale the scene outside these limits between consecutive frames.
const (
	MinScaleFactor = 0.1
	MaxScaleFactor = 3.0
)

// Valid reports whether the transform decomposes to a translation and
// uniform scale within sane bounds. maxTranslation is the per-frame pixel
// cap; transforms failing this check must never be applied to a frame.
func (t AffineTransform) Valid(maxTranslation float64) bool {
	if math.IsNaN(t.A) || math.IsNaN(t.B) || math.IsNaN(t.C) ||
		math.IsNaN(t.D) || math.IsNaN(t.TX) || math.IsNaN(t.TY) {
		return false
	}
	if math.Abs(t.TX) > maxTranslation || math.Abs(t.TY) > maxTranslation {
		return false
	}
	scale := t.ScaleFactor()
	return scale >= MinScaleFactor && scale <= MaxScaleFactor
}

// ToMatrix returns the transform as a [2][3]float64 array.
func (t AffineTransform) ToMatrix() [2][3]float64 {
	return [2][3]float64{
		{t.A, t.B, t.TX},
		{t.C, t.D, t.TY},
	}
}

// FromMatrix creates an AffineTransform from a [2][3]float64 array.
func FromMatrix(m [2][3]float64) AffineTransform {
	return AffineTransform{
		A: m[0][0], B: m[0][1], TX: m[0][2],
		C: m[1][0], D: m[1][1], TY: m[1][2],
	}
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}
