// Package main - frame.go
//
// Geometric primitives and frame handling.
//
// A frame is a single captured device screen, decoded to RGBA and normalized
// to the canonical resolution before any matching runs. Normalizing up front
// means template coordinates and match scores are comparable across devices
// with different native resolutions.
package main

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Canonical frame dimensions all matching runs against. Templates are
// captured at this resolution (1080x1920 portrait).
const (
	CanonicalWidth  = 1080
	CanonicalHeight = 1920
)

// Point represents a 2D coordinate in screen space
type Point struct {
	X int
	Y int
}

// Bounds represents a rectangular area
type Bounds struct {
	X int // Top-left X coordinate
	Y int // Top-left Y coordinate
	W int // Width
	H int // Height
}

// NewBounds creates a new Bounds
func NewBounds(x, y, w, h int) Bounds {
	return Bounds{X: x, Y: y, W: w, H: h}
}

// Center returns the center point of the bounds
func (b Bounds) Center() Point {
	return Point{
		X: b.X + b.W/2,
		Y: b.Y + b.H/2,
	}
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W &&
		p.Y >= b.Y && p.Y <= b.Y+b.H
}

// Intersect clamps the bounds to the given image rectangle
func (b Bounds) Intersect(r image.Rectangle) Bounds {
	minX := maxInt(b.X, r.Min.X)
	minY := maxInt(b.Y, r.Min.Y)
	maxX := minInt(b.X+b.W, r.Max.X)
	maxY := minInt(b.Y+b.H, r.Max.Y)
	if maxX < minX || maxY < minY {
		return Bounds{}
	}
	return Bounds{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Empty reports whether the bounds cover no pixels
func (b Bounds) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// ValidateFrame rejects frames that cannot be matched against
func ValidateFrame(frame *image.RGBA) error {
	if frame == nil {
		return ErrInvalidFrame
	}
	if frame.Bounds().Dx() <= 0 || frame.Bounds().Dy() <= 0 {
		return ErrInvalidFrame
	}
	return nil
}

// NormalizeFrame converts a captured image to an RGBA frame at the canonical
// resolution. Frames already at canonical size are converted without scaling.
func NormalizeFrame(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrInvalidFrame
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrInvalidFrame
	}

	dst := image.NewRGBA(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	if b.Dx() == CanonicalWidth && b.Dy() == CanonicalHeight {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst, nil
	}

	LogDebug("Normalizing frame %dx%d -> %dx%d", b.Dx(), b.Dy(), CanonicalWidth, CanonicalHeight)
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

// toRGBA converts any image to RGBA without scaling
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// maxInt returns the maximum of two integers
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// minInt returns the minimum of two integers
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
