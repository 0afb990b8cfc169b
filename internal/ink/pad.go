// Package ink holds the drawing surface that strokes are accumulated onto.
//
// The surface is a monochrome alpha raster: every pixel stores how much ink
// covers it, 0 for blank paper and 255 for solid ink. Recognition always
// works on a Snapshot so that strokes arriving mid-scan never tear the image.
package ink

import (
	"image"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// Line width limits in pixels, mapped from pen pressure.
const (
	BaseLineWidth = 4.0
	MaxLineWidth  = 12.0

	defaultPressure = 0.5
)

// Point is a position on the pad in pixels.
type Point struct {
	X float64
	Y float64
}

// Sample is one pointer event: where it happened and how hard the pen pressed.
type Sample struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

// Stroke is a pointer-down..pointer-up run of samples.
type Stroke struct {
	PointerType string   `json:"pointer_type"`
	Points      []Sample `json:"points"`
}

// Accepts reports whether strokes from this pointer type are drawn.
// Finger input is ignored so a resting palm does not leave ink.
func Accepts(pointerType string) bool {
	return pointerType != "touch"
}

// StrokeWidth maps pointer pressure to a line width. Only pens report
// meaningful pressure; mice and unknown pointers draw at mid width.
func StrokeWidth(pointerType string, pressure float64) float64 {
	if pointerType != "pen" || pressure <= 0 {
		pressure = defaultPressure
	}
	if pressure > 1 {
		pressure = 1
	}
	return BaseLineWidth + pressure*(MaxLineWidth-BaseLineWidth)
}

// Pad is a persistent ink surface. It is safe for concurrent use.
type Pad struct {
	mu    sync.Mutex
	alpha *image.Alpha
	// rast is sized to one segment's box at a time, never the whole pad.
	rast *vector.Rasterizer
}

// NewPad creates a blank pad of the given size.
func NewPad(width, height int) *Pad {
	return &Pad{
		alpha: image.NewAlpha(image.Rect(0, 0, width, height)),
		rast:  vector.NewRasterizer(0, 0),
	}
}

// Bounds returns the pad rectangle.
func (p *Pad) Bounds() image.Rectangle {
	return p.alpha.Bounds()
}

// AddSegment draws a round-capped line from one point to another. Only the
// pixels inside the segment's bounding box are touched.
func (p *Pad) AddSegment(from, to Point, width float64) {
	radius := width / 2
	box := segmentBox(from, to, radius).Intersect(p.alpha.Bounds())
	if box.Empty() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rast.Reset(box.Dx(), box.Dy())
	capsule(p.rast, box.Min, from, to, radius)
	p.rast.Draw(p.alpha, box, image.Opaque, image.Point{})
}

// segmentBox is the pixel rectangle covering a capsule, with one pixel of
// slack for antialiasing.
func segmentBox(from, to Point, radius float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(math.Min(from.X, to.X)-radius))-1,
		int(math.Floor(math.Min(from.Y, to.Y)-radius))-1,
		int(math.Ceil(math.Max(from.X, to.X)+radius))+1,
		int(math.Ceil(math.Max(from.Y, to.Y)+radius))+1,
	)
}

// AddStroke draws every segment of a stroke and returns how many were drawn.
// A single-sample stroke leaves a dot.
func (p *Pad) AddStroke(s Stroke) int {
	if !Accepts(s.PointerType) || len(s.Points) == 0 {
		return 0
	}
	if len(s.Points) == 1 {
		pt := s.Points[0]
		at := Point{X: pt.X, Y: pt.Y}
		p.AddSegment(at, at, StrokeWidth(s.PointerType, pt.Pressure))
		return 1
	}
	for i := 1; i < len(s.Points); i++ {
		prev, next := s.Points[i-1], s.Points[i]
		p.AddSegment(
			Point{X: prev.X, Y: prev.Y},
			Point{X: next.X, Y: next.Y},
			StrokeWidth(s.PointerType, next.Pressure),
		)
	}
	return len(s.Points) - 1
}

// Clear wipes all ink.
func (p *Pad) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.alpha.Pix)
}

// Snapshot returns a copy of the current raster.
func (p *Pad) Snapshot() *image.Alpha {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := image.NewAlpha(p.alpha.Bounds())
	copy(out.Pix, p.alpha.Pix)
	return out
}

// kappa places cubic control points so that four curves approximate a circle.
const kappa = 0.5522847498

// capsule traces the outline of a line segment with semicircular caps,
// in coordinates relative to origin.
func capsule(r *vector.Rasterizer, origin image.Point, from, to Point, radius float64) {
	dx, dy := to.X-from.X, to.Y-from.Y
	length := math.Hypot(dx, dy)
	ux, uy := 1.0, 0.0
	if length > 0 {
		ux, uy = dx/length, dy/length
	}
	// n is the left-hand normal of the direction u.
	nx, ny := -uy, ux

	at := func(c Point, ax, ay float64) (float32, float32) {
		return float32(c.X + radius*ax - float64(origin.X)), float32(c.Y + radius*ay - float64(origin.Y))
	}
	quarter := func(c Point, ax, ay, bx, by float64) {
		c1x, c1y := at(c, ax+kappa*bx, ay+kappa*by)
		c2x, c2y := at(c, bx+kappa*ax, by+kappa*ay)
		ex, ey := at(c, bx, by)
		r.CubeTo(c1x, c1y, c2x, c2y, ex, ey)
	}

	r.MoveTo(at(from, nx, ny))
	r.LineTo(at(to, nx, ny))
	quarter(to, nx, ny, ux, uy)
	quarter(to, ux, uy, -nx, -ny)
	r.LineTo(at(from, -nx, -ny))
	quarter(from, -nx, -ny, -ux, -uy)
	quarter(from, -ux, -uy, nx, ny)
	r.ClosePath()
}
