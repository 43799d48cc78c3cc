package game

import (
	"math"

	"horde/internal/game/spatial"
)

// Body is the shared position/size component of every world entity. X and
// Y address the top-left corner.
type Body struct {
	X, Y, W, H float64
}

// Center returns the box center.
func (b Body) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// SetCenter moves the box so its center lands on (cx, cy).
func (b *Body) SetCenter(cx, cy float64) {
	b.X = cx - b.W/2
	b.Y = cy - b.H/2
}

// Resize changes the box size around its current center.
func (b *Body) Resize(w, h float64) {
	cx, cy := b.Center()
	b.W, b.H = w, h
	b.SetCenter(cx, cy)
}

// Intersects reports strict overlap; touching edges do not count.
func (b Body) Intersects(o Body) bool {
	return b.X < o.X+o.W && b.X+b.W > o.X && b.Y < o.Y+o.H && b.Y+b.H > o.Y
}

// Rect converts the body to the spatial index box.
func (b Body) Rect() spatial.Rect {
	return spatial.Rect{X: b.X, Y: b.Y, W: b.W, H: b.H}
}

func dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(bx-ax, by-ay)
}

func centerDist(a, b Body) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return dist(ax, ay, bx, by)
}

// around returns the square region of half-size r centered on (cx, cy).
func around(cx, cy, r float64) spatial.Rect {
	return spatial.Rect{X: cx - r, Y: cy - r, W: 2 * r, H: 2 * r}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
