// Package minimap draws a top-down overview of a game snapshot.
package minimap

import (
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"

	"horde/internal/game"
)

const (
	MinSize     = 64
	MaxSize     = 2048
	DefaultSize = 512

	minMarker = 2.0 // px; agents never shrink below this
)

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	zoneFillColor   = color.RGBA{60, 140, 255, 28}
	zoneEdgeColor   = color.RGBA{90, 170, 255, 255}
	targetEdgeColor = color.RGBA{255, 255, 255, 120}
	playerEdgeColor = color.RGBA{255, 255, 255, 255}
	projectileColor = color.RGBA{250, 250, 210, 255}

	terrainColors = [...]color.RGBA{
		game.ObstacleForest: {24, 70, 36, 255},
		game.ObstacleWater:  {28, 56, 110, 255},
	}
	structureColors = [...]color.RGBA{
		game.StructureBarn:  {120, 84, 52, 255},
		game.StructureHouse: {150, 110, 70, 255},
		game.StructureTower: {170, 170, 180, 255},
	}
	pickupColors = [...]color.RGBA{
		game.TierLow:  {120, 220, 255, 255},
		game.TierMid:  {200, 120, 255, 255},
		game.TierHigh: {255, 210, 60, 255},
	}

	// Team colors cycle when there are more teams than entries.
	teamColors = [...]color.RGBA{
		{230, 57, 70, 255},
		{69, 123, 157, 255},
		{42, 157, 143, 255},
		{233, 196, 106, 255},
		{244, 162, 97, 255},
		{155, 93, 229, 255},
		{0, 187, 249, 255},
		{241, 91, 181, 255},
		{128, 237, 153, 255},
		{254, 228, 64, 255},
		{112, 108, 97, 255},
		{255, 255, 255, 255},
	}
)

// TeamColor returns the marker color of a team.
func TeamColor(team int) color.RGBA {
	if team < 1 {
		return teamColors[len(teamColors)-1]
	}
	return teamColors[(team-1)%len(teamColors)]
}

// Renderer draws snapshots onto a square canvas. Contexts are pooled, so a
// Renderer is safe for concurrent use.
type Renderer struct {
	size int
	pool sync.Pool
}

// NewRenderer creates a renderer for size×size images. size is clamped to
// [MinSize, MaxSize].
func NewRenderer(size int) *Renderer {
	size = ClampSize(size)
	r := &Renderer{size: size}
	r.pool.New = func() any { return gg.NewContext(size, size) }
	return r
}

// ClampSize bounds a requested image size. Zero selects DefaultSize.
func ClampSize(size int) int {
	if size == 0 {
		return DefaultSize
	}
	return max(MinSize, min(size, MaxSize))
}

// Size returns the image side in pixels.
func (r *Renderer) Size() int {
	return r.size
}

// EncodePNG renders snap and writes it to w as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *game.Snapshot) error {
	dc := r.pool.Get().(*gg.Context)
	defer r.pool.Put(dc)

	r.draw(dc, snap)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode minimap: %w", err)
	}
	return nil
}

// SavePNG renders snap into the file at path.
func (r *Renderer) SavePNG(path string, snap *game.Snapshot) error {
	dc := r.pool.Get().(*gg.Context)
	defer r.pool.Put(dc)

	r.draw(dc, snap)
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save minimap %s: %w", path, err)
	}
	return nil
}

func (r *Renderer) draw(dc *gg.Context, snap *game.Snapshot) {
	side := float64(r.size)
	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, side, side)
	dc.Fill()
	if snap == nil || snap.WorldW <= 0 || snap.WorldH <= 0 {
		return
	}
	sx, sy := side/snap.WorldW, side/snap.WorldH

	// Zone under everything else so agents stay readable
	z := snap.Zone
	dc.SetColor(zoneFillColor)
	dc.DrawEllipse(z.Current.X*sx, z.Current.Y*sy, z.Current.R*sx, z.Current.R*sy)
	dc.Fill()

	for d := range snap.Drawables() {
		drawShape(dc, d.MinimapShape(), sx, sy)
	}

	dc.SetColor(projectileColor)
	for _, p := range snap.Projectiles {
		dc.DrawCircle(p.X*sx, p.Y*sy, 1)
		dc.Fill()
	}

	dc.SetLineWidth(1.5)
	dc.SetColor(zoneEdgeColor)
	dc.DrawEllipse(z.Current.X*sx, z.Current.Y*sy, z.Current.R*sx, z.Current.R*sy)
	dc.Stroke()
	if z.Phase == game.PhaseShrinking || z.Phase == game.PhaseMoving {
		dc.SetDash(4, 4)
		dc.SetColor(targetEdgeColor)
		dc.DrawEllipse(z.Target.X*sx, z.Target.Y*sy, z.Target.R*sx, z.Target.R*sy)
		dc.Stroke()
		dc.SetDash()
	}
}

func drawShape(dc *gg.Context, s game.MinimapShape, sx, sy float64) {
	x, y, w, h := s.X*sx, s.Y*sy, s.W*sx, s.H*sy

	switch s.Layer {
	case game.LayerTerrain:
		dc.SetColor(pick(terrainColors[:], s.Variant))
	case game.LayerStructure:
		dc.SetColor(pick(structureColors[:], s.Variant))
	case game.LayerPickup:
		dc.SetColor(pick(pickupColors[:], s.Variant))
		dc.DrawCircle(x+w/2, y+h/2, max(w/2, minMarker/2))
		dc.Fill()
		return
	case game.LayerAgent:
		dc.SetColor(TeamColor(s.Team))
		if s.Leader {
			w, h = max(w, 3*minMarker), max(h, 3*minMarker)
		} else {
			w, h = max(w, minMarker), max(h, minMarker)
		}
	}
	dc.DrawRectangle(x, y, w, h)
	dc.Fill()

	if s.Player {
		dc.SetColor(playerEdgeColor)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x-1, y-1, w+2, h+2)
		dc.Stroke()
	}
}

func pick(colors []color.RGBA, variant uint8) color.RGBA {
	if int(variant) < len(colors) {
		return colors[variant]
	}
	return colors[0]
}
