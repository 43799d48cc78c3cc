// Package spatial provides the uniform grid used for broad-phase proximity
// queries in the arena simulation.
//
// Entities are addressed by a small value Ref (kind + id) rather than by
// pointer, so the grid never keeps simulation objects alive and a stale
// reference is detectable by the caller's table lookup.
package spatial

import (
	"math"
)

// Kind distinguishes entity tables that share one grid.
type Kind uint8

const (
	KindAgent Kind = iota
	KindStructure
	KindObstacle
	KindPickup
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindStructure:
		return "structure"
	case KindObstacle:
		return "obstacle"
	case KindPickup:
		return "pickup"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Ref identifies one entity in the grid.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   uint32 `json:"id"`
}

// Rect is an axis-aligned box with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// cellRange is an inclusive block of cells.
type cellRange struct {
	c0, r0, c1, r1 int
}

// Grid is a uniform grid over the world bounds.
//
// Every member caches the block of cells its bounding box overlaps. That
// block is kept equal to the box's true footprint: Update must be called
// after any move, and Remove clears every cell the entity was in.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type Grid struct {
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]Ref
	members     map[Ref]cellRange
	seen        map[Ref]struct{} // query dedupe, cleared per call
}

// NewGrid creates a grid covering worldWidth × worldHeight. Dimensions are
// ceil(world/cellSize) in each axis, at least 1×1.
func NewGrid(worldWidth, worldHeight, cellSize float64) *Grid {
	cols := int(math.Ceil(worldWidth / cellSize))
	rows := int(math.Ceil(worldHeight / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       make([][]Ref, cols*rows),
		members:     make(map[Ref]cellRange),
		seen:        make(map[Ref]struct{}),
	}
}

// Insert registers ref in every cell its bounds overlap. Inserting a ref
// that is already present behaves like Update.
func (g *Grid) Insert(ref Ref, bounds Rect) {
	if _, ok := g.members[ref]; ok {
		g.Update(ref, bounds)
		return
	}
	cr := g.rangeOf(bounds)
	g.members[ref] = cr
	g.addTo(ref, cr)
}

// Remove clears every cell membership of ref. Unknown refs are ignored.
func (g *Grid) Remove(ref Ref) {
	cr, ok := g.members[ref]
	if !ok {
		return
	}
	g.removeFrom(ref, cr)
	delete(g.members, ref)
}

// Update re-registers ref for new bounds and reports whether its cell
// membership changed. Moves that stay inside the same block of cells touch
// nothing but the cached range lookup.
func (g *Grid) Update(ref Ref, bounds Rect) bool {
	old, ok := g.members[ref]
	cr := g.rangeOf(bounds)
	if ok && old == cr {
		return false
	}
	if ok {
		g.removeFrom(ref, old)
	}
	g.members[ref] = cr
	g.addTo(ref, cr)
	return true
}

// Contains reports whether ref is currently registered.
func (g *Grid) Contains(ref Ref) bool {
	_, ok := g.members[ref]
	return ok
}

// Len returns the number of registered entities.
func (g *Grid) Len() int {
	return len(g.members)
}

// Cells returns the inclusive cell block ref occupies.
func (g *Grid) Cells(ref Ref) (c0, r0, c1, r1 int, ok bool) {
	cr, ok := g.members[ref]
	return cr.c0, cr.r0, cr.c1, cr.r1, ok
}

// QueryRegion appends to dst every entity registered in a cell that the
// region overlaps, each at most once, and returns the extended slice.
//
// The result is a conservative superset; callers must run their own exact
// overlap or distance test (narrow phase).
func (g *Grid) QueryRegion(dst []Ref, region Rect) []Ref {
	return g.collect(dst, g.rangeOf(region), Ref{}, false)
}

// QueryNeighbors appends every entity sharing a cell with ref's cached block
// expanded by one cell in each direction, excluding ref itself. Unknown refs
// yield nothing.
func (g *Grid) QueryNeighbors(dst []Ref, ref Ref) []Ref {
	cr, ok := g.members[ref]
	if !ok {
		return dst
	}
	cr = g.clampRange(cellRange{cr.c0 - 1, cr.r0 - 1, cr.c1 + 1, cr.r1 + 1})
	return g.collect(dst, cr, ref, true)
}

func (g *Grid) collect(dst []Ref, cr cellRange, self Ref, skipSelf bool) []Ref {
	clear(g.seen)
	for row := cr.r0; row <= cr.r1; row++ {
		for col := cr.c0; col <= cr.c1; col++ {
			for _, r := range g.cells[row*g.cols+col] {
				if skipSelf && r == self {
					continue
				}
				if _, dup := g.seen[r]; dup {
					continue
				}
				g.seen[r] = struct{}{}
				dst = append(dst, r)
			}
		}
	}
	return dst
}

func (g *Grid) addTo(ref Ref, cr cellRange) {
	for row := cr.r0; row <= cr.r1; row++ {
		for col := cr.c0; col <= cr.c1; col++ {
			idx := row*g.cols + col
			g.cells[idx] = append(g.cells[idx], ref)
		}
	}
}

// removeFrom swap-deletes ref from each cell in the block.
func (g *Grid) removeFrom(ref Ref, cr cellRange) {
	for row := cr.r0; row <= cr.r1; row++ {
		for col := cr.c0; col <= cr.c1; col++ {
			idx := row*g.cols + col
			cell := g.cells[idx]
			for i := range cell {
				if cell[i] == ref {
					last := len(cell) - 1
					cell[i] = cell[last]
					g.cells[idx] = cell[:last]
					break
				}
			}
		}
	}
}

// rangeOf maps a box to the clamped block of cells it overlaps. Boxes
// outside the world collapse onto the border cells.
func (g *Grid) rangeOf(b Rect) cellRange {
	return g.clampRange(cellRange{
		c0: int(math.Floor(b.X * g.invCellSize)),
		r0: int(math.Floor(b.Y * g.invCellSize)),
		c1: int(math.Floor((b.X + b.W) * g.invCellSize)),
		r1: int(math.Floor((b.Y + b.H) * g.invCellSize)),
	})
}

func (g *Grid) clampRange(cr cellRange) cellRange {
	cr.c0 = clampInt(cr.c0, 0, g.cols-1)
	cr.c1 = clampInt(cr.c1, 0, g.cols-1)
	cr.r0 = clampInt(cr.r0, 0, g.rows-1)
	cr.r1 = clampInt(cr.r1, 0, g.rows-1)
	return cr
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

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var refs, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		refs += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(refs) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		Entities:       len(g.members),
		CellRefs:       refs,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	Entities       int     `json:"entities"` // Distinct registered entities
	CellRefs       int     `json:"cellRefs"` // Sum of per-cell entries; exceeds Entities when boxes span cells
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
