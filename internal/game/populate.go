package game

import (
	"math"
)

const (
	clusterMargin    = 400 // Keeps cluster centers away from the world edge
	clusterRadius    = 150
	clusterClearance = 50 // Half-side of the obstacle-free square a cluster needs
	structureSpacing = 20
	placeAttempts    = 10
	structureSize    = 60
)

// Population summarizes what PopulateWorld created.
type Population struct {
	Player     AgentID
	Leaders    int
	Followers  int
	Obstacles  int
	Structures int
}

// PopulateWorld lays out a fresh match: obstacles first, then building
// clusters on clear ground, then leaders evenly spaced around a rectangle
// inset from the world edge, each with its starting followers. The first
// leader is the player's and uses playerFaction.
func PopulateWorld(w *World, playerFaction Faction) Population {
	wc := w.cfg.World
	var pop Population

	for range wc.Obstacles {
		kind := ObstacleForest
		if w.rng.Float64() >= 0.7 {
			kind = ObstacleWater
		}
		width := 200 + w.rng.Float64()*600
		height := 200 + w.rng.Float64()*600
		x := w.rng.Float64() * (wc.Width - width)
		y := w.rng.Float64() * (wc.Height - height)
		w.AddObstacle(kind, x, y, width, height)
		pop.Obstacles++
	}

	for range wc.Clusters {
		pop.Structures += w.placeCluster()
	}

	for i, pos := range perimeterPositions(wc.Width, wc.Height, wc.SpawnMargin, wc.LeaderCount) {
		faction := playerFaction
		if i > 0 {
			faction = Factions[w.rng.Intn(len(Factions))]
		}
		id := w.AddLeader(pos[0], pos[1], faction, i == 0)
		if i == 0 {
			pop.Player = id
		}
		pop.Leaders++
		leader := w.agentByID[id]
		for range wc.Followers {
			if _, err := w.spawnFollowerNear(leader); err == nil {
				pop.Followers++
			}
		}
	}

	w.log.Info().
		Int("leaders", pop.Leaders).
		Int("followers", pop.Followers).
		Int("obstacles", pop.Obstacles).
		Int("structures", pop.Structures).
		Msg("🌍 world populated")
	return pop
}

// placeCluster scatters 10-20 structures around a random center, skipping
// spots that touch an obstacle or crowd another structure of the cluster.
func (w *World) placeCluster() int {
	wc := w.cfg.World
	cx := w.rng.Float64()*(wc.Width-2*clusterMargin) + clusterMargin
	cy := w.rng.Float64()*(wc.Height-2*clusterMargin) + clusterMargin
	if !w.areaClear(Body{X: cx - clusterClearance, Y: cy - clusterClearance, W: 2 * clusterClearance, H: 2 * clusterClearance}) {
		return 0
	}

	want := 10 + w.rng.Intn(11)
	placed := make([]Body, 0, want)
	for range want {
		var spot Body
		ok := false
		for attempt := 0; attempt < placeAttempts && !ok; attempt++ {
			angle := w.rng.Float64() * 2 * math.Pi
			r := w.rng.Float64() * clusterRadius
			spot = Body{X: cx + math.Cos(angle)*r, Y: cy + math.Sin(angle)*r, W: structureSize, H: structureSize}
			ok = w.areaClear(spot)
			for _, b := range placed {
				if !ok {
					break
				}
				padded := Body{X: b.X - structureSpacing, Y: b.Y - structureSpacing, W: b.W + 2*structureSpacing, H: b.H + 2*structureSpacing}
				ok = !spot.Intersects(padded)
			}
		}
		if !ok {
			continue
		}
		kind := StructureBarn
		switch r := w.rng.Float64(); {
		case r >= 0.8:
			kind = StructureTower
		case r >= 0.5:
			kind = StructureHouse
		}
		w.AddStructure(kind, spot.X, spot.Y, structureSize)
		placed = append(placed, spot)
	}
	return len(placed)
}

// areaClear reports whether b touches no obstacle. Touching edges count.
func (w *World) areaClear(b Body) bool {
	for _, o := range w.obstacles {
		if b.X <= o.X+o.W && b.X+b.W >= o.X && b.Y <= o.Y+o.H && b.Y+b.H >= o.Y {
			return false
		}
	}
	return true
}

// perimeterPositions spaces n points evenly along the rectangle inset by
// margin, clockwise from its top-left corner.
func perimeterPositions(width, height, margin float64, n int) [][2]float64 {
	if n <= 0 {
		return nil
	}
	l1 := width - 2*margin
	l2 := height - 2*margin
	spacing := 2 * (l1 + l2) / float64(n)

	out := make([][2]float64, n)
	for i := range out {
		d := float64(i) * spacing
		switch {
		case d < l1:
			out[i] = [2]float64{margin + d, margin}
		case d < l1+l2:
			out[i] = [2]float64{width - margin, margin + d - l1}
		case d < 2*l1+l2:
			out[i] = [2]float64{width - margin - (d - l1 - l2), height - margin}
		default:
			out[i] = [2]float64{margin, height - margin - (d - 2*l1 - l2)}
		}
	}
	return out
}
