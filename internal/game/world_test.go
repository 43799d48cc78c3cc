package game

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horde/internal/config"
	"horde/internal/game/spatial"
)

// testSim is a small world whose zone covers everything and where
// followers never leave drops, so scenarios stay isolated.
func testSim() config.SimConfig {
	cfg := config.DefaultSim()
	cfg.World.Width = 2000
	cfg.World.Height = 2000
	cfg.Combat.DropSkipChance = 1
	cfg.Projectile.Deviation = 0
	return cfg
}

func newTestWorld(t testing.TB, cfg config.SimConfig) *World {
	t.Helper()
	return NewWorld(cfg, rand.New(rand.NewSource(42)), zerolog.Nop())
}

func agentRef(id AgentID) spatial.Ref {
	return spatial.Ref{Kind: spatial.KindAgent, ID: uint32(id)}
}

func countFollowers(w *World, leader AgentID) int {
	n := 0
	for a := range w.Agents() {
		if a.LeaderID == leader && a.ID != leader {
			n++
		}
	}
	return n
}

// recordingSink collects combat events.
type recordingSink struct {
	events []CombatEvent
}

func (r *recordingSink) OnCombat(e CombatEvent) {
	r.events = append(r.events, e)
}

func (r *recordingSink) count(kind CombatKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// POPULATION
// -----------------------------------------------------------------------------

func TestAddFollowerRejectsUnknownLeader(t *testing.T) {
	w := newTestWorld(t, testSim())
	_, err := w.AddFollower(99, RoleMelee, 1, 100, 100)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestAddFollowerNormalizesRoleAndLevel(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(500, 500, FactionElf, false)

	tests := []struct {
		name      string
		role      Role
		level     int
		wantRole  Role
		wantLevel int
		wantSize  float64
	}{
		{"melee level 1", RoleMelee, 1, RoleMelee, 1, 40},
		{"melee level 3", RoleMelee, 3, RoleMelee, 3, 48},
		{"level clamped", RoleMelee, 9, RoleMelee, 3, 48},
		{"ranged forced to level 1", RoleRanged, 3, RoleRanged, 1, 40},
		{"leader role becomes melee", RoleLeader, 2, RoleMelee, 2, 44},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := w.AddFollower(l, tt.role, tt.level, 600, 600)
			require.NoError(t, err)
			a, ok := w.Agent(id)
			require.True(t, ok)
			assert.Equal(t, tt.wantRole, a.Role)
			assert.Equal(t, tt.wantLevel, a.Level)
			assert.InDelta(t, tt.wantSize, a.W, 1e-9)
			assert.Equal(t, l, a.LeaderID)
			assert.Equal(t, FactionElf, a.Faction)
			cx, cy := a.Center()
			assert.InDelta(t, 600, cx, 1e-9)
			assert.InDelta(t, 600, cy, 1e-9)
		})
	}
}

func TestOnlyOnePlayerLeader(t *testing.T) {
	w := newTestWorld(t, testSim())
	first := w.AddLeader(500, 500, FactionHuman, true)
	second := w.AddLeader(900, 900, FactionOrc, true)

	p, ok := w.Player()
	require.True(t, ok)
	assert.Equal(t, first, p)
	a, _ := w.Agent(second)
	assert.False(t, a.Player)
	assert.Equal(t, 2, w.LeadersAlive())
}

func TestParseFaction(t *testing.T) {
	for _, f := range Factions {
		got, err := ParseFaction(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFaction("dwarf")
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// COLLISION
// -----------------------------------------------------------------------------

func TestAgentCollisionSeparatesOpposingAgents(t *testing.T) {
	w := newTestWorld(t, testSim())
	size := w.cfg.Agent.BaseSize * w.cfg.Agent.LeaderScale
	shift := size * 0.2 // 80% overlap along x

	aID := w.AddLeader(1000, 1000, FactionHuman, false)
	bID := w.AddLeader(1000+shift, 1000, FactionOrc, false)

	w.resolveAgentCollisions()

	a, b := w.agentByID[aID], w.agentByID[bID]
	ax, ay := a.Center()
	bx, by := b.Center()

	overlap := (a.W/2 + b.W/2) - math.Abs(bx-ax)
	assert.InDelta(t, 0, overlap, 1e-9, "boxes should just touch")

	da := ax - 1000
	db := bx - (1000 + shift)
	assert.InDelta(t, 0, da+db, 1e-9, "pushes should be equal and opposite")
	assert.InDelta(t, -(size-shift)/2, da, 1e-9)
	assert.InDelta(t, 1000, ay, 1e-9)
	assert.InDelta(t, 1000, by, 1e-9)
}

func TestAgentCollisionIgnoresSameLeader(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	f, err := w.AddFollower(l, RoleMelee, 1, 1010, 1000)
	require.NoError(t, err)

	w.resolveAgentCollisions()

	a, _ := w.Agent(f)
	cx, _ := a.Center()
	assert.InDelta(t, 1010, cx, 1e-9)
}

func TestAgentCollisionCoincidentCenters(t *testing.T) {
	w := newTestWorld(t, testSim())
	aID := w.AddLeader(1000, 1000, FactionHuman, false)
	bID := w.AddLeader(1000, 1000, FactionOrc, false)

	w.resolveAgentCollisions()

	a, b := w.agentByID[aID], w.agentByID[bID]
	ax, ay := a.Center()
	bx, by := b.Center()
	for _, v := range []float64{ax, ay, bx, by} {
		assert.False(t, math.IsNaN(v))
	}
	assert.InDelta(t, a.W, dist(ax, ay, bx, by), 1e-9)
}

func TestStructureCollisionSkipsRanged(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(200, 200, FactionHuman, false)
	w.AddStructure(StructureBarn, 1000, 1000, 60) // center (1030, 1030)

	melee, err := w.AddFollower(l, RoleMelee, 1, 1050, 1030)
	require.NoError(t, err)
	ranged, err := w.AddFollower(l, RoleRanged, 1, 1050, 1030)
	require.NoError(t, err)

	w.resolveStructureCollisions()

	m, _ := w.Agent(melee)
	mx, my := m.Center()
	assert.InDelta(t, 1080, mx, 1e-9, "melee pushed fully out")
	assert.InDelta(t, 1030, my, 1e-9)

	r, _ := w.Agent(ranged)
	rx, _ := r.Center()
	assert.InDelta(t, 1050, rx, 1e-9, "ranged walks through buildings")
}

func TestObstacleCollisionUsesShorterSide(t *testing.T) {
	w := newTestWorld(t, testSim())
	id := w.AddLeader(1000, 1000, FactionHuman, false)
	a := w.agentByID[id]
	// 400x100 strip centered on (1000, 1060); agent center 60 above it.
	w.AddObstacle(ObstacleWater, 800, 1010, 400, 100)

	w.resolveObstacleCollisions()

	cx, cy := a.Center()
	assert.InDelta(t, 1000, cx, 1e-9)
	// overlap = 26 + 50 - 60 = 16, pushed straight up
	assert.InDelta(t, 984, cy, 1e-9)
}

func TestSeparationPushesCloseAgentsApart(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(200, 200, FactionHuman, false)
	aID, _ := w.AddFollower(l, RoleMelee, 1, 1000, 1000)
	bID, _ := w.AddFollower(l, RoleMelee, 1, 1010, 1000)

	w.applySeparation()

	a, _ := w.Agent(aID)
	b, _ := w.Agent(bID)
	ax, _ := a.Center()
	bx, _ := b.Center()
	assert.Less(t, ax, 1000.0)
	assert.Greater(t, bx, 1010.0)
}

// -----------------------------------------------------------------------------
// TARGET SELECTION
// -----------------------------------------------------------------------------

func TestLeashOverridesEverything(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(500, 500, FactionHuman, false)
	f, err := w.AddFollower(l, RoleMelee, 1, 1300, 500)
	require.NoError(t, err)
	w.AddLeader(1320, 500, FactionOrc, false)
	w.AddPickup(TierLow, 1290, 510)
	w.AddStructure(StructureTower, 1250, 550, 60)

	dec := w.SelectTarget(w.agentByID[f])

	assert.Equal(t, ActionFollow, dec.Action)
	assert.Equal(t, agentRef(l), dec.Target)
	assert.InDelta(t, 500, dec.X, 1e-9)
	assert.InDelta(t, 500, dec.Y, 1e-9)
}

func TestDefendLeaderBeatsNearerEnemy(t *testing.T) {
	w := newTestWorld(t, testSim())
	l1 := w.AddLeader(1000, 1000, FactionHuman, false)
	f, err := w.AddFollower(l1, RoleMelee, 1, 1200, 1000)
	require.NoError(t, err)

	l2 := w.AddLeader(200, 200, FactionOrc, false)
	threat, err := w.AddFollower(l2, RoleMelee, 1, 1000, 1250) // 250 from l1
	require.NoError(t, err)
	near, err := w.AddFollower(l2, RoleMelee, 1, 1350, 1000) // 150 from f, 350 from l1
	require.NoError(t, err)

	dec := w.SelectTarget(w.agentByID[f])
	assert.Equal(t, ActionAttack, dec.Action)
	assert.Equal(t, agentRef(threat), dec.Target)

	// Without the threat the nearer enemy is picked by detection.
	w.agentByID[threat].HP = 0
	w.removeDeadAgents()
	dec = w.SelectTarget(w.agentByID[f])
	assert.Equal(t, ActionAttack, dec.Action)
	assert.Equal(t, agentRef(near), dec.Target)
}

func TestSelectTargetPriorityLadder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(w *World, leader AgentID) spatial.Ref
		want  Action
	}{
		{
			name: "pickup when no enemies",
			setup: func(w *World, _ AgentID) spatial.Ref {
				id := w.AddPickup(TierLow, 1090, 990)
				w.AddStructure(StructureBarn, 1150, 1150, 60)
				return spatial.Ref{Kind: spatial.KindPickup, ID: id}
			},
			want: ActionCollect,
		},
		{
			name: "ineligible pickup falls through to structure",
			setup: func(w *World, _ AgentID) spatial.Ref {
				w.AddPickup(TierHigh, 1090, 990)
				id := w.AddStructure(StructureBarn, 1150, 1150, 60)
				return spatial.Ref{Kind: spatial.KindStructure, ID: id}
			},
			want: ActionAttack,
		},
		{
			name: "formation when nothing around",
			setup: func(w *World, leader AgentID) spatial.Ref {
				return agentRef(leader)
			},
			want: ActionFollow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t, testSim())
			l := w.AddLeader(800, 1000, FactionHuman, false)
			f, err := w.AddFollower(l, RoleMelee, 1, 1000, 1000)
			require.NoError(t, err)
			want := tt.setup(w, l)

			dec := w.SelectTarget(w.agentByID[f])
			assert.Equal(t, tt.want, dec.Action)
			assert.Equal(t, want, dec.Target)
		})
	}
}

func TestSelectTargetIgnoresEnemiesOutsideZone(t *testing.T) {
	cfg := testSim()
	cfg.Zone.StartRadius = 300 // centered on (1000, 1000)
	w := newTestWorld(t, cfg)
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	f, _ := w.AddFollower(l, RoleMelee, 1, 1200, 1000)
	w.AddLeader(1400, 1000, FactionOrc, false) // 200 from f, outside the zone

	dec := w.SelectTarget(w.agentByID[f])
	assert.Equal(t, ActionFollow, dec.Action)
}

func TestLeaderWithNothingAroundIdles(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	dec := w.SelectTarget(w.agentByID[l])
	assert.Equal(t, ActionNone, dec.Action)
}

// -----------------------------------------------------------------------------
// FORMATION
// -----------------------------------------------------------------------------

func TestFormationOffsetBounds(t *testing.T) {
	w := newTestWorld(t, testSim())
	fc := w.cfg.Formation
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	var ids []AgentID
	for range 5 {
		id, err := w.AddFollower(l, RoleMelee, 1, 1100, 1000)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	leader := w.agentByID[l]
	outer := fc.MinRadius + 5*fc.RadiusPerUnit

	for _, id := range ids {
		a := w.agentByID[id]
		dx, dy := w.formationOffset(a, leader)
		r := math.Hypot(dx, dy)
		assert.GreaterOrEqual(t, r, fc.MinRadius-1e-9)
		assert.LessOrEqual(t, r, outer+1e-9)
		assert.LessOrEqual(t, math.Abs(math.Atan2(dy, dx)), math.Pi/4+1e-9, "within ±45° of the bearing")

		again, againY := w.formationOffset(a, leader)
		assert.Equal(t, dx, again, "offset is cached")
		assert.Equal(t, dy, againY)
	}
}

func TestFormationSettlesWhenLeaderStill(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	f, _ := w.AddFollower(l, RoleMelee, 1, 1100, 1000)
	a := w.agentByID[f]
	w.formationOffset(a, w.agentByID[l])
	require.True(t, a.hasOffset)

	steps := int(w.cfg.Formation.SettleMs / 16)
	for range steps - 1 {
		w.settleFormations(16)
	}
	assert.True(t, a.hasOffset, "not settled yet")
	w.settleFormations(16)
	assert.False(t, a.hasOffset, "offset dropped after the settle interval")
}

func TestFormationTimerResetsWhenLeaderMoves(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(1000, 1000, FactionHuman, false)
	f, _ := w.AddFollower(l, RoleMelee, 1, 1100, 1000)
	a := w.agentByID[f]
	leader := w.agentByID[l]
	w.formationOffset(a, leader)

	steps := int(w.cfg.Formation.SettleMs / 16)
	for i := range steps * 2 {
		if i == steps/2 {
			leader.X += 50
		}
		w.settleFormations(16)
		if i < steps+steps/2-1 {
			require.True(t, a.hasOffset, "step %d", i)
		}
	}
}

// -----------------------------------------------------------------------------
// MELEE
// -----------------------------------------------------------------------------

func TestMeleeWindupDamagesOnce(t *testing.T) {
	w := newTestWorld(t, testSim())
	sink := &recordingSink{}
	w.SetCombatSink(sink)

	l1 := w.AddLeader(1000, 1500, FactionHuman, false)
	l2 := w.AddLeader(1045, 500, FactionOrc, false)
	f1, _ := w.AddFollower(l1, RoleMelee, 1, 1000, 1000)
	f2, _ := w.AddFollower(l2, RoleMelee, 1, 1045, 1000)

	// Windup starts on frame 1 at 500ms; impact once remaining < 250ms.
	for frame := 1; frame <= 15; frame++ {
		w.Step(16, Input{})
	}
	a, _ := w.Agent(f1)
	assert.Equal(t, StateMeleeWindup, a.State)
	b, _ := w.Agent(f2)
	assert.InDelta(t, 100, b.HP, 1e-9)

	w.Step(16, Input{})
	b, _ = w.Agent(f2)
	assert.InDelta(t, 80, b.HP, 1e-9)
	a, _ = w.Agent(f1)
	assert.InDelta(t, 80, a.HP, 1e-9)
	assert.True(t, a.Slash.Active)
	assert.Equal(t, 2, sink.count(CombatMelee))

	for range 15 {
		w.Step(16, Input{})
	}
	b, _ = w.Agent(f2)
	assert.InDelta(t, 80, b.HP, 1e-9, "one hit per windup")
	assert.Equal(t, 2, sink.count(CombatMelee))
}

// -----------------------------------------------------------------------------
// PICKUPS
// -----------------------------------------------------------------------------

func TestPromotionLadder(t *testing.T) {
	half := PickupSize / 2.0

	t.Run("mid then high promotes to level 3", func(t *testing.T) {
		w := newTestWorld(t, testSim())
		l := w.AddLeader(300, 300, FactionHuman, false)
		f, _ := w.AddFollower(l, RoleMelee, 1, 1000, 1000)

		w.AddPickup(TierMid, 1000-half, 1000-half)
		w.collectPickups()
		a, _ := w.Agent(f)
		assert.Equal(t, 2, a.Level)
		assert.InDelta(t, 44, a.W, 1e-9)

		w.AddPickup(TierHigh, 1000-half, 1000-half)
		w.collectPickups()
		a, _ = w.Agent(f)
		assert.Equal(t, 3, a.Level)
		assert.InDelta(t, 48, a.W, 1e-9)
		cx, cy := a.Center()
		assert.InDelta(t, 1000, cx, 1e-9, "growth keeps the center")
		assert.InDelta(t, 1000, cy, 1e-9)

		_, _, _, pickups := w.Counts()
		assert.Equal(t, 0, pickups)
	})

	t.Run("level 3 ignores high tier", func(t *testing.T) {
		w := newTestWorld(t, testSim())
		l := w.AddLeader(300, 300, FactionHuman, false)
		f, _ := w.AddFollower(l, RoleMelee, 3, 1000, 1000)
		id := w.AddPickup(TierHigh, 1000-half, 1000-half)

		w.collectPickups()

		a, _ := w.Agent(f)
		assert.Equal(t, 3, a.Level)
		assert.True(t, w.grid.Contains(spatial.Ref{Kind: spatial.KindPickup, ID: id}))
	})

	t.Run("mid tier skips level 2", func(t *testing.T) {
		w := newTestWorld(t, testSim())
		l := w.AddLeader(300, 300, FactionHuman, false)
		f, _ := w.AddFollower(l, RoleMelee, 2, 1000, 1000)
		w.AddPickup(TierMid, 1000-half, 1000-half)

		w.collectPickups()

		a, _ := w.Agent(f)
		assert.Equal(t, 2, a.Level)
	})

	t.Run("low tier spawns a follower for the consumer's leader", func(t *testing.T) {
		w := newTestWorld(t, testSim())
		l := w.AddLeader(300, 300, FactionHuman, false)
		f, _ := w.AddFollower(l, RoleMelee, 3, 1000, 1000)
		id := w.AddPickup(TierLow, 1000-half, 1000-half)
		before := countFollowers(w, l)

		w.collectPickups()

		assert.Equal(t, before+1, countFollowers(w, l))
		assert.False(t, w.grid.Contains(spatial.Ref{Kind: spatial.KindPickup, ID: id}))
		a, _ := w.Agent(f)
		assert.Equal(t, 3, a.Level, "consumer unchanged")
		for o := range w.Agents() {
			if o.LeaderID == l && o.ID != l && o.ID != f {
				assert.Equal(t, 1, o.Level)
			}
		}
	})
}

func TestPickupOutsideRadiusStays(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(300, 300, FactionHuman, false)
	w.AddFollower(l, RoleMelee, 1, 1000, 1000)
	w.AddPickup(TierLow, 1050, 990) // center 60 away

	w.collectPickups()

	_, _, _, pickups := w.Counts()
	assert.Equal(t, 1, pickups)
}

// -----------------------------------------------------------------------------
// DEATH AND CLEANUP
// -----------------------------------------------------------------------------

func TestDeadAgentLeavesIndex(t *testing.T) {
	w := newTestWorld(t, testSim())
	killer := w.AddLeader(500, 500, FactionHuman, false)
	victim := w.AddLeader(1500, 1500, FactionOrc, false)
	ref := agentRef(victim)
	require.True(t, w.grid.Contains(ref))

	require.True(t, w.applyDamage(ref, 1e6, w.agentByID[killer].Team))
	assert.Equal(t, 0.0, w.agentByID[victim].HP, "hp clamps at zero")
	w.removeDeadAgents()

	assert.False(t, w.grid.Contains(ref))
	refs := w.grid.QueryRegion(nil, spatial.Rect{W: 2000, H: 2000})
	assert.NotContains(t, refs, ref)
	_, ok := w.Agent(victim)
	assert.False(t, ok)

	var drops []Pickup
	for p := range w.Pickups() {
		drops = append(drops, p)
	}
	require.Len(t, drops, 1, "leaders always drop")
	assert.Equal(t, TierHigh, drops[0].Tier)

	standings := w.Standings()
	require.Len(t, standings, 2)
	assert.Equal(t, 1, standings[0].Kills)
	assert.Equal(t, 1, standings[0].LeaderKills)
	assert.InDelta(t, 600, standings[0].Score, 1e-9)
	assert.Equal(t, 1, standings[1].Losses)
}

func TestDamageToVanishedTargetIsSkipped(t *testing.T) {
	w := newTestWorld(t, testSim())
	assert.False(t, w.applyDamage(agentRef(77), 10, 1))
	assert.False(t, w.applyDamage(spatial.Ref{Kind: spatial.KindStructure, ID: 77}, 10, 1))
}

func TestOrphanedFollowersAreRetired(t *testing.T) {
	w := newTestWorld(t, testSim())
	l := w.AddLeader(500, 500, FactionHuman, false)
	f, _ := w.AddFollower(l, RoleMelee, 1, 560, 500)
	w.AddLeader(1800, 1800, FactionOrc, false)

	w.agentByID[l].HP = 0
	w.removeDeadAgents()

	_, ok := w.Agent(f)
	assert.False(t, ok, "followers leave with their leader")
	assert.False(t, w.grid.Contains(agentRef(f)))
	assert.Equal(t, 1, w.LeadersAlive())
}

func TestLeaderDyingToZoneTakesFollowersSameFrame(t *testing.T) {
	w := newTestWorld(t, testSim())
	w.zone.Current = Circle{X: 1000, Y: 1000, R: 300}
	half := PickupSize / 2.0

	l := w.AddLeader(1500, 1000, FactionHuman, false)
	w.agentByID[l].HP = 0.1
	f, _ := w.AddFollower(l, RoleMelee, 1, 1000, 1000)
	w.AddPickup(TierLow, 1000-half, 1000-half)
	w.AddLeader(1000, 1200, FactionOrc, false)

	w.Step(16, Input{})

	_, ok := w.Agent(l)
	require.False(t, ok, "boundary damage kills the leader")
	_, ok = w.Agent(f)
	assert.False(t, ok)
	for a := range w.Agents() {
		assert.NotEqual(t, l, a.LeaderID, "agent %d outlived its leader", a.ID)
	}

	tiers := map[Tier]int{}
	for p := range w.Pickups() {
		tiers[p.Tier]++
	}
	assert.Equal(t, 1, tiers[TierLow], "low pickup is not spent on a dying leader")
	assert.Equal(t, 1, tiers[TierHigh], "leader drop")
}

func TestPickupIgnoresConsumerWithDeadLeader(t *testing.T) {
	w := newTestWorld(t, testSim())
	half := PickupSize / 2.0
	l := w.AddLeader(300, 300, FactionHuman, false)
	w.AddFollower(l, RoleMelee, 1, 1000, 1000)
	w.AddPickup(TierLow, 1000-half, 1000-half)
	w.agentByID[l].HP = 0

	w.collectPickups()

	_, _, _, pickups := w.Counts()
	assert.Equal(t, 1, pickups)
	assert.Equal(t, 1, countFollowers(w, l))
}

func TestStructureDestroyedDropsTier(t *testing.T) {
	tests := []struct {
		kind StructureKind
		want Tier
	}{
		{StructureBarn, TierLow},
		{StructureHouse, TierMid},
		{StructureTower, TierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			w := newTestWorld(t, testSim())
			sink := &recordingSink{}
			w.SetCombatSink(sink)
			id := w.AddStructure(tt.kind, 1000, 1000, 60)
			ref := spatial.Ref{Kind: spatial.KindStructure, ID: id}

			require.True(t, w.applyDamage(ref, 500, 1))
			w.removeDestroyedStructures()

			assert.False(t, w.grid.Contains(ref))
			var got []Pickup
			for p := range w.Pickups() {
				got = append(got, p)
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Tier)
			assert.Equal(t, 1, sink.count(CombatStructureDestroyed))
		})
	}
}

// -----------------------------------------------------------------------------
// CONTROLLERS
// -----------------------------------------------------------------------------

func TestAILeaderDodge(t *testing.T) {
	shot := func(team int, x, y float64, grounded bool) *Projectile {
		return &Projectile{Team: team, X: x, Y: y, Z: 10, Grounded: grounded}
	}
	tests := []struct {
		name      string
		x         float64 // leader center; y is always 1000
		zoneR     float64 // zero keeps the default zone
		shots     func(enemy int) []*Projectile
		wantDodge bool
		wantDX    float64 // sign of the x step when dodging
	}{
		{
			name:      "enemy arrow on the right pushes left",
			x:         1000,
			shots:     func(e int) []*Projectile { return []*Projectile{shot(e, 1050, 1000, false)} },
			wantDodge: true,
			wantDX:    -1,
		},
		{
			name:      "enemy arrow on the left pushes right",
			x:         1000,
			shots:     func(e int) []*Projectile { return []*Projectile{shot(e, 950, 1000, false)} },
			wantDodge: true,
			wantDX:    1,
		},
		{
			name:  "own team arrow is ignored",
			x:     1000,
			shots: func(int) []*Projectile { return []*Projectile{shot(1, 1050, 1000, false)} },
		},
		{
			name:  "grounded arrow is ignored",
			x:     1000,
			shots: func(e int) []*Projectile { return []*Projectile{shot(e, 1050, 1000, true)} },
		},
		{
			name:  "distant arrow is below the threshold",
			x:     1000,
			shots: func(e int) []*Projectile { return []*Projectile{shot(e, 1140, 1000, false)} },
		},
		{
			name:      "zone edge pulls inward",
			x:         1250,
			zoneR:     300,
			wantDodge: true,
			wantDX:    -1,
		},
		{
			name:  "weak edge pull wanders instead",
			x:     1205,
			zoneR: 300,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t, testSim())
			if tt.zoneR > 0 {
				w.zone.Current = Circle{X: 1000, Y: 1000, R: tt.zoneR}
			}
			id := w.AddLeader(tt.x, 1000, FactionHuman, false)
			enemy := w.agentByID[w.AddLeader(1900, 100, FactionOrc, false)]
			if tt.shots != nil {
				w.projectiles = tt.shots(enemy.Team)
			}
			a := w.agentByID[id]

			w.updateAILeader(a, 16)

			cx, cy := a.Center()
			moved := cx - tt.x
			if !tt.wantDodge {
				assert.True(t, a.hasIdle, "falls back to wandering")
				return
			}
			assert.False(t, a.hasIdle)
			assert.InDelta(t, tt.wantDX*a.Speed, moved, 1e-9)
			assert.InDelta(t, 1000, cy, 1e-9)
		})
	}
}

func TestPlayerShieldLifecycle(t *testing.T) {
	w := newTestWorld(t, testSim())
	a := w.agentByID[w.AddLeader(1000, 1000, FactionElf, true)]
	ab := w.cfg.Ability
	frame := func(shield bool) { w.updatePlayerLeader(a, 100, Input{Shield: shield}) }

	frame(true)
	require.True(t, a.ShieldActive)
	assert.Equal(t, StateAbilityActive, a.State)
	assert.InDelta(t, ab.ShieldDurationMs, a.shieldLeft, 1e-9)
	assert.False(t, a.Shield.Ready())

	for range int(ab.ShieldDurationMs/100) - 1 {
		frame(false)
	}
	assert.True(t, a.ShieldActive, "still inside the duration")
	frame(false)
	assert.False(t, a.ShieldActive, "expired")
	assert.Equal(t, StateFollowing, a.State)

	frame(true)
	assert.False(t, a.ShieldActive, "cooldown blocks reactivation")

	// Elapsed is now duration+100; run up to the cooldown exactly
	for range int((ab.ShieldCooldownMs-ab.ShieldDurationMs)/100) - 1 {
		frame(false)
	}
	assert.True(t, a.Shield.Ready())
	assert.Positive(t, a.Shield.Flash, "ready flash starts when the cooldown completes")

	frame(true)
	assert.True(t, a.ShieldActive)
}

func TestShieldReducesBoundaryDamage(t *testing.T) {
	w := newTestWorld(t, testSim())
	open := w.zone.BoundaryDamage(16, false)
	shielded := w.zone.BoundaryDamage(16, true)
	assert.InDelta(t, open/w.cfg.Zone.ShieldDivisor, shielded, 1e-12)
}

func TestRangedFollower(t *testing.T) {
	half := PickupSize / 2.0
	tests := []struct {
		name      string
		leaderX   float64
		ready     bool
		enemy     bool
		pickup    bool
		wantShots int
		wantState AgentState
		wantX     float64 // sign of the x step; zero when it holds position
	}{
		{name: "fires when the cooldown allows", leaderX: 800, ready: true, enemy: true, wantShots: 1, wantState: StateRangedCooldown},
		{name: "holds fire during cooldown", leaderX: 800, enemy: true, wantState: StateRangedCooldown},
		{name: "walks back to a distant leader", leaderX: 200, wantState: StateFollowing, wantX: -1},
		{name: "collects a pickup without targets", leaderX: 800, pickup: true, wantState: StatePursuing, wantX: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t, testSim())
			sink := &recordingSink{}
			w.SetCombatSink(sink)

			l := w.AddLeader(tt.leaderX, 1000, FactionElf, false)
			id, err := w.AddFollower(l, RoleRanged, 1, 1000, 1000)
			require.NoError(t, err)
			if tt.enemy {
				w.AddLeader(1200, 1000, FactionOrc, false)
			} else {
				w.AddLeader(1900, 100, FactionOrc, false)
			}
			if tt.pickup {
				w.AddPickup(TierLow, 1150-half, 1000-half)
			}
			a := w.agentByID[id]
			if tt.ready {
				a.rangedElapsed = w.cfg.Combat.RangedCooldownMs
			}

			w.updateRanged(a, 16)

			assert.Len(t, w.projectiles, tt.wantShots)
			assert.Equal(t, tt.wantShots, sink.count(CombatArrowFired))
			assert.Equal(t, tt.wantState, a.State)
			cx, _ := a.Center()
			switch {
			case tt.wantX < 0:
				assert.Less(t, cx, 1000.0)
			case tt.wantX > 0:
				assert.Greater(t, cx, 1000.0)
			default:
				assert.InDelta(t, 1000, cx, 1e-9)
			}
			if tt.wantShots > 0 {
				assert.Zero(t, a.rangedElapsed, "cooldown restarts after a shot")
				assert.Equal(t, a.Team, w.projectiles[0].Team)
				w.updateRanged(a, 16)
				assert.Len(t, w.projectiles, 1, "no second shot inside the cooldown")
			}
		})
	}
}

// -----------------------------------------------------------------------------
// WHOLE-FRAME INVARIANTS
// -----------------------------------------------------------------------------

func TestStepInvariantsUnderPressure(t *testing.T) {
	cfg := config.DefaultSim()
	cfg.World.Width, cfg.World.Height = 3000, 3000
	cfg.World.LeaderCount = 4
	cfg.World.Followers = 6
	cfg.World.Obstacles = 4
	cfg.World.Clusters = 4
	cfg.Zone.StartRadius = 1200
	cfg.Zone.DelayMs = 500
	cfg.Zone.ShrinkRate = 0.5
	cfg.Zone.MoveRate = 0.5
	cfg.Zone.LongPauseMs = 1000
	cfg.Zone.ShortPauseMs = 500
	cfg.Zone.DamagePerMs = 0.02

	w := newTestWorld(t, cfg)
	PopulateWorld(w, FactionHuman)

	for frame := 0; frame < 1500; frame++ {
		w.Step(16, Input{MoveX: 1, Dash: frame%200 == 0, Shield: frame%300 == 0})

		for a := range w.Agents() {
			if a.HP <= 0 {
				t.Fatalf("frame %d: agent %d persisted with hp %.2f", frame, a.ID, a.HP)
			}
			if !w.grid.Contains(agentRef(a.ID)) {
				t.Fatalf("frame %d: agent %d missing from index", frame, a.ID)
			}
			if _, ok := w.Agent(a.LeaderID); !ok {
				t.Fatalf("frame %d: agent %d outlived leader %d", frame, a.ID, a.LeaderID)
			}
		}
		agents, _, structures, pickups := w.Counts()
		if got, want := w.grid.Len(), agents+structures+len(w.obstacles)+pickups; got != want {
			t.Fatalf("frame %d: index holds %d entities, tables hold %d", frame, got, want)
		}
	}
	assert.Less(t, w.zone.Current.R, cfg.Zone.StartRadius)
}
