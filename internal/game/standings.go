package game

import (
	"cmp"
	"slices"
)

// TeamStanding is one team's running tally.
type TeamStanding struct {
	Team        int     `json:"team"`
	Faction     Faction `json:"faction"`
	Kills       int     `json:"kills"`
	LeaderKills int     `json:"leaderKills"`
	Losses      int     `json:"losses"`
	Score       float64 `json:"score"`
}

// Standings tracks kills and losses per team.
//
// Score = kills*100 + leaderKills*500 - losses*10
type Standings struct {
	byTeam map[int]*TeamStanding
}

// NewStandings creates an empty tally.
func NewStandings() *Standings {
	return &Standings{byTeam: make(map[int]*TeamStanding)}
}

// Register adds a team with zero score. Re-registering is a no-op.
func (s *Standings) Register(team int, faction Faction) {
	if _, ok := s.byTeam[team]; ok {
		return
	}
	s.byTeam[team] = &TeamStanding{Team: team, Faction: faction}
}

// Kill credits team with a kill. Unknown teams are ignored.
func (s *Standings) Kill(team int, leader bool) {
	t, ok := s.byTeam[team]
	if !ok {
		return
	}
	t.Kills++
	if leader {
		t.LeaderKills++
	}
	t.rescore()
}

// Loss records a death on team.
func (s *Standings) Loss(team int) {
	t, ok := s.byTeam[team]
	if !ok {
		return
	}
	t.Losses++
	t.rescore()
}

func (t *TeamStanding) rescore() {
	t.Score = float64(t.Kills)*100 + float64(t.LeaderKills)*500 - float64(t.Losses)*10
}

// Sorted returns copies ordered by score descending, then team ascending.
func (s *Standings) Sorted() []TeamStanding {
	out := make([]TeamStanding, 0, len(s.byTeam))
	for _, t := range s.byTeam {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b TeamStanding) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Team, b.Team)
	})
	return out
}
