package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horde/internal/game"
)

// fakeEngine implements EngineInterface for testing
type fakeEngine struct {
	mu     sync.Mutex
	snap   *game.Snapshot
	zone   game.SafeZone
	stats  game.EngineStats
	inputs []game.Input
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		snap: &game.Snapshot{
			MatchID: "match-1",
			Frame:   42,
			WorldW:  1000,
			WorldH:  1000,
			Zone: game.SafeZone{
				Current: game.Circle{X: 500, Y: 500, R: 400},
				Target:  game.Circle{X: 500, Y: 500, R: 400},
			},
			Agents: []game.AgentSnapshot{
				{ID: 1, X: 480, Y: 480, W: 40, H: 40, Team: 1, HP: 100, MaxHP: 100, Player: true},
				{ID: 2, X: 300, Y: 300, W: 20, H: 20, Team: 1, Leader: 1, HP: 30, MaxHP: 30},
			},
			Standings: []game.TeamStanding{
				{Team: 1, Kills: 3, Score: 90},
				{Team: 2, Kills: 1, Score: 30},
			},
			AgentCount:   2,
			LeadersAlive: 1,
		},
		zone:  game.SafeZone{Current: game.Circle{X: 500, Y: 500, R: 400}},
		stats: game.EngineStats{MatchID: "match-1", Frame: 42, Agents: 2},
	}
}

func (f *fakeEngine) Snapshot() *game.Snapshot { return f.snap }
func (f *fakeEngine) Zone() game.SafeZone      { return f.zone }
func (f *fakeEngine) Stats() game.EngineStats  { return f.stats }

func (f *fakeEngine) Agent(id game.AgentID) (game.AgentSnapshot, error) {
	for _, a := range f.snap.Agents {
		if a.ID == id {
			return a, nil
		}
	}
	return game.AgentSnapshot{}, fmt.Errorf("agent %d: %w", id, game.ErrUnknownAgent)
}

func (f *fakeEngine) SetInput(in game.Input) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
}

func (f *fakeEngine) Inputs() []game.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]game.Input(nil), f.inputs...)
}

func newTestServer(t *testing.T, engine EngineInterface) *httptest.Server {
	t.Helper()
	limiter := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CleanupInterval:   time.Hour,
	})
	t.Cleanup(limiter.Stop)

	ts := httptest.NewServer(NewRouter(RouterConfig{
		Engine:         engine,
		RateLimiter:    limiter,
		DisableLogging: true,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

// TestNewRouterHasNoSideEffects verifies construction opens no listeners
// and needs no running engine.
func TestNewRouterHasNoSideEffects(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Hour})
	defer limiter.Stop()

	router := NewRouter(RouterConfig{Engine: newFakeEngine(), RateLimiter: limiter})
	require.NotNil(t, router)
}

func TestAPIGetState(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	var snap map[string]any
	status := getJSON(t, ts.URL+"/api/state", &snap)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "match-1", snap["matchId"])
	assert.Equal(t, 42.0, snap["frame"])
	assert.Equal(t, "running", snap["outcome"])

	agents, ok := snap["agents"].([]any)
	require.True(t, ok, "response should contain agents array")
	assert.Len(t, agents, 2)
}

func TestAPIStateNotReady(t *testing.T) {
	engine := newFakeEngine()
	engine.snap = nil
	ts := newTestServer(t, engine)

	for _, path := range []string{"/api/state", "/api/standings"} {
		var body map[string]string
		status := getJSON(t, ts.URL+path, &body)
		assert.Equal(t, http.StatusServiceUnavailable, status, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestAPIGetZone(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	var zone struct {
		Current game.Circle `json:"current"`
		Phase   string      `json:"phase"`
	}
	status := getJSON(t, ts.URL+"/api/zone", &zone)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 400.0, zone.Current.R)
	assert.Equal(t, "delay", zone.Phase)
}

func TestAPIGetStandings(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	var standings []map[string]any
	status := getJSON(t, ts.URL+"/api/standings", &standings)

	require.Equal(t, http.StatusOK, status)
	require.Len(t, standings, 2)
	assert.Equal(t, 1.0, standings[0]["team"])
	assert.Equal(t, 90.0, standings[0]["score"])
	assert.Equal(t, "human", standings[0]["faction"])
}

func TestAPIGetStats(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	var stats struct {
		Engine    map[string]any `json:"engine"`
		RateLimit RateLimitStats `json:"rateLimit"`
	}
	status := getJSON(t, ts.URL+"/api/stats", &stats)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "match-1", stats.Engine["matchId"])
	assert.Equal(t, 2.0, stats.Engine["agents"])
	assert.GreaterOrEqual(t, stats.RateLimit.Allowed, uint64(1))
}

func TestAPIGetAgent(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "player leader", id: "1", wantStatus: http.StatusOK},
		{name: "follower", id: "2", wantStatus: http.StatusOK},
		{name: "unknown", id: "99", wantStatus: http.StatusNotFound},
		{name: "not a number", id: "abc", wantStatus: http.StatusBadRequest},
		{name: "negative", id: "-1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/agents/" + tt.id)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				var agent struct {
					ID uint32 `json:"id"`
				}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&agent))
				assert.Equal(t, tt.id, fmt.Sprint(agent.ID))
			}
		})
	}
}

func TestAPIGetMinimap(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	resp, err := http.Get(ts.URL + "/api/minimap.png?size=128")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	resp2, err := http.Get(ts.URL + "/api/minimap.png?size=big")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestAPIPostInput(t *testing.T) {
	engine := newFakeEngine()
	ts := newTestServer(t, engine)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "move and dash", body: `{"moveX": 1, "moveY": -0.5, "dash": true}`, wantStatus: http.StatusOK},
		{name: "idle", body: `{}`, wantStatus: http.StatusOK},
		{name: "axis out of range", body: `{"moveX": 2}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{invalid}`, wantStatus: http.StatusBadRequest},
		{name: "oversized", body: `{"moveX": 0` + string(bytes.Repeat([]byte(" "), 2048)) + `}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/input", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	inputs := engine.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, game.Input{MoveX: 1, MoveY: -0.5, Dash: true}, inputs[0])
	assert.Equal(t, game.Input{}, inputs[1])
}

func TestAPIRootRedirects(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/api/state", resp.Header.Get("Location"))
}

func TestAPIRateLimit(t *testing.T) {
	ts := httptest.NewServer(NewRouter(RouterConfig{
		Engine:         newFakeEngine(),
		DisableLogging: true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 0.001,
			Burst:             2,
			CleanupInterval:   time.Hour,
		},
	}))
	defer ts.Close()

	var statuses []int
	for range 3 {
		resp, err := http.Get(ts.URL + "/api/zone")
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestValidInput(t *testing.T) {
	tests := []struct {
		name string
		in   game.Input
		want bool
	}{
		{"zero", game.Input{}, true},
		{"corners", game.Input{MoveX: -1, MoveY: 1}, true},
		{"x too large", game.Input{MoveX: 1.01}, false},
		{"y too small", game.Input{MoveY: -3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validInput(tt.in))
		})
	}
}
