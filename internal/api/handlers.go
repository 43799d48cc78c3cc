package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"horde/internal/game"
	"horde/internal/minimap"
)

// maxInputBody bounds POST /api/input payloads.
const maxInputBody = 1 << 10

// Handler methods for routerHandlers.
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "Snapshot not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetZone(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Zone())
}

func (h *routerHandlers) handleGetStandings(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "Snapshot not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap.Standings)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"engine":    h.engine.Stats(),
		"rateLimit": h.rateLimiter.GetStats(),
	})
}

func (h *routerHandlers) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, "Invalid agent id", http.StatusBadRequest)
		return
	}

	agent, err := h.engine.Agent(game.AgentID(id))
	if errors.Is(err, game.ErrUnknownAgent) {
		writeError(w, "Agent not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, agent)
}

func (h *routerHandlers) handleGetMinimap(w http.ResponseWriter, r *http.Request) {
	renderer := h.minimap
	if s := r.URL.Query().Get("size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, "Invalid size", http.StatusBadRequest)
			return
		}
		if minimap.ClampSize(size) != renderer.Size() {
			renderer = minimap.NewRenderer(size)
		}
	}

	// Render to a buffer first so encode failures can still become a 500
	var buf bytes.Buffer
	if err := renderer.EncodePNG(&buf, h.engine.Snapshot()); err != nil {
		h.log.Error().Err(err).Msg("❌ minimap render failed")
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handlePostInput(w http.ResponseWriter, r *http.Request) {
	var in game.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBody)).Decode(&in); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !validInput(in) {
		writeError(w, "Movement axes must be within [-1, 1]", http.StatusBadRequest)
		return
	}

	h.engine.SetInput(in)
	writeJSON(w, map[string]bool{"success": true})
}

// validInput accepts finite axes in [-1, 1]; the controller normalizes
// the direction itself.
func validInput(in game.Input) bool {
	for _, v := range []float64{in.MoveX, in.MoveY} {
		if math.IsNaN(v) || v < -1 || v > 1 {
			return false
		}
	}
	return true
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
