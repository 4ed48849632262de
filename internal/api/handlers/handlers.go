// Package handlers implements the HTTP handlers for the MindMesh
// cognitive engine. All handlers go through the Engine; they hold no
// state of their own.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mindmesh/mindmesh/internal/engine"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine *engine.Engine
}

// New creates a new Handlers instance.
func New(en *engine.Engine) *Handlers {
	return &Handlers{Engine: en}
}

// ══════════════════════════════════════════════════════════════
// ── Cognitive Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type processRequest struct {
	AgentID    string  `json:"agent_id"`
	Content    string  `json:"content"`
	Urgency    float64 `json:"urgency"`
	Complexity float64 `json:"complexity"`
	Relevance  float64 `json:"relevance"`
}

func (h *Handlers) ProcessStimulus(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Engine.Process(r.Context(), req.AgentID, req.Content, req.Urgency, req.Complexity, req.Relevance)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyStimulus) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("agent", req.AgentID).Msg("stimulus processing failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetMindState(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	state, err := h.Engine.MindState(agentID)
	if err != nil {
		if errors.Is(err, engine.ErrAgentNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type invalidateRequest struct {
	Topic string `json:"topic"`
}

func (h *Handlers) InvalidateThoughts(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	n, err := h.Engine.InvalidateAbout(agentID, req.Topic)
	if err != nil {
		if errors.Is(err, engine.ErrAgentNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Info().Str("agent", agentID).Str("topic", req.Topic).Int("invalidated", n).Msg("thoughts invalidated")
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (h *Handlers) GetContribution(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	thought, err := h.Engine.BestContribution(agentID)
	if err != nil {
		if errors.Is(err, engine.ErrAgentNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if thought == nil {
		respondError(w, http.StatusNotFound, "no shareable thought available")
		return
	}
	respondJSON(w, http.StatusOK, thought)
}

type externalizeRequest struct {
	ThoughtID uuid.UUID `json:"thought_id"`
}

func (h *Handlers) MarkExternalized(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req externalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Engine.MarkExternalized(agentID, req.ThoughtID); err != nil {
		if errors.Is(err, engine.ErrAgentNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "externalized"})
}

// ══════════════════════════════════════════════════════════════
// ── Model Router Handlers ────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) GetModelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.RouterStatus())
}

func (h *Handlers) GetBudgetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.BudgetStatus())
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
