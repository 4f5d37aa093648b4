package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lukasbauer/dispatchvoice/internal/store"
)

func (r *Router) handleListAgents(w http.ResponseWriter, req *http.Request) {
	agents, err := r.store.ListAgentConfigs(req.Context())
	if err != nil {
		captureError(req, err, "agents: list")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (r *Router) handleGetAgent(w http.ResponseWriter, req *http.Request) {
	agent, err := r.store.AgentConfig(req.Context(), req.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent configuration not found")
		return
	}
	if err != nil {
		captureError(req, err, "agents: get")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (r *Router) handleCreateAgent(w http.ResponseWriter, req *http.Request) {
	var body store.NewAgentConfig
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || strings.TrimSpace(body.SystemPrompt) == "" {
		writeError(w, http.StatusBadRequest, "name and system_prompt are required")
		return
	}

	agent, err := r.store.CreateAgentConfig(req.Context(), body)
	if err != nil {
		captureError(req, err, "agents: create")
		writeError(w, http.StatusInternalServerError, "failed to create agent configuration")
		return
	}
	r.log.WithField("agent_id", agent.ID).Info("agents: created")
	writeJSON(w, http.StatusCreated, agent)
}

func (r *Router) handleUpdateAgent(w http.ResponseWriter, req *http.Request) {
	var body store.AgentUpdate
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		body.Name = &name
	}
	if (body.Name != nil && *body.Name == "") || (body.SystemPrompt != nil && strings.TrimSpace(*body.SystemPrompt) == "") {
		writeError(w, http.StatusBadRequest, "name and system_prompt cannot be empty")
		return
	}

	agent, err := r.store.UpdateAgentConfig(req.Context(), req.PathValue("id"), body)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent configuration not found")
		return
	}
	if err != nil {
		captureError(req, err, "agents: update")
		writeError(w, http.StatusInternalServerError, "failed to update agent configuration")
		return
	}
	r.log.WithField("agent_id", agent.ID).Info("agents: updated")
	writeJSON(w, http.StatusOK, agent)
}

// handleDeactivateAgent is a soft delete: existing calls keep their agent.
func (r *Router) handleDeactivateAgent(w http.ResponseWriter, req *http.Request) {
	err := r.store.SetAgentActive(req.Context(), req.PathValue("id"), false)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent configuration not found")
		return
	}
	if err != nil {
		captureError(req, err, "agents: deactivate")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
