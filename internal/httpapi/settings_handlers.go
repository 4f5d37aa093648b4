package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lukasbauer/dispatchvoice/internal/store"
)

type llmProviderResponse struct {
	Provider  string   `json:"llm_provider"`
	Available []string `json:"available"`
}

func (r *Router) handleGetLLMProvider(w http.ResponseWriter, req *http.Request) {
	provider, err := r.store.LLMProvider(req.Context())
	if err != nil {
		captureError(req, err, "settings: get llm provider")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	writeJSON(w, http.StatusOK, llmProviderResponse{Provider: provider, Available: r.availableProviders()})
}

// handleSetLLMProvider switches the primary provider for calls that start
// after this point.
func (r *Router) handleSetLLMProvider(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Provider string `json:"llm_provider"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	provider := strings.ToLower(strings.TrimSpace(body.Provider))
	if r.providers == nil || !r.providers.Has(provider) {
		writeError(w, http.StatusBadRequest, "unknown or unconfigured LLM provider")
		return
	}

	if err := r.store.SetSetting(req.Context(), store.SettingLLMProvider, provider); err != nil {
		captureError(req, err, "settings: set llm provider")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	r.log.WithField("provider", provider).Info("settings: llm provider updated")
	writeJSON(w, http.StatusOK, llmProviderResponse{Provider: provider, Available: r.availableProviders()})
}

func (r *Router) handleAvailableLLMs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": r.availableProviders(),
		"default":   r.cfg.DefaultProvider,
	})
}

func (r *Router) availableProviders() []string {
	if r.providers == nil {
		return []string{}
	}
	return r.providers.Providers()
}
