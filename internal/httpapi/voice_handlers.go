package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/lifecycle"
	"github.com/lukasbauer/dispatchvoice/internal/session"
	"github.com/lukasbauer/dispatchvoice/internal/telephony"
)

const maxWebhookBody = 1 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLLMWebsocket serves the platform's per-call LLM connection.
func (r *Router) handleLLMWebsocket(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing call id")
		return
	}
	release, ok := r.calls.Admit(callID)
	if !ok {
		r.log.WithField("platform_call_id", callID).Warn("llm_ws: draining, session refused")
		writeError(w, http.StatusServiceUnavailable, "draining")
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("llm_ws: upgrade failed")
		return
	}

	log := r.log.WithFields(logrus.Fields{"platform_call_id": callID, "live": r.calls.Count()})
	log.Info("llm_ws: connected")

	if err := r.sessions.Run(req.Context(), conn, callID); err != nil {
		log.WithError(err).Warn("llm_ws: session ended with error")
		if !errors.Is(err, session.ErrUnknownCall) {
			captureError(req, err, "llm_ws: session error")
		}
		return
	}
	log.Info("llm_ws: closed")
}

// handleWebhook receives call lifecycle events from the platform.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if r.cfg.PlatformAPIKey != "" {
		sig := req.Header.Get(telephony.SignatureHeader)
		if err := telephony.VerifySignature(body, r.cfg.PlatformAPIKey, sig, r.now()); err != nil {
			r.log.WithField("remote", req.RemoteAddr).Warn("webhook: invalid signature")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var ev lifecycle.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := r.webhooks.HandleEvent(req.Context(), ev)
	if errors.Is(err, lifecycle.ErrMissingCallID) {
		writeError(w, http.StatusBadRequest, "missing call_id in webhook payload")
		return
	}
	if err != nil {
		r.log.WithError(err).WithField("event", ev.Event).Error("webhook: processing failed")
		captureError(req, err, "webhook: processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	resp := map[string]any{"status": "ok"}
	if res.Ignored {
		resp["message"] = "event ignored"
	}
	if res.AnalysisDispatched {
		resp["analysis"] = "dispatched"
	}
	writeJSON(w, http.StatusOK, resp)
}
