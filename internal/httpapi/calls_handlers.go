package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/store"
	"github.com/lukasbauer/dispatchvoice/internal/telephony"
)

// E.164 phone number validation (international format)
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func isValidE164(phone string) bool {
	return e164Regex.MatchString(phone)
}

type createCallRequest struct {
	AgentConfigID string `json:"agent_configuration_id"`
	DriverName    string `json:"driver_name"`
	PhoneNumber   string `json:"phone_number"`
	LoadNumber    string `json:"load_number"`
}

func (c *createCallRequest) validate() error {
	c.AgentConfigID = strings.TrimSpace(c.AgentConfigID)
	c.DriverName = strings.TrimSpace(c.DriverName)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	c.LoadNumber = strings.TrimSpace(c.LoadNumber)
	switch {
	case c.AgentConfigID == "":
		return errors.New("agent_configuration_id is required")
	case c.DriverName == "":
		return errors.New("driver_name is required")
	case c.LoadNumber == "":
		return errors.New("load_number is required")
	case !isValidE164(c.PhoneNumber):
		return errors.New("phone_number must be in E.164 format")
	}
	return nil
}

type callListResponse struct {
	Calls []dispatch.Call `json:"calls"`
	Total int             `json:"total"`
}

// handleCreateCall records a call and dials the driver.
func (r *Router) handleCreateCall(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if r.dialer == nil {
		writeError(w, http.StatusServiceUnavailable, "call placement not configured")
		return
	}

	var body createCallRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := r.store.AgentConfig(ctx, body.AgentConfigID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent configuration not found")
		return
	}
	if err != nil {
		captureError(req, err, "calls: load agent config")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !agent.Active {
		writeError(w, http.StatusBadRequest, "agent configuration is not active")
		return
	}

	platformAgent := r.cfg.DefaultPlatformAgentID
	if agent.PlatformAgentID != nil && *agent.PlatformAgentID != "" {
		platformAgent = *agent.PlatformAgentID
	}

	var initiatedBy *string
	if d := dispatcherFrom(ctx); d != nil {
		initiatedBy = &d.ID
	}

	call, err := r.store.CreateCall(ctx, store.NewCall{
		AgentConfigID: agent.ID,
		DriverName:    body.DriverName,
		PhoneNumber:   body.PhoneNumber,
		LoadNumber:    body.LoadNumber,
		InitiatedBy:   initiatedBy,
	})
	if err != nil {
		captureError(req, err, "calls: create call")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	log := r.log.WithFields(logrus.Fields{"call_id": call.ID, "load_number": call.LoadNumber})

	placed, err := r.dialer.CreatePhoneCall(ctx, telephony.PhoneCallRequest{
		ToNumber: call.PhoneNumber,
		AgentID:  platformAgent,
		Variables: map[string]string{
			"driver_name": call.DriverName,
			"load_number": call.LoadNumber,
		},
		Metadata: map[string]any{
			"call_id":     call.ID,
			"driver_name": call.DriverName,
			"load_number": call.LoadNumber,
		},
	})
	if err != nil {
		log.WithError(err).Error("calls: placing call failed")
		if ferr := r.store.MarkCallFailed(ctx, call.ID, err.Error(), r.now().UTC()); ferr != nil {
			log.WithError(ferr).Error("calls: failed to mark call failed")
		}
		captureError(req, err, "calls: place call")
		writeError(w, http.StatusInternalServerError, "failed to initiate call: "+err.Error())
		return
	}

	now := r.now().UTC()
	if err := r.store.MarkCallPlaced(ctx, call.ID, placed.CallID, now); err != nil {
		log.WithError(err).Error("calls: failed to store platform call id")
		captureError(req, err, "calls: mark placed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	call.PlatformCallID = &placed.CallID
	call.Status = dispatch.CallRinging
	call.StartedAt = &now

	if r.events != nil {
		r.events.LogAsync(call.ID, eventlog.EventCallPlaced, map[string]any{
			"platform_call_id":  placed.CallID,
			"platform_agent_id": platformAgent,
		})
	}
	log.WithField("platform_call_id", placed.CallID).Info("calls: call placed")
	writeJSON(w, http.StatusCreated, call)
}

func (r *Router) handleListCalls(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	f := store.CallFilter{
		LoadNumber: strings.TrimSpace(q.Get("load_number")),
		Limit:      100,
	}
	if v := q.Get("status"); v != "" {
		f.Status = dispatch.CallStatus(v)
		if !validStatus(f.Status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid skip")
			return
		}
		f.Offset = n
	}

	calls, total, err := r.store.ListCalls(req.Context(), f)
	if err != nil {
		captureError(req, err, "calls: list")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, callListResponse{Calls: calls, Total: total})
}

func (r *Router) handleGetCall(w http.ResponseWriter, req *http.Request) {
	call, ok := r.loadCall(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleCallEvents returns the call's event timeline.
func (r *Router) handleCallEvents(w http.ResponseWriter, req *http.Request) {
	call, ok := r.loadCall(w, req)
	if !ok {
		return
	}

	limit := 0
	if v := req.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	events := []eventlog.Event{}
	if r.events != nil {
		var err error
		events, err = r.events.List(req.Context(), call.ID, limit)
		if err != nil {
			captureError(req, err, "calls: list events")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"call_id": call.ID, "events": events})
}

func (r *Router) loadCall(w http.ResponseWriter, req *http.Request) (*dispatch.Call, bool) {
	id := req.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return nil, false
	}
	call, err := r.store.GetCall(req.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "call not found")
		return nil, false
	}
	if err != nil {
		captureError(req, err, "calls: get")
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	return call, true
}

func validStatus(s dispatch.CallStatus) bool {
	switch s {
	case dispatch.CallInitiated, dispatch.CallRinging, dispatch.CallInProgress,
		dispatch.CallCompleted, dispatch.CallFailed, dispatch.CallNoAnswer:
		return true
	}
	return false
}
