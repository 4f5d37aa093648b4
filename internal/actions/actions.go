// Package actions turns model function calls into mutations of a call's
// structured facts.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
)

// Replies spoken after an action runs.
const (
	ReplyStatusUpdated = "Got it, I've updated your status. Thanks for letting me know."
	ReplyArrived       = "Great, I've marked you as arrived. Thanks!"
	ReplyEmergency     = "I've flagged this as an emergency and I'm connecting you with a human dispatcher right now. Please stay safe."
	ReplyClosing       = "Thanks for the update. Drive safe, goodbye!"
)

// Call outcome labels written under "call_outcome".
const (
	OutcomeInTransit = "In-Transit Update"
	OutcomeArrival   = "Arrival Confirmation"
	OutcomeEmergency = "Emergency Escalation"
)

var (
	ErrUnknownFunction = errors.New("actions: unknown function")
	ErrInvalidArgs     = errors.New("actions: invalid arguments")
)

// Emergency is the record handed to escalation once report_emergency runs.
type Emergency struct {
	ID               string
	Type             string
	Location         string
	EscalationStatus string
	InjuriesReported *bool
	LoadSecure       *bool
	Notes            string
	ReportedAt       time.Time
}

// Outcome is what the session needs after one function call.
type Outcome struct {
	Function  string
	Reply     string
	EndCall   bool
	Applied   bool           // facts were mutated
	Updates   map[string]any // what was merged, nil when not applied
	Emergency *Emergency
	Err       error // validation failure; never fatal to the turn
}

// Executor applies dispatch functions. It is stateless apart from its clock
// and is safe for concurrent use.
type Executor struct {
	log logrus.FieldLogger
	now func() time.Time
}

func NewExecutor(log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{log: log, now: time.Now}
}

// Execute runs call against facts. reply is the model's own text and is kept
// when the function is unknown. source is the provenance written with any
// mutation.
func (e *Executor) Execute(call *llm.FunctionCall, reply string, facts dispatch.StructuredResult, source string) Outcome {
	if call == nil {
		return Outcome{Reply: reply}
	}

	args := parseArgs(call.Arguments)
	if args == nil {
		e.log.WithField("function", call.Name).Warn("actions: malformed arguments, treating as empty")
		args = map[string]any{}
	}

	var out Outcome
	switch call.Name {
	case llm.FuncUpdateDeliveryStatus:
		out = e.updateDeliveryStatus(args, source)
	case llm.FuncReportEmergency:
		out = e.reportEmergency(args, source)
	case llm.FuncEndConversation:
		out = Outcome{Reply: ReplyClosing, EndCall: true}
		if r := stringArg(args, "reason"); r != "" {
			e.log.WithField("reason", r).Debug("actions: conversation ended by model")
		}
	default:
		e.log.WithField("function", call.Name).Warn("actions: unknown function ignored")
		return Outcome{Function: call.Name, Reply: reply, Err: ErrUnknownFunction}
	}
	out.Function = call.Name

	if out.Err != nil {
		e.log.WithField("function", call.Name).WithError(out.Err).Warn("actions: not applied")
		if !out.EndCall {
			out.Reply = reply
		}
	}

	if out.Updates != nil && facts != nil {
		facts.Merge(out.Updates)
		out.Applied = true
	}
	return out
}

func (e *Executor) updateDeliveryStatus(args map[string]any, source string) Outcome {
	status := strings.ToLower(stringArg(args, "status"))
	if !oneOf(status, llm.DeliveryStatuses) {
		return Outcome{Err: fmt.Errorf("%w: status %q", ErrInvalidArgs, status)}
	}

	updates := map[string]any{
		"status":               status,
		"call_outcome":         OutcomeInTransit,
		dispatch.KeyDataSource: source,
		dispatch.KeyUpdatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	reply := ReplyStatusUpdated
	if status == "arrived" || status == "unloading" {
		updates["call_outcome"] = OutcomeArrival
		reply = ReplyArrived
	}
	if v := stringArg(args, "eta"); v != "" {
		updates["eta"] = v
	}
	if v := stringArg(args, "location"); v != "" {
		updates["current_location"] = v
	}
	if v := stringArg(args, "delay_reason"); v != "" {
		updates["delay_reason"] = v
	}
	if v := stringArg(args, "notes"); v != "" {
		updates["notes"] = v
	}

	return Outcome{Reply: reply, Updates: updates}
}

// reportEmergency always ends the call, even when the arguments are unusable.
func (e *Executor) reportEmergency(args map[string]any, source string) Outcome {
	out := Outcome{Reply: ReplyEmergency, EndCall: true}

	etype := strings.ToLower(stringArg(args, "emergency_type"))
	location := stringArg(args, "location")
	escalation := strings.ToLower(stringArg(args, "escalation_status"))

	switch {
	case !oneOf(etype, llm.EmergencyTypes):
		out.Err = fmt.Errorf("%w: emergency_type %q", ErrInvalidArgs, etype)
		return out
	case location == "":
		out.Err = fmt.Errorf("%w: location is required", ErrInvalidArgs)
		return out
	case !oneOf(escalation, llm.EscalationStatuses):
		out.Err = fmt.Errorf("%w: escalation_status %q", ErrInvalidArgs, escalation)
		return out
	}

	em := &Emergency{
		ID:               uuid.NewString(),
		Type:             etype,
		Location:         location,
		EscalationStatus: escalation,
		InjuriesReported: boolArg(args, "injuries_reported"),
		LoadSecure:       boolArg(args, "load_secure"),
		Notes:            stringArg(args, "notes"),
		ReportedAt:       e.now().UTC(),
	}

	updates := map[string]any{
		"emergency":            true,
		"emergency_id":         em.ID,
		"emergency_type":       em.Type,
		"emergency_location":   em.Location,
		"escalation_status":    em.EscalationStatus,
		"call_outcome":         OutcomeEmergency,
		dispatch.KeyDataSource: source,
		dispatch.KeyUpdatedAt:  em.ReportedAt.Format(time.RFC3339),
	}
	if em.InjuriesReported != nil {
		updates["injuries_reported"] = *em.InjuriesReported
	}
	if em.LoadSecure != nil {
		updates["load_secure"] = *em.LoadSecure
	}
	if em.Notes != "" {
		updates["emergency_notes"] = em.Notes
	}

	out.Updates = updates
	out.Emergency = em
	return out
}

// parseArgs returns nil when raw is not a JSON object.
func parseArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, k string) string {
	switch v := args[k].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func boolArg(args map[string]any, k string) *bool {
	var b bool
	switch v := args[k].(type) {
	case bool:
		b = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			b = true
		case "false", "no":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
