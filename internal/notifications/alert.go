// Package notifications delivers emergency escalations to human dispatchers.
package notifications

import (
	"fmt"
	"strings"
	"time"
)

// EmergencyAlert is one driver emergency reported during a call.
type EmergencyAlert struct {
	CallID           string
	EmergencyID      string
	DriverName       string
	LoadNumber       string
	Type             string
	Location         string
	EscalationStatus string
	InjuriesReported *bool
	LoadSecure       *bool
	Notes            string
	ReportedAt       time.Time
}

// Title is the one-line headline used by every channel.
func (a EmergencyAlert) Title() string {
	kind := strings.ToUpper(a.Type)
	if kind == "" {
		kind = "EMERGENCY"
	}
	if a.DriverName != "" {
		return fmt.Sprintf("%s reported by %s", kind, a.DriverName)
	}
	return kind + " reported by driver"
}

// Body summarizes location, load and safety flags.
func (a EmergencyAlert) Body() string {
	parts := []string{}
	if a.Location != "" {
		parts = append(parts, "Location: "+a.Location)
	}
	if a.LoadNumber != "" {
		parts = append(parts, "Load: "+a.LoadNumber)
	}
	if a.InjuriesReported != nil {
		parts = append(parts, "Injuries: "+yesNo(*a.InjuriesReported))
	}
	if a.LoadSecure != nil {
		parts = append(parts, "Load secure: "+yesNo(*a.LoadSecure))
	}
	return strings.Join(parts, " | ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
