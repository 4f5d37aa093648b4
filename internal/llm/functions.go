package llm

// Dispatch function names.
const (
	FuncUpdateDeliveryStatus = "update_delivery_status"
	FuncReportEmergency      = "report_emergency"
	FuncEndConversation      = "end_conversation"
)

// Closed enumerations accepted by the dispatch functions.
var (
	DeliveryStatuses   = []string{"driving", "delayed", "arrived", "unloading"}
	EmergencyTypes     = []string{"accident", "breakdown", "medical", "other"}
	EscalationStatuses = []string{"connecting_to_dispatcher", "dispatcher_notified", "emergency_services_contacted"}
)

// DispatchFunctions returns the function declarations offered to the model
// on every live turn and during post-call extraction.
func DispatchFunctions() []FunctionDecl {
	return []FunctionDecl{
		{
			Name:        FuncUpdateDeliveryStatus,
			Description: "Record the driver's current delivery status. Call this once the driver has told you where they are or how the load is going.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"enum":        DeliveryStatuses,
						"description": "Current delivery status",
					},
					"eta": map[string]any{
						"type":        "string",
						"description": "Estimated arrival time as the driver said it, e.g. \"5pm\" or \"tomorrow 8:00 AM\"",
					},
					"location": map[string]any{
						"type":        "string",
						"description": "Current location, e.g. highway and mile marker or city",
					},
					"delay_reason": map[string]any{
						"type":        "string",
						"description": "Why the load is delayed, if it is",
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Anything else the dispatcher should know",
					},
				},
				"required": []string{"status"},
			},
		},
		{
			Name:        FuncReportEmergency,
			Description: "Report an emergency on the road and escalate to a human dispatcher. Use immediately for accidents, breakdowns or medical issues.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"emergency_type": map[string]any{
						"type":        "string",
						"enum":        EmergencyTypes,
						"description": "Kind of emergency",
					},
					"location": map[string]any{
						"type":        "string",
						"description": "Where the emergency happened",
					},
					"escalation_status": map[string]any{
						"type":        "string",
						"enum":        EscalationStatuses,
						"description": "How far escalation has progressed",
					},
					"injuries_reported": map[string]any{
						"type":        "boolean",
						"description": "Whether anyone is hurt",
					},
					"load_secure": map[string]any{
						"type":        "boolean",
						"description": "Whether the load is secure",
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Other details from the driver",
					},
				},
				"required": []string{"emergency_type", "location", "escalation_status"},
			},
		},
		{
			Name:        FuncEndConversation,
			Description: "End the call once the check-in is complete or the driver wants to hang up.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Why the conversation is ending",
					},
				},
			},
		},
	}
}
