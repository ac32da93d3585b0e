package models

// AlertEventType is the event_type value carried by IDS alert records.
const AlertEventType = "alert"

// Event is one decoded eve.json record. Only event_type is interpreted;
// every other field is passed through to the index untouched.
type Event map[string]interface{}

// EventType returns the event_type field, or "" when absent or not a string.
func (e Event) EventType() string {
	if e == nil {
		return ""
	}
	v, _ := e["event_type"].(string)
	return v
}

// RuleTag represents a rule match annotation.
type RuleTag struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Tactic    string `json:"tactic,omitempty"`
	Technique string `json:"technique,omitempty"`
}
