package filter

import "minisiem/pkg/models"

// OnlyAlerts reports whether the record is an IDS alert.
func OnlyAlerts(event models.Event) bool {
	return event.EventType() == models.AlertEventType
}
