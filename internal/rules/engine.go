package rules

import "minisiem/pkg/models"

// Engine tags alert events with matching detection rules.
type Engine interface {
	Apply(event models.Event) []models.RuleTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event models.Event) []models.RuleTag {
	return nil
}
