package domain

// ScreeningAction is what happens when a screening rule matches a pair.
type ScreeningAction string

const (
	// ActionExclude removes the pair from the ranking.
	ActionExclude ScreeningAction = "exclude"
	// ActionFlag keeps the pair and attaches the rule's reason.
	ActionFlag ScreeningAction = "flag"
)

// ScreeningRule is a CEL predicate evaluated against every candidate pair.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool.
	Expression string `json:"expression"`

	Action ScreeningAction `json:"action"`
	Reason string          `json:"reason"`

	Enabled bool `json:"enabled"`
}
