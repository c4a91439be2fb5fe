package common

const (
	ComponentRegistry   = "registry"
	ComponentDispatcher = "dispatcher"
	ComponentProvider   = "provider"
	ComponentDeadLetter = "dead-letter"
	ComponentMetrics    = "metrics"
	ComponentCLI        = "cli"
)

var AllComponents = map[string]struct{}{
	ComponentRegistry:   {},
	ComponentDispatcher: {},
	ComponentProvider:   {},
	ComponentDeadLetter: {},
	ComponentMetrics:    {},
	ComponentCLI:        {},
}
