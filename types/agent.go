package types

// AgentRegistration describes an external worker known to the coordinator.
// The engine never executes agents; it only assigns work to them and
// collects what they report back.
type AgentRegistration struct {
	ID           string         `json:"id"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Priority     int            `json:"priority"` // higher wins assignment ties
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// HasCapabilities reports whether the agent's capability set is a superset
// of required. An empty requirement matches every agent.
func (a AgentRegistration) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range a.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
