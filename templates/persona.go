package templates

// Who the agent is; the common variables for every prompt.
type Persona struct {
	Name   string   `json:"name"`
	Handle string   `json:"handle"`
	Bio    string   `json:"bio"`
	Topics []string `json:"topics"`
}

// Base template variables for this persona. Callers add cycle-specific variables to the returned map.
func (p Persona) Vars() map[string]any {
	return map[string]any{
		"agentName": p.Name,
		"handle":    p.Handle,
		"bio":       p.Bio,
		"topics":    p.Topics,
	}
}
