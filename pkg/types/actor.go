package types

import "strings"

// Actor is the opaque caller identity taken from X-Actor-ID / X-Actor-Role.
// The role is recorded for audit and never used for authorization here.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Valid reports whether an actor id is present.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

// RolePtr returns nil for an empty role so audit columns stay null.
func (a Actor) RolePtr() *string {
	role := strings.TrimSpace(a.Role)
	if role == "" {
		return nil
	}
	return &role
}
