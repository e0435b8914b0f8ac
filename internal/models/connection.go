package models

import "time"

// Role distinguishes the two kinds of realtime connections.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleVisitor || r == RoleStaff
}

// Identity describes who is behind a connection. Visitors fill Name/Email from
// the conversation form; staff identities come from their token.
type Identity struct {
	UserID     string `json:"userId,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

// DisplayName falls back to the email, then to a generic label.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	default:
		return "Guest"
	}
}

// OnlineStaff is a staff connection as reported by presence listings.
type OnlineStaff struct {
	ConnID string `json:"connId"`
	Identity
	ConnectedAt time.Time `json:"connectedAt"`
}
