package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// Session is the authenticated caller. It is passed explicitly into every
// user-scoped operation.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// IsAdmin reports whether the session has the admin role.
func (s Session) IsAdmin() bool {
	return s.Authenticated() && s.Role == RoleAdmin
}

// Require returns ErrUnauthenticated for an anonymous session and
// ErrForbidden when the role is insufficient.
func (s Session) Require(role Role) error {
	if !s.Authenticated() {
		return ErrUnauthenticated
	}
	if !RoleAtLeast(s.Role, role) {
		return ErrForbidden
	}
	return nil
}
