package auth

import "time"

// Roles known to the platform. Stored on the utenti row.
const (
	RoleSuperAdmin   = "super_admin"
	RoleAdmin        = "admin"
	RoleSpecialUser  = "utente_speciale"
	RoleStandardUser = "utente"
)

// User is an authenticated platform account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	TenantID     int64
	IsActive     bool
	CreatedAt    time.Time
}

// Elevated reports whether the role is exempt from tenant scoping.
func (u *User) Elevated() bool {
	return u != nil && u.Role == RoleSuperAdmin
}
