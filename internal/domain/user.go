package domain

type Role string

const (
	RoleViewer    Role = "viewer"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

func (r Role) level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleResponder:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

func (r Role) IsValid() bool {
	return r.level() > 0
}

// HasPermission reports whether r is at least as privileged as required.
func (r Role) HasPermission(required Role) bool {
	return r.level() >= required.level()
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"`
}
