package models

type UserType string

const (
	GuestUser   UserType = "guest"
	RegularUser UserType = "regular"
	ProUser     UserType = "pro"
	AdminUser   UserType = "admin"
)

func (t UserType) Valid() bool {
	switch t {
	case GuestUser, RegularUser, ProUser, AdminUser:
		return true
	}
	return false
}

// Identity is what the identity collaborator hands us for every session.
// UserID is opaque; it is never created or validated here beyond being non-empty.
type Identity struct {
	UserID string   `json:"user_id"`
	Type   UserType `json:"user_type"`
}
