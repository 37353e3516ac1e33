package models

import "time"

// ProfileRole is the business role stored on a user's profile.
type ProfileRole string

const (
	RoleUser    ProfileRole = "u"
	RoleManager ProfileRole = "m"

	DefaultRole = RoleUser
)

var roleLabels = map[ProfileRole]string{
	RoleUser:    "User",
	RoleManager: "Manager",
}

// Roles lists the known roles in display order.
func Roles() []ProfileRole { return []ProfileRole{RoleUser, RoleManager} }

func (r ProfileRole) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r ProfileRole) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

type Profile struct {
	ID        int64       `gorm:"primaryKey" json:"id"`
	UserID    int64       `gorm:"uniqueIndex;not null" json:"user_id"`
	Role      ProfileRole `gorm:"size:1;not null;default:u" json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
