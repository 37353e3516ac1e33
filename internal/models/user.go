package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// Toggled returns the opposite status.
func (s UserStatus) Toggled() UserStatus {
	if s == UserActive {
		return UserDisabled
	}
	return UserActive
}

type User struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:150;not null" json:"username"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FirstName    string     `gorm:"size:150" json:"first_name"`
	LastName     string     `gorm:"size:150" json:"last_name"`
	Email        string     `gorm:"size:254" json:"email"`
	Status       UserStatus `gorm:"size:16;not null;default:active" json:"status"`
	IsSuperuser  bool       `gorm:"not null" json:"is_superuser"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Profile     *Profile     `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	Permissions []Permission `gorm:"many2many:user_permissions;" json:"-"`
	Groups      []Group      `gorm:"many2many:user_groups;" json:"-"`

	// ProfileRole is the role handed to the profile created after insert.
	// Empty means the default role.
	ProfileRole ProfileRole `gorm:"-" json:"-"`
}

func (u *User) IsActive() bool { return u.Status == UserActive }

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName falls back to the username when no name is set.
func (u *User) DisplayName() string {
	if n := u.FullName(); n != "" {
		return n
	}
	return u.Username
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Status == "" {
		u.Status = UserActive
	}
	return nil
}

// AfterCreate makes sure every user owns exactly one profile. An explicit
// ProfileRole overrides the role of a profile created through associations.
func (u *User) AfterCreate(tx *gorm.DB) error {
	role := u.ProfileRole
	if role == "" {
		role = DefaultRole
	}

	var p Profile
	db := tx.Session(&gorm.Session{NewDB: true})
	if err := db.Where(Profile{UserID: u.ID}).Attrs(Profile{Role: role}).FirstOrCreate(&p).Error; err != nil {
		return err
	}
	if u.ProfileRole != "" && p.Role != u.ProfileRole {
		if err := db.Model(&p).Update("role", u.ProfileRole).Error; err != nil {
			return err
		}
		p.Role = u.ProfileRole
	}
	u.Profile = &p
	return nil
}
