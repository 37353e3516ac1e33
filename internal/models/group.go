package models

import "time"

// Group bundles permissions granted to all of its members.
type Group struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"uniqueIndex;size:150;not null" json:"name"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Permissions []Permission `gorm:"many2many:group_permissions;" json:"permissions,omitempty"`
}
