package models

import "time"

// Permission is a named capability on a resource type. AppLabel and
// Codename together identify it, e.g. "auth" + "add_user".
type Permission struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	AppLabel  string    `gorm:"uniqueIndex:idx_permissions_app_codename;size:100;not null" json:"app_label"`
	Codename  string    `gorm:"uniqueIndex:idx_permissions_app_codename;size:100;not null" json:"codename"`
	Model     string    `gorm:"size:100" json:"model"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Key returns the "app_label.codename" form used by the permission checker.
func (p Permission) Key() string { return p.AppLabel + "." + p.Codename }
