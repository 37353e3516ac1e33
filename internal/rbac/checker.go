package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"useradmin/internal/models"
)

// Permission keys ("app_label.codename") guarding the user views.
const (
	PermAddUser      = "auth.add_user"
	PermChangeUser   = "auth.change_user"
	PermViewUser     = "auth.view_user"
	PermToggleUser   = "core.can_enable_or_disable_user"
	PermViewAuditLog = "core.view_auditlog"
)

var ErrUnknownUser = errors.New("rbac: unknown user")

type Checker struct{ DB *gorm.DB }

// Can reports whether userID holds permKey. Disabled users hold nothing,
// superusers hold everything, everybody else needs a direct or group grant.
func (c Checker) Can(ctx context.Context, userID int64, permKey string) (bool, error) {
	app, codename, ok := SplitKey(permKey)
	if !ok {
		return false, fmt.Errorf("rbac: malformed permission key %q", permKey)
	}

	db := c.DB.WithContext(ctx)
	var user models.User
	if err := db.Select("id", "status", "is_superuser").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUnknownUser
		}
		return false, err
	}
	if !user.IsActive() {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}

	// user_permissions -> permissions
	var count int64
	err := db.
		Table("user_permissions up").
		Joins("JOIN permissions p ON p.id = up.permission_id").
		Where("up.user_id = ? AND p.app_label = ? AND p.codename = ?", userID, app, codename).
		Count(&count).Error
	if err != nil || count > 0 {
		return count > 0, err
	}

	// user_groups -> group_permissions -> permissions
	err = db.
		Table("user_groups ug").
		Joins("JOIN group_permissions gp ON gp.group_id = ug.group_id").
		Joins("JOIN permissions p ON p.id = gp.permission_id").
		Where("ug.user_id = ? AND p.app_label = ? AND p.codename = ?", userID, app, codename).
		Count(&count).Error
	return count > 0, err
}

// Permissions returns the sorted effective permission keys of userID.
func (c Checker) Permissions(ctx context.Context, userID int64) ([]string, error) {
	db := c.DB.WithContext(ctx)
	var user models.User
	if err := db.Select("id", "status", "is_superuser").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	if !user.IsActive() {
		return []string{}, nil
	}

	var perms []models.Permission
	q := db.Model(&models.Permission{})
	if !user.IsSuperuser {
		q = q.Where("id IN (?) OR id IN (?)",
			db.Table("user_permissions").Select("permission_id").Where("user_id = ?", userID),
			db.Table("group_permissions gp").
				Select("gp.permission_id").
				Joins("JOIN user_groups ug ON ug.group_id = gp.group_id").
				Where("ug.user_id = ?", userID),
		)
	}
	if err := q.Find(&perms).Error; err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.Key())
	}
	sort.Strings(keys)
	return keys, nil
}

// Key composes "app.codename".
func Key(app, codename string) string { return strings.ToLower(app + "." + codename) }

// SplitKey is the inverse of Key.
func SplitKey(key string) (app, codename string, ok bool) {
	app, codename, ok = strings.Cut(key, ".")
	if !ok || app == "" || codename == "" {
		return "", "", false
	}
	return app, codename, true
}
