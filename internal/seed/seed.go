package seed

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"useradmin/internal/models"
	"useradmin/internal/rbac"
)

// Catalog is the set of permissions the application checks for.
func Catalog() []models.Permission {
	return []models.Permission{
		{AppLabel: "auth", Codename: "add_user", Model: "user", Name: "Can add user"},
		{AppLabel: "auth", Codename: "change_user", Model: "user", Name: "Can change user"},
		{AppLabel: "auth", Codename: "view_user", Model: "user", Name: "Can view user"},
		{AppLabel: "core", Codename: "can_enable_or_disable_user", Model: "profile", Name: "Can enable or disable user"},
		{AppLabel: "core", Codename: "view_auditlog", Model: "auditlog", Name: "Can view audit log"},
	}
}

// ManagersGroup is granted everything needed to run the user views.
const ManagersGroup = "Managers"

var managerKeys = []string{rbac.PermAddUser, rbac.PermViewUser, rbac.PermToggleUser}

type Options struct {
	AdminUsername string
	AdminPassword string
}

// EnsurePermissions creates missing catalog entries and returns them by key.
func EnsurePermissions(db *gorm.DB) (map[string]models.Permission, error) {
	out := make(map[string]models.Permission)
	for _, p := range Catalog() {
		tmp := p
		if err := db.Where("app_label = ? AND codename = ?", tmp.AppLabel, tmp.Codename).
			Attrs(models.Permission{Model: tmp.Model, Name: tmp.Name}).
			FirstOrCreate(&tmp).Error; err != nil {
			return nil, fmt.Errorf("seed permission %s: %w", p.Key(), err)
		}
		out[tmp.Key()] = tmp
	}
	return out, nil
}

// FirstSetup is idempotent: permissions, the managers group and a
// bootstrap superuser.
func FirstSetup(db *gorm.DB, opts Options, log *zap.Logger) error {
	perms, err := EnsurePermissions(db)
	if err != nil {
		return err
	}

	group := models.Group{Name: ManagersGroup, Description: "Manage user accounts"}
	if err := db.Where("name = ?", group.Name).FirstOrCreate(&group).Error; err != nil {
		return fmt.Errorf("seed group: %w", err)
	}
	grant := make([]models.Permission, 0, len(managerKeys))
	for _, k := range managerKeys {
		grant = append(grant, perms[k])
	}
	if err := db.Model(&group).Association("Permissions").Append(grant); err != nil {
		return fmt.Errorf("seed group permissions: %w", err)
	}

	if opts.AdminUsername == "" {
		return nil
	}

	var admin models.User
	err = db.Where("username = ?", opts.AdminUsername).First(&admin).Error
	switch {
	case err == nil:
		log.Info("seed: admin already present", zap.String("username", admin.Username))
	case errors.Is(err, gorm.ErrRecordNotFound):
		if opts.AdminPassword == "" {
			return errors.New("seed: admin password required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed: hash password: %w", err)
		}
		admin = models.User{
			Username:     opts.AdminUsername,
			PasswordHash: string(hash),
			Status:       models.UserActive,
			IsSuperuser:  true,
			ProfileRole:  models.RoleManager,
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed: create admin: %w", err)
		}
		log.Info("seed: admin created", zap.String("username", admin.Username))
	default:
		return err
	}

	log.Info("seed ok",
		zap.Int("permissions", len(perms)),
		zap.String("group", group.Name),
	)
	return nil
}
