package users

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"useradmin/internal/models"
	"useradmin/internal/rbac"
)

var (
	ErrUnknownPermission = errors.New("unknown permission")
	ErrGroupNotFound     = errors.New("group not found")
	ErrGroupExists       = errors.New("a group with that name already exists")
	ErrEmptyGrant        = errors.New("no permissions or groups to grant")
)

const ActionGrant = "user.grant"

// resolvePermissions maps keys to stored permissions, failing on any unknown key.
func resolvePermissions(tx *gorm.DB, keys []string) ([]models.Permission, error) {
	perms := make([]models.Permission, 0, len(keys))
	for _, k := range keys {
		app, codename, ok := rbac.SplitKey(k)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, k)
		}
		var p models.Permission
		if err := tx.Where("app_label = ? AND codename = ?", app, codename).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, k)
			}
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// Grant adds direct permissions and group memberships to a user.
func (s *Service) Grant(ctx context.Context, actorID, userID int64, keys, groups []string) (*models.User, error) {
	keys, groups = dedupe(keys), dedupe(groups)
	if len(keys) == 0 && len(groups) == 0 {
		return nil, ErrEmptyGrant
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		perms, err := resolvePermissions(tx, keys)
		if err != nil {
			return err
		}
		if len(perms) > 0 {
			if err := tx.Model(&u).Association("Permissions").Append(perms); err != nil {
				return err
			}
		}

		if len(groups) > 0 {
			var found []models.Group
			if err := tx.Where("name IN ?", groups).Find(&found).Error; err != nil {
				return err
			}
			if len(found) != len(groups) {
				return ErrGroupNotFound
			}
			if err := tx.Model(&u).Association("Groups").Append(found); err != nil {
				return err
			}
		}

		return s.audit(ctx, tx, actorID, ActionGrant, u.ID, map[string]any{
			"permissions": keys,
			"groups":      groups,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("permissions granted",
		zap.Int64("actor_id", actorID),
		zap.Int64("user_id", userID),
		zap.Strings("permissions", keys),
		zap.Strings("groups", groups),
	)
	return s.Get(ctx, userID)
}

// dedupe drops repeated and blank entries, keeping the first occurrence.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *Service) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&groups).Error
	return groups, err
}

func (s *Service) CreateGroup(ctx context.Context, name, description string, keys []string) (*models.Group, error) {
	group := models.Group{Name: name, Description: description}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Group{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrGroupExists
		}
		perms, err := resolvePermissions(tx, keys)
		if err != nil {
			return err
		}
		group.Permissions = perms
		return tx.Create(&group).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}
