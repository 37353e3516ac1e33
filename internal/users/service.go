package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"useradmin/internal/forms"
	"useradmin/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("a user with that username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("this account is disabled")
	ErrPasswordTooLong    = errors.New("password is longer than 72 bytes")
)

const (
	ActionCreate       = "user.create"
	ActionToggleActive = "user.toggle_active"
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	hashCost int
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(db *gorm.DB, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{db: db, log: log, hashCost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get loads a user with its profile.
func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Preload("Profile").First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create persists a validated form. The profile is created by the user's
// AfterCreate hook inside the same transaction.
func (s *Service) Create(ctx context.Context, actorID int64, f *forms.UserForm) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     f.Username,
		PasswordHash: string(hash),
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		Email:        f.Email,
		Status:       models.UserActive,
		IsSuperuser:  f.Superuser(),
		ProfileRole:  f.ProfileRole(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			// A concurrent create can win between the count and the insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return err
		}
		return s.audit(ctx, tx, actorID, ActionCreate, user.ID, map[string]any{
			"username":     user.Username,
			"role":         user.ProfileRole,
			"is_superuser": user.IsSuperuser,
		})
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user created",
		zap.Int64("actor_id", actorID),
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.ProfileRole)),
	)
	return &user, nil
}

// ToggleActive flips the target's status. A self-targeted call is a no-op
// and reports changed == false.
func (s *Service) ToggleActive(ctx context.Context, actorID, targetID int64) (user *models.User, changed bool, err error) {
	if actorID == targetID {
		s.log.Warn("refusing to toggle own account", zap.Int64("user_id", actorID))
		user, err = s.Get(ctx, targetID)
		return user, false, err
	}

	var target models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", targetID).
			Update("status", gorm.Expr("CASE WHEN status = ? THEN ? ELSE ? END",
				models.UserActive, models.UserDisabled, models.UserActive))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		if err := tx.Preload("Profile").First(&target, targetID).Error; err != nil {
			return err
		}
		return s.audit(ctx, tx, actorID, ActionToggleActive, target.ID, map[string]any{
			"username": target.Username,
			"status":   target.Status,
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("toggle user %d: %w", targetID, err)
	}

	s.log.Info("user status toggled",
		zap.Int64("actor_id", actorID),
		zap.Int64("user_id", target.ID),
		zap.String("status", string(target.Status)),
	)
	return &target, true, nil
}

type ListQuery struct {
	Query    string
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (q *ListQuery) normalize() {
	q.Query = strings.TrimSpace(q.Query)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
}

type Page struct {
	Users    []models.User `json:"users"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func (p Page) HasPrev() bool { return p.Page > 1 }

func (p Page) HasNext() bool { return int64(p.Page*p.PageSize) < p.Total }

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	q.normalize()
	db := s.db.WithContext(ctx).Model(&models.User{})
	if q.Query != "" {
		like := "%" + q.Query + "%"
		db = db.Where("(username LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR email LIKE ?)",
			like, like, like, like)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return Page{}, err
	}
	var list []models.User
	if err := db.Preload("Profile").
		Order("username").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&list).Error; err != nil {
		return Page{}, err
	}
	return Page{Users: list, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Authenticate checks credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, ErrInactiveUser
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&u).UpdateColumn("last_login", now).Error; err != nil {
		return nil, err
	}
	u.LastLogin = &now
	return &u, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, actorID int64, action string, targetID int64, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	rm := RequestMetaFrom(ctx)

	var initiator string
	if actorID != 0 {
		var actor models.User
		if err := tx.Select("id", "username", "first_name", "last_name").First(&actor, actorID).Error; err == nil {
			initiator = actor.DisplayName()
		}
	}

	entry := models.AuditLog{
		UserID:        actorID,
		Action:        action,
		ResourceType:  "user",
		ResourceID:    targetID,
		Metadata:      datatypes.JSON(raw),
		IP:            rm.IP,
		UserAgent:     rm.UserAgent,
		InitiatorName: initiator,
	}
	return tx.Create(&entry).Error
}
