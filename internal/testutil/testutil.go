package testutil

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"useradmin/internal/auth"
	"useradmin/internal/db"
	"useradmin/internal/models"
	"useradmin/internal/rbac"
	"useradmin/internal/seed"
)

const (
	// Password is the clear-text password of every fixture user.
	Password  = "password"
	JWTSecret = "test-secret"
)

// OpenDB opens a private in-memory SQLite database, migrates it and seeds
// the permission catalog.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared cache keeps one database across the pool's connections.
	dsn := "file:" + strings.ReplaceAll(uuid.NewString(), "-", "") + "?mode=memory&cache=shared"
	gdb, err := db.Connect("sqlite", dsn, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	// One connection: shared-cache SQLite locks tables across connections.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(gdb, models.All()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if _, err := seed.EnsurePermissions(gdb); err != nil {
		t.Fatalf("seed permissions: %v", err)
	}
	return gdb
}

type UserOption func(*models.User)

func Disabled() UserOption { return func(u *models.User) { u.Status = models.UserDisabled } }

func Superuser() UserOption { return func(u *models.User) { u.IsSuperuser = true } }

func WithRole(r models.ProfileRole) UserOption { return func(u *models.User) { u.ProfileRole = r } }

// CreateUser inserts a user whose password is Password.
func CreateUser(t *testing.T, gdb *gorm.DB, username string, opts ...UserOption) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &models.User{Username: username, PasswordHash: string(hash), Status: models.UserActive}
	for _, o := range opts {
		o(u)
	}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// Grant gives user the permissions named by keys.
func Grant(t *testing.T, gdb *gorm.DB, user *models.User, keys ...string) {
	t.Helper()
	for _, k := range keys {
		app, codename, ok := rbac.SplitKey(k)
		if !ok {
			t.Fatalf("bad permission key %q", k)
		}
		var p models.Permission
		if err := gdb.Where("app_label = ? AND codename = ?", app, codename).First(&p).Error; err != nil {
			t.Fatalf("load permission %s: %v", k, err)
		}
		if err := gdb.Model(user).Association("Permissions").Append(&p); err != nil {
			t.Fatalf("grant %s: %v", k, err)
		}
	}
}

// Reload re-reads user from the database.
func Reload(t *testing.T, gdb *gorm.DB, user *models.User) *models.User {
	t.Helper()
	var fresh models.User
	if err := gdb.Preload("Profile").First(&fresh, user.ID).Error; err != nil {
		t.Fatalf("reload user %d: %v", user.ID, err)
	}
	return &fresh
}

// SessionCookie returns the cookie a logged-in browser would send.
func SessionCookie(t *testing.T, user *models.User) *http.Cookie {
	t.Helper()
	token, err := auth.IssueToken(JWTSecret, user, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

// BearerHeader returns an Authorization header value for user.
func BearerHeader(t *testing.T, user *models.User) string {
	t.Helper()
	return "Bearer " + SessionCookie(t, user).Value
}
