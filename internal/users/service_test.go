package users_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"useradmin/internal/forms"
	"useradmin/internal/models"
	"useradmin/internal/rbac"
	"useradmin/internal/testutil"
	"useradmin/internal/users"
)

func newService(t *testing.T) (*users.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	return users.NewService(db, zap.NewNop(), users.WithHashCost(bcrypt.MinCost)), db
}

func alanForm() *forms.UserForm {
	return &forms.UserForm{
		FirstName: "Alan",
		LastName:  "Turing",
		Email:     "alan@turing.com",
		Username:  "alanturing",
		Password:  "password",
		Role:      string(models.RoleManager),
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Should persist the user and a manager profile", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")

		f := alanForm()
		require.True(t, f.Validate())
		u, err := svc.Create(ctx, actor.ID, f)
		require.NoError(t, err)

		fresh := testutil.Reload(t, db, u)
		assert.Equal(t, "alanturing", fresh.Username)
		assert.Equal(t, "Alan", fresh.FirstName)
		assert.True(t, fresh.IsActive())
		assert.False(t, fresh.IsSuperuser)
		require.NotNil(t, fresh.Profile)
		assert.Equal(t, models.RoleManager, fresh.Profile.Role)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(fresh.PasswordHash), []byte("password")))
	})

	t.Run("Should use the default role when none is given", func(t *testing.T) {
		svc, db := newService(t)
		f := alanForm()
		f.Role = ""
		u, err := svc.Create(ctx, 0, f)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultRole, testutil.Reload(t, db, u).Profile.Role)
	})

	t.Run("Should reject a taken username without writing", func(t *testing.T) {
		svc, db := newService(t)
		testutil.CreateUser(t, db, "alanturing")

		_, err := svc.Create(ctx, 0, alanForm())
		assert.ErrorIs(t, err, users.ErrUsernameTaken)

		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.EqualValues(t, 1, n)
		require.NoError(t, db.Model(&models.AuditLog{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("Should write an audit entry", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")
		ctx := users.WithRequestMeta(ctx, users.RequestMeta{IP: "10.0.0.1", UserAgent: "test"})

		u, err := svc.Create(ctx, actor.ID, alanForm())
		require.NoError(t, err)

		var entry models.AuditLog
		require.NoError(t, db.Where("action = ?", users.ActionCreate).First(&entry).Error)
		assert.Equal(t, actor.ID, entry.UserID)
		assert.Equal(t, u.ID, entry.ResourceID)
		assert.Equal(t, "10.0.0.1", entry.IP)
		assert.Equal(t, "actor", entry.InitiatorName)

		var meta map[string]any
		require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
		assert.Equal(t, "alanturing", meta["username"])
		assert.Equal(t, string(models.RoleManager), meta["role"])
	})
}

func TestService_ToggleActive(t *testing.T) {
	ctx := context.Background()

	t.Run("Should disable an active user", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")
		target := testutil.CreateUser(t, db, "user_enable")

		u, changed, err := svc.ToggleActive(ctx, actor.ID, target.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.False(t, u.IsActive())
		assert.False(t, testutil.Reload(t, db, target).IsActive())
	})

	t.Run("Should enable a disabled user", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")
		target := testutil.CreateUser(t, db, "user_enable", testutil.Disabled())

		_, changed, err := svc.ToggleActive(ctx, actor.ID, target.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, testutil.Reload(t, db, target).IsActive())
	})

	t.Run("Should restore the original status after two calls", func(t *testing.T) {
		for _, opts := range [][]testutil.UserOption{nil, {testutil.Disabled()}} {
			svc, db := newService(t)
			actor := testutil.CreateUser(t, db, "actor")
			target := testutil.CreateUser(t, db, "target", opts...)
			before := target.Status

			for i := 0; i < 2; i++ {
				_, _, err := svc.ToggleActive(ctx, actor.ID, target.ID)
				require.NoError(t, err)
			}
			assert.Equal(t, before, testutil.Reload(t, db, target).Status)
		}
	})

	t.Run("Should not change the actor's own status", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")

		u, changed, err := svc.ToggleActive(ctx, actor.ID, actor.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, u.IsActive())
		assert.True(t, testutil.Reload(t, db, actor).IsActive())

		var n int64
		require.NoError(t, db.Model(&models.AuditLog{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("Should report unknown targets", func(t *testing.T) {
		svc, db := newService(t)
		actor := testutil.CreateUser(t, db, "actor")
		_, _, err := svc.ToggleActive(ctx, actor.ID, actor.ID+100)
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	for i := 0; i < 5; i++ {
		testutil.CreateUser(t, db, fmt.Sprintf("user%02d", i))
	}
	testutil.CreateUser(t, db, "zed")

	page, err := svc.List(ctx, users.ListQuery{PageSize: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 6, page.Total)
	require.Len(t, page.Users, 4)
	assert.Equal(t, "user00", page.Users[0].Username)
	assert.NotNil(t, page.Users[0].Profile)
	assert.False(t, page.HasPrev())
	assert.True(t, page.HasNext())

	page, err = svc.List(ctx, users.ListQuery{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, page.Users, 2)
	assert.True(t, page.HasPrev())
	assert.False(t, page.HasNext())

	page, err = svc.List(ctx, users.ListQuery{Query: "ze"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "zed", page.Users[0].Username)
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	active := testutil.CreateUser(t, db, "active")
	testutil.CreateUser(t, db, "inactive", testutil.Disabled())

	u, err := svc.Authenticate(ctx, "active", testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, active.ID, u.ID)
	assert.NotNil(t, testutil.Reload(t, db, active).LastLogin)

	_, err = svc.Authenticate(ctx, "active", "wrong")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", testutil.Password)
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "inactive", testutil.Password)
	assert.ErrorIs(t, err, users.ErrInactiveUser)
}

func TestService_Audit(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	actor := testutil.CreateUser(t, db, "actor")
	target := testutil.CreateUser(t, db, "target")
	for i := 0; i < 3; i++ {
		_, _, err := svc.ToggleActive(ctx, actor.ID, target.ID)
		require.NoError(t, err)
	}

	page, err := svc.Audit(ctx, users.AuditQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	require.NotNil(t, page.NextCursor)
	assert.Greater(t, page.Logs[0].ID, page.Logs[1].ID)

	rest, err := svc.Audit(ctx, users.AuditQuery{Limit: 2, AfterID: *page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Logs, 1)
	assert.Nil(t, rest.NextCursor)

	none, err := svc.Audit(ctx, users.AuditQuery{Query: "user.create"})
	require.NoError(t, err)
	assert.Empty(t, none.Logs)
}

func TestService_Grant(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	actor := testutil.CreateUser(t, db, "actor")
	target := testutil.CreateUser(t, db, "target")
	chk := rbac.Checker{DB: db}

	_, err := svc.Grant(ctx, actor.ID, target.ID, []string{rbac.PermToggleUser}, nil)
	require.NoError(t, err)
	ok, err := chk.Can(ctx, target.ID, rbac.PermToggleUser)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Grant(ctx, actor.ID, target.ID, []string{"auth.fly"}, nil)
	assert.ErrorIs(t, err, users.ErrUnknownPermission)

	_, err = svc.Grant(ctx, actor.ID, target.ID, nil, []string{"nope"})
	assert.ErrorIs(t, err, users.ErrGroupNotFound)

	_, err = svc.Grant(ctx, actor.ID, 9999, []string{rbac.PermViewUser}, nil)
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	g, err := svc.CreateGroup(ctx, "Auditors", "read the trail", []string{rbac.PermViewAuditLog})
	require.NoError(t, err)
	assert.Len(t, g.Permissions, 1)
	_, err = svc.CreateGroup(ctx, "Auditors", "", nil)
	assert.ErrorIs(t, err, users.ErrGroupExists)

	_, err = svc.Grant(ctx, actor.ID, target.ID, nil, []string{"Auditors", "Auditors"})
	require.NoError(t, err)
	ok, err = chk.Can(ctx, target.ID, rbac.PermViewAuditLog)
	require.NoError(t, err)
	assert.True(t, ok)

	groups, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Auditors", groups[0].Name)
}

func TestService_GrantNothing(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	actor := testutil.CreateUser(t, db, "actor")
	target := testutil.CreateUser(t, db, "target")

	_, err := svc.Grant(ctx, actor.ID, target.ID, nil, []string{""})
	assert.ErrorIs(t, err, users.ErrEmptyGrant)

	var n int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", users.ActionGrant).Count(&n).Error)
	assert.Zero(t, n)
}

func TestService_CreateLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report a password bcrypt cannot hash", func(t *testing.T) {
		svc, db := newService(t)
		f := alanForm()
		f.Password = strings.Repeat("a", 73)

		_, err := svc.Create(ctx, 0, f)
		assert.ErrorIs(t, err, users.ErrPasswordTooLong)

		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("Should report a username taken between check and insert", func(t *testing.T) {
		svc, db := newService(t)
		// Insert the same username right before gorm's own insert runs.
		err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_insert", func(tx *gorm.DB) {
			u, ok := tx.Statement.Dest.(*models.User)
			if !ok || u.Username != "alanturing" {
				return
			}
			now := time.Now()
			_ = tx.Session(&gorm.Session{NewDB: true}).Exec(
				"INSERT INTO users (username, password_hash, status, is_superuser, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
				u.Username, "x", models.UserActive, false, now, now,
			).Error
		})
		require.NoError(t, err)

		_, err = svc.Create(ctx, 0, alanForm())
		assert.ErrorIs(t, err, users.ErrUsernameTaken)
	})
}
