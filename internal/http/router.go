package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"useradmin/internal/auth"
	"useradmin/internal/forms"
	"useradmin/internal/http/handlers"
	"useradmin/internal/logger"
	"useradmin/internal/rbac"
	"useradmin/internal/ui"
	"useradmin/internal/users"
)

type Options struct {
	DB            *gorm.DB
	Log           *zap.Logger
	JWTSecret     string
	TokenTTL      time.Duration
	SecureCookies bool
	// Users overrides the service built from DB (tests lower the hash cost).
	Users *users.Service
}

func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	svc := opts.Users
	if svc == nil {
		svc = users.NewService(opts.DB, opts.Log)
	}
	forms.RegisterValidators()

	tmpl, err := ui.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := gin.New()
	r.Use(logger.GinLogger(opts.Log), gin.Recovery(), requestMeta())
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", http.FS(ui.Static()))

	// favicon fix
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	chk := rbac.Checker{DB: opts.DB}
	authMW := auth.JWT(opts.DB, opts.JWTSecret)
	sess := handlers.Session{Secret: opts.JWTSecret, TTL: opts.TokenTTL, SecureCookies: opts.SecureCookies}

	// HTML surface
	site := r.Group("/", auth.CSRF(auth.CSRFKey(opts.JWTSecret), opts.SecureCookies))
	{
		site.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/users") })
		site.GET("/login", handlers.LoginPage())
		site.POST("/login", handlers.Login(svc, sess, opts.Log))
		site.GET("/logout", handlers.LogoutHandler())

		pages := site.Group("/", authMW, handlers.CurrentUser(svc))
		pages.GET("/profile", handlers.ProfileHandler(chk))
		pages.GET("/users", handlers.UserListPage(svc, chk))
		pages.GET("/users/new", require(chk, rbac.PermAddUser), handlers.UserCreatePage(svc, opts.Log))
		pages.POST("/users/new", require(chk, rbac.PermAddUser), handlers.UserCreatePage(svc, opts.Log))
		pages.GET("/users/:id/active-or-disable", require(chk, rbac.PermToggleUser), handlers.UserTogglePage(svc))
		pages.POST("/users/:id/active-or-disable", require(chk, rbac.PermToggleUser), handlers.UserTogglePage(svc))
		pages.GET("/audit", require(chk, rbac.PermViewAuditLog), handlers.AuditPage(svc))
	}

	// Public routes
	r.POST("/api/v1/auth/login", handlers.LoginHandler(svc, sess))

	api := r.Group("/api/v1", authMW)
	{
		// Current user info & permissions
		api.GET("/me", handlers.MeHandler(svc, chk))
		// Users
		api.GET("/users", handlers.ListUsers(svc))
		api.POST("/users", require(chk, rbac.PermAddUser), handlers.CreateUser(svc))
		api.POST("/users/:id/toggle-active", require(chk, rbac.PermToggleUser), handlers.ToggleUser(svc))
		api.POST("/users/:id/permissions", require(chk, rbac.PermChangeUser), handlers.GrantPermissions(svc))

		// Groups
		api.GET("/groups", require(chk, rbac.PermViewUser), handlers.ListGroups(svc))
		api.POST("/groups", require(chk, rbac.PermChangeUser), handlers.CreateGroup(svc))

		// Audit Trail
		api.GET("/audit", require(chk, rbac.PermViewAuditLog), handlers.ListAudit(svc))
	}

	return r, nil
}

// require aborts with 403 unless the authenticated user holds permKey.
// It must run after auth.JWT.
func require(chk rbac.Checker, permKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := auth.ClaimsFrom(c)
		if !ok {
			handlers.Forbidden(c, permKey)
			return
		}
		allowed, err := chk.Can(c.Request.Context(), cl.UserID, permKey)
		if err != nil && !errors.Is(err, rbac.ErrUnknownUser) {
			_ = c.Error(err)
		}
		if !allowed {
			handlers.Forbidden(c, permKey)
			return
		}
		c.Next()
	}
}

// requestMeta exposes the client address to the audit trail.
func requestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := users.WithRequestMeta(c.Request.Context(), users.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
