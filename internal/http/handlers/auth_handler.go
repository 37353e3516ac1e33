package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"useradmin/internal/auth"
	"useradmin/internal/forms"
	"useradmin/internal/rbac"
	"useradmin/internal/users"
)

// Session carries what the login handlers need to issue cookies.
type Session struct {
	Secret        string
	TTL           time.Duration
	SecureCookies bool
}

// LoginPage renders the login form.
func LoginPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		f := &forms.LoginForm{Next: safeNext(c.Query("next"))}
		render(c, http.StatusOK, "login.tmpl", gin.H{"title": "Login", "form": f})
	}
}

// Login handles the login form and sets the session cookie.
func Login(svc *users.Service, sess Session, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f forms.LoginForm
		if err := c.ShouldBindWith(&f, binding.Form); err != nil {
			f.Errors = forms.FromBinding(err)
			render(c, http.StatusOK, "login.tmpl", gin.H{"title": "Login", "form": &f})
			return
		}

		user, err := svc.Authenticate(c.Request.Context(), f.Username, f.Password)
		if err != nil {
			f.Errors = forms.Errors{}
			switch {
			case errors.Is(err, users.ErrInvalidCredentials):
				f.Errors.Add(forms.NonFieldErrors, "Please enter a correct username and password.")
			case errors.Is(err, users.ErrInactiveUser):
				f.Errors.Add(forms.NonFieldErrors, "This account is inactive.")
			default:
				log.Error("login failed", zap.Error(err))
				f.Errors.Add(forms.NonFieldErrors, "Login is unavailable right now.")
			}
			f.Password = ""
			render(c, http.StatusOK, "login.tmpl", gin.H{"title": "Login", "form": &f})
			return
		}

		token, err := auth.IssueToken(sess.Secret, user, sess.TTL)
		if err != nil {
			log.Error("issue token", zap.Error(err))
			c.String(http.StatusInternalServerError, "failed to create session")
			return
		}
		auth.SetSessionCookie(c, token, sess.TTL, sess.SecureCookies)
		log.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("username", user.Username))

		next := safeNext(f.Next)
		if next == "" {
			next = "/users"
		}
		c.Redirect(http.StatusFound, next)
	}
}

// LogoutHandler clears the session cookie and redirects to the login page.
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.ClearSessionCookie(c)
		c.Redirect(http.StatusFound, "/login")
	}
}

// LoginHandler authenticates the user and returns a JWT.
func LoginHandler(svc *users.Service, sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := svc.Authenticate(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			switch {
			case errors.Is(err, users.ErrInvalidCredentials):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			case errors.Is(err, users.ErrInactiveUser):
				c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		token, err := auth.IssueToken(sess.Secret, user, sess.TTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
			return
		}
		// Also set the cookie so a browser can move on to the HTML pages.
		auth.SetSessionCookie(c, token, sess.TTL, sess.SecureCookies)

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  user,
		})
	}
}

// MeHandler returns the current user and their effective permissions.
func MeHandler(svc *users.Service, chk rbac.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := auth.ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := svc.Get(c.Request.Context(), cl.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		perms, err := chk.Permissions(c.Request.Context(), cl.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "permissions": perms})
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
