package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"useradmin/internal/rbac"
)

// ProfileHandler renders the profile page for the currently authenticated user.
func ProfileHandler(chk rbac.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := me(c)
		if user == nil {
			// JWT middleware should have redirected, but ensure fallback.
			c.Redirect(http.StatusSeeOther, "/login")
			return
		}

		perms, err := chk.Permissions(c.Request.Context(), user.ID)
		if err != nil {
			_ = c.Error(err)
		}
		render(c, http.StatusOK, "profile.tmpl", gin.H{
			"title":       "Profile",
			"user":        user,
			"permissions": perms,
		})
	}
}
