package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"useradmin/internal/auth"
	"useradmin/internal/models"
	"useradmin/internal/users"
)

const meKey = "me"

// CurrentUser loads the authenticated user for templates. It must run after
// auth.JWT.
func CurrentUser(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := auth.ClaimsFrom(c)
		if !ok {
			c.Next()
			return
		}
		u, err := svc.Get(c.Request.Context(), cl.UserID)
		if err != nil {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Set(meKey, u)
		c.Next()
	}
}

func me(c *gin.Context) *models.User {
	u, _ := c.Get(meKey)
	m, _ := u.(*models.User)
	return m
}

// render executes a template with the values every page needs.
func render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["title"]; !ok {
		data["title"] = "User admin"
	}
	data["me"] = me(c)
	data["csrf_token"] = auth.CSRFToken(c)
	c.HTML(status, name, data)
}

// Forbidden answers a failed permission check.
func Forbidden(c *gin.Context, missing string) {
	if auth.WantsHTML(c) {
		render(c, http.StatusForbidden, "403.tmpl", gin.H{"title": "Forbidden", "missing": missing})
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "missing": missing})
}

func notFound(c *gin.Context, msg string) {
	if auth.WantsHTML(c) {
		render(c, http.StatusNotFound, "404.tmpl", gin.H{"title": "Not found", "message": msg})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": msg})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}
