package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"useradmin/internal/auth"
	"useradmin/internal/users"
)

// GrantPermissions adds direct permissions and group memberships to a user.
func GrantPermissions(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		var input struct {
			Permissions []string `json:"permissions"`
			Groups      []string `json:"groups"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cl, _ := auth.ClaimsFrom(c)
		user, err := svc.Grant(c.Request.Context(), cl.UserID, id, input.Permissions, input.Groups)
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case errors.Is(err, users.ErrUnknownPermission), errors.Is(err, users.ErrGroupNotFound), errors.Is(err, users.ErrEmptyGrant):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
