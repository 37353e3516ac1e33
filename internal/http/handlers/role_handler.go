package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"useradmin/internal/users"
)

func ListGroups(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, err := svc.ListGroups(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
	}
}

func CreateGroup(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string   `json:"name" binding:"required,max=150"`
			Description string   `json:"description"`
			Permissions []string `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		group, err := svc.CreateGroup(c.Request.Context(), input.Name, input.Description, input.Permissions)
		switch {
		case errors.Is(err, users.ErrGroupExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case errors.Is(err, users.ErrUnknownPermission):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"group": group})
	}
}
