package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"useradmin/internal/users"
)

func auditQuery(c *gin.Context) users.AuditQuery {
	q := users.AuditQuery{Limit: queryInt(c, "limit"), Query: c.Query("q")}
	if cursorStr := c.Query("after_id"); cursorStr != "" {
		if parsed, err := strconv.ParseInt(cursorStr, 10, 64); err == nil && parsed > 0 {
			q.AfterID = parsed
		}
	}
	return q
}

func ListAudit(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svc.Audit(c.Request.Context(), auditQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func AuditPage(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svc.Audit(c.Request.Context(), auditQuery(c))
		if err != nil {
			_ = c.Error(err)
			c.String(http.StatusInternalServerError, "failed to load audit trail")
			return
		}
		render(c, http.StatusOK, "audit.tmpl", gin.H{"title": "Audit", "page": page})
	}
}
