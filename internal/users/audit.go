package users

import (
	"context"
	"strings"

	"useradmin/internal/models"
)

type AuditQuery struct {
	Limit   int
	AfterID int64
	Query   string
}

type AuditPage struct {
	Logs       []models.AuditLog `json:"logs"`
	NextCursor *int64            `json:"next_cursor"`
}

// Audit lists audit entries newest first. NextCursor is set when more
// entries exist below the last returned id.
func (s *Service) Audit(ctx context.Context, q AuditQuery) (AuditPage, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	db := s.db.WithContext(ctx).Model(&models.AuditLog{}).Order("id DESC")
	if q.AfterID > 0 {
		db = db.Where("id < ?", q.AfterID)
	}
	if search := strings.TrimSpace(q.Query); search != "" {
		like := "%" + search + "%"
		db = db.Where("(initiator_name LIKE ? OR action LIKE ? OR resource_type LIKE ? OR ip LIKE ?)",
			like, like, like, like)
	}

	var logs []models.AuditLog
	if err := db.Limit(q.Limit + 1).Find(&logs).Error; err != nil {
		return AuditPage{}, err
	}

	var next *int64
	if len(logs) > q.Limit {
		logs = logs[:q.Limit]
		id := logs[q.Limit-1].ID
		next = &id
	}
	return AuditPage{Logs: logs, NextCursor: next}, nil
}
