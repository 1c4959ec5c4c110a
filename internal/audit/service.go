package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"kartoteka-backend/internal/models"

	"gorm.io/gorm"
)

type actorKey struct{}

// WithActor tags ctx with the name written to AuditLog.Actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the actor stored in ctx, "system" when there is none.
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

type LogOptions struct {
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores one audit row using tx, so it commits or rolls back with
// the mutation it describes.
func WriteLog(ctx context.Context, tx *gorm.DB, opts LogOptions) error {
	row := models.AuditLog{
		Actor:       Actor(ctx),
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshal(opts.Before),
		AfterData:   marshal(opts.After),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func marshal(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type Filter struct {
	EntityType string
	EntityID   string
	Actor      string
	Limit      int
}

// List returns audit rows newest first.
func List(ctx context.Context, db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
