// Package snapshot keeps point-in-time backups of products, ledger entries
// and recipes in the database, restores them and prunes old ones by count.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/dataset"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"gorm.io/gorm"
)

const DefaultDescription = "Automatic backup"

type Manager struct {
	db        *gorm.DB
	guard     *guard.Guard
	rec       metrics.Recorder
	retention int
}

// New returns a manager whose Checkpoint keeps the newest retention
// backups.
func New(db *gorm.DB, g *guard.Guard, rec metrics.Recorder, retention int) *Manager {
	if g == nil {
		g = guard.New()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if retention < 1 {
		retention = 50
	}
	return &Manager{db: db, guard: g, rec: rec, retention: retention}
}

func (m *Manager) Retention() int { return m.retention }

// Info describes a backup without its payload.
type Info struct {
	ID             string    `json:"id"`
	Description    *string   `json:"description"`
	CreatedAt      time.Time `json:"createdAt"`
	PayloadVersion int       `json:"payloadVersion"`
}

func infoOf(b *models.Backup) Info {
	return Info{ID: b.ID, Description: b.Description, CreatedAt: b.CreatedAt, PayloadVersion: b.PayloadVersion}
}

// metaColumns is everything but the payload.
var metaColumns = []string{"id", "description", "payload_version", "sequence", "created_at"}

// CreateSnapshot copies the core tables into a new backup. The copy is read
// in one repeatable-read transaction, so concurrent ledger writes are either
// fully in it or not at all.
func (m *Manager) CreateSnapshot(ctx context.Context, description string) (info *Info, err error) {
	const op = "snapshot.CreateSnapshot"
	defer metrics.Track(ctx, m.rec, op, time.Now(), &err)

	description = strings.TrimSpace(description)
	if description == "" {
		description = DefaultDescription
	}

	var set *dataset.Set
	err = database.Transaction(ctx, m.db, sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		var err error
		set, err = dataset.Load(tx, dataset.Core)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}

	payload, err := encodePayload(set, time.Now())
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}

	backup := &models.Backup{
		Description:    &description,
		Payload:        payload,
		PayloadVersion: PayloadVersion,
	}
	err = database.Transaction(ctx, m.db, sql.LevelDefault, func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.Backup{}).Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}
		backup.Sequence = maxSeq + 1
		if err := tx.Create(backup).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "backup",
			EntityID:    backup.ID,
			Action:      models.AuditActionCreate,
			Description: description,
			After:       set.Counts(),
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}

	i := infoOf(backup)
	return &i, nil
}

// ListSnapshots returns backups newest first.
func (m *Manager) ListSnapshots(ctx context.Context) ([]Info, error) {
	const op = "snapshot.ListSnapshots"
	var backups []models.Backup
	if err := m.db.WithContext(ctx).Select(metaColumns).Order(models.BackupNewestFirst).Find(&backups).Error; err != nil {
		return nil, apperr.Storage(op, "", err)
	}
	out := make([]Info, 0, len(backups))
	for i := range backups {
		out = append(out, infoOf(&backups[i]))
	}
	return out, nil
}

func (m *Manager) GetSnapshot(ctx context.Context, id string) (*Info, error) {
	const op = "snapshot.GetSnapshot"
	var b models.Backup
	if err := m.db.WithContext(ctx).Select(metaColumns).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "backup", id)
		}
		return nil, apperr.Storage(op, id, err)
	}
	i := infoOf(&b)
	return &i, nil
}

// RestoreResult reports what a restore wrote.
type RestoreResult struct {
	Products          int `json:"products"`
	LedgerEntries     int `json:"ledgerEntries"`
	Recipes           int `json:"recipes"`
	RecipeIngredients int `json:"recipeIngredients"`
	MealLinksKept     int `json:"mealLinksKept"`
	MealLinksDropped  int `json:"mealLinksDropped"`
}

// RestoreSnapshot replaces products, ledger entries, recipes and ingredients
// with the backup's copy, keeping the original ids. Meal plans stay; their
// recipe links are put back when the recipe exists in the backup. Nothing
// changes if any step fails.
func (m *Manager) RestoreSnapshot(ctx context.Context, id string) (res *RestoreResult, err error) {
	const op = "snapshot.RestoreSnapshot"
	defer metrics.Track(ctx, m.rec, op, time.Now(), &err)

	var backup models.Backup
	if err := m.db.WithContext(ctx).First(&backup, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "backup", id)
		}
		return nil, apperr.Storage(op, id, err)
	}

	set, version, err := decodePayload(backup.Payload)
	if err != nil {
		return nil, apperr.Validation(op, "backup %s (payload version %d) cannot be restored: %v", id, version, err)
	}

	unlock := m.guard.Exclusive()
	defer unlock()

	res = &RestoreResult{
		Products:          len(set.Products),
		LedgerEntries:     len(set.LedgerEntries),
		Recipes:           len(set.Recipes),
		RecipeIngredients: len(set.RecipeIngredients),
	}
	err = database.Transaction(ctx, m.db, sql.LevelSerializable, func(tx *gorm.DB) error {
		var links []models.MealPlanRecipe
		if err := tx.Find(&links).Error; err != nil {
			return fmt.Errorf("set aside meal plan links: %w", err)
		}

		if err := dataset.Wipe(tx, dataset.Core); err != nil {
			return err
		}
		if err := dataset.Insert(tx, set); err != nil {
			return err
		}

		recipes := make(map[string]bool, len(set.Recipes))
		for _, r := range set.Recipes {
			recipes[r.ID] = true
		}
		kept := links[:0]
		for _, l := range links {
			if recipes[l.RecipeID] {
				kept = append(kept, l)
			}
		}
		res.MealLinksKept = len(kept)
		res.MealLinksDropped = len(links) - len(kept)
		if len(kept) > 0 {
			if err := tx.CreateInBatches(&kept, 200).Error; err != nil {
				return fmt.Errorf("restore meal plan links: %w", err)
			}
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "backup",
			EntityID:    id,
			Action:      models.AuditActionRestore,
			Description: "restored backup",
			After:       res,
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, id, err)
	}
	return res, nil
}

// EnforceRetention deletes every backup after the newest keep and returns
// how many went.
func (m *Manager) EnforceRetention(ctx context.Context, keep int) (deleted int, err error) {
	const op = "snapshot.EnforceRetention"
	defer metrics.Track(ctx, m.rec, op, time.Now(), &err)

	if keep < 0 {
		return 0, apperr.Validation(op, "keep count cannot be negative")
	}

	err = database.Transaction(ctx, m.db, sql.LevelDefault, func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.Backup{}).Order(models.BackupNewestFirst).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		stale := ids[keep:]
		for start := 0; start < len(stale); start += 500 {
			end := min(start+500, len(stale))
			if err := tx.Where("id IN ?", stale[start:end]).Delete(&models.Backup{}).Error; err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	if err != nil {
		return 0, apperr.Storage(op, "", err)
	}
	return deleted, nil
}

func (m *Manager) DeleteSnapshot(ctx context.Context, id string) (err error) {
	const op = "snapshot.DeleteSnapshot"
	defer metrics.Track(ctx, m.rec, op, time.Now(), &err)

	err = database.Transaction(ctx, m.db, sql.LevelDefault, func(tx *gorm.DB) error {
		res := tx.Delete(&models.Backup{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(op, "backup", id)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "backup",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: "deleted backup",
		})
	})
	return apperr.Storage(op, id, err)
}

// Checkpoint takes a backup and prunes down to the configured retention.
// Callers run it before destructive changes and abort when it fails.
func (m *Manager) Checkpoint(ctx context.Context, description string) error {
	if _, err := m.CreateSnapshot(ctx, description); err != nil {
		return err
	}
	_, err := m.EnforceRetention(ctx, m.retention)
	return err
}
