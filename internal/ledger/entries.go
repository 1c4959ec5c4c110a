package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EntryInput struct {
	Date      time.Time
	Document  string
	Direction models.Direction
	Quantity  decimal.Decimal
}

func (in *EntryInput) normalize(op string) error {
	if !in.Quantity.IsPositive() {
		return apperr.Validation(op, "quantity must be greater than zero")
	}
	d, ok := models.ParseDirection(string(in.Direction))
	if !ok {
		return apperr.Validation(op, "unknown direction %q", in.Direction)
	}
	in.Direction = d
	if in.Date.IsZero() {
		return apperr.Validation(op, "date is required")
	}
	in.Date = in.Date.UTC()
	in.Document = strings.TrimSpace(in.Document)
	return nil
}

// ListEntries returns the product's entries in ledger order.
func (e *Engine) ListEntries(ctx context.Context, productID string) ([]models.LedgerEntry, error) {
	const op = "ledger.ListEntries"
	db := e.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Product{}).Where("id = ?", productID).Count(&n).Error; err != nil {
		return nil, apperr.Storage(op, productID, err)
	}
	if n == 0 {
		return nil, apperr.NotFound(op, "product", productID)
	}
	var entries []models.LedgerEntry
	if err := db.Where("product_id = ?", productID).Order(models.LedgerOrder).Find(&entries).Error; err != nil {
		return nil, apperr.Storage(op, productID, err)
	}
	return entries, nil
}

func (e *Engine) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	const op = "ledger.GetEntry"
	entry, err := findEntry(e.db.WithContext(ctx), op, id)
	if err != nil {
		return nil, apperr.Storage(op, id, err)
	}
	return entry, nil
}

// AppendEntry records a movement. The resulting stock may not go below
// zero. An entry dated before the product's newest entry is inserted and the
// ledger is replayed so later balances include it.
func (e *Engine) AppendEntry(ctx context.Context, productID string, in EntryInput) (entry *models.LedgerEntry, err error) {
	const op = "ledger.AppendEntry"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	if err := in.normalize(op); err != nil {
		return nil, err
	}

	unlock := e.guard.Product(productID)
	defer unlock()

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, op, productID)
		if err != nil {
			return err
		}

		newBalance := p.CurrentStock.Add(in.Direction.Signed(in.Quantity))
		if newBalance.IsNegative() {
			return apperr.InsufficientStock(op, productID,
				fmt.Sprintf("insufficient stock: %s %s available, %s requested", p.CurrentStock, p.Unit, in.Quantity))
		}

		var last []models.LedgerEntry
		if err := tx.Where("product_id = ?", productID).
			Order("date DESC, sequence DESC, created_at DESC, id DESC").
			Limit(1).Find(&last).Error; err != nil {
			return err
		}
		var maxSeq int64
		if err := tx.Model(&models.LedgerEntry{}).Where("product_id = ?", productID).
			Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}

		entry = &models.LedgerEntry{
			ProductID: productID,
			Date:      in.Date,
			Document:  in.Document,
			Direction: in.Direction,
			Quantity:  in.Quantity,
			Balance:   newBalance,
			Sequence:  maxSeq + 1,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		if len(last) > 0 && in.Date.Before(last[0].Date) {
			if _, _, err := recompute(tx, productID); err != nil {
				return err
			}
			if err := tx.First(entry, "id = ?", entry.ID).Error; err != nil {
				return err
			}
		} else if err := tx.Model(&models.Product{}).Where("id = ?", productID).
			Update("current_stock", newBalance).Error; err != nil {
			return err
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ledger_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s %s %s of %s", in.Direction, in.Quantity, p.Unit, p.Name),
			After:       entry,
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, productID, err)
	}
	return entry, nil
}

// AmendEntry rewrites an entry and replays its product's ledger. The
// non-negative check of AppendEntry is not applied here; Verify reports
// balances that went negative.
func (e *Engine) AmendEntry(ctx context.Context, entryID string, in EntryInput) (entry *models.LedgerEntry, err error) {
	const op = "ledger.AmendEntry"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	if err := in.normalize(op); err != nil {
		return nil, err
	}
	current, err := findEntry(e.db.WithContext(ctx), op, entryID)
	if err != nil {
		return nil, apperr.Storage(op, entryID, err)
	}

	unlock := e.guard.Product(current.ProductID)
	defer unlock()

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		if _, err := lockProduct(tx, op, current.ProductID); err != nil {
			return err
		}
		before, err := findEntry(tx, op, entryID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", entryID).Updates(map[string]any{
			"date":      in.Date,
			"document":  in.Document,
			"direction": in.Direction,
			"quantity":  in.Quantity,
		}).Error; err != nil {
			return err
		}
		if _, _, err := recompute(tx, before.ProductID); err != nil {
			return err
		}

		entry = &models.LedgerEntry{}
		if err := tx.First(entry, "id = ?", entryID).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ledger_entry",
			EntityID:    entryID,
			Action:      models.AuditActionUpdate,
			Description: "amended ledger entry",
			Before:      before,
			After:       entry,
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, entryID, err)
	}
	return entry, nil
}

// RemoveEntry deletes an entry and replays its product's ledger.
func (e *Engine) RemoveEntry(ctx context.Context, entryID string) (err error) {
	const op = "ledger.RemoveEntry"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	current, err := findEntry(e.db.WithContext(ctx), op, entryID)
	if err != nil {
		return apperr.Storage(op, entryID, err)
	}

	unlock := e.guard.Product(current.ProductID)
	defer unlock()

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		if _, err := lockProduct(tx, op, current.ProductID); err != nil {
			return err
		}
		before, err := findEntry(tx, op, entryID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.LedgerEntry{}, "id = ?", entryID).Error; err != nil {
			return err
		}
		if _, _, err := recompute(tx, before.ProductID); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ledger_entry",
			EntityID:    entryID,
			Action:      models.AuditActionDelete,
			Description: "removed ledger entry",
			Before:      before,
		})
	})
	return apperr.Storage(op, entryID, err)
}
