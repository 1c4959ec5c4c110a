// Package ledger owns products and their stock movements. A product's
// current stock is a projection of its ledger: folding the signed quantities
// in (date, sequence) order from zero gives every entry's balance, and the
// last balance is the stock.
package ledger

import (
	"errors"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Engine struct {
	db    *gorm.DB
	guard *guard.Guard
	rec   metrics.Recorder
}

// New builds an engine. g must be shared with the snapshot manager and the
// transfer codec so restores and imports wait for ledger writers; rec may be
// nil.
func New(db *gorm.DB, g *guard.Guard, rec metrics.Recorder) *Engine {
	if g == nil {
		g = guard.New()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Engine{db: db, guard: g, rec: rec}
}

// lockProduct loads the product row, locking it on Postgres.
func lockProduct(tx *gorm.DB, op, id string) (*models.Product, error) {
	q := tx
	if database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Product
	if err := q.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "product", id)
		}
		return nil, err
	}
	return &p, nil
}

func findEntry(tx *gorm.DB, op, id string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := tx.First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "ledger entry", id)
		}
		return nil, err
	}
	return &e, nil
}
