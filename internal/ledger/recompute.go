package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Replay folds signed quantities from zero over entries, which must already
// be in ledger order. It returns the running balance after each entry and
// the final stock.
func Replay(entries []models.LedgerEntry) ([]decimal.Decimal, decimal.Decimal) {
	balances := make([]decimal.Decimal, len(entries))
	running := decimal.Zero
	for i, e := range entries {
		running = running.Add(e.Direction.Signed(e.Quantity))
		balances[i] = running
	}
	return balances, running
}

// recompute rewrites the balances that differ from the replay and sets the
// product's stock. It returns the stock and how many entries changed.
func recompute(tx *gorm.DB, productID string) (decimal.Decimal, int, error) {
	var entries []models.LedgerEntry
	if err := tx.Where("product_id = ?", productID).Order(models.LedgerOrder).Find(&entries).Error; err != nil {
		return decimal.Zero, 0, err
	}

	balances, stock := Replay(entries)
	changed := 0
	for i, e := range entries {
		if e.Balance.Equal(balances[i]) {
			continue
		}
		if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", e.ID).Update("balance", balances[i]).Error; err != nil {
			return decimal.Zero, 0, err
		}
		changed++
	}

	if err := tx.Model(&models.Product{}).Where("id = ?", productID).Update("current_stock", stock).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return stock, changed, nil
}

// Recompute replays the product's ledger and stores the result. Running it
// twice leaves the data unchanged.
func (e *Engine) Recompute(ctx context.Context, productID string) (stock decimal.Decimal, err error) {
	const op = "ledger.Recompute"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	unlock := e.guard.Product(productID)
	defer unlock()

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, op, productID)
		if err != nil {
			return err
		}
		var changed int
		stock, changed, err = recompute(tx, productID)
		if err != nil {
			return err
		}
		if changed == 0 && p.CurrentStock.Equal(stock) {
			return nil
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "product",
			EntityID:    productID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("recomputed ledger: %d balances corrected", changed),
			Before:      map[string]string{"currentStock": p.CurrentStock.String()},
			After:       map[string]string{"currentStock": stock.String()},
		})
	})
	if err != nil {
		return decimal.Zero, apperr.Storage(op, productID, err)
	}
	return stock, nil
}

// RecomputeAll runs Recompute for every product and returns how many there
// were.
func (e *Engine) RecomputeAll(ctx context.Context) (int, error) {
	const op = "ledger.RecomputeAll"
	var ids []string
	if err := e.db.WithContext(ctx).Model(&models.Product{}).Order("name ASC").Pluck("id", &ids).Error; err != nil {
		return 0, apperr.Storage(op, "", err)
	}
	for _, id := range ids {
		if _, err := e.Recompute(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

type EntryDrift struct {
	EntryID  string
	Stored   decimal.Decimal
	Expected decimal.Decimal
}

// Report is the result of replaying one product without writing.
type Report struct {
	ProductID     string
	ProductName   string
	StoredStock   decimal.Decimal
	ExpectedStock decimal.Decimal
	Drift         []EntryDrift
	// entries whose expected balance is below zero
	Negative []string
}

func (r Report) OK() bool {
	return len(r.Drift) == 0 && len(r.Negative) == 0 && r.StoredStock.Equal(r.ExpectedStock)
}

func (e *Engine) Verify(ctx context.Context, productID string) (*Report, error) {
	const op = "ledger.Verify"
	var rep *Report
	err := database.Transaction(ctx, e.db, sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, "id = ?", productID).Error; err != nil {
			return err
		}
		var err error
		rep, err = verify(tx, &p)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(op, productID, err)
	}
	return rep, nil
}

// VerifyAll returns a report for every product, ordered by name.
func (e *Engine) VerifyAll(ctx context.Context) ([]Report, error) {
	const op = "ledger.VerifyAll"
	var reports []Report
	err := database.Transaction(ctx, e.db, sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		var products []models.Product
		if err := tx.Order("name ASC").Find(&products).Error; err != nil {
			return err
		}
		for i := range products {
			rep, err := verify(tx, &products[i])
			if err != nil {
				return err
			}
			reports = append(reports, *rep)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}
	return reports, nil
}

func verify(tx *gorm.DB, p *models.Product) (*Report, error) {
	var entries []models.LedgerEntry
	if err := tx.Where("product_id = ?", p.ID).Order(models.LedgerOrder).Find(&entries).Error; err != nil {
		return nil, err
	}
	balances, stock := Replay(entries)
	rep := &Report{
		ProductID:     p.ID,
		ProductName:   p.Name,
		StoredStock:   p.CurrentStock,
		ExpectedStock: stock,
	}
	for i, e := range entries {
		if !e.Balance.Equal(balances[i]) {
			rep.Drift = append(rep.Drift, EntryDrift{EntryID: e.ID, Stored: e.Balance, Expected: balances[i]})
		}
		if balances[i].IsNegative() {
			rep.Negative = append(rep.Negative, e.ID)
		}
	}
	return rep, nil
}
