package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Inflow  Direction = "INFLOW"
	Outflow Direction = "OUTFLOW"
)

// ParseDirection accepts the current names and the legacy INCOME/OUTCOME
// spelling found in old backups and exports.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "INFLOW", "Inflow", "inflow", "INCOME":
		return Inflow, true
	case "OUTFLOW", "Outflow", "outflow", "OUTCOME":
		return Outflow, true
	}
	return "", false
}

// Signed returns q with the sign of the direction.
func (d Direction) Signed(q decimal.Decimal) decimal.Decimal {
	if d == Outflow {
		return q.Neg()
	}
	return q
}

// LedgerEntry: one inventory movement. Balance is the running stock right
// after this entry in (Date, Sequence) order.
type LedgerEntry struct {
	ID        string          `gorm:"size:36;primaryKey"`
	ProductID string          `gorm:"size:36;not null;index:idx_ledger_product_order,priority:1"`
	Date      time.Time       `gorm:"not null;index:idx_ledger_product_order,priority:2"`
	Document  string          `gorm:"size:255;not null;default:''"`
	Direction Direction       `gorm:"size:10;not null"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Sequence  int64           `gorm:"not null;default:0;index:idx_ledger_product_order,priority:3"` // insertion order within the product
	CreatedAt time.Time
}

// LedgerOrder is the chronological order every balance computation uses.
const LedgerOrder = "date ASC, sequence ASC, created_at ASC, id ASC"
