package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: a stock card. CurrentStock is a projection of the ledger and is
// only written by the ledger engine.
type Product struct {
	ID           string          `gorm:"size:36;primaryKey"`
	Name         string          `gorm:"size:200;not null;uniqueIndex"`
	Unit         string          `gorm:"size:20;not null"` // kg, g, szt, l, ml, opak ...
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	Manufacturer *string         `gorm:"size:200"`

	// nutrition per 100 g
	Calories      *float64
	Protein       *float64
	Fat           *float64
	SaturatedFat  *float64
	Carbohydrates *float64
	Sugars        *float64
	Salt          *float64
	Calcium       *float64
	Iron          *float64
	VitaminC      *float64

	Allergens []int `gorm:"serializer:json"` // EU allergen numbers 1..14

	CreatedAt time.Time
	UpdatedAt time.Time

	Entries     []LedgerEntry      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Ingredients []RecipeIngredient `gorm:"foreignKey:ProductID;constraint:OnDelete:SET NULL"`
}
