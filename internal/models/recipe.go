package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Recipe struct {
	ID          string   `gorm:"size:36;primaryKey"`
	Name        string   `gorm:"size:200;not null"`
	Description *string  `gorm:"type:text"`
	Servings    int      `gorm:"not null;default:1"`
	MealType    *string  `gorm:"size:30"`         // legacy single category
	Categories  []string `gorm:"serializer:json"` // BREAKFAST, LUNCH, DINNER ...
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE"`
	MealLinks   []MealPlanRecipe   `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE"`
}

// RecipeIngredient optionally points at a stock product; ProductName is kept
// so the ingredient survives the product being deleted.
type RecipeIngredient struct {
	ID          string          `gorm:"size:36;primaryKey"`
	RecipeID    string          `gorm:"size:36;not null;index"`
	ProductID   *string         `gorm:"size:36;index"`
	ProductName string          `gorm:"size:200;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Unit        string          `gorm:"size:20;not null"`
}
