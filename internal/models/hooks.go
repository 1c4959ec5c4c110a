package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identifiers are assigned on create unless the caller brings one (restore
// and import keep the original ids).

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	newID(&e.ID)
	return nil
}

// BeforeSave keeps ledger dates in UTC so ordering is the same on every
// dialect, including SQLite where times are stored as text.
func (e *LedgerEntry) BeforeSave(*gorm.DB) error {
	e.Date = e.Date.UTC()
	return nil
}

func (b *Backup) BeforeCreate(*gorm.DB) error {
	newID(&b.ID)
	return nil
}

func (r *Recipe) BeforeCreate(*gorm.DB) error {
	newID(&r.ID)
	return nil
}

func (i *RecipeIngredient) BeforeCreate(*gorm.DB) error {
	newID(&i.ID)
	return nil
}

func (s *NutritionalStandard) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (m *MealPlan) BeforeCreate(*gorm.DB) error {
	newID(&m.ID)
	return nil
}

func (d *MealPlanDay) BeforeCreate(*gorm.DB) error {
	newID(&d.ID)
	return nil
}

func (m *MealPlanMeal) BeforeCreate(*gorm.DB) error {
	newID(&m.ID)
	return nil
}

func (r *MealPlanRecipe) BeforeCreate(*gorm.DB) error {
	newID(&r.ID)
	return nil
}
