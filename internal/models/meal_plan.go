package models

import "time"

type NutritionalStandard struct {
	ID                      string  `gorm:"size:36;primaryKey"`
	Name                    string  `gorm:"size:200;not null"`
	EnergyMin               float64 `gorm:"not null"`
	EnergyMax               float64 `gorm:"not null"`
	ProteinPercentMin       float64 `gorm:"not null"`
	ProteinPercentMax       float64 `gorm:"not null"`
	FatPercentMin           float64 `gorm:"not null"`
	FatPercentMax           float64 `gorm:"not null"`
	CarbohydratesPercentMin float64 `gorm:"not null"`
	CarbohydratesPercentMax float64 `gorm:"not null"`
	Calcium                 float64 `gorm:"not null"`
	Iron                    float64 `gorm:"not null"`
	VitaminC                float64 `gorm:"not null"`
	CreatedAt               time.Time
	UpdatedAt               time.Time

	MealPlans []MealPlan `gorm:"foreignKey:StandardsID;constraint:OnDelete:SET NULL"`
}

type MealPlan struct {
	ID          string `gorm:"size:36;primaryKey"`
	Name        string `gorm:"size:200;not null"`
	WeekNumber  *int
	Season      *string `gorm:"size:10"` // SPRING, SUMMER, AUTUMN, WINTER
	Description *string `gorm:"type:text"`
	StandardsID *string `gorm:"size:36;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Days []MealPlanDay `gorm:"foreignKey:MealPlanID;constraint:OnDelete:CASCADE"`
}

type MealPlanDay struct {
	ID         string `gorm:"size:36;primaryKey"`
	MealPlanID string `gorm:"size:36;not null;index"`
	DayOfWeek  int    `gorm:"not null"` // 1 = Monday
	Date       *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Meals []MealPlanMeal `gorm:"foreignKey:MealPlanDayID;constraint:OnDelete:CASCADE"`
}

type MealPlanMeal struct {
	ID            string `gorm:"size:36;primaryKey"`
	MealPlanDayID string `gorm:"size:36;not null;index"`
	MealType      string `gorm:"size:30;not null"`
	Order         int    `gorm:"column:position;not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Recipes []MealPlanRecipe `gorm:"foreignKey:MealPlanMealID;constraint:OnDelete:CASCADE"`
}

type MealPlanRecipe struct {
	ID             string  `gorm:"size:36;primaryKey"`
	MealPlanMealID string  `gorm:"size:36;not null;index"`
	RecipeID       string  `gorm:"size:36;not null;index"`
	Servings       float64 `gorm:"not null;default:1"`
	Order          int     `gorm:"column:position;not null;default:0"`
	CreatedAt      time.Time
}
