// Package dataset loads, wipes and re-inserts whole tables. Restore works on
// the core tables (products, ledger entries, recipes, ingredients); import
// works on all nine.
package dataset

import (
	"fmt"

	"kartoteka-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 200

// Set holds the rows of every table in the dataset.
type Set struct {
	Products             []models.Product
	LedgerEntries        []models.LedgerEntry
	Recipes              []models.Recipe
	RecipeIngredients    []models.RecipeIngredient
	NutritionalStandards []models.NutritionalStandard
	MealPlans            []models.MealPlan
	MealPlanDays         []models.MealPlanDay
	MealPlanMeals        []models.MealPlanMeal
	MealPlanRecipes      []models.MealPlanRecipe
}

// Counts keyed the way the bulk document reports them.
func (s *Set) Counts() map[string]int {
	return map[string]int{
		"productsCount":             len(s.Products),
		"ledgerEntriesCount":        len(s.LedgerEntries),
		"recipesCount":              len(s.Recipes),
		"recipeIngredientsCount":    len(s.RecipeIngredients),
		"nutritionalStandardsCount": len(s.NutritionalStandards),
		"mealPlansCount":            len(s.MealPlans),
		"mealPlanDaysCount":         len(s.MealPlanDays),
		"mealPlanMealsCount":        len(s.MealPlanMeals),
		"mealPlanRecipesCount":      len(s.MealPlanRecipes),
	}
}

// Scope selects which tables Load, Wipe and Insert touch.
type Scope int

const (
	Core Scope = iota
	All
)

// Load reads the scoped tables in a stable order.
func Load(tx *gorm.DB, scope Scope) (*Set, error) {
	s := &Set{}
	steps := []struct {
		name  string
		dest  any
		order string
	}{
		{"products", &s.Products, "created_at ASC, id ASC"},
		{"ledger entries", &s.LedgerEntries, "product_id ASC, " + models.LedgerOrder},
		{"recipes", &s.Recipes, "created_at ASC, id ASC"},
		{"recipe ingredients", &s.RecipeIngredients, "recipe_id ASC, id ASC"},
	}
	if scope == All {
		steps = append(steps, []struct {
			name  string
			dest  any
			order string
		}{
			{"nutritional standards", &s.NutritionalStandards, "created_at ASC, id ASC"},
			{"meal plans", &s.MealPlans, "created_at ASC, id ASC"},
			{"meal plan days", &s.MealPlanDays, "meal_plan_id ASC, day_of_week ASC, id ASC"},
			{"meal plan meals", &s.MealPlanMeals, "meal_plan_day_id ASC, position ASC, id ASC"},
			{"meal plan recipes", &s.MealPlanRecipes, "meal_plan_meal_id ASC, position ASC, id ASC"},
		}...)
	}

	for _, st := range steps {
		if err := tx.Order(st.order).Find(st.dest).Error; err != nil {
			return nil, fmt.Errorf("load %s: %w", st.name, err)
		}
	}
	return s, nil
}

// wipeOrder lists tables most-dependent first.
var wipeOrder = []struct {
	name  string
	model any
	core  bool
}{
	{"meal_plan_recipes", &models.MealPlanRecipe{}, true},
	{"meal_plan_meals", &models.MealPlanMeal{}, false},
	{"meal_plan_days", &models.MealPlanDay{}, false},
	{"meal_plans", &models.MealPlan{}, false},
	{"nutritional_standards", &models.NutritionalStandard{}, false},
	{"recipe_ingredients", &models.RecipeIngredient{}, true},
	{"recipes", &models.Recipe{}, true},
	{"ledger_entries", &models.LedgerEntry{}, true},
	{"products", &models.Product{}, true},
}

// Wipe deletes every row of the scoped tables. With Core the meal plan
// recipe links go too, since they reference recipes; callers that want them
// back must load them first.
func Wipe(tx *gorm.DB, scope Scope) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, t := range wipeOrder {
		if scope == Core && !t.core {
			continue
		}
		if err := all.Delete(t.model).Error; err != nil {
			return fmt.Errorf("wipe %s: %w", t.name, err)
		}
	}
	return nil
}

// Insert writes s parents first. Ids, foreign keys and timestamps are kept
// as given.
func Insert(tx *gorm.DB, s *Set) error {
	plain := tx.Omit(clause.Associations)
	steps := []struct {
		name string
		rows any
		n    int
	}{
		{"products", &s.Products, len(s.Products)},
		{"ledger entries", &s.LedgerEntries, len(s.LedgerEntries)},
		{"recipes", &s.Recipes, len(s.Recipes)},
		{"recipe ingredients", &s.RecipeIngredients, len(s.RecipeIngredients)},
		{"nutritional standards", &s.NutritionalStandards, len(s.NutritionalStandards)},
		{"meal plans", &s.MealPlans, len(s.MealPlans)},
		{"meal plan days", &s.MealPlanDays, len(s.MealPlanDays)},
		{"meal plan meals", &s.MealPlanMeals, len(s.MealPlanMeals)},
		{"meal plan recipes", &s.MealPlanRecipes, len(s.MealPlanRecipes)},
	}
	for _, st := range steps {
		if st.n == 0 {
			continue
		}
		if err := plain.CreateInBatches(st.rows, batchSize).Error; err != nil {
			return fmt.Errorf("insert %s: %w", st.name, err)
		}
	}
	return nil
}
