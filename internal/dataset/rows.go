package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Rows is the JSON form of a Set, shared by backup payloads and the bulk
// document. Optional fields are pointers so defaults can be told apart from
// explicit values.
type Rows struct {
	Products             []ProductRow    `json:"products"`
	LedgerEntries        []EntryRow      `json:"ledgerEntries"`
	Recipes              []RecipeRow     `json:"recipes"`
	RecipeIngredients    []IngredientRow `json:"recipeIngredients"`
	NutritionalStandards []StandardRow   `json:"nutritionalStandards,omitempty"`
	MealPlans            []MealPlanRow   `json:"mealPlans,omitempty"`
	MealPlanDays         []DayRow        `json:"mealPlanDays,omitempty"`
	MealPlanMeals        []MealRow       `json:"mealPlanMeals,omitempty"`
	MealPlanRecipes      []MealRecipeRow `json:"mealPlanRecipes,omitempty"`
}

// UnmarshalJSON also reads the older "transactions" key for ledger entries.
func (r *Rows) UnmarshalJSON(b []byte) error {
	type plain Rows
	var aux struct {
		plain
		Transactions []EntryRow `json:"transactions"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Rows(aux.plain)
	if r.LedgerEntries == nil && aux.Transactions != nil {
		r.LedgerEntries = aux.Transactions
	}
	return nil
}

type ProductRow struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Unit          string           `json:"unit"`
	CurrentStock  *decimal.Decimal `json:"currentStock"`
	Manufacturer  *string          `json:"manufacturer"`
	Calories      *float64         `json:"calories"`
	Protein       *float64         `json:"protein"`
	Fat           *float64         `json:"fat"`
	SaturatedFat  *float64         `json:"saturatedFat"`
	Carbohydrates *float64         `json:"carbohydrates"`
	Sugars        *float64         `json:"sugars"`
	Salt          *float64         `json:"salt"`
	Calcium       *float64         `json:"calcium"`
	Iron          *float64         `json:"iron"`
	VitaminC      *float64         `json:"vitaminC"`
	Allergens     []int            `json:"allergens"`
	CreatedAt     *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

type EntryRow struct {
	ID        string           `json:"id"`
	ProductID string           `json:"productId"`
	Date      *time.Time       `json:"date"`
	Document  *string          `json:"document"`
	Type      string           `json:"type"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Balance   *decimal.Decimal `json:"balance"`
	Sequence  *int64           `json:"sequence,omitempty"`
	CreatedAt *time.Time       `json:"createdAt,omitempty"`
}

type RecipeRow struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Servings    *int       `json:"servings"`
	MealType    *string    `json:"mealType"`
	Categories  []string   `json:"categories"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type IngredientRow struct {
	ID          string           `json:"id"`
	RecipeID    string           `json:"recipeId"`
	ProductID   *string          `json:"productId"`
	ProductName string           `json:"productName"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Unit        string           `json:"unit"`
}

type StandardRow struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	EnergyMin               float64    `json:"energyMin"`
	EnergyMax               float64    `json:"energyMax"`
	ProteinPercentMin       float64    `json:"proteinPercentMin"`
	ProteinPercentMax       float64    `json:"proteinPercentMax"`
	FatPercentMin           float64    `json:"fatPercentMin"`
	FatPercentMax           float64    `json:"fatPercentMax"`
	CarbohydratesPercentMin float64    `json:"carbohydratesPercentMin"`
	CarbohydratesPercentMax float64    `json:"carbohydratesPercentMax"`
	Calcium                 float64    `json:"calcium"`
	Iron                    float64    `json:"iron"`
	VitaminC                float64    `json:"vitaminC"`
	CreatedAt               *time.Time `json:"createdAt,omitempty"`
	UpdatedAt               *time.Time `json:"updatedAt,omitempty"`
}

type MealPlanRow struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	WeekNumber  *int       `json:"weekNumber"`
	Season      *string    `json:"season"`
	Description *string    `json:"description"`
	StandardsID *string    `json:"standardsId"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type DayRow struct {
	ID         string     `json:"id"`
	MealPlanID string     `json:"mealPlanId"`
	DayOfWeek  int        `json:"dayOfWeek"`
	Date       *time.Time `json:"date"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

type MealRow struct {
	ID            string     `json:"id"`
	MealPlanDayID string     `json:"mealPlanDayId"`
	MealType      string     `json:"mealType"`
	Order         *int       `json:"order"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type MealRecipeRow struct {
	ID             string     `json:"id"`
	MealPlanMealID string     `json:"mealPlanMealId"`
	RecipeID       string     `json:"recipeId"`
	Servings       *float64   `json:"servings"`
	Order          *int       `json:"order"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeOr(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// RowsOf converts s to its JSON form. Every optional value is written out.
func RowsOf(s *Set) *Rows {
	r := &Rows{
		Products:          make([]ProductRow, 0, len(s.Products)),
		LedgerEntries:     make([]EntryRow, 0, len(s.LedgerEntries)),
		Recipes:           make([]RecipeRow, 0, len(s.Recipes)),
		RecipeIngredients: make([]IngredientRow, 0, len(s.RecipeIngredients)),
	}
	for _, p := range s.Products {
		allergens := p.Allergens
		if allergens == nil {
			allergens = []int{}
		}
		r.Products = append(r.Products, ProductRow{
			ID: p.ID, Name: p.Name, Unit: p.Unit, CurrentStock: ptr(p.CurrentStock),
			Manufacturer: p.Manufacturer, Calories: p.Calories, Protein: p.Protein, Fat: p.Fat,
			SaturatedFat: p.SaturatedFat, Carbohydrates: p.Carbohydrates, Sugars: p.Sugars,
			Salt: p.Salt, Calcium: p.Calcium, Iron: p.Iron, VitaminC: p.VitaminC,
			Allergens: allergens, CreatedAt: timePtr(p.CreatedAt), UpdatedAt: timePtr(p.UpdatedAt),
		})
	}
	for _, e := range s.LedgerEntries {
		r.LedgerEntries = append(r.LedgerEntries, EntryRow{
			ID: e.ID, ProductID: e.ProductID, Date: timePtr(e.Date), Document: ptr(e.Document),
			Type: string(e.Direction), Quantity: ptr(e.Quantity), Balance: ptr(e.Balance),
			Sequence: ptr(e.Sequence), CreatedAt: timePtr(e.CreatedAt),
		})
	}
	for _, rc := range s.Recipes {
		categories := rc.Categories
		if categories == nil {
			categories = []string{}
		}
		r.Recipes = append(r.Recipes, RecipeRow{
			ID: rc.ID, Name: rc.Name, Description: rc.Description, Servings: ptr(rc.Servings),
			MealType: rc.MealType, Categories: categories,
			CreatedAt: timePtr(rc.CreatedAt), UpdatedAt: timePtr(rc.UpdatedAt),
		})
	}
	for _, i := range s.RecipeIngredients {
		r.RecipeIngredients = append(r.RecipeIngredients, IngredientRow{
			ID: i.ID, RecipeID: i.RecipeID, ProductID: i.ProductID, ProductName: i.ProductName,
			Quantity: ptr(i.Quantity), Unit: i.Unit,
		})
	}
	for _, st := range s.NutritionalStandards {
		r.NutritionalStandards = append(r.NutritionalStandards, StandardRow{
			ID: st.ID, Name: st.Name, EnergyMin: st.EnergyMin, EnergyMax: st.EnergyMax,
			ProteinPercentMin: st.ProteinPercentMin, ProteinPercentMax: st.ProteinPercentMax,
			FatPercentMin: st.FatPercentMin, FatPercentMax: st.FatPercentMax,
			CarbohydratesPercentMin: st.CarbohydratesPercentMin, CarbohydratesPercentMax: st.CarbohydratesPercentMax,
			Calcium: st.Calcium, Iron: st.Iron, VitaminC: st.VitaminC,
			CreatedAt: timePtr(st.CreatedAt), UpdatedAt: timePtr(st.UpdatedAt),
		})
	}
	for _, m := range s.MealPlans {
		r.MealPlans = append(r.MealPlans, MealPlanRow{
			ID: m.ID, Name: m.Name, WeekNumber: m.WeekNumber, Season: m.Season,
			Description: m.Description, StandardsID: m.StandardsID,
			CreatedAt: timePtr(m.CreatedAt), UpdatedAt: timePtr(m.UpdatedAt),
		})
	}
	for _, dy := range s.MealPlanDays {
		var date *time.Time
		if dy.Date != nil {
			date = timePtr(*dy.Date)
		}
		r.MealPlanDays = append(r.MealPlanDays, DayRow{
			ID: dy.ID, MealPlanID: dy.MealPlanID, DayOfWeek: dy.DayOfWeek, Date: date,
			CreatedAt: timePtr(dy.CreatedAt), UpdatedAt: timePtr(dy.UpdatedAt),
		})
	}
	for _, m := range s.MealPlanMeals {
		r.MealPlanMeals = append(r.MealPlanMeals, MealRow{
			ID: m.ID, MealPlanDayID: m.MealPlanDayID, MealType: m.MealType, Order: ptr(m.Order),
			CreatedAt: timePtr(m.CreatedAt), UpdatedAt: timePtr(m.UpdatedAt),
		})
	}
	for _, m := range s.MealPlanRecipes {
		r.MealPlanRecipes = append(r.MealPlanRecipes, MealRecipeRow{
			ID: m.ID, MealPlanMealID: m.MealPlanMealID, RecipeID: m.RecipeID,
			Servings: ptr(m.Servings), Order: ptr(m.Order), CreatedAt: timePtr(m.CreatedAt),
		})
	}
	return r
}

// Validate checks required fields, duplicate ids and references between
// rows. Every problem is reported, one per line.
func (r *Rows) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	ids := func(kind string, n int, id func(int) string) map[string]bool {
		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			v := id(i)
			switch {
			case v == "":
				bad("%s[%d]: id is required", kind, i)
			case seen[v]:
				bad("%s[%d]: duplicate id %q", kind, i, v)
			}
			seen[v] = true
		}
		return seen
	}

	products := ids("products", len(r.Products), func(i int) string { return r.Products[i].ID })
	for i, p := range r.Products {
		if p.Name == "" || p.Unit == "" {
			bad("products[%d]: name and unit are required", i)
		}
		for _, a := range p.Allergens {
			if a < 1 || a > 14 {
				bad("products[%d]: allergen %d outside 1..14", i, a)
			}
		}
	}

	ids("ledgerEntries", len(r.LedgerEntries), func(i int) string { return r.LedgerEntries[i].ID })
	for i, e := range r.LedgerEntries {
		if !products[e.ProductID] {
			bad("ledgerEntries[%d]: unknown product %q", i, e.ProductID)
		}
		if e.Date == nil {
			bad("ledgerEntries[%d]: date is required", i)
		}
		if _, ok := models.ParseDirection(e.Type); !ok {
			bad("ledgerEntries[%d]: unknown type %q", i, e.Type)
		}
		if e.Quantity == nil || !e.Quantity.IsPositive() {
			bad("ledgerEntries[%d]: quantity must be greater than zero", i)
		}
	}

	recipes := ids("recipes", len(r.Recipes), func(i int) string { return r.Recipes[i].ID })
	for i, rc := range r.Recipes {
		if rc.Name == "" {
			bad("recipes[%d]: name is required", i)
		}
		if rc.Servings != nil && *rc.Servings < 1 {
			bad("recipes[%d]: servings must be at least 1", i)
		}
	}

	ids("recipeIngredients", len(r.RecipeIngredients), func(i int) string { return r.RecipeIngredients[i].ID })
	for i, in := range r.RecipeIngredients {
		if !recipes[in.RecipeID] {
			bad("recipeIngredients[%d]: unknown recipe %q", i, in.RecipeID)
		}
		if in.ProductID != nil && !products[*in.ProductID] {
			bad("recipeIngredients[%d]: unknown product %q", i, *in.ProductID)
		}
		if in.ProductName == "" || in.Unit == "" || in.Quantity == nil {
			bad("recipeIngredients[%d]: productName, quantity and unit are required", i)
		}
	}

	standards := ids("nutritionalStandards", len(r.NutritionalStandards), func(i int) string { return r.NutritionalStandards[i].ID })
	for i, st := range r.NutritionalStandards {
		if st.Name == "" {
			bad("nutritionalStandards[%d]: name is required", i)
		}
	}

	plans := ids("mealPlans", len(r.MealPlans), func(i int) string { return r.MealPlans[i].ID })
	for i, m := range r.MealPlans {
		if m.Name == "" {
			bad("mealPlans[%d]: name is required", i)
		}
		if m.StandardsID != nil && !standards[*m.StandardsID] {
			bad("mealPlans[%d]: unknown nutritional standard %q", i, *m.StandardsID)
		}
	}

	days := ids("mealPlanDays", len(r.MealPlanDays), func(i int) string { return r.MealPlanDays[i].ID })
	for i, dy := range r.MealPlanDays {
		if !plans[dy.MealPlanID] {
			bad("mealPlanDays[%d]: unknown meal plan %q", i, dy.MealPlanID)
		}
		if dy.DayOfWeek < 1 || dy.DayOfWeek > 7 {
			bad("mealPlanDays[%d]: dayOfWeek must be 1..7", i)
		}
	}

	meals := ids("mealPlanMeals", len(r.MealPlanMeals), func(i int) string { return r.MealPlanMeals[i].ID })
	for i, m := range r.MealPlanMeals {
		if !days[m.MealPlanDayID] {
			bad("mealPlanMeals[%d]: unknown meal plan day %q", i, m.MealPlanDayID)
		}
		if m.MealType == "" {
			bad("mealPlanMeals[%d]: mealType is required", i)
		}
	}

	ids("mealPlanRecipes", len(r.MealPlanRecipes), func(i int) string { return r.MealPlanRecipes[i].ID })
	for i, m := range r.MealPlanRecipes {
		if !meals[m.MealPlanMealID] {
			bad("mealPlanRecipes[%d]: unknown meal %q", i, m.MealPlanMealID)
		}
		if !recipes[m.RecipeID] {
			bad("mealPlanRecipes[%d]: unknown recipe %q", i, m.RecipeID)
		}
	}

	return errors.Join(errs...)
}

// Set converts validated rows to models, filling defaults: servings 1,
// order 0, empty allergens and categories, empty document, and entry
// sequence by position in the document. Missing balances and a missing
// currentStock are replayed from the product's ledger, so a product without
// entries gets stock 0.
func (r *Rows) Set() *Set {
	s := &Set{}
	missingStock := make(map[string]bool)
	for _, p := range r.Products {
		stock := decimal.Zero
		if p.CurrentStock != nil {
			stock = *p.CurrentStock
		} else {
			missingStock[p.ID] = true
		}
		allergens := p.Allergens
		if allergens == nil {
			allergens = []int{}
		}
		s.Products = append(s.Products, models.Product{
			ID: p.ID, Name: p.Name, Unit: p.Unit, CurrentStock: stock,
			Manufacturer: p.Manufacturer, Calories: p.Calories, Protein: p.Protein, Fat: p.Fat,
			SaturatedFat: p.SaturatedFat, Carbohydrates: p.Carbohydrates, Sugars: p.Sugars,
			Salt: p.Salt, Calcium: p.Calcium, Iron: p.Iron, VitaminC: p.VitaminC,
			Allergens: allergens, CreatedAt: timeOr(p.CreatedAt), UpdatedAt: timeOr(p.UpdatedAt),
		})
	}

	replay := make(map[string]bool, len(missingStock))
	for id := range missingStock {
		replay[id] = true
	}
	for i, e := range r.LedgerEntries {
		dir, _ := models.ParseDirection(e.Type)
		entry := models.LedgerEntry{
			ID: e.ID, ProductID: e.ProductID, Date: timeOr(e.Date), Direction: dir,
			Sequence: int64(i + 1), CreatedAt: timeOr(e.CreatedAt),
		}
		if e.Quantity != nil {
			entry.Quantity = *e.Quantity
		}
		if e.Document != nil {
			entry.Document = *e.Document
		}
		if e.Sequence != nil {
			entry.Sequence = *e.Sequence
		}
		if e.Balance != nil {
			entry.Balance = *e.Balance
		} else {
			replay[e.ProductID] = true
		}
		s.LedgerEntries = append(s.LedgerEntries, entry)
	}
	if len(replay) > 0 {
		final := fillBalances(s.LedgerEntries, replay, r.LedgerEntries)
		for i := range s.Products {
			if missingStock[s.Products[i].ID] {
				s.Products[i].CurrentStock = final[s.Products[i].ID]
			}
		}
	}

	for _, rc := range r.Recipes {
		servings := 1
		if rc.Servings != nil {
			servings = *rc.Servings
		}
		categories := rc.Categories
		if categories == nil {
			categories = []string{}
		}
		s.Recipes = append(s.Recipes, models.Recipe{
			ID: rc.ID, Name: rc.Name, Description: rc.Description, Servings: servings,
			MealType: rc.MealType, Categories: categories,
			CreatedAt: timeOr(rc.CreatedAt), UpdatedAt: timeOr(rc.UpdatedAt),
		})
	}
	for _, in := range r.RecipeIngredients {
		q := decimal.Zero
		if in.Quantity != nil {
			q = *in.Quantity
		}
		s.RecipeIngredients = append(s.RecipeIngredients, models.RecipeIngredient{
			ID: in.ID, RecipeID: in.RecipeID, ProductID: in.ProductID,
			ProductName: in.ProductName, Quantity: q, Unit: in.Unit,
		})
	}
	for _, st := range r.NutritionalStandards {
		s.NutritionalStandards = append(s.NutritionalStandards, models.NutritionalStandard{
			ID: st.ID, Name: st.Name, EnergyMin: st.EnergyMin, EnergyMax: st.EnergyMax,
			ProteinPercentMin: st.ProteinPercentMin, ProteinPercentMax: st.ProteinPercentMax,
			FatPercentMin: st.FatPercentMin, FatPercentMax: st.FatPercentMax,
			CarbohydratesPercentMin: st.CarbohydratesPercentMin, CarbohydratesPercentMax: st.CarbohydratesPercentMax,
			Calcium: st.Calcium, Iron: st.Iron, VitaminC: st.VitaminC,
			CreatedAt: timeOr(st.CreatedAt), UpdatedAt: timeOr(st.UpdatedAt),
		})
	}
	for _, m := range r.MealPlans {
		s.MealPlans = append(s.MealPlans, models.MealPlan{
			ID: m.ID, Name: m.Name, WeekNumber: m.WeekNumber, Season: m.Season,
			Description: m.Description, StandardsID: m.StandardsID,
			CreatedAt: timeOr(m.CreatedAt), UpdatedAt: timeOr(m.UpdatedAt),
		})
	}
	for _, dy := range r.MealPlanDays {
		var date *time.Time
		if dy.Date != nil {
			date = ptr(dy.Date.UTC())
		}
		s.MealPlanDays = append(s.MealPlanDays, models.MealPlanDay{
			ID: dy.ID, MealPlanID: dy.MealPlanID, DayOfWeek: dy.DayOfWeek, Date: date,
			CreatedAt: timeOr(dy.CreatedAt), UpdatedAt: timeOr(dy.UpdatedAt),
		})
	}
	for _, m := range r.MealPlanMeals {
		order := 0
		if m.Order != nil {
			order = *m.Order
		}
		s.MealPlanMeals = append(s.MealPlanMeals, models.MealPlanMeal{
			ID: m.ID, MealPlanDayID: m.MealPlanDayID, MealType: m.MealType, Order: order,
			CreatedAt: timeOr(m.CreatedAt), UpdatedAt: timeOr(m.UpdatedAt),
		})
	}
	for _, m := range r.MealPlanRecipes {
		servings, order := 1.0, 0
		if m.Servings != nil {
			servings = *m.Servings
		}
		if m.Order != nil {
			order = *m.Order
		}
		s.MealPlanRecipes = append(s.MealPlanRecipes, models.MealPlanRecipe{
			ID: m.ID, MealPlanMealID: m.MealPlanMealID, RecipeID: m.RecipeID,
			Servings: servings, Order: order, CreatedAt: timeOr(m.CreatedAt),
		})
	}
	return s
}

// fillBalances replays the ledger of each product in want, writes the
// running balance into entries that came without one and returns each
// product's final balance.
func fillBalances(entries []models.LedgerEntry, want map[string]bool, rows []EntryRow) map[string]decimal.Decimal {
	final := make(map[string]decimal.Decimal, len(want))
	byProduct := make(map[string][]int)
	for i, e := range entries {
		if want[e.ProductID] {
			byProduct[e.ProductID] = append(byProduct[e.ProductID], i)
		}
	}
	for id, idx := range byProduct {
		sort.SliceStable(idx, func(a, b int) bool {
			ea, eb := entries[idx[a]], entries[idx[b]]
			if !ea.Date.Equal(eb.Date) {
				return ea.Date.Before(eb.Date)
			}
			return ea.Sequence < eb.Sequence
		})
		running := decimal.Zero
		for _, i := range idx {
			running = running.Add(entries[i].Direction.Signed(entries[i].Quantity))
			if rows[i].Balance == nil {
				entries[i].Balance = running
			}
		}
		final[id] = running
	}
	return final
}
