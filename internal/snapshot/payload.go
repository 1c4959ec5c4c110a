package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"kartoteka-backend/internal/dataset"
)

// PayloadVersion is written into every new backup. Version 0 is the
// unversioned layout of older backups: the same rows, ledger entries under
// "transactions" and INCOME/OUTCOME directions.
const PayloadVersion = 1

type payloadV1 struct {
	PayloadVersion    int                     `json:"payloadVersion"`
	Timestamp         time.Time               `json:"timestamp"`
	Products          []dataset.ProductRow    `json:"products"`
	LedgerEntries     []dataset.EntryRow      `json:"ledgerEntries"`
	Recipes           []dataset.RecipeRow     `json:"recipes"`
	RecipeIngredients []dataset.IngredientRow `json:"recipeIngredients"`
}

func encodePayload(s *dataset.Set, at time.Time) (string, error) {
	rows := dataset.RowsOf(s)
	b, err := json.Marshal(payloadV1{
		PayloadVersion:    PayloadVersion,
		Timestamp:         at.UTC(),
		Products:          rows.Products,
		LedgerEntries:     rows.LedgerEntries,
		Recipes:           rows.Recipes,
		RecipeIngredients: rows.RecipeIngredients,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodePayload reads either payload version and returns the core tables.
func decodePayload(data string) (*dataset.Set, int, error) {
	var header struct {
		PayloadVersion *int `json:"payloadVersion"`
	}
	if err := json.Unmarshal([]byte(data), &header); err != nil {
		return nil, 0, fmt.Errorf("payload is not JSON: %w", err)
	}
	version := 0
	if header.PayloadVersion != nil {
		version = *header.PayloadVersion
	}
	if version < 0 || version > PayloadVersion {
		return nil, version, fmt.Errorf("unsupported payload version %d", version)
	}

	var rows dataset.Rows
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, version, fmt.Errorf("payload rows: %w", err)
	}
	// only the core tables are restored
	rows.NutritionalStandards = nil
	rows.MealPlans = nil
	rows.MealPlanDays = nil
	rows.MealPlanMeals = nil
	rows.MealPlanRecipes = nil

	if err := rows.Validate(); err != nil {
		return nil, version, err
	}
	return rows.Set(), version, nil
}
