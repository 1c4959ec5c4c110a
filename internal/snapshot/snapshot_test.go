package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/database/dbtest"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/ledger"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Engine
	snaps  *Manager
}

func newFixture(t *testing.T, retention int) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	g := guard.New()
	return &fixture{db: db, ledger: ledger.New(db, g, nil), snaps: New(db, g, nil, retention)}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flour builds the state after amending the opening entry to 5 and taking
// out 3: balances [5, 2], stock 2.
func (f *fixture) flour(t *testing.T) (*models.Product, []models.LedgerEntry) {
	t.Helper()
	ctx := context.Background()
	p, err := f.ledger.CreateProduct(ctx, ledger.ProductInput{Name: "Flour", Unit: "kg"}, d("10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.AppendEntry(ctx, p.ID, ledger.EntryInput{Date: time.Now().Add(time.Hour), Direction: models.Outflow, Quantity: d("3")}); err != nil {
		t.Fatal(err)
	}
	entries, _ := f.ledger.ListEntries(ctx, p.ID)
	if _, err := f.ledger.AmendEntry(ctx, entries[0].ID, ledger.EntryInput{Date: entries[0].Date, Document: entries[0].Document, Direction: models.Inflow, Quantity: d("5")}); err != nil {
		t.Fatal(err)
	}
	entries, _ = f.ledger.ListEntries(ctx, p.ID)
	return p, entries
}

func (f *fixture) stock(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	p, err := f.ledger.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return p.CurrentStock
}

func TestSnapshotRemoveRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	p, entries := f.flour(t)

	snap, err := f.snaps.CreateSnapshot(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Description == nil || *snap.Description != "test" || snap.PayloadVersion != PayloadVersion {
		t.Fatalf("unexpected info %+v", snap)
	}

	if err := f.ledger.RemoveEntry(ctx, entries[1].ID); err != nil {
		t.Fatal(err)
	}
	if got := f.stock(t, p.ID); !got.Equal(d("5")) {
		t.Fatalf("stock after remove = %s", got)
	}

	res, err := f.snaps.RestoreSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.Products != 1 || res.LedgerEntries != 2 {
		t.Fatalf("restore result %+v", res)
	}
	if got := f.stock(t, p.ID); !got.Equal(d("2")) {
		t.Fatalf("stock after restore = %s", got)
	}
	restored, err := f.ledger.ListEntries(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 || restored[0].ID != entries[0].ID || restored[1].ID != entries[1].ID {
		t.Fatalf("entries not restored with their ids: %+v", restored)
	}
	if !restored[0].Balance.Equal(d("5")) || !restored[1].Balance.Equal(d("2")) {
		t.Fatalf("balances %s %s", restored[0].Balance, restored[1].Balance)
	}

	// ledger keeps working on restored data
	next, err := f.ledger.AppendEntry(ctx, p.ID, ledger.EntryInput{Date: time.Now().Add(2 * time.Hour), Direction: models.Inflow, Quantity: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	if next.Sequence != 3 || !next.Balance.Equal(d("3")) {
		t.Fatalf("append after restore: %+v", next)
	}
}

func TestRestoreKeepsMealPlanLinksForKnownRecipes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	seed := []any{
		&models.Recipe{ID: "r-keep", Name: "Soup", Servings: 4},
		&models.MealPlan{ID: "mp", Name: "Week"},
		&models.MealPlanDay{ID: "day", MealPlanID: "mp", DayOfWeek: 1},
		&models.MealPlanMeal{ID: "meal", MealPlanDayID: "day", MealType: "LUNCH"},
		&models.MealPlanRecipe{ID: "link-keep", MealPlanMealID: "meal", RecipeID: "r-keep", Servings: 1},
	}
	for _, row := range seed {
		if err := f.db.Create(row).Error; err != nil {
			t.Fatal(err)
		}
	}
	snap, err := f.snaps.CreateSnapshot(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Description == nil || *snap.Description != DefaultDescription {
		t.Fatalf("description = %v", snap.Description)
	}

	// a recipe created after the backup, linked into the plan
	for _, row := range []any{
		&models.Recipe{ID: "r-new", Name: "Salad", Servings: 2},
		&models.MealPlanRecipe{ID: "link-new", MealPlanMealID: "meal", RecipeID: "r-new", Servings: 1},
	} {
		if err := f.db.Create(row).Error; err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.snaps.RestoreSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.MealLinksKept != 1 || res.MealLinksDropped != 1 {
		t.Fatalf("links kept=%d dropped=%d", res.MealLinksKept, res.MealLinksDropped)
	}
	var links []models.MealPlanRecipe
	f.db.Find(&links)
	if len(links) != 1 || links[0].ID != "link-keep" {
		t.Fatalf("links after restore: %+v", links)
	}
	var meals int64
	f.db.Model(&models.MealPlanMeal{}).Count(&meals)
	if meals != 1 {
		t.Fatal("restore touched meal plans")
	}
}

func TestRestoreFailureLeavesDataUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	p, _ := f.flour(t)

	bad := models.Backup{Payload: `{"payloadVersion": 1, "products": [{"id": "x"}]}`, PayloadVersion: 1}
	if err := f.db.Create(&bad).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := f.snaps.RestoreSnapshot(ctx, bad.ID); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	future := models.Backup{Payload: `{"payloadVersion": 7, "products": []}`, PayloadVersion: 7}
	f.db.Create(&future)
	if _, err := f.snaps.RestoreSnapshot(ctx, future.ID); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for unknown version, got %v", err)
	}

	// duplicate product names pass row validation but fail on insert
	dup := models.Backup{Payload: `{"payloadVersion": 1, "products": [
		{"id": "a", "name": "Same", "unit": "kg"},
		{"id": "b", "name": "Same", "unit": "kg"}]}`, PayloadVersion: 1}
	f.db.Create(&dup)
	if _, err := f.snaps.RestoreSnapshot(ctx, dup.ID); err == nil {
		t.Fatal("restore with duplicate names should fail")
	}

	if got := f.stock(t, p.ID); !got.Equal(d("2")) {
		t.Fatalf("failed restore changed stock to %s", got)
	}
	entries, err := f.ledger.ListEntries(ctx, p.ID)
	if err != nil || len(entries) != 2 {
		t.Fatalf("failed restore changed entries: %v %d", err, len(entries))
	}

	if _, err := f.snaps.RestoreSnapshot(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("restore unknown backup: %v", err)
	}
}

func TestRestoreLegacyPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	legacy := map[string]any{
		"timestamp": "2024-02-01T10:00:00.000Z",
		"products": []map[string]any{{
			"id": "p-old", "name": "Sugar", "unit": "kg", "currentStock": 4,
			"transactions": []any{},
		}},
		"transactions": []map[string]any{
			{"id": "t1", "productId": "p-old", "date": "2024-01-01T00:00:00.000Z", "document": "Stan początkowy", "type": "INCOME", "quantity": 6, "balance": 6},
			{"id": "t2", "productId": "p-old", "date": "2024-01-03T00:00:00.000Z", "document": "", "type": "OUTCOME", "quantity": 2, "balance": 4},
		},
		"recipes":           []any{},
		"recipeIngredients": []any{},
	}
	b, _ := json.Marshal(legacy)
	backup := models.Backup{Payload: string(b)}
	if err := f.db.Create(&backup).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := f.snaps.RestoreSnapshot(ctx, backup.ID); err != nil {
		t.Fatalf("restore legacy: %v", err)
	}
	entries, err := f.ledger.ListEntries(ctx, "p-old")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Direction != models.Inflow || entries[1].Direction != models.Outflow {
		t.Fatalf("legacy entries: %+v", entries)
	}
	rep, err := f.ledger.Verify(ctx, "p-old")
	if err != nil || !rep.OK() {
		t.Fatalf("legacy restore is not consistent: %v %+v", err, rep)
	}
}

func TestEnforceRetention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	var last *Info
	for _, desc := range []string{"one", "two", "three"} {
		info, err := f.snaps.CreateSnapshot(ctx, desc)
		if err != nil {
			t.Fatal(err)
		}
		last = info
	}

	if _, err := f.snaps.EnforceRetention(ctx, -1); !apperr.IsValidation(err) {
		t.Fatalf("negative keep: %v", err)
	}
	n, err := f.snaps.EnforceRetention(ctx, 5)
	if err != nil || n != 0 {
		t.Fatalf("keep 5 of 3: %d %v", n, err)
	}

	n, err = f.snaps.EnforceRetention(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("keep 1: deleted %d, %v", n, err)
	}
	list, err := f.snaps.ListSnapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != last.ID || *list[0].Description != "three" {
		t.Fatalf("remaining backups: %+v", list)
	}

	n, err = f.snaps.EnforceRetention(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("keep 0: %d %v", n, err)
	}
}

func TestCheckpointBoundsBackupCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	for i := 0; i < 4; i++ {
		if err := f.snaps.Checkpoint(ctx, "Before entry delete"); err != nil {
			t.Fatal(err)
		}
	}
	list, _ := f.snaps.ListSnapshots(ctx)
	if len(list) != 2 {
		t.Fatalf("backups = %d, want 2", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Fatal("list is not newest first")
	}

	if _, err := f.snaps.GetSnapshot(ctx, list[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := f.snaps.DeleteSnapshot(ctx, list[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.snaps.GetSnapshot(ctx, list[0].ID); !apperr.IsNotFound(err) {
		t.Fatalf("deleted backup still found: %v", err)
	}
	if err := f.snaps.DeleteSnapshot(ctx, list[0].ID); !apperr.IsNotFound(err) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRestoreNegativeStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	p, err := f.ledger.CreateProduct(ctx, ledger.ProductInput{Name: "Oil", Unit: "l"}, d("10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.AppendEntry(ctx, p.ID, ledger.EntryInput{Date: time.Now().Add(time.Hour), Direction: models.Outflow, Quantity: d("8")}); err != nil {
		t.Fatal(err)
	}
	entries, _ := f.ledger.ListEntries(ctx, p.ID)
	if _, err := f.ledger.AmendEntry(ctx, entries[0].ID, ledger.EntryInput{Date: entries[0].Date, Direction: models.Inflow, Quantity: d("3")}); err != nil {
		t.Fatal(err)
	}
	if got := f.stock(t, p.ID); !got.Equal(d("-5")) {
		t.Fatalf("stock after amend = %s", got)
	}

	snap, err := f.snaps.CreateSnapshot(ctx, "negative")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.RemoveEntry(ctx, entries[1].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.snaps.RestoreSnapshot(ctx, snap.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := f.stock(t, p.ID); !got.Equal(d("-5")) {
		t.Fatalf("stock after restore = %s", got)
	}
}

func TestNullDescriptionStaysNull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	if err := f.db.Create(&models.Backup{Payload: `{"payloadVersion":1}`, PayloadVersion: 1, Sequence: 1}).Error; err != nil {
		t.Fatal(err)
	}
	list, err := f.snaps.ListSnapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Description != nil {
		t.Fatalf("list = %+v", list)
	}
	b, _ := json.Marshal(list[0])
	if !strings.Contains(string(b), `"description":null`) {
		t.Fatalf("wire form = %s", b)
	}
}
