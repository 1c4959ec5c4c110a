package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/database/dbtest"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(dbtest.Open(t), nil, nil)
}

func mustCreate(t *testing.T, e *Engine, name string, stock string) *models.Product {
	t.Helper()
	p, err := e.CreateProduct(context.Background(), ProductInput{Name: name, Unit: "kg"}, d(stock))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return p
}

func assertStock(t *testing.T, e *Engine, id string, want string) {
	t.Helper()
	p, err := e.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !p.CurrentStock.Equal(d(want)) {
		t.Fatalf("currentStock = %s, want %s", p.CurrentStock, want)
	}
}

func assertBalances(t *testing.T, e *Engine, id string, want ...string) []models.LedgerEntry {
	t.Helper()
	entries, err := e.ListEntries(context.Background(), id)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if !entries[i].Balance.Equal(d(w)) {
			t.Fatalf("entry %d balance = %s, want %s", i, entries[i].Balance, w)
		}
	}
	return entries
}

func TestFlourWalkthrough(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	flour := mustCreate(t, e, "Flour", "10")
	entries := assertBalances(t, e, flour.ID, "10")
	if entries[0].Direction != models.Inflow || !entries[0].Quantity.Equal(d("10")) || entries[0].Document != OpeningDocument {
		t.Fatalf("unexpected opening entry: %+v", entries[0])
	}
	assertStock(t, e, flour.ID, "10")

	out, err := e.AppendEntry(ctx, flour.ID, EntryInput{Date: time.Now().Add(time.Minute), Direction: models.Outflow, Quantity: d("3"), Document: "WZ/1"})
	if err != nil {
		t.Fatalf("append outflow: %v", err)
	}
	if !out.Balance.Equal(d("7")) || out.Sequence != 2 {
		t.Fatalf("outflow balance=%s seq=%d", out.Balance, out.Sequence)
	}
	assertStock(t, e, flour.ID, "7")

	_, err = e.AppendEntry(ctx, flour.ID, EntryInput{Date: time.Now().Add(2 * time.Minute), Direction: models.Outflow, Quantity: d("10")})
	if !apperr.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	assertStock(t, e, flour.ID, "7")
	assertBalances(t, e, flour.ID, "10", "7")

	first := entries[0]
	amended, err := e.AmendEntry(ctx, first.ID, EntryInput{Date: first.Date, Document: first.Document, Direction: models.Inflow, Quantity: d("5")})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if !amended.Balance.Equal(d("5")) {
		t.Fatalf("amended balance = %s", amended.Balance)
	}
	assertBalances(t, e, flour.ID, "5", "2")
	assertStock(t, e, flour.ID, "2")

	if err := e.RemoveEntry(ctx, out.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertBalances(t, e, flour.ID, "5")
	assertStock(t, e, flour.ID, "5")
}

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "Sugar", "0")

	cases := []struct {
		name  string
		in    ProductInput
		stock string
		check func(error) bool
	}{
		{"missing name", ProductInput{Name: "  ", Unit: "kg"}, "0", apperr.IsValidation},
		{"missing unit", ProductInput{Name: "Salt"}, "0", apperr.IsValidation},
		{"negative stock", ProductInput{Name: "Salt", Unit: "kg"}, "-1", apperr.IsValidation},
		{"bad allergen", ProductInput{Name: "Salt", Unit: "kg", Allergens: []int{15}}, "0", apperr.IsValidation},
		{"duplicate", ProductInput{Name: "Sugar", Unit: "kg"}, "0", apperr.IsConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateProduct(ctx, tc.in, d(tc.stock))
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}

	entries, err := e.ListEntries(ctx, mustCreate(t, e, "Water", "0").ID)
	if err != nil || len(entries) != 0 {
		t.Fatalf("zero initial stock should not create an entry: %v %d", err, len(entries))
	}
}

func TestAppendEntryValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p := mustCreate(t, e, "Milk", "5")
	now := time.Now()

	cases := []struct {
		name  string
		id    string
		in    EntryInput
		check func(error) bool
	}{
		{"zero quantity", p.ID, EntryInput{Date: now, Direction: models.Inflow, Quantity: d("0")}, apperr.IsValidation},
		{"negative quantity", p.ID, EntryInput{Date: now, Direction: models.Inflow, Quantity: d("-2")}, apperr.IsValidation},
		{"bad direction", p.ID, EntryInput{Date: now, Direction: "SIDEWAYS", Quantity: d("1")}, apperr.IsValidation},
		{"unknown product", "missing", EntryInput{Date: now, Direction: models.Inflow, Quantity: d("1")}, apperr.IsNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.AppendEntry(ctx, tc.id, tc.in); !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
	assertStock(t, e, p.ID, "5")

	// legacy direction names are accepted
	entry, err := e.AppendEntry(ctx, p.ID, EntryInput{Date: now.Add(time.Hour), Direction: "INCOME", Quantity: d("1.5")})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Direction != models.Inflow || !entry.Balance.Equal(d("6.5")) {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestBackdatedAppendReplaysLaterBalances(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p := mustCreate(t, e, "Rice", "0")
	day := func(n int) time.Time { return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC) }

	for _, in := range []EntryInput{
		{Date: day(1), Direction: models.Inflow, Quantity: d("10")},
		{Date: day(5), Direction: models.Outflow, Quantity: d("4")},
	} {
		if _, err := e.AppendEntry(ctx, p.ID, in); err != nil {
			t.Fatal(err)
		}
	}

	mid, err := e.AppendEntry(ctx, p.ID, EntryInput{Date: day(3), Direction: models.Inflow, Quantity: d("2")})
	if err != nil {
		t.Fatal(err)
	}
	if !mid.Balance.Equal(d("12")) {
		t.Fatalf("back-dated balance = %s, want 12", mid.Balance)
	}
	entries := assertBalances(t, e, p.ID, "10", "12", "8")
	if entries[1].ID != mid.ID {
		t.Fatal("back-dated entry not in date order")
	}
	assertStock(t, e, p.ID, "8")

	// same date keeps insertion order
	same, err := e.AppendEntry(ctx, p.ID, EntryInput{Date: day(5), Direction: models.Outflow, Quantity: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	entries = assertBalances(t, e, p.ID, "10", "12", "8", "7")
	if entries[3].ID != same.ID {
		t.Fatal("same-date entry should come after the earlier one")
	}
}

func TestRecomputeRepairsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p := mustCreate(t, e, "Oil", "4")
	if _, err := e.AppendEntry(ctx, p.ID, EntryInput{Date: time.Now().Add(time.Hour), Direction: models.Inflow, Quantity: d("6")}); err != nil {
		t.Fatal(err)
	}

	// corrupt the projection behind the engine's back
	if err := e.db.Model(&models.LedgerEntry{}).Where("product_id = ?", p.ID).Update("balance", d("99")).Error; err != nil {
		t.Fatal(err)
	}
	if err := e.db.Model(&models.Product{}).Where("id = ?", p.ID).Update("current_stock", d("-1")).Error; err != nil {
		t.Fatal(err)
	}
	rep, err := e.Verify(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.OK() || len(rep.Drift) != 2 || !rep.ExpectedStock.Equal(d("10")) {
		t.Fatalf("verify missed the drift: %+v", rep)
	}

	stock, err := e.Recompute(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stock.Equal(d("10")) {
		t.Fatalf("stock = %s", stock)
	}
	first := assertBalances(t, e, p.ID, "4", "10")

	if _, err := e.Recompute(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	second := assertBalances(t, e, p.ID, "4", "10")
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].Balance.Equal(second[i].Balance) {
			t.Fatal("second recompute changed data")
		}
	}

	reports, err := e.VerifyAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range reports {
		if !r.OK() {
			t.Fatalf("product %s still drifts: %+v", r.ProductName, r)
		}
	}

	if _, err := e.Recompute(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("recompute unknown product: %v", err)
	}
	n, err := e.RecomputeAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recompute all: %d %v", n, err)
	}
}

func TestAmendMayLeaveNegativeBalance(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p := mustCreate(t, e, "Eggs", "10")
	out, err := e.AppendEntry(ctx, p.ID, EntryInput{Date: time.Now().Add(time.Hour), Direction: models.Outflow, Quantity: d("8")})
	if err != nil {
		t.Fatal(err)
	}
	entries := assertBalances(t, e, p.ID, "10", "2")

	if _, err := e.AmendEntry(ctx, entries[0].ID, EntryInput{Date: entries[0].Date, Direction: models.Inflow, Quantity: d("3")}); err != nil {
		t.Fatalf("amend should not apply the stock guard: %v", err)
	}
	assertBalances(t, e, p.ID, "3", "-5")
	rep, err := e.Verify(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Negative) != 1 || rep.Negative[0] != out.ID {
		t.Fatalf("negative balance not reported: %+v", rep)
	}

	if _, err := e.AmendEntry(ctx, "missing", EntryInput{Date: time.Now(), Direction: models.Inflow, Quantity: d("1")}); !apperr.IsNotFound(err) {
		t.Fatalf("amend unknown entry: %v", err)
	}
	if err := e.RemoveEntry(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("remove unknown entry: %v", err)
	}
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p := mustCreate(t, e, "Butter", "2")
	mustCreate(t, e, "Cheese", "0")

	kcal := 717.0
	updated, err := e.UpdateProduct(ctx, p.ID, ProductInput{Name: "Butter 82%", Unit: "kg", Nutrition: Nutrition{Calories: &kcal}, Allergens: []int{7, 7, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Butter 82%" || *updated.Calories != kcal || fmt.Sprint(updated.Allergens) != "[1 7]" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	assertStock(t, e, p.ID, "2")

	if _, err := e.UpdateProduct(ctx, p.ID, ProductInput{Name: "Cheese", Unit: "kg"}); !apperr.IsConflict(err) {
		t.Fatalf("rename onto existing name: %v", err)
	}
	if _, err := e.UpdateProduct(ctx, "missing", ProductInput{Name: "X", Unit: "kg"}); !apperr.IsNotFound(err) {
		t.Fatalf("update unknown: %v", err)
	}

	list, err := e.ListProducts(ctx, "BUTTER")
	if err != nil || len(list) != 1 {
		t.Fatalf("search: %v %d", err, len(list))
	}

	if err := e.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetProduct(ctx, p.ID); !apperr.IsNotFound(err) {
		t.Fatalf("product still there: %v", err)
	}
	var n int64
	e.db.Model(&models.LedgerEntry{}).Where("product_id = ?", p.ID).Count(&n)
	if n != 0 {
		t.Fatalf("%d entries survived product delete", n)
	}
}

func TestConcurrentAppendsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	a := mustCreate(t, e, "A", "100")
	b := mustCreate(t, e, "B", "5")

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	base := time.Now().Add(time.Hour)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := e.AppendEntry(ctx, a.ID, EntryInput{Date: base.Add(time.Duration(i) * time.Second), Direction: models.Outflow, Quantity: d("3")}); err != nil {
				t.Errorf("append A: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := e.AppendEntry(ctx, b.ID, EntryInput{Date: base.Add(time.Duration(i) * time.Second), Direction: models.Outflow, Quantity: d("1")})
			if apperr.IsInsufficientStock(err) {
				mu.Lock()
				rejected++
				mu.Unlock()
			} else if err != nil {
				t.Errorf("append B: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assertStock(t, e, a.ID, "70")
	assertStock(t, e, b.ID, "0")
	if rejected != 5 {
		t.Fatalf("rejected = %d, want 5", rejected)
	}

	reports, err := e.VerifyAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range reports {
		if len(r.Drift) != 0 || !r.StoredStock.Equal(r.ExpectedStock) {
			t.Fatalf("invariant broken for %s: %+v", r.ProductName, r)
		}
	}
}

func TestReplay(t *testing.T) {
	entries := []models.LedgerEntry{
		{Direction: models.Inflow, Quantity: d("2.5")},
		{Direction: models.Outflow, Quantity: d("1.25")},
		{Direction: models.Inflow, Quantity: d("0.75")},
	}
	balances, stock := Replay(entries)
	want := []string{"2.5", "1.25", "2"}
	for i := range want {
		if !balances[i].Equal(d(want[i])) {
			t.Fatalf("balance %d = %s", i, balances[i])
		}
	}
	if !stock.Equal(d("2")) {
		t.Fatalf("stock = %s", stock)
	}
	if _, s := Replay(nil); !s.IsZero() {
		t.Fatal("empty ledger should be zero")
	}
}
