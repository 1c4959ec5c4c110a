package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"kartoteka-backend/internal/database/dbtest"
	"kartoteka-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func TestWriteLogAndList(t *testing.T) {
	db := dbtest.Open(t)
	ctx := WithActor(context.Background(), "anna")

	if err := WriteLog(ctx, db, LogOptions{
		EntityType: "product",
		EntityID:   "p1",
		Action:     models.AuditActionCreate,
		After:      map[string]string{"name": "Flour"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteLog(context.Background(), db, LogOptions{
		EntityType: "backup",
		EntityID:   "b1",
		Action:     models.AuditActionRestore,
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	logs, err := List(context.Background(), db, Filter{EntityType: "product"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 product log, got %d", len(logs))
	}
	l := logs[0]
	if l.Actor != "anna" || l.BeforeData != "null" || l.AfterData != `{"name":"Flour"}` {
		t.Fatalf("unexpected row: %+v", l)
	}

	all, _ := List(context.Background(), db, Filter{})
	if len(all) != 2 || all[0].Actor != "system" {
		t.Fatalf("expected newest first with system actor, got %+v", all)
	}
}

func TestListAuditLogsHandler(t *testing.T) {
	db := dbtest.Open(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := WriteLog(context.Background(), db, LogOptions{EntityType: "ledger_entry", EntityID: id, Action: models.AuditActionDelete}); err != nil {
			t.Fatal(err)
		}
	}

	app := fiber.New()
	app.Get("/audit-logs", ListAuditLogsHandler(db))

	resp, err := app.Test(httptest.NewRequest("GET", "/audit-logs?entity_id=b", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var got []AuditLogResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "b" || got[0].Action != models.AuditActionDelete {
		t.Fatalf("unexpected response: %s", body)
	}
}
