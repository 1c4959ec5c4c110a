package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func TestStorageTranslatesAndPassesThrough(t *testing.T) {
	biz := InsufficientStock("ledger.AppendEntry", "p1", "not enough")
	if got := Storage("op", "p1", biz); got != biz {
		t.Fatalf("business error was rewrapped: %v", got)
	}
	if !IsNotFound(Storage("op", "x", gorm.ErrRecordNotFound)) {
		t.Fatal("record not found should map to NotFound")
	}
	if !IsConflict(Storage("op", "x", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey))) {
		t.Fatal("duplicate key should map to Conflict")
	}
	raw := errors.New("disk full")
	err := Storage("snapshot.CreateSnapshot", "", raw)
	if !IsStorage(err) || !errors.Is(err, raw) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
	if Storage("op", "", nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestFiberErrorHandler(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		contains string
	}{
		{Validation("op", "quantity must be greater than zero"), 400, "quantity must be"},
		{NotFound("op", "product", "p1"), 404, "product not found"},
		{InsufficientStock("op", "p1", "insufficient stock"), 422, "insufficient stock"},
		{Conflict("op", "product %q already exists", "Flour"), 409, "already exists"},
		{Storage("op", "p1", errors.New("connection reset")), 500, "internal server error"},
		{fiber.NewError(fiber.StatusForbidden, "nope"), 403, "nope"},
		{errors.New("plain"), 500, "internal server error"},
	}

	for _, tc := range cases {
		app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
		err := tc.err
		app.Get("/", func(*fiber.Ctx) error { return err })

		resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
		if e != nil {
			t.Fatal(e)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, resp.StatusCode, tc.status)
		}
		if !strings.Contains(string(body), tc.contains) {
			t.Errorf("%v: body %s does not contain %q", tc.err, body, tc.contains)
		}
		if strings.Contains(string(body), "connection reset") {
			t.Errorf("storage detail leaked: %s", body)
		}
	}
}
