package transfer

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"kartoteka-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func upload(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "export.json")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(body))
	w.Close()

	req := httptest.NewRequest("POST", "/data/import", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestTransferRoutes(t *testing.T) {
	_, c := seeded(t)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.FiberErrorHandler})
	app.Get("/data/export", ExportHandler(c))
	app.Post("/data/import", ImportHandler(c))

	resp, err := app.Test(httptest.NewRequest("GET", "/data/export", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("export status %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "kartoteka_full_export_") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	exported, _ := io.ReadAll(resp.Body)

	code, body := upload(t, app, string(exported))
	if code != fiber.StatusOK {
		t.Fatalf("import status %d: %s", code, body)
	}
	var out struct {
		Success bool           `json:"success"`
		Counts  map[string]int `json:"counts"`
	}
	json.Unmarshal([]byte(body), &out)
	if !out.Success || out.Counts["productsCount"] != 2 {
		t.Fatalf("import response = %s", body)
	}

	if code, body := upload(t, app, `{"entities": {}}`); code != fiber.StatusBadRequest {
		t.Fatalf("versionless document: %d %s", code, body)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/data/import", nil), -1)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("missing file: %d", resp.StatusCode)
	}
}
