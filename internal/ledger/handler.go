package ledger

import (
	"context"
	"strings"
	"time"

	"kartoteka-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Checkpointer takes a backup before a destructive change and prunes old
// ones. The snapshot manager implements it.
type Checkpointer interface {
	Checkpoint(ctx context.Context, description string) error
}

type ProductRequest struct {
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	InitialStock  decimal.Decimal `json:"initialStock"`
	Manufacturer  *string         `json:"manufacturer"`
	Calories      *float64        `json:"calories"`
	Protein       *float64        `json:"protein"`
	Fat           *float64        `json:"fat"`
	SaturatedFat  *float64        `json:"saturatedFat"`
	Carbohydrates *float64        `json:"carbohydrates"`
	Sugars        *float64        `json:"sugars"`
	Salt          *float64        `json:"salt"`
	Calcium       *float64        `json:"calcium"`
	Iron          *float64        `json:"iron"`
	VitaminC      *float64        `json:"vitaminC"`
	Allergens     []int           `json:"allergens"`
}

func (r ProductRequest) input() ProductInput {
	return ProductInput{
		Name:         r.Name,
		Unit:         r.Unit,
		Manufacturer: r.Manufacturer,
		Nutrition: Nutrition{
			Calories:      r.Calories,
			Protein:       r.Protein,
			Fat:           r.Fat,
			SaturatedFat:  r.SaturatedFat,
			Carbohydrates: r.Carbohydrates,
			Sugars:        r.Sugars,
			Salt:          r.Salt,
			Calcium:       r.Calcium,
			Iron:          r.Iron,
			VitaminC:      r.VitaminC,
		},
		Allergens: r.Allergens,
	}
}

type ProductResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	CurrentStock  decimal.Decimal `json:"currentStock"`
	Manufacturer  *string         `json:"manufacturer"`
	Calories      *float64        `json:"calories"`
	Protein       *float64        `json:"protein"`
	Fat           *float64        `json:"fat"`
	SaturatedFat  *float64        `json:"saturatedFat"`
	Carbohydrates *float64        `json:"carbohydrates"`
	Sugars        *float64        `json:"sugars"`
	Salt          *float64        `json:"salt"`
	Calcium       *float64        `json:"calcium"`
	Iron          *float64        `json:"iron"`
	VitaminC      *float64        `json:"vitaminC"`
	Allergens     []int           `json:"allergens"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	Entries []EntryResponse `json:"transactions,omitempty"`
}

func NewProductResponse(p *models.Product) ProductResponse {
	allergens := p.Allergens
	if allergens == nil {
		allergens = []int{}
	}
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Unit:          p.Unit,
		CurrentStock:  p.CurrentStock,
		Manufacturer:  p.Manufacturer,
		Calories:      p.Calories,
		Protein:       p.Protein,
		Fat:           p.Fat,
		SaturatedFat:  p.SaturatedFat,
		Carbohydrates: p.Carbohydrates,
		Sugars:        p.Sugars,
		Salt:          p.Salt,
		Calcium:       p.Calcium,
		Iron:          p.Iron,
		VitaminC:      p.VitaminC,
		Allergens:     allergens,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type EntryRequest struct {
	Date     string          `json:"date"` // "2024-01-10" or RFC 3339
	Document string          `json:"document"`
	Type     string          `json:"type"` // INFLOW | OUTFLOW
	Quantity decimal.Decimal `json:"quantity"`
}

func (r EntryRequest) input() (EntryInput, error) {
	d, err := ParseDate(r.Date)
	if err != nil {
		return EntryInput{}, fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD or RFC 3339")
	}
	return EntryInput{
		Date:      d,
		Document:  r.Document,
		Direction: models.Direction(strings.TrimSpace(r.Type)),
		Quantity:  r.Quantity,
	}, nil
}

type EntryResponse struct {
	ID        string           `json:"id"`
	ProductID string           `json:"productId"`
	Date      time.Time        `json:"date"`
	Document  string           `json:"document"`
	Type      models.Direction `json:"type"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Balance   decimal.Decimal  `json:"balance"`
	CreatedAt time.Time        `json:"createdAt"`
}

func NewEntryResponse(e *models.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:        e.ID,
		ProductID: e.ProductID,
		Date:      e.Date.UTC(),
		Document:  e.Document,
		Type:      e.Direction,
		Quantity:  e.Quantity,
		Balance:   e.Balance,
		CreatedAt: e.CreatedAt,
	}
}

// ParseDate accepts a calendar date (taken as UTC midnight) or an RFC 3339
// timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

// GET /api/products?q=flour
func ListProductsHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		products, err := e.ListProducts(c.UserContext(), c.Query("q"))
		if err != nil {
			return err
		}
		resp := make([]ProductResponse, 0, len(products))
		for i := range products {
			resp = append(resp, NewProductResponse(&products[i]))
		}
		return c.JSON(resp)
	}
}

// POST /api/products
func CreateProductHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := cp.Checkpoint(c.UserContext(), "Before product create"); err != nil {
			return err
		}
		p, err := e.CreateProduct(c.UserContext(), body.input(), body.InitialStock)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewProductResponse(p))
	}
}

// GET /api/products/:id
func GetProductHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := e.GetProduct(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		entries, err := e.ListEntries(c.UserContext(), p.ID)
		if err != nil {
			return err
		}
		resp := NewProductResponse(p)
		resp.Entries = make([]EntryResponse, 0, len(entries))
		for i := range entries {
			resp.Entries = append(resp.Entries, NewEntryResponse(&entries[i]))
		}
		return c.JSON(resp)
	}
}

// PUT /api/products/:id
func UpdateProductHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := cp.Checkpoint(c.UserContext(), "Before product update"); err != nil {
			return err
		}
		p, err := e.UpdateProduct(c.UserContext(), c.Params("id"), body.input())
		if err != nil {
			return err
		}
		return c.JSON(NewProductResponse(p))
	}
}

// DELETE /api/products/:id
func DeleteProductHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := e.GetProduct(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		if err := cp.Checkpoint(c.UserContext(), "Before product delete"); err != nil {
			return err
		}
		if err := e.DeleteProduct(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

// POST /api/products/:id/entries
func AppendEntryHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body EntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		in, err := body.input()
		if err != nil {
			return err
		}
		if _, err := e.GetProduct(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		if err := cp.Checkpoint(c.UserContext(), "Before entry create"); err != nil {
			return err
		}
		entry, err := e.AppendEntry(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewEntryResponse(entry))
	}
}

// POST /api/products/:id/recompute
func RecomputeHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stock, err := e.Recompute(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"productId": c.Params("id"), "currentStock": stock})
	}
}

// PUT /api/entries/:id
func AmendEntryHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body EntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		in, err := body.input()
		if err != nil {
			return err
		}
		if _, err := e.GetEntry(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		if err := cp.Checkpoint(c.UserContext(), "Before entry update"); err != nil {
			return err
		}
		entry, err := e.AmendEntry(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return err
		}
		return c.JSON(NewEntryResponse(entry))
	}
}

// DELETE /api/entries/:id
func RemoveEntryHandler(e *Engine, cp Checkpointer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := e.GetEntry(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		if err := cp.Checkpoint(c.UserContext(), "Before entry delete"); err != nil {
			return err
		}
		if err := e.RemoveEntry(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

// GET /api/ledger/verify
func VerifyHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reports, err := e.VerifyAll(c.UserContext())
		if err != nil {
			return err
		}
		type item struct {
			ProductID     string          `json:"productId"`
			ProductName   string          `json:"productName"`
			StoredStock   decimal.Decimal `json:"storedStock"`
			ExpectedStock decimal.Decimal `json:"expectedStock"`
			DriftEntries  int             `json:"driftEntries"`
			Negative      []string        `json:"negativeEntries"`
		}
		resp := make([]item, 0)
		for _, r := range reports {
			if r.OK() {
				continue
			}
			resp = append(resp, item{
				ProductID:     r.ProductID,
				ProductName:   r.ProductName,
				StoredStock:   r.StoredStock,
				ExpectedStock: r.ExpectedStock,
				DriftEntries:  len(r.Drift),
				Negative:      r.Negative,
			})
		}
		return c.JSON(fiber.Map{"products": len(reports), "problems": resp})
	}
}
