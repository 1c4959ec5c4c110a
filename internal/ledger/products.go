package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const OpeningDocument = "Opening balance"

// Nutrition facts per 100 g. Nil means unknown.
type Nutrition struct {
	Calories      *float64
	Protein       *float64
	Fat           *float64
	SaturatedFat  *float64
	Carbohydrates *float64
	Sugars        *float64
	Salt          *float64
	Calcium       *float64
	Iron          *float64
	VitaminC      *float64
}

// ProductInput is the editable part of a product. Stock is never set
// through it.
type ProductInput struct {
	Name         string
	Unit         string
	Manufacturer *string
	Nutrition    Nutrition
	Allergens    []int
}

func (in *ProductInput) normalize(op string) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" {
		return apperr.Validation(op, "name is required")
	}
	if in.Unit == "" {
		return apperr.Validation(op, "unit is required")
	}
	if in.Manufacturer != nil {
		m := strings.TrimSpace(*in.Manufacturer)
		if m == "" {
			in.Manufacturer = nil
		} else {
			in.Manufacturer = &m
		}
	}
	allergens, err := NormalizeAllergens(in.Allergens)
	if err != nil {
		return apperr.Validation(op, "%v", err)
	}
	in.Allergens = allergens
	return nil
}

// NormalizeAllergens checks the EU allergen numbers (1..14), drops
// duplicates and sorts them.
func NormalizeAllergens(in []int) ([]int, error) {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, a := range in {
		if a < 1 || a > 14 {
			return nil, errors.New("allergen numbers must be between 1 and 14")
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Unit = in.Unit
	p.Manufacturer = in.Manufacturer
	p.Calories = in.Nutrition.Calories
	p.Protein = in.Nutrition.Protein
	p.Fat = in.Nutrition.Fat
	p.SaturatedFat = in.Nutrition.SaturatedFat
	p.Carbohydrates = in.Nutrition.Carbohydrates
	p.Sugars = in.Nutrition.Sugars
	p.Salt = in.Nutrition.Salt
	p.Calcium = in.Nutrition.Calcium
	p.Iron = in.Nutrition.Iron
	p.VitaminC = in.Nutrition.VitaminC
	p.Allergens = in.Allergens
}

// CreateProduct inserts the product and, when initialStock is positive, an
// opening inflow entry carrying that stock.
func (e *Engine) CreateProduct(ctx context.Context, in ProductInput, initialStock decimal.Decimal) (product *models.Product, err error) {
	const op = "ledger.CreateProduct"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	if err := in.normalize(op); err != nil {
		return nil, err
	}
	if initialStock.IsNegative() {
		return nil, apperr.Validation(op, "initial stock cannot be negative")
	}

	p := &models.Product{CurrentStock: initialStock}
	in.apply(p)

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&models.Product{}).Where("name = ?", p.Name).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return apperr.Conflict(op, "product %q already exists", p.Name)
		}
		if err := tx.Omit("Entries", "Ingredients").Create(p).Error; err != nil {
			return err
		}
		if initialStock.IsPositive() {
			opening := models.LedgerEntry{
				ProductID: p.ID,
				Date:      time.Now().UTC(),
				Document:  OpeningDocument,
				Direction: models.Inflow,
				Quantity:  initialStock,
				Balance:   initialStock,
				Sequence:  1,
			}
			if err := tx.Create(&opening).Error; err != nil {
				return err
			}
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: "created product " + p.Name,
			After:       p,
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, p.ID, err)
	}
	return p, nil
}

// UpdateProduct changes metadata only; stock and entries stay as they are.
func (e *Engine) UpdateProduct(ctx context.Context, id string, in ProductInput) (product *models.Product, err error) {
	const op = "ledger.UpdateProduct"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	if err := in.normalize(op); err != nil {
		return nil, err
	}

	unlock := e.guard.Product(id)
	defer unlock()

	var updated *models.Product
	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, op, id)
		if err != nil {
			return err
		}
		before := *p

		if p.Name != in.Name {
			var dup int64
			if err := tx.Model(&models.Product{}).Where("name = ? AND id <> ?", in.Name, id).Count(&dup).Error; err != nil {
				return err
			}
			if dup > 0 {
				return apperr.Conflict(op, "product %q already exists", in.Name)
			}
		}

		in.apply(p)
		if err := tx.Model(p).Select(
			"name", "unit", "manufacturer", "calories", "protein", "fat", "saturated_fat",
			"carbohydrates", "sugars", "salt", "calcium", "iron", "vitamin_c", "allergens", "updated_at",
		).Updates(p).Error; err != nil {
			return err
		}
		updated = p
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "product",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: "updated product " + p.Name,
			Before:      before,
			After:       p,
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, id, err)
	}
	return updated, nil
}

// DeleteProduct removes the product with all of its entries. Recipe
// ingredients keep their product name and lose the link.
func (e *Engine) DeleteProduct(ctx context.Context, id string) (err error) {
	const op = "ledger.DeleteProduct"
	defer metrics.Track(ctx, e.rec, op, time.Now(), &err)

	unlock := e.guard.Product(id)
	defer unlock()

	err = database.Transaction(ctx, e.db, sql.LevelDefault, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, op, id)
		if err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.LedgerEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.RecipeIngredient{}).Where("product_id = ?", id).Update("product_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Product{}, "id = ?", id).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "product",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: "deleted product " + p.Name,
			Before:      p,
		})
	})
	return apperr.Storage(op, id, err)
}

func (e *Engine) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	const op = "ledger.GetProduct"
	var p models.Product
	if err := e.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "product", id)
		}
		return nil, apperr.Storage(op, id, err)
	}
	return &p, nil
}

// ListProducts returns products ordered by name. A non-empty query keeps
// those whose name contains it, ignoring case.
func (e *Engine) ListProducts(ctx context.Context, query string) ([]models.Product, error) {
	const op = "ledger.ListProducts"
	q := e.db.WithContext(ctx).Model(&models.Product{})
	if s := strings.TrimSpace(query); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	var products []models.Product
	if err := q.Order("name ASC").Find(&products).Error; err != nil {
		return nil, apperr.Storage(op, "", err)
	}
	return products, nil
}
