package services

import (
	"errors"
	"log"
	"math"

	"pack-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// drawTableEpsilon is the tolerance on pull-rate sums.
const drawTableEpsilon = 0.001

// CatalogService owns boxes and their draw tables.
type CatalogService struct {
	DB *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

// DrawTable is the read-only probability table for one box. Sealed entries
// occupy the leading sub-range of the 100% draw space; card entries fill
// whatever remains.
type DrawTable struct {
	Cards  []models.BoxCard
	Sealed []models.BoxSealedProduct
}

// SealedSum is the probability mass consumed by sealed-product entries.
func (t *DrawTable) SealedSum() float64 {
	sum := 0.0
	for _, e := range t.Sealed {
		sum += e.PullRate
	}
	return sum
}

// CardSum is the combined raw weight of card entries.
func (t *DrawTable) CardSum() float64 {
	sum := 0.0
	for _, e := range t.Cards {
		sum += e.PullRate
	}
	return sum
}

// GetDrawTable loads the box's probability table.
func (s *CatalogService) GetDrawTable(boxID string) (*DrawTable, error) {
	var box models.Box
	if err := s.DB.First(&box, "id = ?", boxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoxNotFound
		}
		return nil, err
	}
	table := &DrawTable{}
	if err := s.DB.Where("box_id = ?", boxID).Order("created_at ASC").Find(&table.Cards).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Where("box_id = ?", boxID).Order("created_at ASC").Find(&table.Sealed).Error; err != nil {
		return nil, err
	}
	return table, nil
}

// SealedProductInput is one incoming sealed-product entry for a set update.
type SealedProductInput struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	PullRate  float64 `json:"pull_rate"`
	CoinValue int64   `json:"coin_value"`
}

// validateDrawTable enforces that the entries partition the draw space:
// sealed rates may not exceed 100%; with no card entries the sealed entries
// alone must cover exactly 100% (within tolerance) and number at least two,
// otherwise part of the space would be undrawable.
func validateDrawTable(cardCount int, sealedRates []float64) error {
	sealedSum := 0.0
	for _, rate := range sealedRates {
		if rate < 0 || rate > 100 {
			return Validationf("pull_rate must be within 0..100")
		}
		sealedSum += rate
	}
	if sealedSum > 100+drawTableEpsilon {
		return Validationf("sealed pull rates exceed 100%")
	}
	if cardCount == 0 {
		if len(sealedRates) < 2 {
			return Validationf("a box without cards needs at least 2 sealed products")
		}
		if math.Abs(sealedSum-100) > drawTableEpsilon {
			return Validationf("sealed pull rates must sum to 100% when the box has no cards")
		}
	}
	return nil
}

// UpdateSealedProducts applies the incoming sealed-product set in one
// transaction: entries are matched by catalog identity and upserted;
// entries absent from the incoming set are deleted only when they have no
// recorded pulls — an entry with pull history stays, past Pulls reference it.
func (s *CatalogService) UpdateSealedProducts(boxID string, incoming []SealedProductInput) ([]models.BoxSealedProduct, error) {
	var box models.Box
	if err := s.DB.First(&box, "id = ?", boxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoxNotFound
		}
		return nil, err
	}

	var cardCount int64
	if err := s.DB.Model(&models.BoxCard{}).Where("box_id = ?", boxID).Count(&cardCount).Error; err != nil {
		return nil, err
	}
	rates := make([]float64, len(incoming))
	seen := make(map[string]bool, len(incoming))
	for i, in := range incoming {
		if in.ProductID == "" {
			return nil, Validationf("product_id is required")
		}
		if seen[in.ProductID] {
			return nil, Validationf("duplicate product_id in incoming set")
		}
		seen[in.ProductID] = true
		rates[i] = in.PullRate
	}
	if err := validateDrawTable(int(cardCount), rates); err != nil {
		return nil, err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.BoxSealedProduct
		if err := tx.Where("box_id = ?", boxID).Find(&existing).Error; err != nil {
			return err
		}
		byProduct := make(map[string]*models.BoxSealedProduct, len(existing))
		for i := range existing {
			byProduct[existing[i].ProductID] = &existing[i]
		}

		for _, in := range incoming {
			if current, ok := byProduct[in.ProductID]; ok {
				if err := tx.Model(current).Updates(map[string]interface{}{
					"name":       in.Name,
					"pull_rate":  in.PullRate,
					"coin_value": in.CoinValue,
				}).Error; err != nil {
					return err
				}
				continue
			}
			entry := models.BoxSealedProduct{
				ID:        uuid.NewString(),
				BoxID:     boxID,
				ProductID: in.ProductID,
				Name:      in.Name,
				PullRate:  in.PullRate,
				CoinValue: in.CoinValue,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		for _, current := range existing {
			if seen[current.ProductID] {
				continue
			}
			var pullCount int64
			if err := tx.Model(&models.Pull{}).
				Where("sealed_product_id = ?", current.ID).
				Count(&pullCount).Error; err != nil {
				return err
			}
			if pullCount > 0 {
				continue // immutable: pulls reference it
			}
			if err := tx.Delete(&models.BoxSealedProduct{}, "id = ?", current.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result []models.BoxSealedProduct
	if err := s.DB.Where("box_id = ?", boxID).Order("created_at ASC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// --- Fiber handlers ---

// CreateBox creates a catalog box with its initial card entries (admin only).
func (s *CatalogService) CreateBox(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		PackPrice   int64  `json:"pack_price"`
		Cards       []struct {
			CardID    string  `json:"card_id"`
			Name      string  `json:"name"`
			PullRate  float64 `json:"pull_rate"`
			CoinValue int64   `json:"coin_value"`
		} `json:"cards"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.PackPrice < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "pack_price must be non-negative"})
	}
	for _, card := range req.Cards {
		if card.PullRate < 0 || card.PullRate > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "card pull_rate must be within 0..100"})
		}
	}

	box := &models.Box{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		PackPrice:   req.PackPrice,
		Status:      models.BoxStatusDraft,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(box).Error; err != nil {
			return err
		}
		for _, card := range req.Cards {
			entry := models.BoxCard{
				ID:        uuid.NewString(),
				BoxID:     box.ID,
				CardID:    card.CardID,
				Name:      card.Name,
				PullRate:  card.PullRate,
				CoinValue: card.CoinValue,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("DB Error creating box: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create box"})
	}

	s.DB.Preload("Cards").Preload("SealedProducts").First(box, "id = ?", box.ID)
	return c.Status(fiber.StatusCreated).JSON(box)
}

// GetAllBoxes lists catalog boxes.
func (s *CatalogService) GetAllBoxes(c *fiber.Ctx) error {
	var boxes []models.Box
	if err := s.DB.Order("created_at DESC").Find(&boxes).Error; err != nil {
		log.Printf("DB Error fetching boxes: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch boxes"})
	}
	return c.JSON(boxes)
}

// GetBoxByID returns one box with its draw table.
func (s *CatalogService) GetBoxByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var box models.Box
	err := s.DB.
		Preload("Cards", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("SealedProducts", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&box, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "box not found"})
		}
		log.Printf("DB Error fetching box %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(box)
}

// PutSealedProducts replaces the box's sealed-product set (admin only).
func (s *CatalogService) PutSealedProducts(c *fiber.Ctx) error {
	boxID := c.Params("id")
	var req struct {
		SealedProducts []SealedProductInput `json:"sealed_products"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	result, err := s.UpdateSealedProducts(boxID, req.SealedProducts)
	if err != nil {
		status := HTTPStatus(err)
		if status == fiber.StatusInternalServerError {
			log.Printf("Sealed-product update failed for box %s: %v", boxID, err)
			return c.Status(status).JSON(fiber.Map{"error": "failed to update sealed products"})
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"box_id": boxID, "sealed_products": result})
}
