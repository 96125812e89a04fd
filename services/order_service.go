package services

import (
	"errors"
	"time"

	"pack-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderService models physical fulfillment as an explicit PENDING→PAID
// state machine. The payment callback flips the status with a guarded
// update and runs the compensating cleanup — deleting the fulfilled pull
// rows — inside the same transaction, instead of as a side effect buried in
// the webhook handler.
type OrderService struct {
	DB *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{DB: db}
}

// CreateOrder reserves the user's pulls for physical fulfillment.
func (s *OrderService) CreateOrder(userID string, pullIDs []string) (*models.Order, error) {
	if len(pullIDs) == 0 {
		return nil, Validationf("at least one pull is required")
	}
	order := &models.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.OrderStatusPending,
		ItemCount: len(pullIDs),
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var pulls []models.Pull
		if err := tx.
			Joins("JOIN participants ON participants.id = pulls.participant_id").
			Where("pulls.id IN ? AND participants.user_id = ?", pullIDs, userID).
			Find(&pulls).Error; err != nil {
			return err
		}
		if len(pulls) != len(pullIDs) {
			return Validationf("one or more pulls not found or not owned by user")
		}
		for _, p := range pulls {
			if p.OrderID != nil {
				return Validationf("pull already reserved by another order")
			}
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Model(&models.Pull{}).
			Where("id IN ?", pullIDs).
			Update("order_id", order.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment handles the order payment confirmation. The PENDING→PAID
// flip is a conditional update, so replayed deliveries find zero rows and
// report AlreadyPaid without repeating the cleanup.
func (s *OrderService) ConfirmPayment(orderID, paymentEventID string) (*models.Order, error) {
	var order models.Order
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		now := time.Now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":           models.OrderStatusPaid,
				"payment_event_id": paymentEventID,
				"paid_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyPaid
		}
		// compensating cleanup: fulfilled pulls leave the system
		if err := tx.Where("order_id = ?", orderID).Delete(&models.Pull{}).Error; err != nil {
			return err
		}
		order.Status = models.OrderStatusPaid
		order.PaymentEventID = paymentEventID
		order.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// --- Fiber handlers ---

func (s *OrderService) CreateOrderHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		PullIDs []string `json:"pull_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	order, err := s.CreateOrder(userID, req.PullIDs)
	if err != nil {
		return respondServiceError(c, err, "failed to create order")
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// OrderWebhook receives order payment confirmations; deliveries are
// at-least-once and idempotent.
func (s *OrderService) OrderWebhook(c *fiber.Ctx) error {
	var req struct {
		OrderID        string `json:"order_id"`
		PaymentEventID string `json:"payment_event_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}
	order, err := s.ConfirmPayment(req.OrderID, req.PaymentEventID)
	if err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			// acknowledge the replay so the provider stops retrying
			return c.JSON(fiber.Map{"message": "already paid"})
		}
		return respondServiceError(c, err, "failed to confirm order payment")
	}
	return c.JSON(order)
}
