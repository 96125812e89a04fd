package services

import (
	"errors"
	"log"
	"strings"

	"pack-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService is the coin ledger. Debit and Credit are atomic primitives:
// single conditional UPDATE statements that either fully apply or fail, so
// they are safe to call inside an enclosing transaction.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// GetBalance returns the user's coin balance; a missing wallet reads as 0.
func (s *WalletService) GetBalance(userID string) (int64, error) {
	var wallet models.Wallet
	err := s.DB.Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Debit removes amount from the user's balance within tx. The balance guard
// lives in the UPDATE itself: zero rows affected means insufficient funds,
// and nothing was applied.
func (s *WalletService) Debit(tx *gorm.DB, userID string, amount int64, kind, reference string) error {
	if amount < 0 {
		return Validationf("debit amount must be non-negative")
	}
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return s.journal(tx, userID, -amount, kind, reference)
}

// Credit adds amount to the user's balance within tx, creating the wallet
// row on first credit.
func (s *WalletService) Credit(tx *gorm.DB, userID string, amount int64, kind, reference string) error {
	if amount < 0 {
		return Validationf("credit amount must be non-negative")
	}
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		wallet := models.Wallet{ID: uuid.NewString(), UserID: userID, Balance: amount}
		if err := tx.Create(&wallet).Error; err != nil {
			return err
		}
	}
	return s.journal(tx, userID, amount, kind, reference)
}

func (s *WalletService) journal(tx *gorm.DB, userID string, amount int64, kind, reference string) error {
	entry := models.CoinTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
	}
	return tx.Create(&entry).Error
}

// ProcessPaymentEvent credits a confirmed coin purchase exactly once.
// Deliveries arrive at least once; the unique (provider, event_id) index
// makes the replayed insert fail inside the same transaction that credits,
// so a duplicate never reaches the balance. Returns true when the credit
// was applied, false when the event was already processed.
func (s *WalletService) ProcessPaymentEvent(provider, eventID, userID string, amount int64) (bool, error) {
	if provider == "" || eventID == "" || userID == "" {
		return false, Validationf("provider, event_id and user_id are required")
	}
	if amount <= 0 {
		return false, Validationf("amount must be positive")
	}

	applied := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.PaymentEvent
		err := tx.Where("provider = ? AND event_id = ?", provider, eventID).First(&existing).Error
		if err == nil {
			return nil // replayed delivery, nothing to do
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		event := models.PaymentEvent{
			ID:       uuid.NewString(),
			Provider: provider,
			EventID:  eventID,
			UserID:   userID,
			Amount:   amount,
		}
		if err := tx.Create(&event).Error; err != nil {
			// lost the race against a concurrent delivery of the same event
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") ||
				strings.Contains(strings.ToLower(err.Error()), "unique") {
				return nil
			}
			return err
		}
		if err := s.Credit(tx, userID, amount, models.CoinTxnPurchase, event.ID); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// --- Fiber handlers ---

// GetMyWallet returns the authenticated user's balance.
func (s *WalletService) GetMyWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	balance, err := s.GetBalance(userID)
	if err != nil {
		log.Printf("DB Error fetching wallet for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}

// GetMyTransactions lists the authenticated user's ledger entries.
func (s *WalletService) GetMyTransactions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var txns []models.CoinTransaction
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&txns).Error; err != nil {
		log.Printf("DB Error fetching transactions for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(txns)
}

// PaymentWebhook receives coin-purchase confirmations from the payment
// provider. Replayed deliveries are acknowledged without double-crediting.
func (s *WalletService) PaymentWebhook(c *fiber.Ctx) error {
	var req struct {
		Provider string `json:"provider"`
		EventID  string `json:"event_id"`
		UserID   string `json:"user_id"`
		Amount   int64  `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	applied, err := s.ProcessPaymentEvent(req.Provider, req.EventID, req.UserID, req.Amount)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Reason})
		}
		log.Printf("Payment event %s/%s failed: %v", req.Provider, req.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process payment event"})
	}
	return c.JSON(fiber.Map{"applied": applied})
}
