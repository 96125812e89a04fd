package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"pack-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BattleService owns battle lifecycle: creation, admission, views, deletion.
type BattleService struct {
	DB      *gorm.DB
	Wallets *WalletService
}

func NewBattleService(db *gorm.DB, wallets *WalletService) *BattleService {
	return &BattleService{DB: db, Wallets: wallets}
}

// BattleConfig is the fixed configuration a battle is created with.
type BattleConfig struct {
	BoxID           string `json:"box_id"`
	Format          string `json:"format"`
	Mode            string `json:"mode"`
	MaxParticipants int    `json:"max_participants"`
	TeamSize        int    `json:"team_size"`
	TeamCount       int    `json:"team_count"`
	EntryFee        int64  `json:"entry_fee"`
	Rounds          int    `json:"rounds"`
}

func (cfg *BattleConfig) validate() error {
	switch cfg.Format {
	case models.BattleFormatSolo, models.BattleFormatTeam:
	default:
		return Validationf("format must be SOLO or TEAM")
	}
	switch cfg.Mode {
	case models.BattleModeNormal, models.BattleModeUpsideDown, models.BattleModeJackpot:
	default:
		return Validationf("mode must be NORMAL, UPSIDE_DOWN or JACKPOT")
	}
	if cfg.MaxParticipants < 2 {
		return Validationf("max_participants must be at least 2")
	}
	if cfg.Rounds < 1 {
		return Validationf("rounds must be at least 1")
	}
	if cfg.EntryFee < 0 {
		return Validationf("entry_fee must be non-negative")
	}
	if cfg.Format == models.BattleFormatTeam {
		if cfg.TeamCount < 2 || cfg.TeamSize < 1 {
			return Validationf("team battles need team_count >= 2 and team_size >= 1")
		}
		if cfg.TeamCount*cfg.TeamSize != cfg.MaxParticipants {
			return Validationf("team_count * team_size must equal max_participants")
		}
	}
	return nil
}

// CreateBattle creates a battle from its initiating participant's request
// and admits the creator in the same transaction. Pack price is snapshotted
// from the box at creation; config is immutable afterwards.
func (s *BattleService) CreateBattle(userID string, cfg BattleConfig) (*models.Battle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var box models.Box
	if err := s.DB.First(&box, "id = ?", cfg.BoxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoxNotFound
		}
		return nil, err
	}

	battle := &models.Battle{
		ID:              uuid.NewString(),
		BoxID:           box.ID,
		Format:          cfg.Format,
		Mode:            cfg.Mode,
		MaxParticipants: cfg.MaxParticipants,
		TeamSize:        cfg.TeamSize,
		TeamCount:       cfg.TeamCount,
		EntryFee:        cfg.EntryFee,
		Rounds:          cfg.Rounds,
		PackPrice:       box.PackPrice,
		Status:          models.BattleStatusWaiting,
		CreatedByUserID: userID,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(battle).Error; err != nil {
			return err
		}
		_, err := s.admitLocked(tx, battle.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return battle, nil
}

// JoinBattle admits one participant: funds check, debit, seat reservation
// and — when the seat fills the roster — the WAITING→IN_PROGRESS
// transition, all in a single transaction serialized per battle.
func (s *BattleService) JoinBattle(battleID, userID string) (*models.Participant, error) {
	var participant *models.Participant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		p, err := s.admitLocked(tx, battleID, userID)
		if err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// admitLocked runs the admission sequence inside tx. The row lock on the
// battle serializes concurrent admissions so two joins cannot both observe
// one seat left: the loser of the lock re-reads the committed roster.
func (s *BattleService) admitLocked(tx *gorm.DB, battleID, userID string) (*models.Participant, error) {
	var battle models.Battle
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	if battle.Status != models.BattleStatusWaiting {
		return nil, ErrBattleNotWaiting
	}

	var roster []models.Participant
	if err := tx.Where("battle_id = ?", battleID).
		Order("joined_at ASC, id ASC").
		Find(&roster).Error; err != nil {
		return nil, err
	}
	for _, p := range roster {
		if p.UserID == userID {
			return nil, ErrAlreadyJoined
		}
	}
	if len(roster) >= battle.MaxParticipants {
		return nil, ErrBattleFull
	}

	totalCost := battle.TotalCostPerSeat()
	if err := s.Wallets.Debit(tx, userID, totalCost, models.CoinTxnBattleEntry, battle.ID); err != nil {
		return nil, err
	}

	team, err := nextTeamNumber(&battle, roster)
	if err != nil {
		return nil, err
	}
	participant := &models.Participant{
		ID:         uuid.NewString(),
		BattleID:   battle.ID,
		UserID:     userID,
		TeamNumber: &team,
	}
	if err := tx.Create(participant).Error; err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&models.Participant{}).
		Where("battle_id = ?", battle.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) >= battle.MaxParticipants {
		now := time.Now()
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battle.ID, models.BattleStatusWaiting).
			Updates(map[string]interface{}{
				"status":     models.BattleStatusInProgress,
				"started_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return participant, nil
}

// loadBattleView fetches a battle with its roster and pulls in stable order.
func (s *BattleService) loadBattleView(battleID string) (*models.Battle, error) {
	var battle models.Battle
	err := s.DB.
		Preload("Box").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Preload("Participants.Pulls", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_index ASC")
		}).
		First(&battle, "id = ?", battleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	return &battle, nil
}

// DeleteBattle removes a finished battle with its participants and pulls.
func (s *BattleService) DeleteBattle(battleID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var battle models.Battle
		if err := tx.First(&battle, "id = ?", battleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBattleNotFound
			}
			return err
		}
		if battle.Status != models.BattleStatusFinished {
			return ErrBattleNotFinished
		}
		if err := tx.Where("battle_id = ?", battleID).Delete(&models.Pull{}).Error; err != nil {
			return err
		}
		if err := tx.Where("battle_id = ?", battleID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Battle{}, "id = ?", battleID).Error
	})
}

// --- Fiber handlers ---

func (s *BattleService) CreateBattleHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var cfg BattleConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	battle, err := s.CreateBattle(userID, cfg)
	if err != nil {
		return respondServiceError(c, err, "failed to create battle")
	}
	view, verr := s.loadBattleView(battle.ID)
	if verr != nil {
		return c.Status(fiber.StatusCreated).JSON(battle)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (s *BattleService) JoinBattleHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	battleID := c.Params("id")
	participant, err := s.JoinBattle(battleID, userID)
	if err != nil {
		return respondServiceError(c, err, "failed to join battle")
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

func (s *BattleService) GetAllBattles(c *fiber.Ctx) error {
	query := s.DB.Order("created_at DESC").Limit(100)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var battles []models.Battle
	if err := query.Find(&battles).Error; err != nil {
		log.Printf("DB Error fetching battles: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch battles"})
	}
	return c.JSON(battles)
}

func (s *BattleService) GetBattleByID(c *fiber.Ctx) error {
	battle, err := s.loadBattleView(c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "DB error")
	}
	return c.JSON(battle)
}

// DeleteBattleHandler is admin-only; non-admin callers get Forbidden.
func (s *BattleService) DeleteBattleHandler(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}
	if err := s.DeleteBattle(c.Params("id")); err != nil {
		return respondServiceError(c, err, "failed to delete battle")
	}
	return c.JSON(fiber.Map{"message": "battle deleted"})
}

// StreamBattleSSE streams battle snapshots until the battle finishes or the
// client disconnects.
func (s *BattleService) StreamBattleSSE(c *fiber.Ctx) error {
	battleID := c.Params("id")
	if _, err := s.loadBattleView(battleID); err != nil {
		return respondServiceError(c, err, "DB error")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				battle, err := s.loadBattleView(battleID)
				if err != nil {
					log.Printf("SSE query error for battle %s: %v", battleID, err)
					return
				}
				payload, _ := json.Marshal(battle)
				fmt.Fprintf(w, "event: battle\ndata: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return // client disconnected
				}
				if battle.Status == models.BattleStatusFinished {
					return
				}
			case <-c.Context().Done():
				return
			}
		}
	})
	return nil
}

// respondServiceError maps a service error to an HTTP response, hiding
// internals behind a generic message.
func respondServiceError(c *fiber.Ctx, err error, internalMsg string) error {
	status := HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("%s: %v", internalMsg, err)
		return c.Status(status).JSON(fiber.Map{"error": internalMsg})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
