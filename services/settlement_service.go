package services

import (
	"errors"
	"log"
	"time"

	"pack-battle-system/models"
	"pack-battle-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SettlementService drives the terminal IN_PROGRESS→FINISHED transition and
// pays the winners. The transition is a conditional update on the stored
// status, so out of any number of concurrent callers exactly one resolves the
// outcome and applies payout; the rest observe AlreadySettled.
type SettlementService struct {
	DB      *gorm.DB
	Wallets *WalletService
}

func NewSettlementService(db *gorm.DB, wallets *WalletService) *SettlementService {
	return &SettlementService{DB: db, Wallets: wallets}
}

// Settle finalizes a battle once every participant has pulled all rounds.
// Resolution, the status flip and the payout share one transaction: a
// failed payout rolls the transition back and the battle stays IN_PROGRESS
// for retry. A battle is never FINISHED without a winner and a completed
// payout.
func (s *SettlementService) Settle(battleID string) (*Outcome, error) {
	var battle models.Battle
	if err := s.DB.First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	if battle.Status == models.BattleStatusFinished {
		return nil, ErrAlreadySettled
	}
	if battle.Status != models.BattleStatusInProgress {
		return nil, ErrNotReady
	}

	var outcome *Outcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var participants []models.Participant
		if err := tx.Where("battle_id = ?", battleID).
			Order("joined_at ASC, id ASC").
			Find(&participants).Error; err != nil {
			return err
		}
		if len(participants) == 0 {
			return ErrNoParticipants
		}
		for _, p := range participants {
			if !p.HasPulled {
				return ErrNotReady
			}
		}

		var pulls []models.Pull
		if err := tx.Where("battle_id = ?", battleID).
			Order("created_at ASC, id ASC").
			Find(&pulls).Error; err != nil {
			return err
		}

		resolved, err := ResolveOutcome(&battle, participants, pulls)
		if err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battleID, models.BattleStatusInProgress).
			Updates(map[string]interface{}{
				"status":                models.BattleStatusFinished,
				"finished_at":           now,
				"winner_participant_id": resolved.PrimaryParticipant.ID,
				"winning_team_number":   resolved.WinningTeamNumber,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}

		if err := s.payout(tx, &battle, participants, resolved); err != nil {
			return err
		}
		outcome = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.archiveOutcome(&battle, outcome)
	return outcome, nil
}

// payout credits the pot — every participant's accumulated pull value — to
// the winning participants, split evenly with remainder going to the
// primary participant.
func (s *SettlementService) payout(tx *gorm.DB, battle *models.Battle, participants []models.Participant, outcome *Outcome) error {
	pot := int64(0)
	for _, p := range participants {
		pot += p.TotalValue
	}
	if pot == 0 {
		return nil
	}
	winners := outcome.WinningParticipants
	share := pot / int64(len(winners))
	remainder := pot - share*int64(len(winners))
	for _, w := range winners {
		amount := share
		if w.ID == outcome.PrimaryParticipant.ID {
			amount += remainder
		}
		if err := s.Wallets.Credit(tx, w.UserID, amount, models.CoinTxnBattlePayout, battle.ID); err != nil {
			return err
		}
	}
	return nil
}

// ForfeitAndSettle forfeits unplayed rounds for every straggler and then
// runs normal settlement. Used by the round-deadline sweeper: forfeited
// participants keep whatever they drew, no pulls are fabricated.
func (s *SettlementService) ForfeitAndSettle(battleID string) (*Outcome, error) {
	err := s.DB.Model(&models.Participant{}).
		Where("battle_id = ? AND has_pulled = ?", battleID, false).
		Update("has_pulled", true).Error
	if err != nil {
		return nil, err
	}
	return s.Settle(battleID)
}

// archiveOutcome uploads a settlement snapshot to R2, best-effort.
func (s *SettlementService) archiveOutcome(battle *models.Battle, outcome *Outcome) {
	if !utils.R2Enabled() {
		return
	}
	go func() {
		key := "settlements/" + battle.ID + ".json"
		snapshot := map[string]interface{}{
			"battle_id":   battle.ID,
			"box_id":      battle.BoxID,
			"format":      battle.Format,
			"mode":        battle.Mode,
			"outcome":     outcome,
			"archived_at": time.Now().UTC(),
		}
		if err := utils.UploadJSONToR2(key, snapshot); err != nil {
			log.Printf("Settlement archive failed for battle %s: %v", battle.ID, err)
		}
	}()
}

// --- Fiber handlers ---

// SettleHandler finalizes a battle. Safe to call repeatedly; only the first
// successful call pays out.
func (s *SettlementService) SettleHandler(c *fiber.Ctx) error {
	outcome, err := s.Settle(c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed to settle battle")
	}
	return c.JSON(outcome)
}
