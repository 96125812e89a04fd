package services

import (
	"errors"
	"math"

	"pack-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoundService executes one weighted draw per participant per round. Draws
// for different participants in the same battle run fully in parallel: they
// touch disjoint participant rows plus the append-only pulls table.
type RoundService struct {
	DB      *gorm.DB
	Catalog *CatalogService
	RNG     RandomSource
}

func NewRoundService(db *gorm.DB, catalog *CatalogService, rng RandomSource) *RoundService {
	if rng == nil {
		rng = DefaultRNG()
	}
	return &RoundService{DB: db, Catalog: catalog, RNG: rng}
}

// drawEntry is one slot in the flattened cumulative table.
type drawEntry struct {
	target    models.PullTarget
	weight    float64
	coinValue int64
}

// buildDrawEntries flattens the table into weighted slots. Sealed entries
// keep their configured rates; card entries share the remaining probability
// mass proportionally to their own rates. Table validity is enforced at
// configuration time — a malformed table here is fatal, never clamped.
func buildDrawEntries(table *DrawTable) ([]drawEntry, error) {
	sealedSum := table.SealedSum()
	if sealedSum > 100+drawTableEpsilon {
		return nil, ErrDrawTableInvalid
	}
	if len(table.Cards) == 0 {
		if math.Abs(sealedSum-100) > drawTableEpsilon || len(table.Sealed) < 2 {
			return nil, ErrDrawTableInvalid
		}
	}

	entries := make([]drawEntry, 0, len(table.Sealed)+len(table.Cards))
	for _, sp := range table.Sealed {
		if sp.PullRate < 0 {
			return nil, ErrDrawTableInvalid
		}
		entries = append(entries, drawEntry{
			target:    models.SealedProductTarget(sp.ID),
			weight:    sp.PullRate,
			coinValue: sp.CoinValue,
		})
	}
	if len(table.Cards) > 0 {
		cardSum := table.CardSum()
		remainder := 100 - sealedSum
		if cardSum <= 0 || remainder < -drawTableEpsilon {
			return nil, ErrDrawTableInvalid
		}
		for _, card := range table.Cards {
			if card.PullRate < 0 {
				return nil, ErrDrawTableInvalid
			}
			entries = append(entries, drawEntry{
				target:    models.CardTarget(card.ID),
				weight:    card.PullRate / cardSum * remainder,
				coinValue: card.CoinValue,
			})
		}
	}
	if len(entries) == 0 {
		return nil, ErrDrawTableInvalid
	}
	return entries, nil
}

// sampleDraw picks one entry by cumulative weight against a uniform draw in
// [0, 100).
func sampleDraw(entries []drawEntry, rng RandomSource) drawEntry {
	r := rng.Float64() * 100
	cumulative := 0.0
	for _, e := range entries {
		cumulative += e.weight
		if r < cumulative {
			return e
		}
	}
	// float rounding at the top of the range
	return entries[len(entries)-1]
}

// ExecuteRound draws one entry for the participant and accumulates the
// result. The participant update is a compare-and-swap on rounds_pulled:
// two concurrent executions for the same participant cannot both record the
// same round index, the loser fails with a retryable conflict.
func (s *RoundService) ExecuteRound(battleID, participantID string) (*models.Pull, error) {
	var battle models.Battle
	if err := s.DB.First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	if battle.Status != models.BattleStatusInProgress {
		return nil, ErrBattleNotInProgress
	}

	var participant models.Participant
	if err := s.DB.First(&participant, "id = ? AND battle_id = ?", participantID, battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	roundIndex := participant.RoundsPulled
	if roundIndex >= battle.Rounds {
		return nil, ErrRoundsExhausted
	}

	table, err := s.Catalog.GetDrawTable(battle.BoxID)
	if err != nil {
		return nil, err
	}
	entries, err := buildDrawEntries(table)
	if err != nil {
		return nil, err
	}
	drawn := sampleDraw(entries, s.RNG)

	pull := &models.Pull{
		ID:            uuid.NewString(),
		ParticipantID: participant.ID,
		BattleID:      battle.ID,
		RoundIndex:    roundIndex,
		CoinValue:     drawn.coinValue,
	}
	drawn.target.Apply(pull)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Participant{}).
			Where("id = ? AND rounds_pulled = ?", participant.ID, roundIndex).
			Updates(map[string]interface{}{
				"total_value":   gorm.Expr("total_value + ?", drawn.coinValue),
				"rounds_pulled": roundIndex + 1,
				"has_pulled":    roundIndex+1 >= battle.Rounds,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoundConflict
		}
		return tx.Create(pull).Error
	})
	if err != nil {
		return nil, err
	}
	return pull, nil
}

// --- Fiber handlers ---

// PullHandler executes the next round for the calling participant.
func (s *RoundService) PullHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	battleID := c.Params("id")

	var participant models.Participant
	if err := s.DB.First(&participant, "battle_id = ? AND user_id = ?", battleID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not a participant of this battle"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	pull, err := s.ExecuteRound(battleID, participant.ID)
	if err != nil {
		return respondServiceError(c, err, "failed to execute round")
	}
	return c.Status(fiber.StatusCreated).JSON(pull)
}
