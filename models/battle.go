package models

import (
	"time"
)

// Battle formats
const (
	BattleFormatSolo = "SOLO"
	BattleFormatTeam = "TEAM"
)

// Battle scoring modes
const (
	BattleModeNormal     = "NORMAL"
	BattleModeUpsideDown = "UPSIDE_DOWN"
	BattleModeJackpot    = "JACKPOT"
)

// Battle lifecycle. Monotonic: WAITING → IN_PROGRESS → FINISHED, never backward.
const (
	BattleStatusWaiting    = "WAITING"
	BattleStatusInProgress = "IN_PROGRESS"
	BattleStatusFinished   = "FINISHED"
)

// Battle is a paid multiplayer pack-opening contest. Config is fixed at
// creation; status transitions are done with guarded conditional updates,
// never a bare read-then-write.
type Battle struct {
	ID              string `json:"id" gorm:"primaryKey"`
	BoxID           string `json:"box_id" gorm:"not null;index"`
	Format          string `json:"format" gorm:"type:varchar(8);not null;default:'SOLO'"`
	Mode            string `json:"mode" gorm:"type:varchar(16);not null;default:'NORMAL'"`
	MaxParticipants int    `json:"max_participants" gorm:"not null"`
	TeamSize        int    `json:"team_size" gorm:"default:0"`  // TEAM format only
	TeamCount       int    `json:"team_count" gorm:"default:0"` // TEAM format only
	EntryFee        int64  `json:"entry_fee" gorm:"default:0"`  // coins
	Rounds          int    `json:"rounds" gorm:"not null"`
	PackPrice       int64  `json:"pack_price" gorm:"not null"` // coins, snapshot from box at creation
	Status          string `json:"status" gorm:"type:varchar(16);not null;default:'WAITING';index"`
	CreatedByUserID string `json:"created_by_user_id" gorm:"not null;index"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Stamped by settlement, exactly once
	WinnerParticipantID *string `json:"winner_participant_id,omitempty"`
	WinningTeamNumber   *int    `json:"winning_team_number,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Box          Box           `json:"box,omitempty" gorm:"foreignKey:BoxID"`
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:BattleID"`
}

// TotalCostPerSeat is the amount debited from a joining participant:
// entry fee plus one pack per round.
func (b *Battle) TotalCostPerSeat() int64 {
	return b.EntryFee + b.PackPrice*int64(b.Rounds)
}

// Participant is one paid seat in a battle. Unique per (battle, user).
// Created only during admission; totals mutated only by round execution.
type Participant struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	BattleID     string    `json:"battle_id" gorm:"not null;uniqueIndex:idx_battle_user"`
	UserID       string    `json:"user_id" gorm:"not null;uniqueIndex:idx_battle_user;index"`
	TeamNumber   *int      `json:"team_number,omitempty"` // nullable for degenerate solo cases
	TotalValue   int64     `json:"total_value" gorm:"default:0"`
	RoundsPulled int       `json:"rounds_pulled" gorm:"default:0"`
	HasPulled    bool      `json:"has_pulled" gorm:"default:false"`
	JoinedAt     time.Time `json:"joined_at" gorm:"autoCreateTime"`

	Pulls []Pull `json:"pulls,omitempty" gorm:"foreignKey:ParticipantID"`
}

// Pull is one weighted-random draw. Immutable after creation: exactly one of
// CardID / SealedProductID is set, enforced by the PullTarget constructors.
type Pull struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	ParticipantID string  `json:"participant_id" gorm:"not null;index"`
	BattleID      string  `json:"battle_id" gorm:"not null;index"` // denormalized for resolution queries
	RoundIndex    int     `json:"round_index" gorm:"not null"`
	CardID        *string `json:"card_id,omitempty" gorm:"index"`
	SealedProductID *string `json:"sealed_product_id,omitempty" gorm:"index"`
	CoinValue     int64   `json:"coin_value" gorm:"not null"`

	// Set when the pull is reserved for physical fulfillment
	OrderID *string `json:"order_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PullTarget is the tagged variant behind a Pull: a card or a sealed
// product, never neither. Build it with CardTarget / SealedProductTarget.
type PullTarget struct {
	cardID          string
	sealedProductID string
}

func CardTarget(cardID string) PullTarget {
	return PullTarget{cardID: cardID}
}

func SealedProductTarget(productID string) PullTarget {
	return PullTarget{sealedProductID: productID}
}

// IsCard reports which arm is populated.
func (t PullTarget) IsCard() bool { return t.cardID != "" }

// Apply writes the populated arm onto the pull row.
func (t PullTarget) Apply(p *Pull) {
	if t.cardID != "" {
		id := t.cardID
		p.CardID = &id
		return
	}
	id := t.sealedProductID
	p.SealedProductID = &id
}
