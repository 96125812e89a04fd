// models/box.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	BoxStatusDraft     = "draft"
	BoxStatusPublished = "published"
	BoxStatusArchived  = "archived"
)

// Box is a catalog pack type. Its card and sealed-product entries form the
// draw table: pull rates partition 100% of the draw space.
type Box struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Description string `json:"description"`
	PackPrice   int64  `json:"pack_price" gorm:"not null"` // coins per pack
	Status      string `json:"status" gorm:"default:'draft'"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Cards          []BoxCard          `json:"cards,omitempty" gorm:"foreignKey:BoxID"`
	SealedProducts []BoxSealedProduct `json:"sealed_products,omitempty" gorm:"foreignKey:BoxID"`
}

// BoxCard is a direct-card draw-table entry. When a box has card entries,
// they share the probability space left over by the sealed-product entries.
type BoxCard struct {
	ID        string  `json:"id" gorm:"primaryKey"`
	BoxID     string  `json:"box_id" gorm:"not null;index"`
	CardID    string  `json:"card_id" gorm:"not null;index"` // catalog identity
	Name      string  `json:"name"`
	PullRate  float64 `json:"pull_rate" gorm:"not null"` // percent, 0..100
	CoinValue int64   `json:"coin_value" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BoxSealedProduct is a sealed-product draw-table entry. Entries with pull
// history are immutable: set updates retain them even when absent from the
// incoming set.
type BoxSealedProduct struct {
	ID        string  `json:"id" gorm:"primaryKey"`
	BoxID     string  `json:"box_id" gorm:"not null;index"`
	ProductID string  `json:"product_id" gorm:"not null;index"` // catalog identity
	Name      string  `json:"name"`
	PullRate  float64 `json:"pull_rate" gorm:"not null"` // percent, 0..100
	CoinValue int64   `json:"coin_value" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
