// models/order.go
package models

import (
	"time"
)

// Order statuses. PENDING → PAID only, via a guarded conditional update.
const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
)

// Order is a physical-fulfillment request for drawn items. Pulls reserved
// by an order carry its id in their order_id back-reference; when payment
// is confirmed the order flips to PAID and the fulfilled pull rows are
// removed in the same transaction.
type Order struct {
	ID             string `json:"id" gorm:"primaryKey"`
	UserID         string `json:"user_id" gorm:"not null;index"`
	Status         string `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index"`
	PaymentEventID string `json:"payment_event_id,omitempty"`
	ItemCount      int    `json:"item_count" gorm:"default:0"`

	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}
