package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType определяет тип заказа
type OrderType string

const (
	// OrderVirtual - виртуальный товар, списание при создании
	OrderVirtual OrderType = "VIRTUAL"
	// OrderReal - реальный товар, списание при чекауте
	OrderReal OrderType = "REAL"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderVirtual, OrderReal:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are permitted.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	BuyerID       uuid.UUID         `json:"buyer_id" db:"buyer_id"`
	SellerID      uuid.UUID         `json:"seller_id" db:"seller_id"`
	ItemID        uuid.UUID         `json:"item_id" db:"item_id"`
	OrderType     OrderType         `json:"order_type" db:"order_type"`
	TitleSnapshot string            `json:"title_snapshot" db:"title_snapshot"`
	PriceSnapshot decimal.Decimal   `json:"price_snapshot" db:"price_snapshot"`
	Status        TransactionStatus `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}
