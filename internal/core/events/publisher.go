package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flipzy/transaction-service/internal/core/models"
)

// Publisher notifies downstream services about settled transactions. Publishing
// is best-effort: failures are logged by the implementation, never surfaced to
// the settlement path.
type Publisher interface {
	TransactionCompleted(ctx context.Context, tx *models.Transaction)
}

type NoopPublisher struct{}

func (NoopPublisher) TransactionCompleted(ctx context.Context, tx *models.Transaction) {}

type completedEvent struct {
	TransactionID string    `json:"transaction_id"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	ItemID        string    `json:"item_id"`
	OrderType     string    `json:"order_type"`
	PriceSnapshot string    `json:"price_snapshot"`
	Status        string    `json:"status"`
	CompletedAt   time.Time `json:"completed_at"`
}

func completedPayload(tx *models.Transaction, at time.Time) ([]byte, error) {
	return json.Marshal(completedEvent{
		TransactionID: tx.ID.String(),
		BuyerID:       tx.BuyerID.String(),
		SellerID:      tx.SellerID.String(),
		ItemID:        tx.ItemID.String(),
		OrderType:     string(tx.OrderType),
		PriceSnapshot: tx.PriceSnapshot.StringFixed(2),
		Status:        string(tx.Status),
		CompletedAt:   at,
	})
}
