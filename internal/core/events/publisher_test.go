package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipzy/transaction-service/internal/core/models"
)

func TestCompletedPayload(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 20, 30, 0, time.UTC)
	tx := &models.Transaction{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		ItemID:        uuid.New(),
		OrderType:     models.OrderReal,
		TitleSnapshot: "Used iPhone 12 128GB",
		PriceSnapshot: decimal.RequireFromString("350.5"),
		Status:        models.StatusCompleted,
		CreatedAt:     now,
	}

	payload, err := completedPayload(tx, now)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, tx.ID.String(), decoded["transaction_id"])
	assert.Equal(t, tx.BuyerID.String(), decoded["buyer_id"])
	assert.Equal(t, tx.SellerID.String(), decoded["seller_id"])
	assert.Equal(t, tx.ItemID.String(), decoded["item_id"])
	assert.Equal(t, "REAL", decoded["order_type"])
	assert.Equal(t, "350.50", decoded["price_snapshot"], "amount travels as a fixed-point string")
	assert.Equal(t, "COMPLETED", decoded["status"])
	assert.Equal(t, "2025-01-15T10:20:30Z", decoded["completed_at"])
}
