package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flipzy/transaction-service/internal/core/events"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
	"github.com/flipzy/transaction-service/internal/core/repository/memory"
)

func TestCheckoutLockReleasedOnTerminal(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()
	wallets := memory.NewWalletRepo(log)
	transactions := memory.NewTransactionRepo(log)
	engine := NewTransactionUsecase(wallets, transactions, NewPartyLocks(), events.NoopPublisher{}, log).(*transactionUsecase)

	buyerWallet, err := wallets.Create(ctx, uuid.New())
	require.NoError(t, err)
	sellerWallet, err := wallets.Create(ctx, uuid.New())
	require.NoError(t, err)
	_, err = wallets.Deposit(ctx, buyerWallet.ID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)

	tx, err := engine.CreateTransaction(ctx, CreateTransactionInput{
		BuyerID:       buyerWallet.UserID,
		SellerID:      sellerWallet.UserID,
		ItemID:        uuid.New(),
		OrderType:     models.OrderReal,
		TitleSnapshot: "Gift card",
		PriceSnapshot: decimal.RequireFromString("30.00"),
	})
	require.NoError(t, err)

	settled, err := engine.Checkout(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, settled.Status)

	_, held := engine.checkoutLocks.Load(tx.ID)
	assert.False(t, held, "terminal transaction must not pin a checkout lock")

	// Повторный checkout тоже не оставляет записи
	_, err = engine.Checkout(ctx, tx.ID)
	require.ErrorIs(t, err, repository.ErrInvalidTransition)
	_, held = engine.checkoutLocks.Load(tx.ID)
	assert.False(t, held)
}
