package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateWallet     = errors.New("user already has a wallet")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

type WalletRepository interface {
	Create(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	List(ctx context.Context, userID *uuid.UUID) ([]*models.Wallet, error)
	// Deposit atomically increments the balance and returns the updated wallet.
	Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	// TryDebit atomically decrements the balance iff the result stays
	// non-negative. Insufficient funds is reported as ok=false, not an error.
	TryDebit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
	// Credit atomically increments the balance. Unlike Deposit it is a
	// settlement primitive and does not return the wallet.
	Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TransactionFilter narrows List results; nil fields are ignored.
type TransactionFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *models.TransactionStatus
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error)
	// SetStatus transitions the transaction to status. Terminal statuses are
	// frozen: transitioning a COMPLETED or FAILED transaction fails with
	// ErrInvalidTransition.
	SetStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error)
	// HasPendingForUser reports whether the user is buyer or seller of any
	// PENDING transaction.
	HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error)
}
