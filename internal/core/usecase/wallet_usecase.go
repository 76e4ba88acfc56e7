package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

type WalletUsecase interface {
	CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListWallets(ctx context.Context, userID *uuid.UUID) ([]*models.Wallet, error)
	Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	DeleteWallet(ctx context.Context, id uuid.UUID) error
}

type walletUsecase struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	parties      *PartyLocks
	log          logger.Logger
}

func NewWalletUsecase(wallets repository.WalletRepository, transactions repository.TransactionRepository, parties *PartyLocks, log logger.Logger) WalletUsecase {
	return &walletUsecase{wallets: wallets, transactions: transactions, parties: parties, log: log}
}

func (uc *walletUsecase) CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := uc.wallets.Create(ctx, userID)
	if err != nil {
		uc.log.Warn("Wallet creation rejected",
			logger.StringField("user_id", userID.String()),
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	walletOperationsTotal.WithLabelValues("create").Inc()
	uc.log.Info("Wallet created",
		logger.StringField("wallet_id", wallet.ID.String()),
		logger.StringField("user_id", userID.String()))
	return wallet, nil
}

func (uc *walletUsecase) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, err := uc.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return wallet, nil
}

func (uc *walletUsecase) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := uc.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get wallet by user: %w", err)
	}
	return wallet, nil
}

func (uc *walletUsecase) ListWallets(ctx context.Context, userID *uuid.UUID) ([]*models.Wallet, error) {
	wallets, err := uc.wallets.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func (uc *walletUsecase) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	wallet, err := uc.wallets.Deposit(ctx, id, amount)
	if err != nil {
		uc.log.Warn("Deposit failed",
			logger.StringField("wallet_id", id.String()),
			logger.StringField("amount", amount.String()),
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("deposit: %w", err)
	}

	walletOperationsTotal.WithLabelValues("deposit").Inc()
	uc.log.Info("Deposit successful",
		logger.StringField("wallet_id", id.String()),
		logger.StringField("amount", amount.String()),
		logger.StringField("new_balance", wallet.Balance.StringFixed(2)))
	return wallet, nil
}

// DeleteWallet removes the wallet unless its owner is party to a PENDING
// transaction. Deleting either side of an unsettled transfer would strand the
// settlement path.
func (uc *walletUsecase) DeleteWallet(ctx context.Context, id uuid.UUID) error {
	wallet, err := uc.wallets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get wallet: %w", err)
	}

	// Same lock the engine takes when creating a transaction for this
	// user: the pending check and the delete form one atomic step.
	unlock := uc.parties.lock(wallet.UserID)
	defer unlock()

	pending, err := uc.transactions.HasPendingForUser(ctx, wallet.UserID)
	if err != nil {
		return fmt.Errorf("check pending transactions: %w", err)
	}
	if pending {
		uc.log.Warn("Wallet deletion blocked by pending transactions",
			logger.StringField("wallet_id", id.String()),
			logger.StringField("user_id", wallet.UserID.String()))
		return fmt.Errorf("%w: wallet %s", ErrWalletHasPending, id)
	}

	if err := uc.wallets.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}

	walletOperationsTotal.WithLabelValues("delete").Inc()
	uc.log.Info("Wallet deleted", logger.StringField("wallet_id", id.String()))
	return nil
}
