package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/events"
	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

type CreateTransactionInput struct {
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	ItemID        uuid.UUID
	OrderType     models.OrderType
	TitleSnapshot string
	PriceSnapshot decimal.Decimal
}

type TransactionUsecase interface {
	CreateTransaction(ctx context.Context, in CreateTransactionInput) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]*models.Transaction, error)
	Checkout(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

type transactionUsecase struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	parties      *PartyLocks
	publisher    events.Publisher
	log          logger.Logger

	// checkoutLocks serializes checkout per transaction id so that of two
	// concurrent callers exactly one settles and the other observes the
	// terminal status. Entries live only while the transaction is PENDING.
	checkoutLocks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewTransactionUsecase(
	wallets repository.WalletRepository,
	transactions repository.TransactionRepository,
	parties *PartyLocks,
	publisher events.Publisher,
	log logger.Logger,
) TransactionUsecase {
	return &transactionUsecase{
		wallets:      wallets,
		transactions: transactions,
		parties:      parties,
		publisher:    publisher,
		log:          log,
	}
}

func (uc *transactionUsecase) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*models.Transaction, error) {
	if !in.OrderType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderType, in.OrderType)
	}
	if in.PriceSnapshot.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, in.PriceSnapshot)
	}
	if in.BuyerID == in.SellerID {
		return nil, fmt.Errorf("%w: %s", ErrSameParty, in.BuyerID)
	}

	// Held until the record is in the store, so a concurrent wallet
	// deletion either sees the transaction or completes before it exists.
	unlock := uc.parties.lock(in.BuyerID, in.SellerID)
	defer unlock()

	// The only existence check the service performs: both parties must
	// already hold wallets. Users and items live in other services.
	buyerWallet, err := uc.wallets.GetByUserID(ctx, in.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer wallet: %w", err)
	}
	sellerWallet, err := uc.wallets.GetByUserID(ctx, in.SellerID)
	if err != nil {
		return nil, fmt.Errorf("seller wallet: %w", err)
	}

	tx := &models.Transaction{
		BuyerID:       in.BuyerID,
		SellerID:      in.SellerID,
		ItemID:        in.ItemID,
		OrderType:     in.OrderType,
		TitleSnapshot: in.TitleSnapshot,
		PriceSnapshot: in.PriceSnapshot,
		Status:        models.StatusPending,
	}

	if tx.OrderType == models.OrderReal {
		// Real items wait for an explicit checkout.
		if err := uc.transactions.Create(ctx, tx); err != nil {
			return nil, fmt.Errorf("create transaction: %w", err)
		}
		uc.log.Info("Transaction created",
			logger.StringField("transaction_id", tx.ID.String()),
			logger.StringField("order_type", string(tx.OrderType)),
			logger.StringField("price", tx.PriceSnapshot.StringFixed(2)))
		return tx, nil
	}

	// Virtual items settle at creation. Funds move first and the record
	// enters the store already terminal, so no reader ever sees a PENDING
	// virtual transaction.
	moved, err := uc.transfer(ctx, tx.PriceSnapshot, buyerWallet.ID, sellerWallet.ID)
	if err != nil {
		return nil, err
	}
	if moved {
		tx.Status = models.StatusCompleted
	} else {
		tx.Status = models.StatusFailed
	}
	if err := uc.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	uc.recordOutcome(ctx, tx)
	return tx, nil
}

func (uc *transactionUsecase) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tx, err := uc.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (uc *transactionUsecase) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	txs, err := uc.transactions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (uc *transactionUsecase) Checkout(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	lock := uc.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	tx, err := uc.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	if tx.OrderType != models.OrderReal {
		uc.checkoutLocks.Delete(id)
		return nil, fmt.Errorf("%w: checkout applies only to REAL orders", repository.ErrInvalidTransition)
	}
	if tx.Status != models.StatusPending {
		uc.checkoutLocks.Delete(id)
		return nil, fmt.Errorf("%w: transaction %s is already %s",
			repository.ErrInvalidTransition, tx.ID, tx.Status)
	}

	buyerWallet, err := uc.wallets.GetByUserID(ctx, tx.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer wallet: %w", err)
	}
	sellerWallet, err := uc.wallets.GetByUserID(ctx, tx.SellerID)
	if err != nil {
		return nil, fmt.Errorf("seller wallet: %w", err)
	}

	moved, err := uc.transfer(ctx, tx.PriceSnapshot, buyerWallet.ID, sellerWallet.ID)
	if err != nil {
		return nil, err
	}

	status := models.StatusFailed
	if moved {
		status = models.StatusCompleted
	}
	updated, err := uc.transactions.SetStatus(ctx, tx.ID, status)
	if err != nil {
		return nil, fmt.Errorf("mark transaction %s: %w", status, err)
	}

	// Terminal: nothing will ever lock this id again.
	uc.checkoutLocks.Delete(id)

	uc.recordOutcome(ctx, updated)
	return updated, nil
}

// transfer moves amount from the buyer wallet to the seller wallet. The debit
// is the only step that can fail as a business outcome; a store failure on the
// credit leg is reversed with a compensating credit before the error is
// surfaced, so the transfer is always all-or-nothing.
func (uc *transactionUsecase) transfer(ctx context.Context, amount decimal.Decimal, buyerWalletID, sellerWalletID uuid.UUID) (bool, error) {
	ok, err := uc.wallets.TryDebit(ctx, buyerWalletID, amount)
	if err != nil {
		return false, fmt.Errorf("debit buyer wallet: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := uc.wallets.Credit(ctx, sellerWalletID, amount); err != nil {
		if refundErr := uc.wallets.Credit(ctx, buyerWalletID, amount); refundErr != nil {
			uc.log.Error("Compensating credit failed, balances may be torn",
				logger.ErrorField("credit_error", err),
				logger.ErrorField("refund_error", refundErr))
			return false, fmt.Errorf("credit seller wallet: %v (compensation failed: %w)", err, refundErr)
		}
		uc.log.Error("Credit failed, debit reversed",
			logger.ErrorField("error", err))
		return false, fmt.Errorf("credit seller wallet: %w", err)
	}
	return true, nil
}

func (uc *transactionUsecase) recordOutcome(ctx context.Context, tx *models.Transaction) {
	switch tx.Status {
	case models.StatusCompleted:
		settlementsTotal.WithLabelValues("completed").Inc()
		uc.log.Info("Settlement completed",
			logger.StringField("transaction_id", tx.ID.String()),
			logger.StringField("price", tx.PriceSnapshot.StringFixed(2)))
		uc.publisher.TransactionCompleted(ctx, tx)
	case models.StatusFailed:
		settlementsTotal.WithLabelValues("failed").Inc()
		uc.log.Info("Settlement failed: insufficient funds",
			logger.StringField("transaction_id", tx.ID.String()),
			logger.StringField("price", tx.PriceSnapshot.StringFixed(2)))
	}
}

func (uc *transactionUsecase) lockFor(id uuid.UUID) *sync.Mutex {
	lock, _ := uc.checkoutLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
