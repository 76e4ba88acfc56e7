package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flipzy/transaction-service/internal/core/events"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
	"github.com/flipzy/transaction-service/internal/core/repository/memory"
	"github.com/flipzy/transaction-service/internal/core/usecase"
)

type fixture struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	locks        *usecase.PartyLocks
	walletUC     usecase.WalletUsecase
	engine       usecase.TransactionUsecase
	buyer        uuid.UUID
	seller       uuid.UUID
	buyerWallet  *models.Wallet
	sellerWallet *models.Wallet
}

func newFixture(t *testing.T, buyerFunds string) *fixture {
	t.Helper()
	log := zap.NewNop()
	ctx := context.Background()

	f := &fixture{
		wallets:      memory.NewWalletRepo(log),
		transactions: memory.NewTransactionRepo(log),
		locks:        usecase.NewPartyLocks(),
		buyer:        uuid.New(),
		seller:       uuid.New(),
	}
	f.walletUC = usecase.NewWalletUsecase(f.wallets, f.transactions, f.locks, log)
	f.engine = usecase.NewTransactionUsecase(f.wallets, f.transactions, f.locks, events.NoopPublisher{}, log)

	var err error
	f.buyerWallet, err = f.wallets.Create(ctx, f.buyer)
	require.NoError(t, err)
	f.sellerWallet, err = f.wallets.Create(ctx, f.seller)
	require.NoError(t, err)

	if buyerFunds != "" {
		_, err = f.wallets.Deposit(ctx, f.buyerWallet.ID, decimal.RequireFromString(buyerFunds))
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) balances(t *testing.T) (buyer, seller decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	bw, err := f.wallets.GetByID(ctx, f.buyerWallet.ID)
	require.NoError(t, err)
	sw, err := f.wallets.GetByID(ctx, f.sellerWallet.ID)
	require.NoError(t, err)
	return bw.Balance, sw.Balance
}

func createInput(f *fixture, orderType models.OrderType, price string) usecase.CreateTransactionInput {
	return usecase.CreateTransactionInput{
		BuyerID:       f.buyer,
		SellerID:      f.seller,
		ItemID:        uuid.New(),
		OrderType:     orderType,
		TitleSnapshot: "Used iPhone 12 128GB",
		PriceSnapshot: decimal.RequireFromString(price),
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	in := createInput(f, models.OrderVirtual, "10.00")
	in.PriceSnapshot = decimal.Zero
	_, err := f.engine.CreateTransaction(ctx, in)
	assert.ErrorIs(t, err, usecase.ErrInvalidAmount)

	in = createInput(f, models.OrderType("WEIRD"), "10.00")
	_, err = f.engine.CreateTransaction(ctx, in)
	assert.ErrorIs(t, err, usecase.ErrInvalidOrderType)

	in = createInput(f, models.OrderVirtual, "10.00")
	in.SellerID = in.BuyerID
	_, err = f.engine.CreateTransaction(ctx, in)
	assert.ErrorIs(t, err, usecase.ErrSameParty)

	in = createInput(f, models.OrderVirtual, "10.00")
	in.SellerID = uuid.New() // no wallet
	_, err = f.engine.CreateTransaction(ctx, in)
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)
}

func TestVirtualSettlesAtCreation(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderVirtual, "30.00"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)

	buyer, seller := f.balances(t)
	assert.Equal(t, "20.00", buyer.StringFixed(2))
	assert.Equal(t, "30.00", seller.StringFixed(2))
}

func TestVirtualInsufficientFundsFails(t *testing.T) {
	f := newFixture(t, "20.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderVirtual, "30.00"))
	require.NoError(t, err, "insufficient funds is a business outcome, not an error")
	assert.Equal(t, models.StatusFailed, tx.Status)

	buyer, seller := f.balances(t)
	assert.Equal(t, "20.00", buyer.StringFixed(2))
	assert.Equal(t, "0.00", seller.StringFixed(2))
}

func TestRealCheckoutFlow(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderReal, "30.00"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tx.Status)

	// Создание ничего не списывает
	buyer, seller := f.balances(t)
	assert.Equal(t, "50.00", buyer.StringFixed(2))
	assert.Equal(t, "0.00", seller.StringFixed(2))

	settled, err := f.engine.Checkout(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, settled.Status)

	buyer, seller = f.balances(t)
	assert.Equal(t, "20.00", buyer.StringFixed(2))
	assert.Equal(t, "30.00", seller.StringFixed(2))

	_, err = f.engine.Checkout(ctx, tx.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	buyer, seller = f.balances(t)
	assert.Equal(t, "20.00", buyer.StringFixed(2), "second checkout must not move funds")
	assert.Equal(t, "30.00", seller.StringFixed(2))
}

func TestRealCheckoutInsufficientFunds(t *testing.T) {
	f := newFixture(t, "10.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderReal, "30.00"))
	require.NoError(t, err)

	settled, err := f.engine.Checkout(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, settled.Status)

	buyer, seller := f.balances(t)
	assert.Equal(t, "10.00", buyer.StringFixed(2))
	assert.Equal(t, "0.00", seller.StringFixed(2))

	// FAILED так же терминален, как и COMPLETED
	_, err = f.engine.Checkout(ctx, tx.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestCheckoutRejectsVirtualAndUnknown(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderVirtual, "30.00"))
	require.NoError(t, err)

	_, err = f.engine.Checkout(ctx, tx.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = f.engine.Checkout(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestConcurrentCheckoutSettlesOnce(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderReal, "30.00"))
	require.NoError(t, err)

	const callers = 16

	var wg sync.WaitGroup
	wg.Add(callers)

	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.engine.Checkout(ctx, tx.ID)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var settled, rejected int
	for err := range results {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, repository.ErrInvalidTransition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, settled, "exactly one caller settles")
	assert.Equal(t, callers-1, rejected)

	buyer, seller := f.balances(t)
	assert.Equal(t, "20.00", buyer.StringFixed(2), "price moved exactly once")
	assert.Equal(t, "30.00", seller.StringFixed(2))
}

// faultyWalletRepo fails the credit leg for one wallet id, standing in for a
// store that goes away between the debit and the credit.
type faultyWalletRepo struct {
	repository.WalletRepository
	failCreditTo uuid.UUID
}

var errStoreDown = errors.New("store unavailable")

func (r *faultyWalletRepo) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if id == r.failCreditTo {
		return errStoreDown
	}
	return r.WalletRepository.Credit(ctx, id, amount)
}

func TestSettlementCompensatesFailedCredit(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	faulty := &faultyWalletRepo{WalletRepository: f.wallets, failCreditTo: f.sellerWallet.ID}
	engine := usecase.NewTransactionUsecase(faulty, f.transactions, f.locks, events.NoopPublisher{}, zap.NewNop())

	_, err := engine.CreateTransaction(ctx, createInput(f, models.OrderVirtual, "30.00"))
	require.ErrorIs(t, err, errStoreDown)

	// Дебет откатился компенсирующим кредитом
	buyer, seller := f.balances(t)
	assert.Equal(t, "50.00", buyer.StringFixed(2))
	assert.Equal(t, "0.00", seller.StringFixed(2))
}

func TestDeleteWalletBlockedByPendingTransaction(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	tx, err := f.engine.CreateTransaction(ctx, createInput(f, models.OrderReal, "30.00"))
	require.NoError(t, err)

	err = f.walletUC.DeleteWallet(ctx, f.buyerWallet.ID)
	assert.ErrorIs(t, err, usecase.ErrWalletHasPending)
	err = f.walletUC.DeleteWallet(ctx, f.sellerWallet.ID)
	assert.ErrorIs(t, err, usecase.ErrWalletHasPending)

	_, err = f.engine.Checkout(ctx, tx.ID)
	require.NoError(t, err)

	assert.NoError(t, f.walletUC.DeleteWallet(ctx, f.buyerWallet.ID))
}

// gatedWalletRepo parks every debit until the test releases it, holding the
// settlement open so the test can look at the store mid-flight.
type gatedWalletRepo struct {
	repository.WalletRepository
	entered chan struct{}
	release chan struct{}
}

func (r *gatedWalletRepo) TryDebit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.WalletRepository.TryDebit(ctx, id, amount)
}

func TestVirtualNotObservableBeforeTerminal(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	gated := &gatedWalletRepo{
		WalletRepository: f.wallets,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	engine := usecase.NewTransactionUsecase(gated, f.transactions, f.locks, events.NoopPublisher{}, zap.NewNop())

	type result struct {
		tx  *models.Transaction
		err error
	}
	done := make(chan result, 1)
	go func() {
		tx, err := engine.CreateTransaction(ctx, createInput(f, models.OrderVirtual, "30.00"))
		done <- result{tx, err}
	}()

	// Расчёт ещё идёт: виртуальная транзакция не должна быть видна
	<-gated.entered
	list, err := f.transactions.List(ctx, repository.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "virtual transaction must stay invisible until terminal")

	close(gated.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, models.StatusCompleted, res.tx.Status)

	list, err = f.transactions.List(ctx, repository.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusCompleted, list[0].Status)
}

// gatedTransactionRepo parks Create, keeping a transaction creation in flight.
type gatedTransactionRepo struct {
	repository.TransactionRepository
	entered chan struct{}
	release chan struct{}
}

func (r *gatedTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	r.entered <- struct{}{}
	<-r.release
	return r.TransactionRepository.Create(ctx, tx)
}

func TestDeleteWalletWaitsForTransactionCreation(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	gated := &gatedTransactionRepo{
		TransactionRepository: f.transactions,
		entered:               make(chan struct{}),
		release:               make(chan struct{}),
	}
	engine := usecase.NewTransactionUsecase(f.wallets, gated, f.locks, events.NoopPublisher{}, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := engine.CreateTransaction(ctx, createInput(f, models.OrderReal, "30.00"))
		done <- err
	}()
	<-gated.entered

	delDone := make(chan error, 1)
	go func() {
		delDone <- f.walletUC.DeleteWallet(ctx, f.buyerWallet.ID)
	}()

	// Удаление обязано ждать, пока создание транзакции не завершится
	select {
	case err := <-delDone:
		t.Fatalf("deletion finished while transaction creation was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	require.NoError(t, <-done)
	assert.ErrorIs(t, <-delDone, usecase.ErrWalletHasPending)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.walletUC.Deposit(ctx, f.buyerWallet.ID, decimal.Zero)
	assert.ErrorIs(t, err, usecase.ErrInvalidAmount)

	_, err = f.walletUC.Deposit(ctx, f.buyerWallet.ID, decimal.RequireFromString("-5.00"))
	assert.ErrorIs(t, err, usecase.ErrInvalidAmount)
}
