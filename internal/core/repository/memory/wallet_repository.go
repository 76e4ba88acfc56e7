package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

// walletEntry carries its own mutex so that mutations on different wallets
// never contend with each other.
type walletEntry struct {
	mu      sync.Mutex
	wallet  models.Wallet
	deleted bool
}

type memoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*walletEntry
	byUser  map[uuid.UUID]uuid.UUID
	order   []uuid.UUID
	log     logger.Logger
}

func NewWalletRepo(log logger.Logger) repository.WalletRepository {
	return &memoryWalletRepo{
		wallets: make(map[uuid.UUID]*walletEntry),
		byUser:  make(map[uuid.UUID]uuid.UUID),
		log:     log,
	}
}

func (r *memoryWalletRepo) Create(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[userID]; exists {
		return nil, fmt.Errorf("%w: user %s", repository.ErrDuplicateWallet, userID)
	}

	now := time.Now().UTC()
	w := models.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.wallets[w.ID] = &walletEntry{wallet: w}
	r.byUser[userID] = w.ID
	r.order = append(r.order, w.ID)

	copied := w
	return &copied, nil
}

func (r *memoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	copied := entry.wallet
	return &copied, nil
}

func (r *memoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.mu.RLock()
	id, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: user %s", repository.ErrWalletNotFound, userID)
	}
	return r.GetByID(ctx, id)
}

func (r *memoryWalletRepo) List(ctx context.Context, userID *uuid.UUID) ([]*models.Wallet, error) {
	r.mu.RLock()
	ids := make([]uuid.UUID, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	result := make([]*models.Wallet, 0, len(ids))
	for _, id := range ids {
		w, err := r.GetByID(ctx, id)
		if err != nil {
			continue // removed between the snapshot and the read
		}
		if userID != nil && w.UserID != *userID {
			continue
		}
		result = append(result, w)
	}
	return result, nil
}

func (r *memoryWalletRepo) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}

	entry.wallet.Balance = entry.wallet.Balance.Add(amount)
	entry.wallet.UpdatedAt = time.Now().UTC()

	copied := entry.wallet
	return &copied, nil
}

func (r *memoryWalletRepo) TryDebit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	entry, err := r.entry(id)
	if err != nil {
		return false, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return false, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}

	if entry.wallet.Balance.LessThan(amount) {
		return false, nil
	}

	entry.wallet.Balance = entry.wallet.Balance.Sub(amount)
	entry.wallet.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memoryWalletRepo) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	entry, err := r.entry(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}

	entry.wallet.Balance = entry.wallet.Balance.Add(amount)
	entry.wallet.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryWalletRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.wallets[id]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}

	// Mark under the entry lock so an in-flight mutation cannot land on a
	// wallet that is already gone.
	entry.mu.Lock()
	entry.deleted = true
	entry.mu.Unlock()

	delete(r.wallets, id)
	delete(r.byUser, entry.wallet.UserID)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryWalletRepo) entry(id uuid.UUID) (*walletEntry, error) {
	r.mu.RLock()
	entry, ok := r.wallets[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	return entry, nil
}
