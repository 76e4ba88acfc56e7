package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

type txEntry struct {
	mu sync.Mutex
	tx models.Transaction
}

type memoryTransactionRepo struct {
	mu    sync.RWMutex
	txs   map[uuid.UUID]*txEntry
	order []uuid.UUID
	log   logger.Logger
}

func NewTransactionRepo(log logger.Logger) repository.TransactionRepository {
	return &memoryTransactionRepo{
		txs: make(map[uuid.UUID]*txEntry),
		log: log,
	}
}

func (r *memoryTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.txs[tx.ID]; exists {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	r.txs[tx.ID] = &txEntry{tx: *tx}
	r.order = append(r.order, tx.ID)
	return nil
}

func (r *memoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	copied := entry.tx
	return &copied, nil
}

func (r *memoryTransactionRepo) List(ctx context.Context, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	r.mu.RLock()
	ids := make([]uuid.UUID, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	result := make([]*models.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if filter.BuyerID != nil && tx.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && tx.SellerID != *filter.SellerID {
			continue
		}
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func (r *memoryTransactionRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidTransition, status)
	}

	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: transaction %s is already %s",
			repository.ErrInvalidTransition, id, entry.tx.Status)
	}

	entry.tx.Status = status
	copied := entry.tx
	return &copied, nil
}

func (r *memoryTransactionRepo) HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	ids := make([]uuid.UUID, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		tx, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if tx.Status == models.StatusPending && (tx.BuyerID == userID || tx.SellerID == userID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryTransactionRepo) entry(id uuid.UUID) (*txEntry, error) {
	r.mu.RLock()
	entry, ok := r.txs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrTransactionNotFound, id)
	}
	return entry, nil
}
