package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

const transactionColumns = `id, buyer_id, seller_id, item_id, order_type, title_snapshot, price_snapshot, status, created_at`

type postgresTransactionRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewTransactionRepo(db *sqlx.DB, log logger.Logger) repository.TransactionRepository {
	return &postgresTransactionRepo{db: db, log: log}
}

func (r *postgresTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO transactions (` + transactionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.BuyerID,
		tx.SellerID,
		tx.ItemID,
		tx.OrderType,
		tx.TitleSnapshot,
		tx.PriceSnapshot,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *postgresTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	err := r.db.GetContext(ctx, &tx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	return &tx, nil
}

func (r *postgresTransactionRepo) List(ctx context.Context, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.BuyerID != nil {
		args = append(args, *filter.BuyerID)
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"

	txs := []*models.Transaction{}
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *postgresTransactionRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidTransition, status)
	}

	var tx models.Transaction
	query := `
        UPDATE transactions
        SET status = $1
        WHERE id = $2 AND status = $3
        RETURNING ` + transactionColumns + `
    `
	err := r.db.GetContext(ctx, &tx, query, status, id, models.StatusPending)
	if err == nil {
		return &tx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set status: %w", err)
	}

	// Either the transaction does not exist or it is already terminal.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: transaction %s is already %s",
		repository.ErrInvalidTransition, id, current.Status)
}

func (r *postgresTransactionRepo) HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `
        SELECT EXISTS (
            SELECT 1 FROM transactions
            WHERE status = $1 AND (buyer_id = $2 OR seller_id = $2)
        )
    `
	if err := r.db.GetContext(ctx, &exists, query, models.StatusPending, userID); err != nil {
		return false, fmt.Errorf("check pending transactions: %w", err)
	}
	return exists, nil
}
