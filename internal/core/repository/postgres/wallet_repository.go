package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
)

const uniqueViolation = "23505"

type postgresWalletRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewWalletRepo(db *sqlx.DB, log logger.Logger) repository.WalletRepository {
	return &postgresWalletRepo{db: db, log: log}
}

func (r *postgresWalletRepo) Create(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
        INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
        VALUES ($1, $2, 0, NOW(), NOW())
        RETURNING id, user_id, balance, created_at, updated_at
    `
	err := r.db.GetContext(ctx, &wallet, query, uuid.New(), userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: user %s", repository.ErrDuplicateWallet, userID)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE id = $1`
	err := r.db.GetContext(ctx, &wallet, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`
	err := r.db.GetContext(ctx, &wallet, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", repository.ErrWalletNotFound, userID)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) List(ctx context.Context, userID *uuid.UUID) ([]*models.Wallet, error) {
	wallets := []*models.Wallet{}
	if userID != nil {
		query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1 ORDER BY created_at`
		if err := r.db.SelectContext(ctx, &wallets, query, *userID); err != nil {
			return nil, fmt.Errorf("list wallets: %w", err)
		}
		return wallets, nil
	}

	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &wallets, query); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func (r *postgresWalletRepo) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
        UPDATE wallets
        SET balance = balance + $1, updated_at = NOW()
        WHERE id = $2
        RETURNING id, user_id, balance, created_at, updated_at
    `
	err := r.db.GetContext(ctx, &wallet, query, amount, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) TryDebit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	// The balance guard in the WHERE clause makes the debit atomic: two
	// concurrent debits can never both pass a check against a stale read.
	query := `
        UPDATE wallets
        SET balance = balance - $1, updated_at = NOW()
        WHERE id = $2 AND balance >= $1
    `
	res, err := r.db.ExecContext(ctx, query, amount, id)
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish insufficient funds from a missing wallet.
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *postgresWalletRepo) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `
        UPDATE wallets
        SET balance = balance + $1, updated_at = NOW()
        WHERE id = $2
    `
	res, err := r.db.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	return nil
}

func (r *postgresWalletRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	return nil
}
