package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL UNIQUE,
    balance    NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
    id             UUID PRIMARY KEY,
    buyer_id       UUID NOT NULL,
    seller_id      UUID NOT NULL,
    item_id        UUID NOT NULL,
    order_type     VARCHAR(16) NOT NULL,
    title_snapshot VARCHAR(255) NOT NULL,
    price_snapshot NUMERIC(20,2) NOT NULL,
    status         VARCHAR(16) NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS transactions_buyer_idx  ON transactions (buyer_id);
CREATE INDEX IF NOT EXISTS transactions_seller_idx ON transactions (seller_id);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
