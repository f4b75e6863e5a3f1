package demo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duckmesh/tableagent/internal/dataset"
)

const createSalesTable = `
CREATE TABLE IF NOT EXISTS %s (
	order_id   BIGINT PRIMARY KEY,
	ordered_at TIMESTAMPTZ NOT NULL,
	region     TEXT NOT NULL,
	country    TEXT NOT NULL,
	product    TEXT NOT NULL,
	category   TEXT NOT NULL,
	channel    TEXT NOT NULL,
	units      BIGINT NOT NULL,
	unit_price DOUBLE PRECISION NOT NULL,
	revenue    DOUBLE PRECISION NOT NULL,
	discount   DOUBLE PRECISION,
	returned   BOOLEAN NOT NULL
)`

// WritePostgres replaces the contents of tableName with sales in one
// transaction, creating the table when missing.
func WritePostgres(ctx context.Context, db *sql.DB, tableName string, sales []Sale) error {
	ident, err := dataset.QuoteQualified(tableName)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(createSalesTable, ident)); err != nil {
		return fmt.Errorf("create %s: %w", ident, err)
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE "+ident); err != nil {
		return fmt.Errorf("truncate %s: %w", ident, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+ident+` (order_id, ordered_at, region, country, product, category, channel, units, unit_price, revenue, discount, returned)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sale := range sales {
		var discount any
		if sale.Discount != nil {
			discount = *sale.Discount
		}
		if _, err := stmt.ExecContext(ctx,
			sale.OrderID,
			sale.OrderedAt,
			sale.Region,
			sale.Country,
			sale.Product,
			sale.Category,
			sale.Channel,
			sale.Units,
			sale.UnitPrice,
			sale.Revenue,
			discount,
			sale.Returned,
		); err != nil {
			return fmt.Errorf("insert order %d: %w", sale.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}
