package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/credvend/credvend-server/internal/model"
)

var _ model.CatalogStore = (*Catalog)(nil)

// Catalog persists products, buyer sets and pending purchases. Every
// mutation runs as a single statement or transaction, so concurrent calls
// observe a linearized history.
type Catalog struct {
	db *Connection
}

func NewCatalog(db *Connection) *Catalog {
	return &Catalog{
		db: db,
	}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// storageErr wraps an unexpected database failure so callers can classify it
// without seeing driver detail.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productQuery = `
	SELECT p.id, p.display_name, p.price, p.username, p.password, p.secret,
	       COALESCE(array_agg(b.user_id ORDER BY b.added_at) FILTER (WHERE b.user_id IS NOT NULL), '{}')
	FROM products p
	LEFT JOIN product_buyers b ON b.product_id = p.id
	WHERE p.id = $1
	GROUP BY p.id`

func (r *Catalog) getProduct(ctx context.Context, q rowQuerier, productID string) (model.Product, error) {
	var product model.Product
	err := q.QueryRow(ctx, productQuery, productID).Scan(
		&product.ID, &product.DisplayName, &product.Price,
		&product.Credentials.Username, &product.Credentials.Password,
		&product.Secret, &product.Buyers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, model.ErrNotFound
		}
		return model.Product{}, storageErr("get product", err)
	}

	return product, nil
}

func (r *Catalog) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	return r.getProduct(ctx, r.db, productID)
}

func (r *Catalog) ListProducts(ctx context.Context) ([]model.Product, error) {
	query := `
		SELECT p.id, p.display_name, p.price, p.username, p.password, p.secret,
		       COALESCE(array_agg(b.user_id ORDER BY b.added_at) FILTER (WHERE b.user_id IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN product_buyers b ON b.product_id = p.id
		GROUP BY p.id
		ORDER BY p.position`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var product model.Product
		err := rows.Scan(
			&product.ID, &product.DisplayName, &product.Price,
			&product.Credentials.Username, &product.Credentials.Password,
			&product.Secret, &product.Buyers,
		)
		if err != nil {
			return nil, storageErr("scan product", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}

	return products, nil
}

// UpsertProduct inserts or updates the catalog entry. The buyer set is owned
// by approvals and buyer management; an upsert never touches it. Insertion
// order is preserved for existing rows.
func (r *Catalog) UpsertProduct(ctx context.Context, product model.Product) error {
	query := `
		INSERT INTO products (id, display_name, price, username, password, secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			price = EXCLUDED.price,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			secret = EXCLUDED.secret`

	_, err := r.db.Exec(ctx, query,
		product.ID, product.DisplayName, product.Price,
		product.Credentials.Username, product.Credentials.Password, product.Secret,
	)
	if err != nil {
		return storageErr("upsert product", err)
	}

	return nil
}

func (r *Catalog) RemoveBuyer(ctx context.Context, productID string, userID int64) error {
	const query = `DELETE FROM product_buyers WHERE product_id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, productID, userID)
	if err != nil {
		return storageErr("remove buyer", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

func (r *Catalog) ClearBuyers(ctx context.Context, productID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storageErr("begin clear buyers", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return storageErr("check product", err)
	}
	if !exists {
		return model.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_buyers WHERE product_id = $1`, productID); err != nil {
		return storageErr("clear buyers", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit clear buyers", err)
	}

	return nil
}
