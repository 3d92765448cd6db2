package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botanicashop/botanica/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, slug, name, price, currency, active, created_at, updated_at
		FROM products WHERE id = $1`, productID)
	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return product, err
}

// GetByIDs fetches the authoritative records for a cart in one query. Missing
// ids are simply absent from the result; the pricer treats them as
// unavailable products.
func (s *ProductStore) GetByIDs(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]*models.Product{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, slug, name, price, currency, active, created_at, updated_at
		FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*models.Product, len(productIDs))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[product.ID] = product
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		product   models.Product
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&product.ID, &product.Slug, &product.Name, &product.Price,
		&product.Currency, &product.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	product.CreatedAt = createdAt.Time
	product.UpdatedAt = updatedAt.Time
	return &product, nil
}
