package catalog

import (
	"context"
	"errors"
	"fmt"

	"FanatiquePay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGCatalog struct {
	Pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{Pool: pool}
}

func (c *PGCatalog) GetProduct(ctx context.Context, productID int64) (models.Product, error) {
	var p models.Product
	err := c.Pool.QueryRow(ctx, `
		SELECT id, name, value_real, value_fantoken
		FROM products WHERE id=$1
	`, productID).Scan(&p.ID, &p.Name, &p.ValueReal, &p.ValueFanToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
		}
		return models.Product{}, err
	}
	return p, nil
}
