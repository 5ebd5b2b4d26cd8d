package catalog

import (
	"context"
	"errors"

	"FanatiquePay/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog resolves unit prices for products. Implementations are read-only.
type Catalog interface {
	GetProduct(ctx context.Context, productID int64) (models.Product, error)
}
