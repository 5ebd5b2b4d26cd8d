package pricing

import (
	"context"
	"errors"
	"fmt"

	"FanatiquePay/internal/catalog"
	"FanatiquePay/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = catalog.ErrProductNotFound
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

type Totals struct {
	Real     decimal.Decimal `json:"totalReal"`
	FanToken decimal.Decimal `json:"totalFanToken"`
}

// ComputeTotals sums unit price times quantity for every line in both currencies.
func ComputeTotals(lines []models.CartLine, products map[int64]models.Product) (Totals, error) {
	totals := Totals{Real: decimal.Zero, FanToken: decimal.Zero}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		p, ok := products[line.ProductID]
		if !ok {
			return Totals{}, fmt.Errorf("%w: %d", ErrProductNotFound, line.ProductID)
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		totals.Real = totals.Real.Add(p.ValueReal.Mul(qty))
		totals.FanToken = totals.FanToken.Add(p.ValueFanToken.Mul(qty))
	}
	return totals, nil
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

type Calculator struct {
	Catalog catalog.Catalog
}

// Quote resolves every product in the cart and computes authoritative totals.
func (c Calculator) Quote(ctx context.Context, lines []models.CartLine) (Totals, error) {
	products := make(map[int64]models.Product, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		p, err := c.Catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return Totals{}, err
		}
		products[line.ProductID] = p
	}
	return ComputeTotals(lines, products)
}
