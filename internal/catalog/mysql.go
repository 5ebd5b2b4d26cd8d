package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FanatiquePay/internal/models"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLCatalog reads products from the platform's legacy MySQL database.
type MySQLCatalog struct {
	DB *sql.DB
}

func OpenMySQL(ctx context.Context, dsn string) (*MySQLCatalog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &MySQLCatalog{DB: db}, nil
}

func (c *MySQLCatalog) Close() error {
	return c.DB.Close()
}

func (c *MySQLCatalog) GetProduct(ctx context.Context, productID int64) (models.Product, error) {
	var p models.Product
	err := c.DB.QueryRowContext(ctx,
		`SELECT id, name, value_real, value_fantoken FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.ValueReal, &p.ValueFanToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
		}
		return models.Product{}, err
	}
	return p, nil
}
