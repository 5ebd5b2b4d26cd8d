package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FanatiquePay/internal/db"
	"FanatiquePay/internal/models"

	"github.com/jackc/pgx/v5"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrPersistence   = db.ErrPersistence
)

type PersistenceError = db.PersistenceError

func persistenceError(op string, err error) error {
	return db.Wrap(op, err)
}

const orderColumns = `id, establishment_id, user_id, match_id, status_id,
			total_real, total_fantoken, transaction_hash, buyer_address,
			payment_deadline, register_date, update_date`

// Store is the order repository. It never opens transactions itself.
type Store struct{}

func New() *Store {
	return &Store{}
}

func (s *Store) CreateOrder(ctx context.Context, tx db.Tx, order *models.Order, lines []models.OrderLine) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (
			establishment_id, user_id, match_id, status_id,
			total_real, total_fantoken
		) VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, register_date, update_date
	`,
		order.EstablishmentID,
		order.UserID,
		order.MatchID,
		int16(order.Status),
		order.TotalReal,
		order.TotalFanToken,
	).Scan(&id, &order.RegisterDate, &order.UpdateDate)
	if err != nil {
		return 0, persistenceError("insert order", err)
	}

	if len(lines) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO order_line_items (order_id, product_id, quantity) VALUES `)
		args := make([]any, 0, len(lines)*3)
		for i, line := range lines {
			if i > 0 {
				sb.WriteString(",")
			}
			n := i * 3
			fmt.Fprintf(&sb, "($%d,$%d,$%d)", n+1, n+2, n+3)
			args = append(args, id, line.ProductID, line.Quantity)
		}
		if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
			return 0, persistenceError("insert order lines", err)
		}
	}

	order.ID = id
	order.Lines = make([]models.OrderLine, len(lines))
	for i, line := range lines {
		line.OrderID = id
		order.Lines[i] = line
	}
	return id, nil
}

func (s *Store) GetOrder(ctx context.Context, q db.Tx, orderID int64) (*models.Order, error) {
	return s.getOrder(ctx, q, orderID, false)
}

// GetOrderForUpdate loads the order holding a row lock until the transaction ends.
func (s *Store) GetOrderForUpdate(ctx context.Context, tx db.Tx, orderID int64) (*models.Order, error) {
	return s.getOrder(ctx, tx, orderID, true)
}

func (s *Store) getOrder(ctx context.Context, q db.Tx, orderID int64, lock bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("get order", err)
	}

	lines, err := s.listLines(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (s *Store) listLines(ctx context.Context, q db.Tx, orderID int64) ([]models.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity
		FROM order_line_items WHERE order_id=$1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, persistenceError("list order lines", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.Quantity); err != nil {
			return nil, persistenceError("scan order line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list order lines", err)
	}
	return lines, nil
}

// UpdateOrderStatus sets status and transaction hash. Repeating it with the same values is harmless.
func (s *Store) UpdateOrderStatus(ctx context.Context, tx db.Tx, orderID int64, status models.OrderStatus, txHash string) error {
	return s.execOnOrder(ctx, tx, "update order status", `
		UPDATE orders
		SET status_id=$2, transaction_hash=NULLIF($3, ''), update_date=now()
		WHERE id=$1
	`, orderID, int16(status), txHash)
}

func (s *Store) MarkSettling(ctx context.Context, tx db.Tx, orderID int64, buyer string, deadline time.Time) error {
	return s.execOnOrder(ctx, tx, "mark settling", `
		UPDATE orders
		SET status_id=$2, buyer_address=$3, payment_deadline=$4,
			transaction_hash=NULL, update_date=now()
		WHERE id=$1
	`, orderID, int16(models.OrderSettling), buyer, deadline)
}

func (s *Store) SetTransactionHash(ctx context.Context, tx db.Tx, orderID int64, txHash string) error {
	return s.execOnOrder(ctx, tx, "set transaction hash", `
		UPDATE orders SET transaction_hash=$2, update_date=now() WHERE id=$1
	`, orderID, txHash)
}

// ReleaseSettlement returns a settling order to pending payment and clears the attempt fields.
func (s *Store) ReleaseSettlement(ctx context.Context, tx db.Tx, orderID int64) error {
	return s.execOnOrder(ctx, tx, "release settlement", `
		UPDATE orders
		SET status_id=$2, transaction_hash=NULL, buyer_address=NULL,
			payment_deadline=NULL, update_date=now()
		WHERE id=$1
	`, orderID, int16(models.OrderPendingPayment))
}

func (s *Store) ListSettling(ctx context.Context, q db.Tx, limit int) ([]*models.Order, error) {
	rows, err := q.Query(ctx, `SELECT `+orderColumns+`
		FROM orders
		WHERE status_id=$1
		ORDER BY update_date
		LIMIT $2
	`, int16(models.OrderSettling), limit)
	if err != nil {
		return nil, persistenceError("list settling orders", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, persistenceError("scan settling order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list settling orders", err)
	}
	return orders, nil
}

func (s *Store) execOnOrder(ctx context.Context, tx db.Tx, op, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return persistenceError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var status int16
	err := row.Scan(
		&order.ID,
		&order.EstablishmentID,
		&order.UserID,
		&order.MatchID,
		&status,
		&order.TotalReal,
		&order.TotalFanToken,
		&order.TransactionHash,
		&order.BuyerAddress,
		&order.PaymentDeadline,
		&order.RegisterDate,
		&order.UpdateDate,
	)
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatus(status)
	return &order, nil
}
