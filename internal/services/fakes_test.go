package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"FanatiquePay/internal/db"
	"FanatiquePay/internal/models"
	"FanatiquePay/internal/payments"
	"FanatiquePay/internal/pricing"
	"FanatiquePay/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// memDB keeps committed orders and line items. Writes made through a memTx
// become visible only when the transaction function returns nil.
type memDB struct {
	mu     sync.Mutex
	orders map[int64]models.Order
	lines  map[int64][]models.OrderLine
	nextID int64
	locks  map[int64]*sync.Mutex
	txs    int

	failLineInsert bool
	failStatus     bool
	failHash       bool
	failCommit     bool
}

func newMemDB() *memDB {
	return &memDB{
		orders: map[int64]models.Order{},
		lines:  map[int64][]models.OrderLine{},
		locks:  map[int64]*sync.Mutex{},
	}
}

func (m *memDB) lockFor(id int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *memDB) order(id int64) (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *memDB) lineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lines {
		n += len(l)
	}
	return n
}

func (m *memDB) seed(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID > m.nextID {
		m.nextID = o.ID
	}
	m.orders[o.ID] = o
}

type memTx struct {
	db     *memDB
	orders map[int64]models.Order
	lines  map[int64][]models.OrderLine
	held   []*sync.Mutex
}

func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("memTx: raw sql not supported")
}

func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("memTx: raw sql not supported")
}

func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (t *memTx) get(id int64) (models.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	return t.db.order(id)
}

func (m *memDB) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	tx := &memTx{db: m, orders: map[int64]models.Order{}, lines: map[int64][]models.OrderLine{}}
	defer func() {
		for _, l := range tx.held {
			l.Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit {
		return db.Wrap("commit tx", errors.New("connection reset by peer"))
	}
	m.txs++
	for id, o := range tx.orders {
		m.orders[id] = o
	}
	for id, l := range tx.lines {
		m.lines[id] = append(m.lines[id], l...)
	}
	return nil
}

// memRepo implements OrderRepository on top of memDB.
type memRepo struct{}

func asMem(tx db.Tx) *memTx { return tx.(*memTx) }

func (memRepo) CreateOrder(_ context.Context, q db.Tx, order *models.Order, lines []models.OrderLine) (int64, error) {
	tx := asMem(q)
	tx.db.mu.Lock()
	tx.db.nextID++
	id := tx.db.nextID
	fail := tx.db.failLineInsert
	tx.db.mu.Unlock()

	now := time.Now().UTC()
	stored := *order
	stored.ID = id
	stored.RegisterDate = now
	stored.UpdateDate = now
	tx.orders[id] = stored

	if fail {
		return 0, &store.PersistenceError{Op: "insert order lines", Err: errors.New("disk full")}
	}
	for _, l := range lines {
		l.OrderID = id
		tx.lines[id] = append(tx.lines[id], l)
	}
	order.ID = id
	order.RegisterDate = now
	order.UpdateDate = now
	order.Lines = tx.lines[id]
	return id, nil
}

func (memRepo) GetOrder(_ context.Context, q db.Tx, id int64) (*models.Order, error) {
	o, ok := asMem(q).get(id)
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return &o, nil
}

func (r memRepo) GetOrderForUpdate(ctx context.Context, q db.Tx, id int64) (*models.Order, error) {
	tx := asMem(q)
	l := tx.db.lockFor(id)
	l.Lock()
	tx.held = append(tx.held, l)
	return r.GetOrder(ctx, q, id)
}

func (memRepo) update(q db.Tx, id int64, fn func(o *models.Order)) error {
	tx := asMem(q)
	o, ok := tx.get(id)
	if !ok {
		return store.ErrOrderNotFound
	}
	fn(&o)
	o.UpdateDate = time.Now().UTC()
	tx.orders[id] = o
	return nil
}

func (r memRepo) UpdateOrderStatus(_ context.Context, q db.Tx, id int64, status models.OrderStatus, txHash string) error {
	if asMem(q).db.failStatus {
		return &store.PersistenceError{Op: "update order status", Err: errors.New("connection lost")}
	}
	return r.update(q, id, func(o *models.Order) {
		o.Status = status
		if txHash == "" {
			o.TransactionHash = nil
		} else {
			h := txHash
			o.TransactionHash = &h
		}
	})
}

func (r memRepo) MarkSettling(_ context.Context, q db.Tx, id int64, buyer string, deadline time.Time) error {
	return r.update(q, id, func(o *models.Order) {
		o.Status = models.OrderSettling
		o.BuyerAddress = &buyer
		o.PaymentDeadline = &deadline
		o.TransactionHash = nil
	})
}

func (r memRepo) SetTransactionHash(_ context.Context, q db.Tx, id int64, txHash string) error {
	if asMem(q).db.failHash {
		return &store.PersistenceError{Op: "set transaction hash", Err: errors.New("connection lost")}
	}
	return r.update(q, id, func(o *models.Order) {
		h := txHash
		o.TransactionHash = &h
	})
}

func (r memRepo) ReleaseSettlement(_ context.Context, q db.Tx, id int64) error {
	return r.update(q, id, func(o *models.Order) {
		o.Status = models.OrderPendingPayment
		o.TransactionHash = nil
		o.BuyerAddress = nil
		o.PaymentDeadline = nil
	})
}

func (memRepo) ListSettling(_ context.Context, q db.Tx, limit int) ([]*models.Order, error) {
	tx := asMem(q)
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	var out []*models.Order
	for _, o := range tx.db.orders {
		if o.Status == models.OrderSettling && len(out) < limit {
			out = append(out, &o)
		}
	}
	return out, nil
}

type stubQuoter struct {
	quoteFn func(ctx context.Context, lines []models.CartLine) (pricing.Totals, error)
}

func (s stubQuoter) Quote(ctx context.Context, lines []models.CartLine) (pricing.Totals, error) {
	return s.quoteFn(ctx, lines)
}

type stubGateway struct {
	mu       sync.Mutex
	submits  int
	awaits   int
	submitFn func(ctx context.Context, req payments.Request) (string, error)
	awaitFn  func(ctx context.Context, hash string) (payments.Settlement, error)
}

func (g *stubGateway) Submit(ctx context.Context, req payments.Request) (string, error) {
	g.mu.Lock()
	g.submits++
	g.mu.Unlock()
	return g.submitFn(ctx, req)
}

func (g *stubGateway) AwaitConfirmation(ctx context.Context, hash string) (payments.Settlement, error) {
	g.mu.Lock()
	g.awaits++
	g.mu.Unlock()
	return g.awaitFn(ctx, hash)
}

func (g *stubGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits
}
