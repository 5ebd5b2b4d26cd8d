package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"FanatiquePay/internal/catalog"
	"FanatiquePay/internal/events"
	"FanatiquePay/internal/models"
	"FanatiquePay/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCatalog map[int64]models.Product

func (c testCatalog) GetProduct(_ context.Context, id int64) (models.Product, error) {
	p, ok := c[id]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: %d", catalog.ErrProductNotFound, id)
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func newTestService(mem *memDB, gw *stubGateway) (OrderService, *recordingPublisher) {
	pub := &recordingPublisher{}
	cat := testCatalog{
		1: {ID: 1, Name: "beer", ValueReal: dec("10.00"), ValueFanToken: dec("5.00")},
		2: {ID: 2, Name: "hot dog", ValueReal: dec("7.50"), ValueFanToken: dec("3.75")},
	}
	return OrderService{
		DB:            mem,
		Orders:        memRepo{},
		Pricing:       pricing.Calculator{Catalog: cat},
		Gateway:       gw,
		Events:        pub,
		TokenDecimals: 18,
	}, pub
}

func validCreateRequest() CreateOrderRequest {
	return CreateOrderRequest{
		EstablishmentID: 3,
		UserID:          7,
		MatchID:         11,
		Lines:           []models.CartLine{{ProductID: 1, Quantity: 2}},
		TotalReal:       decp("20.00"),
		TotalFanToken:   decp("10.00"),
	}
}

func TestCreateOrderStoresComputedTotals(t *testing.T) {
	mem := newMemDB()
	svc, pub := newTestService(mem, nil)

	order, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	stored, ok := mem.order(order.ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderPendingPayment, stored.Status)
	assert.True(t, stored.TotalReal.Equal(dec("20.00")), stored.TotalReal.String())
	assert.True(t, stored.TotalFanToken.Equal(dec("10.00")), stored.TotalFanToken.String())
	assert.Nil(t, stored.TransactionHash)
	assert.Equal(t, 1, mem.lineCount())
	assert.Equal(t, []string{events.OrderCreated}, pub.types())
}

func TestCreateOrderUsesServerTotalsWithinTolerance(t *testing.T) {
	mem := newMemDB()
	svc, _ := newTestService(mem, nil)

	req := validCreateRequest()
	req.Lines = []models.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 2}}
	req.TotalReal = decp("25.01")
	req.TotalFanToken = decp("12.49")

	order, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	stored, _ := mem.order(order.ID)
	assert.True(t, stored.TotalReal.Equal(dec("25.00")), stored.TotalReal.String())
	assert.True(t, stored.TotalFanToken.Equal(dec("12.50")), stored.TotalFanToken.String())
	assert.Equal(t, 2, mem.lineCount())
}

func TestCreateOrderTotalMismatch(t *testing.T) {
	mem := newMemDB()
	svc, pub := newTestService(mem, nil)

	req := validCreateRequest()
	req.TotalReal = decp("25.00")
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrTotalMismatch)

	req = validCreateRequest()
	req.TotalFanToken = decp("10.02")
	_, err = svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrTotalMismatch)

	assert.Empty(t, mem.orders)
	assert.Zero(t, mem.lineCount())
	assert.Empty(t, pub.types())
}

func TestCreateOrderMissingFields(t *testing.T) {
	svc, _ := newTestService(newMemDB(), nil)

	cases := map[string]func(r *CreateOrderRequest){
		"establishmentId":    func(r *CreateOrderRequest) { r.EstablishmentID = 0 },
		"userId":             func(r *CreateOrderRequest) { r.UserID = 0 },
		"matchId":            func(r *CreateOrderRequest) { r.MatchID = 0 },
		"lines":              func(r *CreateOrderRequest) { r.Lines = []models.CartLine{} },
		"lines[0].productId": func(r *CreateOrderRequest) { r.Lines = []models.CartLine{{Quantity: 1}} },
		"totalReal":          func(r *CreateOrderRequest) { r.TotalReal = nil },
		"totalFanToken":      func(r *CreateOrderRequest) { r.TotalFanToken = nil },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			req := validCreateRequest()
			mutate(&req)
			_, err := svc.CreateOrder(context.Background(), req)
			require.ErrorIs(t, err, ErrMissingField)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, field, fe.Field)
		})
	}

	req := validCreateRequest()
	req.Lines = nil
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestCreateOrderCatalogErrors(t *testing.T) {
	mem := newMemDB()
	svc, _ := newTestService(mem, nil)

	req := validCreateRequest()
	req.Lines = []models.CartLine{{ProductID: 99, Quantity: 1}}
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrProductNotFound)

	req = validCreateRequest()
	req.Lines = []models.CartLine{{ProductID: 1, Quantity: 0}}
	_, err = svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	req.Lines = []models.CartLine{{ProductID: 1, Quantity: -1}}
	_, err = svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, mem.orders)
}

func TestCreateOrderRetryAfterPersistenceErrorLeavesNoOrphans(t *testing.T) {
	mem := newMemDB()
	mem.failLineInsert = true
	svc, _ := newTestService(mem, nil)

	_, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, mem.orders)
	assert.Zero(t, mem.lineCount())

	mem.failLineInsert = false
	order, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Len(t, mem.orders, 1)
	assert.Equal(t, 1, mem.lineCount())
	assert.Len(t, order.Lines, 1)
}

func TestCreateOrderCommitFailureIsPersistenceError(t *testing.T) {
	mem := newMemDB()
	mem.failCommit = true
	svc, pub := newTestService(mem, nil)

	_, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, mem.orders)
	assert.Zero(t, mem.lineCount())
	assert.Empty(t, pub.types())
}

func TestGetOrderChecksOwner(t *testing.T) {
	mem := newMemDB()
	mem.seed(models.Order{ID: 5, UserID: 7, Status: models.OrderPendingPayment})
	svc, _ := newTestService(mem, nil)

	order, err := svc.GetOrder(context.Background(), 5, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), order.ID)

	_, err = svc.GetOrder(context.Background(), 5, 8)
	assert.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = svc.GetOrder(context.Background(), 6, 7)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.GetOrder(context.Background(), 5, 0)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestQuote(t *testing.T) {
	svc, _ := newTestService(newMemDB(), nil)

	totals, err := svc.Quote(context.Background(), QuoteRequest{Lines: []models.CartLine{{ProductID: 2, Quantity: 4}}})
	require.NoError(t, err)
	assert.True(t, totals.Real.Equal(dec("30")))
	assert.True(t, totals.FanToken.Equal(dec("15")))

	_, err = svc.Quote(context.Background(), QuoteRequest{})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	mem := newMemDB()
	svc, _ := newTestService(mem, nil)
	svc.Events = failingPublisher{}

	_, err := svc.CreateOrder(context.Background(), validCreateRequest())
	assert.NoError(t, err)
	assert.Len(t, mem.orders, 1)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.OrderEvent) error {
	return errors.New("broker unavailable")
}

func (failingPublisher) Close() error { return nil }
