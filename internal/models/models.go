package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus int16

const (
	OrderPendingPayment OrderStatus = 1
	OrderPaid           OrderStatus = 2
	// OrderSettling marks an order whose on-chain settlement is in flight or awaiting reconciliation.
	OrderSettling OrderStatus = 3
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPendingPayment:
		return "pending_payment"
	case OrderPaid:
		return "paid"
	case OrderSettling:
		return "settling"
	default:
		return "unknown"
	}
}

type Order struct {
	ID              int64
	EstablishmentID int64
	UserID          int64
	MatchID         int64
	Status          OrderStatus
	TotalReal       decimal.Decimal
	TotalFanToken   decimal.Decimal
	TransactionHash *string
	BuyerAddress    *string
	PaymentDeadline *time.Time
	Lines           []OrderLine
	RegisterDate    time.Time
	UpdateDate      time.Time
}

type OrderLine struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}

type CartLine struct {
	ProductID int64 `json:"productId" validate:"required"`
	Quantity  int   `json:"quantity"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	ValueReal     decimal.Decimal `json:"valueReal"`
	ValueFanToken decimal.Decimal `json:"valueFanToken"`
}
