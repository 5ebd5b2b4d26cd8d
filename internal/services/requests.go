package services

import (
	"errors"
	"reflect"
	"strings"

	"FanatiquePay/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	EstablishmentID int64             `json:"establishmentId" validate:"required"`
	UserID          int64             `json:"userId" validate:"required"`
	MatchID         int64             `json:"matchId" validate:"required"`
	Lines           []models.CartLine `json:"lines" validate:"required,min=1,dive"`
	TotalReal       *decimal.Decimal  `json:"totalReal" validate:"required"`
	TotalFanToken   *decimal.Decimal  `json:"totalFanToken" validate:"required"`
}

type QuoteRequest struct {
	Lines []models.CartLine `json:"lines" validate:"required,min=1,dive"`
}

// PermitBundle is the EIP-2612 permit signature split into its parts.
type PermitBundle struct {
	V        *uint8 `json:"v" validate:"required"`
	R        string `json:"r" validate:"required"`
	S        string `json:"s" validate:"required"`
	Deadline string `json:"deadline" validate:"required"`
}

type PayOrderRequest struct {
	OrderID      int64            `json:"orderId" validate:"required"`
	UserID       int64            `json:"userId" validate:"required"`
	BuyerAddress string           `json:"buyerAddress" validate:"required"`
	Amount       *decimal.Decimal `json:"amount" validate:"required"`
	Deadline     string           `json:"deadline" validate:"required"`
	Signature    string           `json:"signature" validate:"required"`
	Permit       *PermitBundle    `json:"permit" validate:"required"`
	TokenID      string           `json:"tokenId" validate:"required"`
}

type PayOrderResult struct {
	OrderID         int64
	Status          models.OrderStatus
	TransactionHash string
	BlockNumber     uint64
}

const (
	OutcomePaid    = "paid"
	OutcomeRelease = "release"
)

type ResolveRequest struct {
	OrderID         int64  `json:"orderId" validate:"required"`
	Outcome         string `json:"outcome" validate:"required,oneof=paid release"`
	TransactionHash string `json:"transactionHash"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failing field by its json name.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required", "min":
		return missingField(field)
	default:
		return invalidField(field, "failed "+fe.Tag())
	}
}
