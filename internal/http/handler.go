package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"FanatiquePay/internal/models"
	"FanatiquePay/internal/pricing"
	"FanatiquePay/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const userHeader = "X-User-Id"

type OrderAPI interface {
	Quote(ctx context.Context, req services.QuoteRequest) (pricing.Totals, error)
	CreateOrder(ctx context.Context, req services.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, userID int64) (*models.Order, error)
	PayOrder(ctx context.Context, req services.PayOrderRequest) (*services.PayOrderResult, error)
	ResolveSettlement(ctx context.Context, req services.ResolveRequest) (*models.Order, error)
	PendingSettlements(ctx context.Context, limit int) ([]*models.Order, error)
}

type Handler struct {
	Orders OrderAPI
	Logger *zap.Logger
}

type lineResponse struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type orderResponse struct {
	OrderID         int64           `json:"orderId"`
	EstablishmentID int64           `json:"establishmentId"`
	UserID          int64           `json:"userId"`
	MatchID         int64           `json:"matchId"`
	Status          string          `json:"status"`
	TotalReal       decimal.Decimal `json:"totalReal"`
	TotalFanToken   decimal.Decimal `json:"totalFanToken"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	BuyerAddress    string          `json:"buyerAddress,omitempty"`
	PaymentDeadline string          `json:"paymentDeadline,omitempty"`
	Lines           []lineResponse  `json:"lines,omitempty"`
	RegisterDate    string          `json:"registerDate,omitempty"`
	UpdateDate      string          `json:"updateDate,omitempty"`
}

type payResponse struct {
	OrderID               int64  `json:"orderId"`
	Status                string `json:"status"`
	TransactionHash       string `json:"transactionHash,omitempty"`
	BlockNumber           uint64 `json:"blockNumber,omitempty"`
	PendingReconciliation bool   `json:"pendingReconciliation,omitempty"`
	Message               string `json:"message,omitempty"`
}

func NewHandler(orders OrderAPI, logger *zap.Logger) *Handler {
	return &Handler{Orders: orders, Logger: logger}
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req services.QuoteRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid json body")
		return
	}
	totals, err := h.Orders.Quote(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, totals)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req services.CreateOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid json body")
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	req.UserID = userID

	order, err := h.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req services.PayOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid json body")
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	req.OrderID = orderID
	req.UserID = userID

	res, err := h.Orders.PayOrder(r.Context(), req)
	if err != nil {
		status, code := errorStatus(err)
		if code != CodePaymentPending {
			h.writeServiceError(w, r, err)
			return
		}
		resp := payResponse{
			OrderID:               orderID,
			Status:                models.OrderSettling.String(),
			PendingReconciliation: true,
			Message:               "payment submitted, check order status later",
		}
		var pending *services.PaymentPendingError
		if errors.As(err, &pending) {
			resp.TransactionHash = pending.TxHash
		}
		writeJSON(w, r, status, resp)
		return
	}

	writeJSON(w, r, http.StatusOK, payResponse{
		OrderID:         res.OrderID,
		Status:          res.Status.String(),
		TransactionHash: res.TransactionHash,
		BlockNumber:     res.BlockNumber,
	})
}

func (h *Handler) ResolveSettlement(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req services.ResolveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid json body")
		return
	}
	req.OrderID = orderID

	order, err := h.Orders.ResolveSettlement(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.logger().Info("settlement resolved",
		zap.Int64("order_id", orderID),
		zap.String("outcome", req.Outcome),
		zap.String("request_id", requestID(r)),
	)
	writeJSON(w, r, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) PendingSettlements(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid limit")
			return
		}
		limit = n
	}
	orders, err := h.Orders.PendingSettlements(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "orderId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid order id")
		return 0, false
	}
	return id, true
}

// userID reads the caller identity set by the upstream gateway. A missing
// header is left to the service, which reports it as a missing field.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(userHeader))
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, CodeInvalidField, "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func toOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:         o.ID,
		EstablishmentID: o.EstablishmentID,
		UserID:          o.UserID,
		MatchID:         o.MatchID,
		Status:          o.Status.String(),
		TotalReal:       o.TotalReal,
		TotalFanToken:   o.TotalFanToken,
	}
	if o.TransactionHash != nil {
		resp.TransactionHash = *o.TransactionHash
	}
	if o.BuyerAddress != nil {
		resp.BuyerAddress = *o.BuyerAddress
	}
	if o.PaymentDeadline != nil {
		resp.PaymentDeadline = o.PaymentDeadline.Format(time.RFC3339)
	}
	if !o.RegisterDate.IsZero() {
		resp.RegisterDate = o.RegisterDate.Format(time.RFC3339)
	}
	if !o.UpdateDate.IsZero() {
		resp.UpdateDate = o.UpdateDate.Format(time.RFC3339)
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, lineResponse{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return resp
}
