package http

import (
	"errors"
	"net/http"

	"FanatiquePay/internal/services"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

const (
	CodeMissingField     = "MISSING_FIELD"
	CodeInvalidField     = "INVALID_FIELD"
	CodeInvalidQuantity  = "INVALID_QUANTITY"
	CodeTotalMismatch    = "TOTAL_MISMATCH"
	CodeAmountMismatch   = "AMOUNT_MISMATCH"
	CodeProductNotFound  = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound    = "ORDER_NOT_FOUND"
	CodeOwnership        = "OWNERSHIP_MISMATCH"
	CodeInvalidState     = "INVALID_STATE"
	CodePaymentRejected  = "PAYMENT_REJECTED"
	CodePaymentPending   = "PAYMENT_PENDING"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeChainUnavailable = "CHAIN_UNAVAILABLE"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps service errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var pending *services.PaymentPendingError
	switch {
	case errors.As(err, &pending):
		return http.StatusAccepted, CodePaymentPending
	case errors.Is(err, services.ErrMissingField):
		return http.StatusBadRequest, CodeMissingField
	case errors.Is(err, services.ErrInvalidField):
		return http.StatusBadRequest, CodeInvalidField
	case errors.Is(err, services.ErrInvalidQuantity):
		return http.StatusBadRequest, CodeInvalidQuantity
	case errors.Is(err, services.ErrTotalMismatch):
		return http.StatusBadRequest, CodeTotalMismatch
	case errors.Is(err, services.ErrAmountMismatch):
		return http.StatusBadRequest, CodeAmountMismatch
	case errors.Is(err, services.ErrProductNotFound):
		return http.StatusUnprocessableEntity, CodeProductNotFound
	case errors.Is(err, services.ErrOrderNotFound):
		return http.StatusNotFound, CodeOrderNotFound
	case errors.Is(err, services.ErrOwnershipMismatch):
		return http.StatusForbidden, CodeOwnership
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, services.ErrPaymentRejected):
		return http.StatusPaymentRequired, CodePaymentRejected
	case errors.Is(err, services.ErrPaymentTimeout):
		return http.StatusAccepted, CodePaymentPending
	case errors.Is(err, services.ErrChainUnavailable):
		return http.StatusServiceUnavailable, CodeChainUnavailable
	case errors.Is(err, services.ErrPersistence):
		return http.StatusServiceUnavailable, CodePersistenceError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, errorResponse{Code: code, Message: msg})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		h.logger().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "storage unavailable, retry later"
	}
	writeError(w, r, status, code, msg)
}
