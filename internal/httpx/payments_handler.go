package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-saga-commerce/internal/payments"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentService interface {
	Charge(ctx context.Context, in payments.ChargeInput) (payments.Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]payments.Transaction, error)
}

type PaymentsHandler struct {
	Payments PaymentService
	Log      *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.charge)
	r.Get("/payments/orders/{orderID}", h.listByOrder)
}

func (h *PaymentsHandler) charge(w http.ResponseWriter, r *http.Request) {
	var in payments.ChargeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	t, err := h.Payments.Charge(ctx, in)
	writeResult(w, h.Log, http.StatusCreated, t, err)
}

func (h *PaymentsHandler) listByOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	list, err := h.Payments.ListByOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
