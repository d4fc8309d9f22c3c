package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/cart"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartStore interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	AddItem(ctx context.Context, userID string, l cart.Line) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// CartHandler trusts the caller for item names and prices; the gateway resolves them from
// the catalog before adding.
type CartHandler struct {
	Cart CartStore
	Log  *zap.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/carts/{userID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateQuantity)
		r.Delete("/items/{itemID}", h.removeItem)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	c, err := h.Cart.Get(ctx, chi.URLParam(r, "userID"))
	h.reply(w, c, err)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var line cart.Line
	if err := decodeJSON(r, &line); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	c, err := h.Cart.AddItem(ctx, chi.URLParam(r, "userID"), line)
	h.reply(w, c, err)
}

func (h *CartHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	c, err := h.Cart.UpdateQuantity(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "itemID"), req.Quantity)
	h.reply(w, c, err)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	c, err := h.Cart.RemoveItem(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "itemID"))
	h.reply(w, c, err)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.Cart.Clear(ctx, chi.URLParam(r, "userID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) reply(w http.ResponseWriter, c cart.Cart, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
