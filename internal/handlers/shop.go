package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alextreichler/minishop/internal/cart"
	"github.com/alextreichler/minishop/internal/catalog"
	"github.com/alextreichler/minishop/internal/checkout"
	"github.com/alextreichler/minishop/internal/metrics"
	"github.com/alextreichler/minishop/internal/money"
)

type ShopHandler struct {
	Common
	Catalog  *catalog.Catalog
	Checkout *checkout.Service
}

func (h *ShopHandler) Products(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	h.render(w, r, session, http.StatusOK, "products.html", map[string]interface{}{
		"Items": h.Catalog.List(),
	})
}

func (h *ShopHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	item, ok := h.Catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	session := h.session(r)
	crt := h.cartFor(r.Context(), session)
	if err := crt.Add(r.Context(), item); err != nil {
		h.notePersistError(session, "add", err)
	} else {
		session.AddFlash(FlashMessage{Type: "success", Message: item.Name + " added to cart."})
	}
	h.redirect(w, r, session, "/products")
}

func (h *ShopHandler) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	crt := h.cartFor(r.Context(), session)

	lines := crt.Lines()
	var subtotal int64
	count := 0
	for _, line := range lines {
		subtotal += line.LineTotal()
		count += line.Quantity
	}

	h.render(w, r, session, http.StatusOK, "checkout.html", map[string]interface{}{
		"Lines":     lines,
		"Summary":   checkout.Summarize(subtotal),
		"TaxRate":   money.TaxRatePercent(),
		"CartCount": count,
	})
}

// SetQuantity reads the qty form field. Unparsable input and 0 count as 1,
// the way the quantity box behaves; negatives are ignored by the cart.
func (h *ShopHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.FormValue("qty"))
	if err != nil || qty == 0 {
		qty = 1
	}

	session := h.session(r)
	crt := h.cartFor(r.Context(), session)
	h.notePersistError(session, "set_quantity", crt.SetQuantity(r.Context(), chi.URLParam(r, "id"), qty))
	h.redirect(w, r, session, "/checkout")
}

func (h *ShopHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	crt := h.cartFor(r.Context(), session)
	h.notePersistError(session, "remove", crt.Remove(r.Context(), chi.URLParam(r, "id")))
	h.redirect(w, r, session, "/checkout")
}

func (h *ShopHandler) Pay(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	crt := h.cartFor(r.Context(), session)

	receipt, err := h.Checkout.Checkout(r.Context(), crt)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		metrics.Checkouts.WithLabelValues("empty").Inc()
		h.redirect(w, r, session, "/checkout")
		return
	case receipt == nil:
		metrics.Checkouts.WithLabelValues("failed").Inc()
		slog.Error("Checkout failed, cart kept", "error", err)
		session.AddFlash(FlashMessage{Type: "error", Message: "We couldn't save your receipt. Your cart has not been changed, please try again."})
		h.redirect(w, r, session, "/checkout")
		return
	case errors.Is(err, cart.ErrNotPersisted):
		metrics.Checkouts.WithLabelValues("unpersisted").Inc()
		h.notePersistError(session, "checkout_clear", err)
	case err != nil:
		metrics.Checkouts.WithLabelValues("unpersisted").Inc()
		slog.Error("Checkout completed with error", "order_id", receipt.ID, "error", err)
	default:
		metrics.Checkouts.WithLabelValues("ok").Inc()
	}

	slog.Info("Order placed", "order_id", receipt.ID, "total", receipt.Total, "items", len(receipt.Items))
	h.redirect(w, r, session, "/receipt/"+receipt.ID)
}

func (h *ShopHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	id := chi.URLParam(r, "id")

	receipt, err := h.Checkout.Lookup(r.Context(), id)
	if errors.Is(err, checkout.ErrReceiptNotFound) {
		h.render(w, r, session, http.StatusNotFound, "receipt_not_found.html", nil)
		return
	}
	if err != nil {
		slog.Error("Failed to load receipt", "order_id", id, "error", err)
		h.render(w, r, session, http.StatusServiceUnavailable, "receipt_not_found.html", nil)
		return
	}

	h.render(w, r, session, http.StatusOK, "receipt.html", map[string]interface{}{
		"Receipt": receipt,
	})
}

func (h *ShopHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	h.render(w, r, session, http.StatusNotFound, "not_found.html", nil)
}
