package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"github.com/alextreichler/minishop/internal/cart"
	"github.com/alextreichler/minishop/internal/gate"
	"github.com/alextreichler/minishop/internal/metrics"
)

const (
	// SessionName is the signed cookie carrying the visitor id and flashes.
	SessionName = "shop-session"

	visitorKey = "visitor_id"
)

// NewSessionStore returns the cookie store behind SessionName. The cookie is
// HttpOnly and SameSite=Lax, and Secure only when secure is set.
func NewSessionStore(key []byte, secure bool, domain string) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Path = "/"
	if domain != "" {
		store.Options.Domain = domain
	}
	return store
}

// Common is shared by every handler struct.
type Common struct {
	SessionStore sessions.Store
	Templates    *TemplateCache
	Gate         *gate.Gate
	Carts        *cart.Registry
}

// session never returns nil: gorilla hands back a fresh session when the
// cookie is missing or fails verification.
func (c *Common) session(r *http.Request) *sessions.Session {
	session, err := c.SessionStore.Get(r, SessionName)
	if err != nil {
		slog.Debug("Discarding unreadable session", "error", err)
	}
	return session
}

func (c *Common) save(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
}

// visitorID returns the id stored in session, assigning one on first visit.
// The caller must save the session.
func visitorID(session *sessions.Session) string {
	if id, ok := session.Values[visitorKey].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	session.Values[visitorKey] = id
	return id
}

// cartFor returns the visitor's cart. A cart that could not be loaded comes
// back empty and stays in use for the session.
func (c *Common) cartFor(ctx context.Context, session *sessions.Session) *cart.Cart {
	id := visitorID(session)
	crt, err := c.Carts.Get(ctx, id)
	if err != nil {
		slog.Warn("Failed to load cart, starting empty", "visitor", id, "error", err)
	}
	metrics.ActiveCarts.Set(float64(c.Carts.Len()))
	return crt
}

// notePersistError surfaces a cart write that only reached memory.
func (c *Common) notePersistError(session *sessions.Session, op string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, cart.ErrNotPersisted) {
		metrics.PersistFailures.WithLabelValues(op).Inc()
		slog.Warn("Cart change kept in memory only", "op", op, "error", err)
		session.AddFlash(FlashMessage{Type: "warning", Message: "Your cart could not be saved. It will be kept for this visit but may be lost if the shop restarts."})
		return
	}
	slog.Error("Cart operation failed", "op", op, "error", err)
	session.AddFlash(FlashMessage{Type: "error", Message: "Something went wrong updating your cart."})
}

func (c *Common) redirect(w http.ResponseWriter, r *http.Request, session *sessions.Session, url string) {
	c.save(w, r, session)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// render fills in the layout fields, saves the session and writes page with
// status. A page that fails to render writes only a 500.
func (c *Common) render(w http.ResponseWriter, r *http.Request, session *sessions.Session, status int, page string, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["Flashes"] = GetFlash(session)
	data["CsrfField"] = csrf.TemplateField(r)
	data["Authenticated"] = c.Gate.State(r) == gate.Authenticated
	if _, ok := data["CartCount"]; !ok {
		data["CartCount"] = c.cartFor(r.Context(), session).Count()
	}
	c.save(w, r, session)

	var buf bytes.Buffer
	if err := c.Templates.Render(&buf, page, data); err != nil {
		slog.Error("Failed to render template", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("Failed to write response", "page", page, "error", err)
	}
}
