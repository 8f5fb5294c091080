package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/alextreichler/minishop/internal/gate"
	"github.com/alextreichler/minishop/internal/models"
)

// UserStore looks up login accounts. GetUserByUsername returns nil, nil for
// an unknown username.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type AuthHandler struct {
	Common
	Users UserStore
}

func (h *AuthHandler) LoginGet(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get(gate.RedirectParam)
	if h.Gate.State(r) == gate.Authenticated {
		http.Redirect(w, r, gate.SafeRedirect(redirect), http.StatusSeeOther)
		return
	}

	session := h.session(r)
	h.render(w, r, session, http.StatusOK, "login.html", map[string]interface{}{
		"Redirect": redirect,
	})
}

func (h *AuthHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	username := r.FormValue("username")
	password := r.FormValue("password")
	redirect := r.FormValue(gate.RedirectParam)

	retry := gate.LoginPath
	if redirect != "" {
		retry = gate.LoginURL(gate.SafeRedirect(redirect))
	}

	user, err := h.Users.GetUserByUsername(r.Context(), username)
	if err != nil {
		slog.Error("Failed to look up user", "username", username, "error", err)
		session.AddFlash(FlashMessage{Type: "error", Message: "Internal Server Error"})
		h.redirect(w, r, session, retry)
		return
	}

	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		slog.Info("Login failed", "username", username, "ip", clientIP(r))
		session.AddFlash(FlashMessage{Type: "error", Message: "Invalid username or password"})
		h.redirect(w, r, session, retry)
		return
	}

	h.Gate.SignIn(w)
	session.AddFlash(FlashMessage{Type: "success", Message: "Welcome, " + user.Username + "!"})

	target := gate.SafeRedirect(redirect)
	slog.Info("Login successful", "user_id", user.ID, "redirect", target)
	h.redirect(w, r, session, target)
}

// Logout clears the session flag. The visitor keeps their cart.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	h.Gate.SignOut(w)
	session.AddFlash(FlashMessage{Type: "success", Message: "Logged out successfully!"})
	h.redirect(w, r, session, gate.LoginPath)
}
