// Package ordersapi exposes the order consumer's query surface over HTTP.
//
// GET /orders returns only orders the consumer has already processed.
// Right after a successful buy the list may not include the new order
// yet; callers confirm visibility by polling with a bounded number of
// attempts and a delay, treating "not yet visible" as a normal outcome.
package ordersapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HoangTuan-git/action-E-project/internal/authtoken"
	"github.com/HoangTuan-git/action-E-project/internal/orders"
)

type Handler struct {
	repo orders.OrderRepository
}

func NewHandler(repo orders.OrderRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Routes(verifier authtoken.Verifier) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authtoken.RequireAuth(verifier))
		r.Get("/", h.ListOrders)
	})

	return r
}

// GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	username := authtoken.UsernameFromContext(r.Context())
	if username == "" {
		respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	result, err := h.repo.ListOrdersByUsername(r.Context(), username)
	if err != nil {
		log.Printf("failed to list orders for %s: %v", username, err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	if result == nil {
		result = []*orders.Order{}
	}

	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
