// Package productapi exposes the product service over HTTP: catalog CRUD
// and the POST /products/buy order-intake endpoint.
package productapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HoangTuan-git/action-E-project/internal/authtoken"
	"github.com/HoangTuan-git/action-E-project/internal/catalog"
	"github.com/HoangTuan-git/action-E-project/internal/intake"
)

// CatalogService is the product surface the handlers need.
type CatalogService interface {
	CreateProduct(ctx context.Context, p *catalog.Product) error
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetAllProducts(ctx context.Context) ([]*catalog.Product, error)
}

// OrderIntake accepts validated buy requests.
type OrderIntake interface {
	CreateOrder(ctx context.Context, lines []intake.LineRequest, username string) (*intake.Order, error)
}

type Handler struct {
	catalog CatalogService
	intake  OrderIntake
}

func NewHandler(catalogSvc CatalogService, intakeSvc OrderIntake) *Handler {
	return &Handler{catalog: catalogSvc, intake: intakeSvc}
}

// Routes mounts the product API. Everything except /health requires a
// bearer token; the auth middleware answers 401 before any body parsing.
func (h *Handler) Routes(verifier authtoken.Verifier) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authtoken.RequireAuth(verifier))
		r.Post("/", h.CreateProduct)
		r.Get("/", h.GetProducts)
		r.Get("/{id}", h.GetProductByID)
		r.Post("/buy", h.Buy)
	})

	return r
}

type createProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
}

// POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "product name is required")
		return
	}
	if req.Price <= 0 {
		respondError(w, http.StatusBadRequest, "product price is required")
		return
	}

	p := &catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}
	if err := h.catalog.CreateProduct(r.Context(), p); err != nil {
		log.Printf("failed to create product: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

// GET /products
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.GetAllProducts(r.Context())
	if err != nil {
		log.Printf("failed to list products: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

// GET /products/{id}
func (h *Handler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		log.Printf("failed to get product %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// Buy handles POST /products/buy. A 201 response means the order is
// accepted and durably pending; it becomes visible through the orders
// service only after the order message is consumed, so callers poll.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	username := authtoken.UsernameFromContext(r.Context())
	if username == "" {
		respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var lines []intake.LineRequest
	if err := json.NewDecoder(r.Body).Decode(&lines); err != nil {
		respondError(w, http.StatusBadRequest, "invalid products data")
		return
	}

	order, err := h.intake.CreateOrder(r.Context(), lines, username)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrEmptyOrder):
			respondError(w, http.StatusBadRequest, "invalid products data")
		case errors.Is(err, intake.ErrInvalidOrder):
			respondError(w, http.StatusBadRequest, "each product must have an id and a quantity of at least 1")
		case errors.Is(err, catalog.ErrProductNotFound):
			respondError(w, http.StatusBadRequest, "unknown product id")
		case errors.Is(err, intake.ErrMissingUser):
			respondError(w, http.StatusUnauthorized, "missing user authentication")
		default:
			log.Printf("failed to create order: %v", err)
			respondError(w, http.StatusInternalServerError, "server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, order)
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
