package authsvc

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/HoangTuan-git/action-E-project/internal/authtoken"
)

type Handler struct {
	repo   UserRepository
	issuer *authtoken.Issuer
}

func NewHandler(repo UserRepository, issuer *authtoken.Issuer) *Handler {
	return &Handler{repo: repo, issuer: issuer}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("failed to hash password: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	user := &User{
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			respondError(w, http.StatusBadRequest, "username already taken")
			return
		}
		log.Printf("failed to create user: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	// The password hash is never echoed back.
	respondJSON(w, http.StatusCreated, userResponse{Username: user.Username})
}

// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.repo.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("failed to look up user: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issuer.Issue(user.Username)
	if err != nil {
		log.Printf("failed to issue token: %v", err)
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{Token: token})
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
