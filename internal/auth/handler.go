package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/saq-app/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	db       *sql.DB
	tokens   *Tokens
	validate *validator.Validate
}

func NewHandler(db *sql.DB, tokens *Tokens) *Handler {
	return &Handler{db: db, tokens: tokens, validate: validator.New()}
}

// RegisterRoutes mounts the public endpoints on api and /auth/me on protected.
func (h *Handler) RegisterRoutes(api, protected *mux.Router) {
	api.HandleFunc("/auth/register", h.Register).Methods("POST")
	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	protected.HandleFunc("/auth/me", h.GetCurrentUser).Methods("GET")
}

// Register creates an account. A request carrying a lazy user's token
// converts that user in place so earlier submissions are kept.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Email, name, and a password of at least 8 characters are required"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	lazyID := h.lazyUserFromRequest(r)
	username := GenerateUsername(req.Name)
	now := time.Now()

	var user models.User
	var createdAt, updatedAt int64
	// Try up to 5 times in case of username collision
	var insertErr error
	for attempt := 0; attempt < 5; attempt++ {
		if lazyID != 0 {
			insertErr = h.db.QueryRowContext(r.Context(),
				`UPDATE users SET email = $1, name = $2, username = $3, password = $4,
				        is_lazy = $5, updated_at = $6
				 WHERE id = $7
				 RETURNING id, email, name, username, is_lazy, created_at, updated_at`,
				req.Email, req.Name, username, string(hashedPassword), false, now.UnixMilli(), lazyID,
			).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &user.IsLazy, &createdAt, &updatedAt)
		} else {
			insertErr = h.db.QueryRowContext(r.Context(),
				`INSERT INTO users (email, name, username, password, is_lazy, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING id, email, name, username, is_lazy, created_at, updated_at`,
				req.Email, req.Name, username, string(hashedPassword), false, now.UnixMilli(), now.UnixMilli(),
			).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &user.IsLazy, &createdAt, &updatedAt)
		}

		if insertErr == nil {
			break
		}
		if isUniqueViolation(insertErr, "username") {
			username = GenerateUsername(req.Name)
			continue
		}
		break
	}
	err = insertErr

	if err != nil {
		if isUniqueViolation(err, "email") {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "An account with this email already exists"})
			return
		}
		log.Printf("[auth] Register error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create account"})
		return
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Email and password are required"})
		return
	}

	var user models.User
	var hashedPassword string
	var createdAt, updatedAt int64
	err := h.db.QueryRowContext(r.Context(),
		`SELECT id, email, name, username, password, created_at, updated_at
		 FROM users WHERE email = $1 AND is_lazy = $2`,
		req.Email, false,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &hashedPassword, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: user})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var user models.User
	var createdAt, updatedAt int64
	err := h.db.QueryRowContext(r.Context(),
		`SELECT id, COALESCE(email, ''), name, username, is_lazy, created_at, updated_at
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &user.IsLazy, &createdAt, &updatedAt)

	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	writeJSON(w, http.StatusOK, user)
}

// lazyUserFromRequest returns the id of the lazy user named by the bearer
// token, or 0 when there is none.
func (h *Handler) lazyUserFromRequest(r *http.Request) int64 {
	raw, ok := BearerToken(r)
	if !ok {
		return 0
	}
	uid, err := h.tokens.Parse(raw)
	if err != nil {
		return 0
	}
	var lazy bool
	err = h.db.QueryRowContext(r.Context(), `SELECT is_lazy FROM users WHERE id = $1`, uid).Scan(&lazy)
	if err != nil || !lazy {
		return 0
	}
	return uid
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// isUniqueViolation matches both the postgres constraint name and the
// sqlite "UNIQUE constraint failed: users.<column>" message.
func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "users_"+column+"_key") ||
		strings.Contains(msg, "users."+column)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
