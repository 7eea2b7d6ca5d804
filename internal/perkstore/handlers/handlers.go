package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/perkhub/perkstore/internal/perkstore/middleware"
	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/perkhub/perkstore/internal/perkstore/repository"
	"github.com/perkhub/perkstore/internal/perkstore/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Handler handles all HTTP requests
type Handler struct {
	Repo      repository.Repository
	Ledger    *service.Ledger
	Checkout  *service.Checkout
	JWTSecret string
	Log       *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(repo repository.Repository, ledger *service.Ledger, checkout *service.Checkout, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{
		Repo:      repo,
		Ledger:    ledger,
		Checkout:  checkout,
		JWTSecret: jwtSecret,
		Log:       log,
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Expected business
// errors go back verbatim with their numbers; anything else is a 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *models.ValidationError
		balanceErr    *models.InsufficientBalanceError
		stockErr      *models.InsufficientStockError
		configErr     *models.ConfigurationError
		persistErr    *models.PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &balanceErr):
		http.Error(w, balanceErr.Error(), http.StatusPaymentRequired)
	case errors.As(err, &stockErr):
		http.Error(w, stockErr.Error(), http.StatusConflict)
	case errors.As(err, &configErr):
		http.Error(w, configErr.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &persistErr):
		h.Log.Error("persistence failure", zap.Error(err))
		http.Error(w, "Server error", http.StatusInternalServerError)
	default:
		h.Log.Error("unexpected error", zap.Error(err))
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RegisterUser handles user registration
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		CompanyID int64  `json:"company_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}
	if req.CompanyID == 0 {
		req.CompanyID = 1
	}

	ctx := r.Context()
	existingUser, err := h.Repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if existingUser != nil {
		http.Error(w, "Email already registered", http.StatusConflict)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	userID, err := h.Repo.CreateUser(ctx, &models.User{
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		CompanyID:    req.CompanyID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	token, err := middleware.GenerateToken(userID, h.JWTSecret)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	middleware.SetAuthCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

// LoginUser handles user login
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.Repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if user == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := middleware.GenerateToken(user.ID, h.JWTSecret)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	middleware.SetAuthCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

// GetBalance returns the user's balance counters and resolved level.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, level, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, struct {
		Points            int64   `json:"points"`
		TotalPointsEarned int64   `json:"total_points_earned"`
		TotalPointsSpent  int64   `json:"total_points_spent"`
		Level             int     `json:"level"`
		LevelLabel        string  `json:"level_label"`
		Multiplier        float64 `json:"multiplier"`
	}{
		Points:            user.Points,
		TotalPointsEarned: user.TotalPointsEarned,
		TotalPointsSpent:  user.TotalPointsSpent,
		Level:             level.Level,
		LevelLabel:        level.Label,
		Multiplier:        level.Multiplier,
	})
}

// GetTransactions returns the user's ledger history
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, txs)
}

// GetOrders returns the list of user's orders
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.Repo.GetUserOrders(r.Context(), userID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, orders)
}

// ListProducts returns the active catalog for a company
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		http.Error(w, "company_id query parameter is required", http.StatusBadRequest)
		return
	}

	products, err := h.Repo.ListProducts(r.Context(), companyID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, products)
}

// CheckoutOrder fulfills a cart. Authenticated callers are resolved from the
// token; anonymous callers must supply an email and are auto-provisioned.
func (h *Handler) CheckoutOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if userID, ok := middleware.GetUserID(r.Context()); ok {
		req.UserID = userID
	}
	if req.CompanyID == 0 {
		req.CompanyID = 1
	}

	order, err := h.Checkout.Checkout(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// CreateProduct adds a catalog item; optionally generates the default
// quantity price tiers from its base price.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID     int64           `json:"company_id"`
		Name          string          `json:"name"`
		Price         decimal.Decimal `json:"price"`
		PointsCost    int64           `json:"points_cost"`
		StockQuantity int             `json:"stock_quantity"`
		StockTracked  bool            `json:"stock_tracked"`
		IsActive      bool            `json:"is_active"`
		AutoTiers     bool            `json:"auto_tiers"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.CompanyID <= 0 {
		http.Error(w, "Name and company_id are required", http.StatusBadRequest)
		return
	}
	if req.StockQuantity < 0 || req.PointsCost < 0 || req.Price.IsNegative() {
		http.Error(w, "Price, points cost and stock must be non-negative", http.StatusBadRequest)
		return
	}

	product := &models.Product{
		CompanyID:     req.CompanyID,
		Name:          req.Name,
		Price:         req.Price,
		PointsCost:    req.PointsCost,
		StockQuantity: req.StockQuantity,
		StockTracked:  req.StockTracked,
		IsActive:      req.IsActive,
		CreatedAt:     time.Now(),
	}

	ctx := r.Context()
	id, err := h.Repo.CreateProduct(ctx, product)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	product.ID = id

	if req.AutoTiers {
		tiers := service.GenerateTiers(product.Price)
		if err := h.Repo.SavePriceTiers(ctx, id, tiers); err != nil {
			http.Error(w, "Server error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(product)
}

// SavePriceTiers replaces a product's quantity price tiers. Overlapping or
// gapped tiers block the save.
func (h *Handler) SavePriceTiers(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	var tiers []models.PriceTier
	if err := json.NewDecoder(r.Body).Decode(&tiers); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := service.ValidatePriceTiers(tiers); err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	product, err := h.Repo.GetProductByID(ctx, productID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if product == nil {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	if err := h.Repo.SavePriceTiers(ctx, productID, tiers); err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, tiers)
}

// GeneratePriceTiers derives and saves the default tier ladder from the
// product's base price.
func (h *Handler) GeneratePriceTiers(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	product, err := h.Repo.GetProductByID(ctx, productID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if product == nil {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	tiers := service.GenerateTiers(product.Price)
	if err := h.Repo.SavePriceTiers(ctx, productID, tiers); err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, tiers)
}

// GetLevels returns a company's level configuration
func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		http.Error(w, "company_id query parameter is required", http.StatusBadRequest)
		return
	}

	config, err := h.Repo.GetLevelConfig(r.Context(), companyID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, config)
}

// SaveLevels replaces a company's level configuration. Tiers are sorted
// ascending by threshold before validation, preserving authored order on
// equal thresholds.
func (h *Handler) SaveLevels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID int64              `json:"company_id"`
		Tiers     []models.LevelTier `json:"tiers"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.CompanyID <= 0 {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}

	service.SortLevelConfig(req.Tiers)
	if err := service.ValidateLevelConfig(req.Tiers); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.Repo.SaveLevelConfig(r.Context(), req.CompanyID, req.Tiers); err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, req.Tiers)
}

// CreditPoints grants points to a user. With apply_multiplier set, the
// amount is boosted by the user's current level multiplier before the
// credit, since the ledger itself never applies multipliers.
func (h *Handler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          int64  `json:"user_id"`
		Amount          int64  `json:"amount"`
		Reason          string `json:"reason"`
		ApplyMultiplier bool   `json:"apply_multiplier"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	amount := req.Amount
	if req.ApplyMultiplier {
		_, level, err := h.Ledger.Balance(ctx, req.UserID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if level.Multiplier > 0 {
			amount = int64(math.Round(float64(amount) * level.Multiplier))
		}
	}

	tx, err := h.Ledger.Credit(ctx, req.UserID, amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}
