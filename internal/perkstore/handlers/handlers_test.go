package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/perkhub/perkstore/internal/perkstore/middleware"
	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/perkhub/perkstore/internal/perkstore/repository"
	"github.com/perkhub/perkstore/internal/perkstore/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fixture struct {
	repo   *repository.MemoryRepository
	ledger *service.Ledger
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repository.NewMemoryRepository()
	log := zap.NewNop()
	ledger := service.NewLedger(repo, log)
	checkout := service.NewCheckout(repo, ledger, service.NopNotifier{}, 0, time.Second, log)
	h := NewHandler(repo, ledger, checkout, testSecret, log)

	auth := &middleware.Authenticator{SecretKey: testSecret, Repo: repo}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.RegisterUser)
		r.Post("/user/login", h.LoginUser)
		r.Get("/products", h.ListProducts)
		r.Get("/levels", h.GetLevels)

		r.Group(func(r chi.Router) {
			r.Use(auth.Optional)
			r.Post("/checkout", h.CheckoutOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Get("/user/balance", h.GetBalance)
			r.Get("/user/transactions", h.GetTransactions)
			r.Get("/user/orders", h.GetOrders)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}/tiers", h.SavePriceTiers)
				r.Post("/products/{id}/tiers/auto", h.GeneratePriceTiers)
				r.Put("/levels", h.SaveLevels)
				r.Post("/credit", h.CreditPoints)
			})
		})
	})

	require.NoError(t, repo.SaveLevelConfig(context.Background(), 1, []models.LevelTier{
		{Level: 1, MinPoints: 0, Multiplier: 1.0, Label: "bronze"},
		{Level: 2, MinPoints: 5000, Multiplier: 1.25, Label: "silver"},
	}))

	return &fixture{repo: repo, ledger: ledger, router: r}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/user/register", "", map[string]interface{}{
		"email":    email,
		"password": "hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := w.Header().Get("Authorization")
	require.NotEmpty(t, token)
	return token[len("Bearer "):]
}

func (f *fixture) addProduct(t *testing.T, name string, price string, pointsCost int64, stock int) int64 {
	t.Helper()
	id, err := f.repo.CreateProduct(context.Background(), &models.Product{
		CompanyID:     1,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		PointsCost:    pointsCost,
		StockQuantity: stock,
		StockTracked:  true,
		IsActive:      true,
	})
	require.NoError(t, err)
	return id
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	f.register(t, "user@example.com")

	// duplicate registration
	w := f.do(t, http.MethodPost, "/api/user/register", "", map[string]interface{}{
		"email":    "user@example.com",
		"password": "hunter2",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// good login
	w = f.do(t, http.MethodPost, "/api/user/login", "", map[string]interface{}{
		"email":    "user@example.com",
		"password": "hunter2",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// wrong password
	w = f.do(t, http.MethodPost, "/api/user/login", "", map[string]interface{}{
		"email":    "user@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBalanceRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/user/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBalanceAndCredit(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "user@example.com")

	user, err := f.repo.GetUserByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/admin/credit", token, map[string]interface{}{
		"user_id": user.ID,
		"amount":  6000,
		"reason":  "quarterly award",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/user/balance", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Points     int64   `json:"points"`
		Level      int     `json:"level"`
		LevelLabel string  `json:"level_label"`
		Multiplier float64 `json:"multiplier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(6000), resp.Points)
	assert.Equal(t, "silver", resp.LevelLabel)
	assert.Equal(t, 1.25, resp.Multiplier)
}

func TestCreditWithMultiplier(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "user@example.com")

	user, err := f.repo.GetUserByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)

	// get to silver first (multiplier 1.25)
	w := f.do(t, http.MethodPost, "/api/admin/credit", token, map[string]interface{}{
		"user_id": user.ID,
		"amount":  5000,
		"reason":  "grant",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/credit", token, map[string]interface{}{
		"user_id":          user.ID,
		"amount":           100,
		"reason":           "boosted grant",
		"apply_multiplier": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var tx models.PointsTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, int64(125), tx.Amount, "multiplier applied before the credit, not inside the ledger")
}

func TestCheckoutEndpoint(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "buyer@example.com")
	mugID := f.addProduct(t, "Mug", "100.00", 100, 10)

	user, err := f.repo.GetUserByEmail(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	_, err = f.ledger.Credit(context.Background(), user.ID, 500, "grant")
	require.NoError(t, err)

	// insufficient balance: 7 * 100 > 500
	w := f.do(t, http.MethodPost, "/api/checkout", token, map[string]interface{}{
		"payment_mode": "points",
		"items":        []map[string]interface{}{{"product_id": mugID, "quantity": 7}},
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "required 700")
	assert.Contains(t, w.Body.String(), "available 500")

	// insufficient stock
	w = f.do(t, http.MethodPost, "/api/checkout", token, map[string]interface{}{
		"payment_mode": "points",
		"items":        []map[string]interface{}{{"product_id": mugID, "quantity": 11}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// bad payment mode
	w = f.do(t, http.MethodPost, "/api/checkout", token, map[string]interface{}{
		"payment_mode": "both",
		"items":        []map[string]interface{}{{"product_id": mugID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// success
	w = f.do(t, http.MethodPost, "/api/checkout", token, map[string]interface{}{
		"payment_mode": "points",
		"items":        []map[string]interface{}{{"product_id": mugID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStateComplete, order.State)
	assert.Equal(t, int64(300), order.PaidWithPoints)

	// orders endpoint sees it
	w = f.do(t, http.MethodGet, "/api/user/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// transactions endpoint has the debit
	w = f.do(t, http.MethodGet, "/api/user/transactions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var txs []models.PointsTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txs))
	require.NotEmpty(t, txs)
	assert.Equal(t, models.TxDebit, txs[0].Type)
}

func TestSavePriceTiersValidation(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "admin@example.com")
	mugID := f.addProduct(t, "Mug", "100.00", 100, 10)

	// overlapping tiers are rejected at save time
	w := f.do(t, http.MethodPut, "/api/admin/products/1/tiers", token, []map[string]interface{}{
		{"minQuantity": 1, "maxQuantity": 10, "price": "100", "discount": 0},
		{"minQuantity": 10, "maxQuantity": nil, "price": "90", "discount": 10},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// valid partition saves
	w = f.do(t, http.MethodPut, "/api/admin/products/1/tiers", token, []map[string]interface{}{
		{"minQuantity": 1, "maxQuantity": 9, "price": "100", "discount": 0},
		{"minQuantity": 10, "maxQuantity": nil, "price": "90", "discount": 10},
	})
	require.Equal(t, http.StatusOK, w.Code)

	tiers, err := f.repo.GetPriceTiers(context.Background(), mugID)
	require.NoError(t, err)
	assert.Len(t, tiers, 2)
}

func TestGenerateTiersEndpoint(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "admin@example.com")
	mugID := f.addProduct(t, "Mug", "19.99", 100, 10)

	w := f.do(t, http.MethodPost, "/api/admin/products/1/tiers/auto", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	tiers, err := f.repo.GetPriceTiers(context.Background(), mugID)
	require.NoError(t, err)
	require.Len(t, tiers, 6)
	assert.Equal(t, 25, tiers[5].Discount)
}

func TestSaveLevelsValidation(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "admin@example.com")

	// first tier must start at zero
	w := f.do(t, http.MethodPut, "/api/admin/levels", token, map[string]interface{}{
		"company_id": 1,
		"tiers": []map[string]interface{}{
			{"level": 1, "minPoints": 100, "multiplier": 1.0, "label": "bronze"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPut, "/api/admin/levels", token, map[string]interface{}{
		"company_id": 1,
		"tiers": []map[string]interface{}{
			{"level": 2, "minPoints": 1000, "multiplier": 1.5, "label": "gold"},
			{"level": 1, "minPoints": 0, "multiplier": 1.0, "label": "bronze"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, "unsorted input is sorted before validation")

	config, err := f.repo.GetLevelConfig(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, config, 2)
	assert.Equal(t, "bronze", config[0].Label)
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "Mug", "10.00", 50, 5)

	w := f.do(t, http.MethodGet, "/api/products?company_id=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var products []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Mug", products[0].Name)

	// missing company_id
	w = f.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
