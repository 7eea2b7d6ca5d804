package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/perkhub/perkstore/internal/perkstore/models"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development. A single mutex serializes all access; Atomically snapshots
// the state and restores it when fn fails, so a failed unit of work leaves
// no partial writes behind.
type MemoryRepository struct {
	mu    sync.Mutex
	state memState
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*memState)(nil)
)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

func (m *MemoryRepository) InitDB(databaseURI string) error { return nil }
func (m *MemoryRepository) Close() error                    { return nil }

func (m *MemoryRepository) Atomically(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateUser(ctx, user)
}

func (m *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetUserByEmail(ctx, email)
}

func (m *MemoryRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetUserByID(ctx, id)
}

func (m *MemoryRepository) UpdateUserPoints(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateUserPoints(ctx, user)
}

func (m *MemoryRepository) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateProduct(ctx, p)
}

func (m *MemoryRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetProductByID(ctx, id)
}

func (m *MemoryRepository) ListProducts(ctx context.Context, companyID int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListProducts(ctx, companyID)
}

func (m *MemoryRepository) UpdateProductStock(ctx context.Context, productID int64, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateProductStock(ctx, productID, stock)
}

func (m *MemoryRepository) GetPriceTiers(ctx context.Context, productID int64) ([]models.PriceTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetPriceTiers(ctx, productID)
}

func (m *MemoryRepository) SavePriceTiers(ctx context.Context, productID int64, tiers []models.PriceTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SavePriceTiers(ctx, productID, tiers)
}

func (m *MemoryRepository) GetLevelConfig(ctx context.Context, companyID int64) ([]models.LevelTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetLevelConfig(ctx, companyID)
}

func (m *MemoryRepository) SaveLevelConfig(ctx context.Context, companyID int64, tiers []models.LevelTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveLevelConfig(ctx, companyID, tiers)
}

func (m *MemoryRepository) CreateTransaction(ctx context.Context, tx *models.PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateTransaction(ctx, tx)
}

func (m *MemoryRepository) GetUserTransactions(ctx context.Context, userID int64) ([]models.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetUserTransactions(ctx, userID)
}

func (m *MemoryRepository) CreateOrder(ctx context.Context, order *models.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateOrder(ctx, order)
}

func (m *MemoryRepository) GetUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetUserOrders(ctx, userID)
}

// memState holds the data and implements Repository without locking.
// It is only ever reached through MemoryRepository, which owns the mutex.
type memState struct {
	users        map[int64]models.User
	usersByEmail map[string]int64
	products     map[int64]models.Product
	priceTiers   map[int64][]models.PriceTier
	levelConfig  map[int64][]models.LevelTier
	transactions map[int64][]models.PointsTransaction
	orders       map[int64][]models.Order

	nextUserID    int64
	nextProductID int64
	nextOrderID   int64
}

func newMemState() memState {
	return memState{
		users:        make(map[int64]models.User),
		usersByEmail: make(map[string]int64),
		products:     make(map[int64]models.Product),
		priceTiers:   make(map[int64][]models.PriceTier),
		levelConfig:  make(map[int64][]models.LevelTier),
		transactions: make(map[int64][]models.PointsTransaction),
		orders:       make(map[int64][]models.Order),
	}
}

func (s *memState) clone() memState {
	c := newMemState()
	c.nextUserID = s.nextUserID
	c.nextProductID = s.nextProductID
	c.nextOrderID = s.nextOrderID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usersByEmail {
		c.usersByEmail[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.priceTiers {
		c.priceTiers[k] = append([]models.PriceTier(nil), v...)
	}
	for k, v := range s.levelConfig {
		c.levelConfig[k] = append([]models.LevelTier(nil), v...)
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]models.PointsTransaction(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = append([]models.Order(nil), v...)
	}
	return c
}

func (s *memState) InitDB(databaseURI string) error { return nil }
func (s *memState) Close() error                    { return nil }

// Atomically on a state already inside a unit of work just runs fn.
func (s *memState) Atomically(ctx context.Context, fn func(Repository) error) error {
	return fn(s)
}

func (s *memState) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	email := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return 0, &models.ValidationError{Msg: "email already registered"}
	}
	s.nextUserID++
	u := *user
	u.ID = s.nextUserID
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u.ID, nil
}

func (s *memState) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *memState) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memState) UpdateUserPoints(ctx context.Context, user *models.User) error {
	u, ok := s.users[user.ID]
	if !ok {
		return &models.ValidationError{Msg: "user not found"}
	}
	u.Points = user.Points
	u.TotalPointsEarned = user.TotalPointsEarned
	u.TotalPointsSpent = user.TotalPointsSpent
	u.Level = user.Level
	s.users[user.ID] = u
	return nil
}

func (s *memState) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	s.nextProductID++
	cp := *p
	cp.ID = s.nextProductID
	s.products[cp.ID] = cp
	return cp.ID, nil
}

func (s *memState) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memState) ListProducts(ctx context.Context, companyID int64) ([]models.Product, error) {
	var products []models.Product
	for id := int64(1); id <= s.nextProductID; id++ {
		if p, ok := s.products[id]; ok && p.CompanyID == companyID && p.IsActive {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *memState) UpdateProductStock(ctx context.Context, productID int64, stock int) error {
	p, ok := s.products[productID]
	if !ok {
		return &models.ValidationError{Msg: "product not found"}
	}
	p.StockQuantity = stock
	s.products[productID] = p
	return nil
}

func (s *memState) GetPriceTiers(ctx context.Context, productID int64) ([]models.PriceTier, error) {
	return append([]models.PriceTier(nil), s.priceTiers[productID]...), nil
}

func (s *memState) SavePriceTiers(ctx context.Context, productID int64, tiers []models.PriceTier) error {
	s.priceTiers[productID] = append([]models.PriceTier(nil), tiers...)
	return nil
}

func (s *memState) GetLevelConfig(ctx context.Context, companyID int64) ([]models.LevelTier, error) {
	return append([]models.LevelTier(nil), s.levelConfig[companyID]...), nil
}

func (s *memState) SaveLevelConfig(ctx context.Context, companyID int64, tiers []models.LevelTier) error {
	s.levelConfig[companyID] = append([]models.LevelTier(nil), tiers...)
	return nil
}

func (s *memState) CreateTransaction(ctx context.Context, tx *models.PointsTransaction) error {
	s.transactions[tx.UserID] = append(s.transactions[tx.UserID], *tx)
	return nil
}

func (s *memState) GetUserTransactions(ctx context.Context, userID int64) ([]models.PointsTransaction, error) {
	txs := append([]models.PointsTransaction(nil), s.transactions[userID]...)
	// newest first, matching the Postgres ordering
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

func (s *memState) CreateOrder(ctx context.Context, order *models.Order) (int64, error) {
	s.nextOrderID++
	o := *order
	o.ID = s.nextOrderID
	o.LineItems = append([]models.LineItem(nil), order.LineItems...)
	s.orders[o.UserID] = append(s.orders[o.UserID], o)
	return o.ID, nil
}

func (s *memState) GetUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := append([]models.Order(nil), s.orders[userID]...)
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
	return orders, nil
}
