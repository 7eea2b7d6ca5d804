package repository

import (
	"context"

	"github.com/perkhub/perkstore/internal/perkstore/models"
)

// Repository defines the interface for data access operations.
//
// Atomically runs fn against a Repository bound to a single unit of work:
// either every write inside fn is persisted or none is. Inside a unit of
// work, user and product reads lock the row for the duration of the
// transaction, so two concurrent checkouts cannot race on the same stock
// counter or balance. Calling Atomically on an already transaction-bound
// Repository joins the ongoing unit of work.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserPoints(ctx context.Context, user *models.User) error

	// Catalog operations
	CreateProduct(ctx context.Context, p *models.Product) (int64, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, companyID int64) ([]models.Product, error)
	UpdateProductStock(ctx context.Context, productID int64, stock int) error

	// Price tier operations
	GetPriceTiers(ctx context.Context, productID int64) ([]models.PriceTier, error)
	SavePriceTiers(ctx context.Context, productID int64, tiers []models.PriceTier) error

	// Level configuration operations
	GetLevelConfig(ctx context.Context, companyID int64) ([]models.LevelTier, error)
	SaveLevelConfig(ctx context.Context, companyID int64, tiers []models.LevelTier) error

	// Ledger operations
	CreateTransaction(ctx context.Context, tx *models.PointsTransaction) error
	GetUserTransactions(ctx context.Context, userID int64) ([]models.PointsTransaction, error)

	// Order operations
	CreateOrder(ctx context.Context, order *models.Order) (int64, error)
	GetUserOrders(ctx context.Context, userID int64) ([]models.Order, error)

	// Transactional boundary
	Atomically(ctx context.Context, fn func(Repository) error) error

	// Initialize and close
	InitDB(databaseURI string) error
	Close() error
}
