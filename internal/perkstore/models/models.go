package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a storefront member. Points is the spendable balance;
// TotalPointsEarned only ever grows, so the cached Level never regresses.
// Invariant: Points == TotalPointsEarned - TotalPointsSpent.
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	CompanyID         int64     `json:"company_id"`
	Points            int64     `json:"points"`
	TotalPointsEarned int64     `json:"total_points_earned"`
	TotalPointsSpent  int64     `json:"total_points_spent"`
	Level             int       `json:"level"`
	CreatedAt         time.Time `json:"created_at"`
}

// PointsTransaction is an immutable ledger record. Never updated or deleted;
// the transaction log is what a user's balance must reconcile against.
type PointsTransaction struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transaction types
const (
	TxCredit = "credit"
	TxDebit  = "debit"
)

// LevelTier is one row of a company's level configuration,
// kept sorted ascending by MinPoints.
type LevelTier struct {
	Level      int     `json:"level"`
	MinPoints  int64   `json:"minPoints"`
	Multiplier float64 `json:"multiplier"`
	Color      string  `json:"color"`
	Label      string  `json:"label"`
}

// Product is a catalog item. StockQuantity stays non-negative and is
// decremented only by completed orders.
type Product struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PointsCost    int64           `json:"points_cost"`
	StockQuantity int             `json:"stock_quantity"`
	StockTracked  bool            `json:"stock_tracked"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PriceTier maps a quantity range to a unit price. The tiers of a product
// partition [1, inf); MaxQuantity == nil marks the open-ended top tier.
type PriceTier struct {
	MinQuantity int             `json:"minQuantity"`
	MaxQuantity *int            `json:"maxQuantity"`
	Price       decimal.Decimal `json:"price"`
	Discount    int             `json:"discount"`
}

// LineItem is a frozen order line. Prices and totals are captured at
// checkout time and never recomputed.
type LineItem struct {
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	UnitPoints int64           `json:"unit_points"`
	LineTotal  decimal.Decimal `json:"line_total"`
	LinePoints int64           `json:"line_points"`
}

// Order is created only after stock and balance checks pass. Line items and
// totals are immutable once the order is complete; only State may move.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	UserID         int64           `json:"userId"`
	LineItems      []LineItem      `json:"lineItems"`
	ItemTotal      decimal.Decimal `json:"itemTotal"`
	Total          decimal.Decimal `json:"total"`
	PaidWithPoints int64           `json:"paidWithPoints"`
	PaidWithMoney  decimal.Decimal `json:"paidWithMoney"`
	State          string          `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Order states
const (
	OrderStateCart     = "cart"
	OrderStatePending  = "pending"
	OrderStateComplete = "complete"
	OrderStateCanceled = "canceled"
	OrderStateReturned = "returned"
)

// Payment modes. A cart is funded entirely by one of the two, never both.
const (
	PaymentPoints   = "points"
	PaymentCurrency = "currency"
)
