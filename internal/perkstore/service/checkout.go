package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/perkhub/perkstore/internal/perkstore/repository"
	"github.com/perkhub/perkstore/internal/perkstore/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notifier delivers best-effort events to external collaborators (UI
// celebration, audit trail). No delivery guarantee; a failed emit never
// rolls back the operation that produced it.
type Notifier interface {
	Emit(event string, payload map[string]interface{})
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Emit(event string, payload map[string]interface{}) {}

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CheckoutRequest describes a cart to fulfill. UserID is set for
// authenticated checkouts; otherwise Email resolves or provisions the user.
type CheckoutRequest struct {
	UserID          int64          `json:"-"`
	Email           string         `json:"email"`
	CompanyID       int64          `json:"company_id"`
	Items           []CheckoutItem `json:"items"`
	PaymentMode     string         `json:"payment_mode"`
	ShippingAddress string         `json:"shipping_address"`
}

// Checkout turns a validated cart into a stock decrement, a points debit
// (when points-funded) and an immutable order record, all inside one unit of
// work. Any failure before commit leaves no observable effect.
type Checkout struct {
	repo         repository.Repository
	ledger       *Ledger
	notifier     Notifier
	welcomeGrant int64
	timeout      time.Duration
	log          *zap.Logger
}

// NewCheckout creates the order fulfillment orchestrator. welcomeGrant is
// the fixed number of points credited to users auto-provisioned during an
// unauthenticated checkout; zero disables the grant.
func NewCheckout(repo repository.Repository, ledger *Ledger, notifier Notifier, welcomeGrant int64, timeout time.Duration, log *zap.Logger) *Checkout {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checkout{
		repo:         repo,
		ledger:       ledger,
		notifier:     notifier,
		welcomeGrant: welcomeGrant,
		timeout:      timeout,
		log:          log,
	}
}

// Checkout fulfills the cart. Validation failures (bad input, insufficient
// stock or balance) abort with zero side effects; persistence failures abort
// the attempt and are surfaced so the caller may retry the whole checkout.
func (c *Checkout) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var order *models.Order
	err := c.repo.Atomically(ctx, func(r repository.Repository) error {
		user, err := c.resolveUser(ctx, r, req)
		if err != nil {
			return err
		}

		lines, totalPoints, totalMoney, err := c.priceCart(ctx, r, req)
		if err != nil {
			return err
		}

		if req.PaymentMode == models.PaymentPoints && user.Points < totalPoints {
			return &models.InsufficientBalanceError{Required: totalPoints, Available: user.Points}
		}

		if err := c.decrementStock(ctx, r, req.Items); err != nil {
			return err
		}

		if req.PaymentMode == models.PaymentPoints {
			if _, err := c.ledger.DebitTx(ctx, r, user.ID, totalPoints, "order purchase"); err != nil {
				return err
			}
		}

		order = buildOrder(user.ID, req.PaymentMode, lines, totalPoints, totalMoney)
		id, err := r.CreateOrder(ctx, order)
		if err != nil {
			return &models.PersistenceError{Op: "create order", Err: err}
		}
		order.ID = id

		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.PersistenceError{Op: "checkout transaction", Err: err}
		}
		return nil, err
	}

	// Best-effort; the order is already committed.
	c.notifier.Emit("order.completed", map[string]interface{}{
		"order_id":         order.ID,
		"order_number":     order.Number,
		"user_id":          order.UserID,
		"paid_with_points": order.PaidWithPoints,
		"paid_with_money":  order.PaidWithMoney.String(),
		"state":            order.State,
	})

	c.log.Info("checkout complete",
		zap.String("order_number", order.Number),
		zap.Int64("user_id", order.UserID),
		zap.String("payment_mode", req.PaymentMode),
	)

	return order, nil
}

func validateRequest(req CheckoutRequest) error {
	if req.PaymentMode != models.PaymentPoints && req.PaymentMode != models.PaymentCurrency {
		return models.NewValidationError("payment mode must be %q or %q", models.PaymentPoints, models.PaymentCurrency)
	}
	if len(req.Items) == 0 {
		return &models.ValidationError{Msg: "cart is empty"}
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return models.NewValidationError("quantity must be a positive integer, got %d", item.Quantity)
		}
		if seen[item.ProductID] {
			return models.NewValidationError("product %d appears more than once in the cart", item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

// resolveUser finds the checkout user, provisioning one by email when the
// request is unauthenticated. New users get the fixed welcome grant through
// the ledger so the credit leaves a transaction record.
func (c *Checkout) resolveUser(ctx context.Context, r repository.Repository, req CheckoutRequest) (*models.User, error) {
	if req.UserID != 0 {
		user, err := r.GetUserByID(ctx, req.UserID)
		if err != nil {
			return nil, &models.PersistenceError{Op: "get user", Err: err}
		}
		if user == nil {
			return nil, models.NewValidationError("user %d not found", req.UserID)
		}
		return user, nil
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return nil, &models.ValidationError{Msg: "email is required for unauthenticated checkout"}
	}

	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, &models.PersistenceError{Op: "get user by email", Err: err}
	}
	if user != nil {
		return user, nil
	}

	newUser := &models.User{
		Email:     email,
		CompanyID: req.CompanyID,
		CreatedAt: time.Now(),
	}
	id, err := r.CreateUser(ctx, newUser)
	if err != nil {
		return nil, &models.PersistenceError{Op: "create user", Err: err}
	}
	newUser.ID = id

	if c.welcomeGrant > 0 {
		if _, err := c.ledger.CreditTx(ctx, r, id, c.welcomeGrant, "welcome grant"); err != nil {
			return nil, err
		}
		return r.GetUserByID(ctx, id)
	}

	return newUser, nil
}

// priceCart validates stock for every line and computes the cart total in
// the requested payment mode. All-or-nothing: one short line fails the whole
// cart before any stock is touched.
func (c *Checkout) priceCart(ctx context.Context, r repository.Repository, req CheckoutRequest) ([]models.LineItem, int64, decimal.Decimal, error) {
	var (
		lines       []models.LineItem
		totalPoints int64
		totalMoney  decimal.Decimal
	)

	for _, item := range req.Items {
		p, err := r.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, 0, decimal.Zero, &models.PersistenceError{Op: "get product", Err: err}
		}
		if p == nil || !p.IsActive {
			return nil, 0, decimal.Zero, models.NewValidationError("product %d is not available", item.ProductID)
		}

		if p.StockTracked && item.Quantity > p.StockQuantity {
			return nil, 0, decimal.Zero, &models.InsufficientStockError{
				ProductID: p.ID,
				Product:   p.Name,
				Requested: item.Quantity,
				Available: p.StockQuantity,
			}
		}

		line := models.LineItem{ProductID: p.ID, Quantity: item.Quantity}
		switch req.PaymentMode {
		case models.PaymentPoints:
			line.UnitPoints = p.PointsCost
			line.LinePoints = p.PointsCost * int64(item.Quantity)
			totalPoints += line.LinePoints
		case models.PaymentCurrency:
			unit := p.Price
			tiers, err := r.GetPriceTiers(ctx, p.ID)
			if err != nil {
				return nil, 0, decimal.Zero, &models.PersistenceError{Op: "get price tiers", Err: err}
			}
			if len(tiers) > 0 {
				tier, err := ResolvePrice(item.Quantity, tiers)
				if err != nil {
					return nil, 0, decimal.Zero, err
				}
				unit = tier.Price
			}
			line.UnitPrice = unit
			line.LineTotal = unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
			totalMoney = totalMoney.Add(line.LineTotal)
		}
		lines = append(lines, line)
	}

	return lines, totalPoints, totalMoney, nil
}

func (c *Checkout) decrementStock(ctx context.Context, r repository.Repository, items []CheckoutItem) error {
	for _, item := range items {
		p, err := r.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return &models.PersistenceError{Op: "get product", Err: err}
		}
		if !p.StockTracked {
			continue
		}
		if err := r.UpdateProductStock(ctx, p.ID, p.StockQuantity-item.Quantity); err != nil {
			return &models.PersistenceError{Op: "update stock", Err: err}
		}
	}
	return nil
}

// buildOrder freezes line items and totals as computed at pricing time.
// ItemTotal and Total carry the cart total in the chosen payment mode.
func buildOrder(userID int64, paymentMode string, lines []models.LineItem, totalPoints int64, totalMoney decimal.Decimal) *models.Order {
	order := &models.Order{
		Number:    utils.OrderNumber(),
		UserID:    userID,
		LineItems: lines,
		State:     models.OrderStateComplete,
		CreatedAt: time.Now(),
	}
	if paymentMode == models.PaymentPoints {
		order.ItemTotal = decimal.NewFromInt(totalPoints)
		order.Total = decimal.NewFromInt(totalPoints)
		order.PaidWithPoints = totalPoints
		order.PaidWithMoney = decimal.Zero
	} else {
		order.ItemTotal = totalMoney
		order.Total = totalMoney
		order.PaidWithPoints = 0
		order.PaidWithMoney = totalMoney
	}
	return order
}
