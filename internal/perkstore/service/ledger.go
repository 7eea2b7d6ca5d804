package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/perkhub/perkstore/internal/perkstore/repository"
	"go.uber.org/zap"
)

// Ledger applies credits and debits to user balances. Every successful
// operation appends an immutable PointsTransaction and updates the balance
// counters in the same unit of work, so the log and the balance cannot
// diverge. Credits also re-resolve the user's level, since only the
// lifetime-earned counter moves it.
type Ledger struct {
	repo repository.Repository
	log  *zap.Logger
}

// NewLedger creates a new ledger engine
func NewLedger(repo repository.Repository, log *zap.Logger) *Ledger {
	return &Ledger{repo: repo, log: log}
}

// Credit adds points to a user's balance in its own unit of work.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, reason string) (*models.PointsTransaction, error) {
	var tx *models.PointsTransaction
	err := l.repo.Atomically(ctx, func(r repository.Repository) error {
		var err error
		tx, err = l.CreditTx(ctx, r, userID, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Debit removes points from a user's balance in its own unit of work.
func (l *Ledger) Debit(ctx context.Context, userID, amount int64, reason string) (*models.PointsTransaction, error) {
	var tx *models.PointsTransaction
	err := l.repo.Atomically(ctx, func(r repository.Repository) error {
		var err error
		tx, err = l.DebitTx(ctx, r, userID, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CreditTx applies a credit against a transaction-bound Repository, so a
// caller (checkout, welcome grant) can fold it into a larger unit of work.
func (l *Ledger) CreditTx(ctx context.Context, r repository.Repository, userID, amount int64, reason string) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, models.NewValidationError("credit amount must be a positive integer, got %d", amount)
	}

	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "get user", Err: err}
	}
	if user == nil {
		return nil, models.NewValidationError("user %d not found", userID)
	}

	user.Points += amount
	user.TotalPointsEarned += amount

	// Lifetime earned moved, so the cached level may move too.
	config, err := r.GetLevelConfig(ctx, user.CompanyID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "get level config", Err: err}
	}
	if len(config) > 0 {
		user.Level = ResolveLevel(user.TotalPointsEarned, config).Level
	}

	return l.record(ctx, r, user, models.TxCredit, amount, reason)
}

// DebitTx applies a debit against a transaction-bound Repository. A debit
// that exceeds the balance fails with InsufficientBalanceError and mutates
// nothing.
func (l *Ledger) DebitTx(ctx context.Context, r repository.Repository, userID, amount int64, reason string) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, models.NewValidationError("debit amount must be a positive integer, got %d", amount)
	}

	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "get user", Err: err}
	}
	if user == nil {
		return nil, models.NewValidationError("user %d not found", userID)
	}

	if user.Points < amount {
		return nil, &models.InsufficientBalanceError{Required: amount, Available: user.Points}
	}

	user.Points -= amount
	user.TotalPointsSpent += amount

	return l.record(ctx, r, user, models.TxDebit, amount, reason)
}

func (l *Ledger) record(ctx context.Context, r repository.Repository, user *models.User, txType string, amount int64, reason string) (*models.PointsTransaction, error) {
	tx := &models.PointsTransaction{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Type:      txType,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now(),
	}

	if err := r.CreateTransaction(ctx, tx); err != nil {
		return nil, &models.PersistenceError{Op: "append transaction", Err: err}
	}
	if err := r.UpdateUserPoints(ctx, user); err != nil {
		return nil, &models.PersistenceError{Op: "update balance", Err: err}
	}

	l.log.Debug("ledger entry recorded",
		zap.Int64("user_id", user.ID),
		zap.String("type", txType),
		zap.Int64("amount", amount),
		zap.Int64("balance", user.Points),
	)

	return tx, nil
}

// Balance returns the user's current balance counters and resolved level.
func (l *Ledger) Balance(ctx context.Context, userID int64) (*models.User, models.LevelTier, error) {
	user, err := l.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, models.LevelTier{}, &models.PersistenceError{Op: "get user", Err: err}
	}
	if user == nil {
		return nil, models.LevelTier{}, models.NewValidationError("user %d not found", userID)
	}

	config, err := l.repo.GetLevelConfig(ctx, user.CompanyID)
	if err != nil {
		return nil, models.LevelTier{}, &models.PersistenceError{Op: "get level config", Err: err}
	}

	return user, ResolveLevel(user.TotalPointsEarned, config), nil
}

// Transactions returns the user's ledger history, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID int64) ([]models.PointsTransaction, error) {
	txs, err := l.repo.GetUserTransactions(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list transactions", Err: err}
	}
	return txs, nil
}
