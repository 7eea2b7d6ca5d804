package repository

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/perkhub/perkstore/internal/perkstore/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresRepository implements Repository using PostgreSQL.
// A transaction-bound copy carries a non-nil tx.
type PostgresRepository struct {
	db *sql.DB
	tx *sql.Tx
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// InitDB initializes the database connection and schema
func (r *PostgresRepository) InitDB(databaseURI string) error {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	r.db = db

	if err := r.createTables(); err != nil {
		db.Close()
		return err
	}

	return nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PostgresRepository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// lock returns a row-locking clause for reads that happen inside a unit of
// work. Plain reads (balance display, catalog listing) take no locks.
func (r *PostgresRepository) lock() string {
	if r.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}

// Atomically runs fn inside a database transaction. On a transaction-bound
// repository it joins the open transaction instead of nesting.
func (r *PostgresRepository) Atomically(ctx context.Context, fn func(Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &PostgresRepository{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// createTables creates the necessary tables if they don't exist
func (r *PostgresRepository) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			company_id BIGINT NOT NULL DEFAULT 1,
			points BIGINT NOT NULL DEFAULT 0,
			total_points_earned BIGINT NOT NULL DEFAULT 0,
			total_points_spent BIGINT NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			company_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			points_cost BIGINT NOT NULL DEFAULT 0,
			stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
			stock_tracked BOOLEAN NOT NULL DEFAULT TRUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_tiers (
			id SERIAL PRIMARY KEY,
			product_id INTEGER REFERENCES products(id) ON DELETE CASCADE,
			min_quantity INTEGER NOT NULL,
			max_quantity INTEGER,
			price NUMERIC(12, 2) NOT NULL,
			discount INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS level_tiers (
			id SERIAL PRIMARY KEY,
			company_id BIGINT NOT NULL,
			level INTEGER NOT NULL,
			min_points BIGINT NOT NULL,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
			color VARCHAR(32) NOT NULL DEFAULT '',
			label VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER REFERENCES users(id),
			type VARCHAR(16) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			reason VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			number VARCHAR(32) UNIQUE NOT NULL,
			user_id INTEGER REFERENCES users(id),
			item_total NUMERIC(12, 2) NOT NULL DEFAULT 0,
			total NUMERIC(12, 2) NOT NULL DEFAULT 0,
			paid_with_points BIGINT NOT NULL DEFAULT 0,
			paid_with_money NUMERIC(12, 2) NOT NULL DEFAULT 0,
			state VARCHAR(16) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id INTEGER REFERENCES orders(id) ON DELETE CASCADE,
			product_id INTEGER REFERENCES products(id),
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			unit_points BIGINT NOT NULL DEFAULT 0,
			line_total NUMERIC(12, 2) NOT NULL DEFAULT 0,
			line_points BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// User repository methods

func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(
		ctx,
		`INSERT INTO users (email, password_hash, company_id, points, total_points_earned, total_points_spent, level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		user.Email, user.PasswordHash, user.CompanyID,
		user.Points, user.TotalPointsEarned, user.TotalPointsSpent, user.Level,
	).Scan(&id)

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email = $1", email)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.q().QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, company_id, points, total_points_earned, total_points_spent, level, created_at
		 FROM users WHERE `+where+r.lock(),
		arg,
	).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CompanyID,
		&user.Points, &user.TotalPointsEarned, &user.TotalPointsSpent, &user.Level, &user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

func (r *PostgresRepository) UpdateUserPoints(ctx context.Context, user *models.User) error {
	_, err := r.q().ExecContext(
		ctx,
		`UPDATE users SET points = $1, total_points_earned = $2, total_points_spent = $3, level = $4 WHERE id = $5`,
		user.Points, user.TotalPointsEarned, user.TotalPointsSpent, user.Level, user.ID,
	)
	return err
}

// Catalog repository methods

func (r *PostgresRepository) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(
		ctx,
		`INSERT INTO products (company_id, name, price, points_cost, stock_quantity, stock_tracked, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.CompanyID, p.Name, p.Price, p.PointsCost, p.StockQuantity, p.StockTracked, p.IsActive,
	).Scan(&id)

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *PostgresRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p := &models.Product{}
	err := r.q().QueryRowContext(
		ctx,
		`SELECT id, company_id, name, price, points_cost, stock_quantity, stock_tracked, is_active, created_at
		 FROM products WHERE id = $1`+r.lock(),
		id,
	).Scan(
		&p.ID, &p.CompanyID, &p.Name, &p.Price, &p.PointsCost,
		&p.StockQuantity, &p.StockTracked, &p.IsActive, &p.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}

func (r *PostgresRepository) ListProducts(ctx context.Context, companyID int64) ([]models.Product, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT id, company_id, name, price, points_cost, stock_quantity, stock_tracked, is_active, created_at
		 FROM products
		 WHERE company_id = $1 AND is_active
		 ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID, &p.CompanyID, &p.Name, &p.Price, &p.PointsCost,
			&p.StockQuantity, &p.StockTracked, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *PostgresRepository) UpdateProductStock(ctx context.Context, productID int64, stock int) error {
	_, err := r.q().ExecContext(
		ctx,
		"UPDATE products SET stock_quantity = $1 WHERE id = $2",
		stock, productID,
	)
	return err
}

// Price tier repository methods

func (r *PostgresRepository) GetPriceTiers(ctx context.Context, productID int64) ([]models.PriceTier, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT min_quantity, max_quantity, price, discount
		 FROM price_tiers
		 WHERE product_id = $1
		 ORDER BY min_quantity`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.PriceTier
	for rows.Next() {
		var t models.PriceTier
		var max sql.NullInt64
		if err := rows.Scan(&t.MinQuantity, &max, &t.Price, &t.Discount); err != nil {
			return nil, err
		}
		if max.Valid {
			m := int(max.Int64)
			t.MaxQuantity = &m
		}
		tiers = append(tiers, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tiers, nil
}

func (r *PostgresRepository) SavePriceTiers(ctx context.Context, productID int64, tiers []models.PriceTier) error {
	return r.Atomically(ctx, func(repo Repository) error {
		pr := repo.(*PostgresRepository)

		if _, err := pr.q().ExecContext(ctx, "DELETE FROM price_tiers WHERE product_id = $1", productID); err != nil {
			return err
		}

		for _, t := range tiers {
			var max sql.NullInt64
			if t.MaxQuantity != nil {
				max = sql.NullInt64{Int64: int64(*t.MaxQuantity), Valid: true}
			}
			if _, err := pr.q().ExecContext(
				ctx,
				`INSERT INTO price_tiers (product_id, min_quantity, max_quantity, price, discount)
				 VALUES ($1, $2, $3, $4, $5)`,
				productID, t.MinQuantity, max, t.Price, t.Discount,
			); err != nil {
				return err
			}
		}

		return nil
	})
}

// Level configuration repository methods

func (r *PostgresRepository) GetLevelConfig(ctx context.Context, companyID int64) ([]models.LevelTier, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT level, min_points, multiplier, color, label
		 FROM level_tiers
		 WHERE company_id = $1
		 ORDER BY min_points, id`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.LevelTier
	for rows.Next() {
		var t models.LevelTier
		if err := rows.Scan(&t.Level, &t.MinPoints, &t.Multiplier, &t.Color, &t.Label); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tiers, nil
}

func (r *PostgresRepository) SaveLevelConfig(ctx context.Context, companyID int64, tiers []models.LevelTier) error {
	return r.Atomically(ctx, func(repo Repository) error {
		pr := repo.(*PostgresRepository)

		if _, err := pr.q().ExecContext(ctx, "DELETE FROM level_tiers WHERE company_id = $1", companyID); err != nil {
			return err
		}

		for _, t := range tiers {
			if _, err := pr.q().ExecContext(
				ctx,
				`INSERT INTO level_tiers (company_id, level, min_points, multiplier, color, label)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				companyID, t.Level, t.MinPoints, t.Multiplier, t.Color, t.Label,
			); err != nil {
				return err
			}
		}

		return nil
	})
}

// Ledger repository methods

func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *models.PointsTransaction) error {
	_, err := r.q().ExecContext(
		ctx,
		`INSERT INTO transactions (id, user_id, type, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Reason, tx.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) GetUserTransactions(ctx context.Context, userID int64) ([]models.PointsTransaction, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT id, user_id, type, amount, reason, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.PointsTransaction
	for rows.Next() {
		var t models.PointsTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}

// Order repository methods

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *models.Order) (int64, error) {
	var id int64
	err := r.Atomically(ctx, func(repo Repository) error {
		pr := repo.(*PostgresRepository)

		err := pr.q().QueryRowContext(
			ctx,
			`INSERT INTO orders (number, user_id, item_total, total, paid_with_points, paid_with_money, state, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			order.Number, order.UserID, order.ItemTotal, order.Total,
			order.PaidWithPoints, order.PaidWithMoney, order.State, order.CreatedAt,
		).Scan(&id)
		if err != nil {
			return err
		}

		for _, item := range order.LineItems {
			if _, err := pr.q().ExecContext(
				ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, unit_points, line_total, line_points)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id, item.ProductID, item.Quantity, item.UnitPrice, item.UnitPoints, item.LineTotal, item.LinePoints,
			); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *PostgresRepository) GetUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT id, number, user_id, item_total, total, paid_with_points, paid_with_money, state, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(
			&o.ID, &o.Number, &o.UserID, &o.ItemTotal, &o.Total,
			&o.PaidWithPoints, &o.PaidWithMoney, &o.State, &o.CreatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].LineItems = items
	}

	return orders, nil
}

func (r *PostgresRepository) getOrderItems(ctx context.Context, orderID int64) ([]models.LineItem, error) {
	rows, err := r.q().QueryContext(
		ctx,
		`SELECT product_id, quantity, unit_price, unit_points, line_total, line_points
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(
			&item.ProductID, &item.Quantity, &item.UnitPrice,
			&item.UnitPoints, &item.LineTotal, &item.LinePoints,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
