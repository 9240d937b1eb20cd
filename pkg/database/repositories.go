package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicate            = errors.New("record already exists")
	ErrProductUnavailable   = errors.New("product not available")
	ErrInsufficientQuantity = errors.New("not enough quantity")
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// UserRepository provides database operations for marketplace users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. The ID is generated when empty.
func (r *UserRepository) Create(user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, full_name, email, password_hash, phone, address, username, location, created_at, updated_at)
		VALUES (:id, :full_name, :email, :password_hash, :phone, :address, :username, :location, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExec(query, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create user %s: %w", user.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(id string) (*User, error) {
	var user User
	err := r.db.Get(&user, "SELECT * FROM users WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", notFound(err))
	}
	return &user, nil
}

// GetByEmail gets a user by email
func (r *UserRepository) GetByEmail(email string) (*User, error) {
	var user User
	err := r.db.Get(&user, "SELECT * FROM users WHERE email = ?", strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", notFound(err))
	}
	return &user, nil
}

// UpdateProfile updates the editable profile fields. Empty values leave a field unchanged.
func (r *UserRepository) UpdateProfile(id, username, location string) (*User, error) {
	query := `
		UPDATE users
		SET username = CASE WHEN ? = '' THEN username ELSE ? END,
		    location = CASE WHEN ? = '' THEN location ELSE ? END,
		    updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query, username, username, location, location, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %s: %w", username, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("failed to update profile: %w", ErrNotFound)
	}
	return r.GetByID(id)
}

// ProductRepository provides database operations for products
type ProductRepository struct {
	db *DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFilter narrows a product listing
type ProductFilter struct {
	Query    string
	Type     string
	MinPrice *float64
	MaxPrice *float64
	Page     int
	Limit    int
}

// Create creates a new active product. The ID is generated when empty.
func (r *ProductRepository) Create(product *Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.IsActive = true
	product.CreatedAt = time.Now().UTC()
	if err := product.MarshalImages(); err != nil {
		return fmt.Errorf("failed to marshal product images: %w", err)
	}

	query := `
		INSERT INTO products (id, owner_id, title, description, comment, price, origin_address, type,
		                      quantity, available_quantity, images, is_active, created_at)
		VALUES (:id, :owner_id, :title, :description, :comment, :price, :origin_address, :type,
		        :quantity, :available_quantity, :images, :is_active, :created_at)
	`
	if _, err := r.db.NamedExec(query, product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(id string) (*Product, error) {
	var product Product
	if err := r.db.Get(&product, "SELECT * FROM products WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", notFound(err))
	}
	if err := product.UnmarshalImages(); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product images: %w", err)
	}
	return &product, nil
}

// ListActive lists active products, newest first
func (r *ProductRepository) ListActive(filter ProductFilter) ([]*Product, error) {
	var (
		clauses = []string{"is_active = TRUE"}
		args    []interface{}
	)

	if filter.Query != "" {
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Query)+"%")
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.MinPrice != nil {
		clauses = append(clauses, "price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		clauses = append(clauses, "price <= ?")
		args = append(args, *filter.MaxPrice)
	}

	limit, offset := paginate(filter.Page, filter.Limit)
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		"SELECT * FROM products WHERE %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		strings.Join(clauses, " AND "),
	)

	products := []*Product{}
	if err := r.db.Select(&products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for _, p := range products {
		if err := p.UnmarshalImages(); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product images: %w", err)
		}
	}
	return products, nil
}

// TransactionRepository provides database operations for purchases
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Buy records a purchase and takes the quantity out of the product's stock.
// A product whose stock reaches zero is deactivated.
func (r *TransactionRepository) Buy(buyerID, productID string, quantity int) (*Transaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %d: %w", quantity, ErrInsufficientQuantity)
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var product Product
	if err := tx.Get(&product, "SELECT * FROM products WHERE id = ?", productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductUnavailable
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductUnavailable
	}
	if product.AvailableQuantity < quantity {
		return nil, ErrInsufficientQuantity
	}

	remaining := product.AvailableQuantity - quantity
	if _, err := tx.Exec(
		"UPDATE products SET available_quantity = ?, is_active = ? WHERE id = ?",
		remaining, remaining > 0, productID,
	); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	txn := &Transaction{
		ID:           uuid.New().String(),
		BuyerID:      buyerID,
		SellerID:     product.OwnerID,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		ProductPrice: product.Price,
		Quantity:     quantity,
		Total:        product.Price * float64(quantity),
		Status:       "completed",
		CreatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO transactions (id, buyer_id, seller_id, product_id, product_title, product_price,
		                          quantity, total, status, created_at)
		VALUES (:id, :buyer_id, :seller_id, :product_id, :product_title, :product_price,
		        :quantity, :total, :status, :created_at)
	`
	if _, err := tx.NamedExec(query, txn); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return txn, nil
}

// ListByUser lists purchases and sales involving a user, newest first
func (r *TransactionRepository) ListByUser(userID string, page, limit int) ([]*Transaction, error) {
	lim, offset := paginate(page, limit)

	txns := []*Transaction{}
	query := `
		SELECT * FROM transactions
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`
	if err := r.db.Select(&txns, query, userID, userID, lim, offset); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// RunRepository provides database operations for smoke runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new smoke run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create records the start of a run
func (r *RunRepository) Create(run *SmokeRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO smoke_runs (id, base_url, token_source, product_id, aborted, started_at, finished_at)
		VALUES (:id, :base_url, :token_source, :product_id, :aborted, :started_at, :finished_at)
	`
	if _, err := r.db.NamedExec(query, run); err != nil {
		return fmt.Errorf("failed to create smoke run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run
func (r *RunRepository) Finish(run *SmokeRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	query := `
		UPDATE smoke_runs
		SET token_source = :token_source, product_id = :product_id, aborted = :aborted, finished_at = :finished_at
		WHERE id = :id
	`
	result, err := r.db.NamedExec(query, run)
	if err != nil {
		return fmt.Errorf("failed to finish smoke run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to finish smoke run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetByID gets a run by ID
func (r *RunRepository) GetByID(id string) (*SmokeRun, error) {
	var run SmokeRun
	if err := r.db.Get(&run, "SELECT * FROM smoke_runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to get smoke run: %w", notFound(err))
	}
	return &run, nil
}

// ListRecent lists the most recent runs
func (r *RunRepository) ListRecent(limit int) ([]*SmokeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []*SmokeRun{}
	if err := r.db.Select(&runs, "SELECT * FROM smoke_runs ORDER BY started_at DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("failed to list smoke runs: %w", err)
	}
	return runs, nil
}

// StepRepository provides database operations for smoke steps
type StepRepository struct {
	db *DB
}

// NewStepRepository creates a new smoke step repository
func NewStepRepository(db *DB) *StepRepository {
	return &StepRepository{db: db}
}

// Record stores one step of a run
func (r *StepRepository) Record(step *SmokeStep) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO smoke_steps (run_id, seq, name, method, path, status_code, body_kind, body, error, duration_ms, created_at)
		VALUES (:run_id, :seq, :name, :method, :path, :status_code, :body_kind, :body, :error, :duration_ms, :created_at)
	`
	result, err := r.db.NamedExec(query, step)
	if err != nil {
		return fmt.Errorf("failed to record smoke step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get smoke step ID: %w", err)
	}
	step.ID = int(id)
	return nil
}

// ListByRun lists the steps of a run in call order
func (r *StepRepository) ListByRun(runID string) ([]*SmokeStep, error) {
	steps := []*SmokeStep{}
	if err := r.db.Select(&steps, "SELECT * FROM smoke_steps WHERE run_id = ? ORDER BY seq", runID); err != nil {
		return nil, fmt.Errorf("failed to list smoke steps: %w", err)
	}
	return steps, nil
}

func paginate(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit
}
