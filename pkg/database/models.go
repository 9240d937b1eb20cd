package database

import (
	"encoding/json"
	"time"
)

// User represents a marketplace account
type User struct {
	ID           string    `db:"id" json:"userId"`
	FullName     string    `db:"full_name" json:"fullName"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Phone        string    `db:"phone" json:"phone"`
	Address      string    `db:"address" json:"address"`
	Username     string    `db:"username" json:"username"`
	Location     string    `db:"location" json:"location"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Product represents a marketplace listing
type Product struct {
	ID                string    `db:"id" json:"productId"`
	OwnerID           string    `db:"owner_id" json:"owner"`
	Title             string    `db:"title" json:"title"`
	Description       string    `db:"description" json:"description"`
	Comment           string    `db:"comment" json:"comment"`
	Price             float64   `db:"price" json:"price"`
	OriginAddress     string    `db:"origin_address" json:"originAddress"`
	Type              string    `db:"type" json:"type"`
	Quantity          int       `db:"quantity" json:"quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"availableQuantity"`
	ImagesJSON        string    `db:"images" json:"-"`
	Images            []string  `db:"-" json:"images"`
	IsActive          bool      `db:"is_active" json:"isActive"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// MarshalImages converts the image list to JSON for database storage
func (p *Product) MarshalImages() error {
	if p.Images == nil {
		p.Images = []string{}
	}
	data, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	p.ImagesJSON = string(data)
	return nil
}

// UnmarshalImages restores the image list from its stored JSON
func (p *Product) UnmarshalImages() error {
	if p.ImagesJSON == "" {
		p.Images = []string{}
		return nil
	}
	return json.Unmarshal([]byte(p.ImagesJSON), &p.Images)
}

// ProductSnapshot is the product state captured at purchase time
type ProductSnapshot struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// Transaction represents a completed purchase
type Transaction struct {
	ID           string    `db:"id" json:"transactionId"`
	BuyerID      string    `db:"buyer_id" json:"buyer"`
	SellerID     string    `db:"seller_id" json:"seller"`
	ProductID    string    `db:"product_id" json:"product"`
	ProductTitle string    `db:"product_title" json:"-"`
	ProductPrice float64   `db:"product_price" json:"-"`
	Quantity     int       `db:"quantity" json:"quantity"`
	Total        float64   `db:"total" json:"total"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// MarshalJSON adds the productSnapshot object the API exposes
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		ProductSnapshot ProductSnapshot `json:"productSnapshot"`
	}{
		plain:           plain(t),
		ProductSnapshot: ProductSnapshot{Title: t.ProductTitle, Price: t.ProductPrice},
	})
}

// SmokeRun is one pass of the smoke driver
type SmokeRun struct {
	ID          string     `db:"id" json:"id"`
	BaseURL     string     `db:"base_url" json:"base_url"`
	TokenSource string     `db:"token_source" json:"token_source"`
	ProductID   string     `db:"product_id" json:"product_id"`
	Aborted     bool       `db:"aborted" json:"aborted"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// SmokeStep is one API call made during a smoke run
type SmokeStep struct {
	ID         int       `db:"id" json:"id"`
	RunID      string    `db:"run_id" json:"run_id"`
	Seq        int       `db:"seq" json:"seq"`
	Name       string    `db:"name" json:"name"`
	Method     string    `db:"method" json:"method"`
	Path       string    `db:"path" json:"path"`
	StatusCode int       `db:"status_code" json:"status_code"`
	BodyKind   string    `db:"body_kind" json:"body_kind"`
	Body       string    `db:"body" json:"body"`
	Error      string    `db:"error" json:"error,omitempty"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
