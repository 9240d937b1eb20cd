package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
)

// Step names, used for reporting and history
const (
	StepRegister           = "register"
	StepLogin              = "login"
	StepGetProfile         = "get_profile"
	StepUpdateProfile      = "update_profile"
	StepAddProduct         = "add_product"
	StepListProducts       = "list_products"
	StepBuyProduct         = "buy_product"
	StepTransactionHistory = "transaction_history"
)

// RegisterRequest represents user registration data
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is a partial profile update
type UpdateProfileRequest struct {
	Username string `json:"username"`
	Location string `json:"location"`
}

// Upload is a single file attached to a multipart request
type Upload struct {
	Filename string
	Content  io.Reader
}

// AddProductRequest is sent as multipart form fields plus one "images" file
type AddProductRequest struct {
	Title             string
	Price             string
	OriginAddress     string
	Type              string
	Quantity          string
	AvailableQuantity string
	Description       string
	Comment           string
	Image             *Upload
}

// BuyRequest places a purchase for a product
type BuyRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Register creates a user account
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Response, error) {
	return c.doJSON(ctx, StepRegister, http.MethodPost, "/users/register", "", req)
}

// Login authenticates with email and password
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Response, error) {
	return c.doJSON(ctx, StepLogin, http.MethodPost, "/users/login", "", req)
}

// GetProfile fetches the authenticated user's profile
func (c *Client) GetProfile(ctx context.Context, token string) (*Response, error) {
	return c.do(ctx, request{
		step:   StepGetProfile,
		method: http.MethodGet,
		path:   "/users/profile",
		token:  token,
	})
}

// UpdateProfile patches the authenticated user's profile
func (c *Client) UpdateProfile(ctx context.Context, token string, req UpdateProfileRequest) (*Response, error) {
	return c.doJSON(ctx, StepUpdateProfile, http.MethodPatch, "/users/profile", token, req)
}

// AddProduct creates a product listing with one image
func (c *Client) AddProduct(ctx context.Context, token string, req AddProductRequest) (*Response, error) {
	body, contentType, err := encodeProductForm(req)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		step:        StepAddProduct,
		method:      http.MethodPost,
		path:        "/products",
		token:       token,
		body:        body,
		contentType: contentType,
	})
}

// ListProducts lists all products. No authentication is sent.
func (c *Client) ListProducts(ctx context.Context) (*Response, error) {
	return c.do(ctx, request{
		step:   StepListProducts,
		method: http.MethodGet,
		path:   "/products",
	})
}

// BuyProduct purchases a product
func (c *Client) BuyProduct(ctx context.Context, token string, req BuyRequest) (*Response, error) {
	return c.doJSON(ctx, StepBuyProduct, http.MethodPost, "/transactions/buy", token, req)
}

// TransactionHistory fetches the authenticated user's transactions
func (c *Client) TransactionHistory(ctx context.Context, token string) (*Response, error) {
	return c.do(ctx, request{
		step:   StepTransactionHistory,
		method: http.MethodGet,
		path:   "/transactions/history",
		token:  token,
	})
}

func encodeProductForm(req AddProductRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"title", req.Title},
		{"price", req.Price},
		{"originAddress", req.OriginAddress},
		{"type", req.Type},
		{"quantity", req.Quantity},
		{"availableQuantity", req.AvailableQuantity},
		{"description", req.Description},
		{"comment", req.Comment},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f.name, err)
		}
	}

	if req.Image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="images"; filename="%s"`, filepath.Base(req.Image.Filename)))
		header.Set("Content-Type", contentTypeFor(req.Image.Filename))

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := io.Copy(part, req.Image.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy image %s: %w", req.Image.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
