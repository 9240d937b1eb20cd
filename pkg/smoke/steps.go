package smoke

import (
	"context"
	"net/http"

	"github.com/last-emo-boy/market-smoke/pkg/client"
)

// AbortMessage is printed when neither register nor login yields a token
const AbortMessage = "Failed to get auth token, cannot proceed."

// Token sources reported for a run
const (
	TokenFromRegister = "register"
	TokenFromLogin    = "login"
	TokenNone         = ""
)

// API is the marketplace surface the driver exercises. *client.Client implements it.
type API interface {
	Register(ctx context.Context, req client.RegisterRequest) (*client.Response, error)
	Login(ctx context.Context, req client.LoginRequest) (*client.Response, error)
	GetProfile(ctx context.Context, token string) (*client.Response, error)
	UpdateProfile(ctx context.Context, token string, req client.UpdateProfileRequest) (*client.Response, error)
	AddProduct(ctx context.Context, token string, req client.AddProductRequest) (*client.Response, error)
	ListProducts(ctx context.Context) (*client.Response, error)
	BuyProduct(ctx context.Context, token string, req client.BuyRequest) (*client.Response, error)
	TransactionHistory(ctx context.Context, token string) (*client.Response, error)
}

type stepInfo struct {
	announcement string
	method       string
	path         string
}

var steps = map[string]stepInfo{
	client.StepRegister:           {"Registering user...", http.MethodPost, "/users/register"},
	client.StepLogin:              {"Logging in...", http.MethodPost, "/users/login"},
	client.StepGetProfile:         {"Getting profile...", http.MethodGet, "/users/profile"},
	client.StepUpdateProfile:      {"Updating profile...", http.MethodPatch, "/users/profile"},
	client.StepAddProduct:         {"Adding product...", http.MethodPost, "/products"},
	client.StepListProducts:       {"Getting products...", http.MethodGet, "/products"},
	client.StepBuyProduct:         {"Buying product...", http.MethodPost, "/transactions/buy"},
	client.StepTransactionHistory: {"Getting transaction history...", http.MethodGet, "/transactions/history"},
}

// Announcement returns the line printed before a step's block
func Announcement(step string) string {
	return steps[step].announcement
}
