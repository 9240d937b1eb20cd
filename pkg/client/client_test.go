package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSendsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, map[string]string{
			"fullName": "John Doe",
			"email":    "john@example.com",
			"password": "StrongPass1!",
			"phone":    "+1234567890",
			"address":  "123 Main St",
		}, payload)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"token":"abc"}`))
	}))
	defer server.Close()

	c := New(server.URL + "/api/")
	resp, err := c.Register(context.Background(), RegisterRequest{
		FullName: "John Doe",
		Email:    "john@example.com",
		Password: "StrongPass1!",
		Phone:    "+1234567890",
		Address:  "123 Main St",
	})
	require.NoError(t, err)

	assert.Equal(t, StepRegister, resp.Step)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "abc", resp.Token())
}

func TestTokenExtraction(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ok with token", http.StatusOK, `{"token":"abc"}`, "abc"},
		{"created with token", http.StatusCreated, `{"success":true,"token":"xyz"}`, "xyz"},
		{"ok without token", http.StatusOK, `{"success":true}`, ""},
		{"conflict with token field", http.StatusConflict, `{"token":"stale"}`, ""},
		{"empty token", http.StatusOK, `{"token":""}`, ""},
		{"non-string token", http.StatusOK, `{"token":{"value":"abc"}}`, ""},
		{"text body", http.StatusOK, `token=abc`, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &Response{StatusCode: tc.status, Body: ParseBody([]byte(tc.body))}
			assert.Equal(t, tc.want, resp.Token())
		})
	}

	var missing *Response
	assert.Empty(t, missing.Token())
}

func TestProductIDRequiresCreated(t *testing.T) {
	body := ParseBody([]byte(`{"success":true,"product":{"productId":"p1"}}`))

	testCases := []struct {
		status int
		want   string
	}{
		{http.StatusCreated, "p1"},
		{http.StatusOK, ""},
		{http.StatusAccepted, ""},
		{http.StatusBadRequest, ""},
	}

	for _, tc := range testCases {
		resp := &Response{StatusCode: tc.status, Body: body}
		assert.Equal(t, tc.want, resp.ProductID(), "status %d", tc.status)
	}

	resp := &Response{StatusCode: http.StatusCreated, Body: ParseBody([]byte(`{"product":{}}`))}
	assert.Empty(t, resp.ProductID())
}

func TestAuthenticatedCallsSendBearer(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c := New(server.URL)
	ctx := context.Background()

	_, err := c.GetProfile(ctx, "abc")
	require.NoError(t, err)
	_, err = c.UpdateProfile(ctx, "abc", UpdateProfileRequest{Username: "johnny", Location: "New York"})
	require.NoError(t, err)
	_, err = c.ListProducts(ctx)
	require.NoError(t, err)
	_, err = c.BuyProduct(ctx, "abc", BuyRequest{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	_, err = c.TransactionHistory(ctx, "abc")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /users/profile Bearer abc",
		"PATCH /users/profile Bearer abc",
		"GET /products ",
		"POST /transactions/buy Bearer abc",
		"GET /transactions/history Bearer abc",
	}, seen)
}

func TestBuyProductPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"productId":"p1","quantity":2}`, string(raw))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	_, err := New(server.URL).BuyProduct(context.Background(), "abc", BuyRequest{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
}

func TestAddProductMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "Fresh Apples", r.FormValue("title"))
		assert.Equal(t, "100", r.FormValue("price"))
		assert.Equal(t, "Farm 123", r.FormValue("originAddress"))
		assert.Equal(t, "Fruit", r.FormValue("type"))
		assert.Equal(t, "50", r.FormValue("quantity"))
		assert.Equal(t, "50", r.FormValue("availableQuantity"))
		assert.Equal(t, "Freshly picked apples", r.FormValue("description"))
		assert.Equal(t, "Available for immediate delivery", r.FormValue("comment"))

		files := r.MultipartForm.File["images"]
		if assert.Len(t, files, 1) {
			assert.Equal(t, "apple.jpg", files[0].Filename)
			assert.Equal(t, "image/jpeg", files[0].Header.Get("Content-Type"))

			f, err := files[0].Open()
			if assert.NoError(t, err) {
				content, _ := io.ReadAll(f)
				f.Close()
				assert.Equal(t, "jpeg-bytes", string(content))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"product":{"productId":"p1"}}`))
	}))
	defer server.Close()

	resp, err := New(server.URL).AddProduct(context.Background(), "abc", AddProductRequest{
		Title:             "Fresh Apples",
		Price:             "100",
		OriginAddress:     "Farm 123",
		Type:              "Fruit",
		Quantity:          "50",
		AvailableQuantity: "50",
		Description:       "Freshly picked apples",
		Comment:           "Available for immediate delivery",
		Image:             &Upload{Filename: "/tmp/images/apple.jpg", Content: strings.NewReader("jpeg-bytes")},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "p1", resp.ProductID())
}

func TestNonSuccessIsNotAnError(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "Internal Server Error"},
		{"not found", http.StatusNotFound, `{"success":false,"error":"Product not available"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid token"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			resp, err := New(server.URL).ListProducts(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tc.status, resp.StatusCode)
			assert.False(t, resp.Success())
			assert.Equal(t, tc.body, resp.Body.Text())
		})
	}
}

func TestTransportErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	resp, err := New(url).ListProducts(context.Background())
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestTimeoutOption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"slow"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, WithTimeout(time.Second)).ListProducts(context.Background())
	require.NoError(t, err)

	_, err = New(server.URL, WithTimeout(time.Millisecond)).ListProducts(context.Background())
	assert.Error(t, err, "Very short timeout should cause error")
}

func TestUserAgentHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"user_agent": r.UserAgent()})
	}))
	defer server.Close()

	resp, err := New(server.URL, WithUserAgent("market-smoke/1.0")).ListProducts(context.Background())
	require.NoError(t, err)

	ua, ok := resp.Body.LookupString("user_agent")
	assert.True(t, ok)
	assert.Equal(t, "market-smoke/1.0", ua)
}
