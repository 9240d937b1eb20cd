package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/api/middleware"
	"github.com/last-emo-boy/market-smoke/pkg/auth"
	"github.com/last-emo-boy/market-smoke/pkg/config"
	"github.com/last-emo-boy/market-smoke/pkg/database"
	"github.com/last-emo-boy/market-smoke/pkg/metrics"
)

type testEnv struct {
	router  *gin.Engine
	db      *database.DB
	auth    *auth.Auth
	metrics *metrics.Metrics
}

// newTestEnv mirrors the production routes without importing pkg/api
func newTestEnv(t *testing.T, uploadDir string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authService, err := auth.NewAuth(&config.MockConfig{JWT: config.JWTConfig{Secret: "handler-test-secret"}})
	require.NoError(t, err)

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	logger := zap.NewNop()

	users := NewUserHandler(authService, db, logger)
	products := NewProductHandler(db, uploadDir, logger)
	transactions := NewTransactionHandler(db, m, logger)
	system := NewSystemHandler(db)
	requireAuth := middleware.AuthMiddleware(authService, db)

	r := gin.New()
	r.GET("/health", system.HealthCheck)
	r.POST("/api/users/register", users.Register)
	r.POST("/api/users/login", users.Login)
	r.GET("/api/users/profile", requireAuth, users.GetProfile)
	r.PATCH("/api/users/profile", requireAuth, users.UpdateProfile)
	r.POST("/api/products", requireAuth, products.CreateProduct)
	r.GET("/api/products", products.ListProducts)
	r.GET("/api/products/:id", products.GetProduct)
	r.POST("/api/transactions/buy", requireAuth, transactions.Buy)
	r.GET("/api/transactions/history", requireAuth, transactions.History)
	r.GET("/api/system/info", system.GetSystemInfo)
	r.GET("/api/system/runs", system.ListRuns)
	r.GET("/api/system/runs/:id", system.GetRun)

	return &testEnv{router: r, db: db, auth: authService, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

var johnDoe = map[string]string{
	"fullName": "John Doe",
	"email":    "john@example.com",
	"password": "StrongPass1!",
	"phone":    "+1234567890",
	"address":  "123 Main St",
}

func (e *testEnv) register(t *testing.T) string {
	t.Helper()
	w, body := e.do(t, "POST", "/api/users/register", "", johnDoe)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["token"].(string)
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func productRequest(t *testing.T, token string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", "/api/products", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

var apples = map[string]string{
	"title":             "Fresh Apples",
	"price":             "100",
	"originAddress":     "Farm 123",
	"type":              "Fruit",
	"quantity":          "50",
	"availableQuantity": "50",
	"description":       "Freshly picked apples",
	"comment":           "Available for immediate delivery",
}

func (e *testEnv) addProduct(t *testing.T, token string, fields map[string]string) string {
	t.Helper()
	w, body := e.serve(t, productRequest(t, token, fields))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["product"].(map[string]interface{})["productId"].(string)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, "")

	w, body := env.do(t, "POST", "/api/users/register", "", johnDoe)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, "john@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, w.Body.String(), "StrongPass1!")

	claims, err := env.auth.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user["userId"], claims.UserID)

	// Same email again
	w, body = env.do(t, "POST", "/api/users/register", "", johnDoe)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Email already registered", body["error"])
	assert.NotContains(t, body, "token")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing full name", func(m map[string]string) { delete(m, "fullName") }},
		{"invalid email", func(m map[string]string) { m["email"] = "not-an-email" }},
		{"short password", func(m map[string]string) { m["password"] = "short" }},
		{"missing phone", func(m map[string]string) { delete(m, "phone") }},
		{"missing address", func(m map[string]string) { delete(m, "address") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]string{}
			for k, v := range johnDoe {
				payload[k] = v
			}
			tt.mutate(payload)

			w, body := env.do(t, "POST", "/api/users/register", "", payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "")
	env.register(t)

	w, body := env.do(t, "POST", "/api/users/login", "", map[string]string{
		"email": "john@example.com", "password": "StrongPass1!",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	w, body = env.do(t, "POST", "/api/users/login", "", map[string]string{
		"email": "john@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", body["error"])
	assert.NotContains(t, body, "token")

	w, _ = env.do(t, "POST", "/api/users/login", "", map[string]string{
		"email": "nobody@example.com", "password": "StrongPass1!",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.register(t)

	w, body := env.do(t, "GET", "/api/users/profile", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "John Doe", body["user"].(map[string]interface{})["fullName"])

	w, body = env.do(t, "PATCH", "/api/users/profile", token, map[string]string{
		"username": "johnny", "location": "New York",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "johnny", user["username"])
	assert.Equal(t, "New York", user["location"])

	w, _ = env.do(t, "GET", "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateProfileUsernameTaken(t *testing.T) {
	env := newTestEnv(t, "")
	first := env.register(t)

	w, _ := env.do(t, "PATCH", "/api/users/profile", first, map[string]string{"username": "johnny"})
	require.Equal(t, http.StatusOK, w.Code)

	second := map[string]string{}
	for k, v := range johnDoe {
		second[k] = v
	}
	second["email"] = "jane@example.com"
	w, body := env.do(t, "POST", "/api/users/register", "", second)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body = env.do(t, "PATCH", "/api/users/profile", body["token"].(string), map[string]string{"username": "johnny"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already taken", body["error"])
}

func TestCreateProduct(t *testing.T) {
	uploadDir := t.TempDir()
	env := newTestEnv(t, uploadDir)
	token := env.register(t)

	req := productRequest(t, token, apples, formFile{name: "apple.jpg", contentType: "image/jpeg", data: []byte("\xff\xd8\xff\xd9")})
	w, body := env.serve(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])

	product := body["product"].(map[string]interface{})
	assert.NotEmpty(t, product["productId"])
	assert.Equal(t, "Fresh Apples", product["title"])
	assert.Equal(t, 100.0, product["price"])
	assert.Equal(t, 50.0, product["availableQuantity"])

	images := product["images"].([]interface{})
	require.Len(t, images, 1)
	assert.Regexp(t, `^/uploads/[0-9a-f-]{36}\.jpg$`, images[0])

	stored, err := os.ReadFile(filepath.Join(uploadDir, filepath.Base(images[0].(string))))
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff\xd9"), stored)
}

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.register(t)

	for _, field := range []string{"title", "price", "originAddress"} {
		t.Run("missing "+field, func(t *testing.T) {
			fields := map[string]string{}
			for k, v := range apples {
				if k != field {
					fields[k] = v
				}
			}
			w, body := env.serve(t, productRequest(t, token, fields))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "title, price, originAddress required", body["error"])
		})
	}

	t.Run("non-numeric price", func(t *testing.T) {
		fields := map[string]string{"title": "x", "price": "cheap", "originAddress": "y"}
		w, _ := env.serve(t, productRequest(t, token, fields))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejected image type", func(t *testing.T) {
		req := productRequest(t, token, apples, formFile{name: "apple.gif", contentType: "image/gif", data: []byte("GIF89a")})
		w, body := env.serve(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Only PNG and JPG files are allowed", body["error"])
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w, _ := env.serve(t, productRequest(t, "", apples))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.register(t)

	env.addProduct(t, token, apples)
	env.addProduct(t, token, map[string]string{"title": "Carrots", "price": "20", "originAddress": "Farm 9", "type": "Vegetable"})

	tests := []struct {
		query string
		count int
	}{
		{"", 2},
		{"?q=apple", 1},
		{"?type=Vegetable", 1},
		{"?minPrice=50", 1},
		{"?maxPrice=50", 1},
		{"?minPrice=10&maxPrice=200", 2},
		{"?page=2&limit=1", 1},
		{"?page=3&limit=1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, body := env.do(t, "GET", "/api/products"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, true, body["success"])
			assert.Len(t, body["items"], tt.count)
		})
	}

	w, _ := env.do(t, "GET", "/api/products?minPrice=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuyAndHistory(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.register(t)
	productID := env.addProduct(t, token, apples)

	w, body := env.do(t, "POST", "/api/transactions/buy", token, map[string]interface{}{
		"productId": productID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])

	txn := body["transaction"].(map[string]interface{})
	assert.Equal(t, productID, txn["product"])
	assert.Equal(t, 200.0, txn["total"])
	assert.Equal(t, "completed", txn["status"])
	assert.Equal(t, "Fresh Apples", txn["productSnapshot"].(map[string]interface{})["title"])

	w, body = env.do(t, "GET", "/api/products/"+productID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 48.0, body["product"].(map[string]interface{})["availableQuantity"])

	w, body = env.do(t, "GET", "/api/transactions/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["transactions"], 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Purchases.WithLabelValues("completed")))
}

func TestBuyFailures(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.register(t)
	productID := env.addProduct(t, token, map[string]string{
		"title": "Rare Melon", "price": "10", "originAddress": "Farm 1", "quantity": "1",
	})

	tests := []struct {
		name    string
		payload map[string]interface{}
		code    int
		outcome string
	}{
		{"missing product id", map[string]interface{}{"quantity": 1}, http.StatusBadRequest, "rejected"},
		{"unknown product", map[string]interface{}{"productId": "nope", "quantity": 1}, http.StatusNotFound, "unavailable"},
		{"too many", map[string]interface{}{"productId": productID, "quantity": 5}, http.StatusBadRequest, "insufficient_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, "POST", "/api/transactions/buy", token, tt.payload)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Purchases.WithLabelValues(tt.outcome)))
		})
	}

	// Selling out deactivates the listing
	w, _ := env.do(t, "POST", "/api/transactions/buy", token, map[string]interface{}{"productId": productID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, "POST", "/api/transactions/buy", token, map[string]interface{}{"productId": productID, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, "POST", "/api/transactions/buy", "", map[string]interface{}{"productId": productID, "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	w, body := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = env.do(t, "GET", "/api/system/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["database"], "smoke_runs_count")

	run := &database.SmokeRun{BaseURL: "http://localhost:5000/api"}
	require.NoError(t, env.db.RunRepository().Create(run))
	require.NoError(t, env.db.StepRepository().Record(&database.SmokeStep{
		RunID: run.ID, Seq: 1, Name: "register", Method: "POST", Path: "/users/register", StatusCode: 201,
	}))

	w, body = env.do(t, "GET", "/api/system/runs", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["total"])

	w, body = env.do(t, "GET", "/api/system/runs/"+run.ID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["steps"], 1)

	w, _ = env.do(t, "GET", "/api/system/runs/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, "GET", "/api/system/runs?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
