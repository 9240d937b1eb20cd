package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/api/handlers"
	"github.com/last-emo-boy/market-smoke/pkg/api/middleware"
	"github.com/last-emo-boy/market-smoke/pkg/auth"
	"github.com/last-emo-boy/market-smoke/pkg/database"
	"github.com/last-emo-boy/market-smoke/pkg/metrics"
)

// Deps are the services the fake marketplace is built from
type Deps struct {
	Auth      *auth.Auth
	DB        *database.DB
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	UploadDir string
}

// NewRouter wires every marketplace route onto a new gin engine
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	userHandler := handlers.NewUserHandler(deps.Auth, deps.DB, logger)
	productHandler := handlers.NewProductHandler(deps.DB, deps.UploadDir, logger)
	transactionHandler := handlers.NewTransactionHandler(deps.DB, m, logger)
	systemHandler := handlers.NewSystemHandler(deps.DB)

	r := gin.New()
	r.Use(middleware.MetricsMiddleware(m))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", systemHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	requireAuth := middleware.AuthMiddleware(deps.Auth, deps.DB)

	api := r.Group("/api")
	{
		users := api.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.GET("/profile", requireAuth, userHandler.GetProfile)
			users.PATCH("/profile", requireAuth, userHandler.UpdateProfile)
		}

		products := api.Group("/products")
		{
			products.GET("", productHandler.ListProducts)
			products.GET("/:id", productHandler.GetProduct)
			products.POST("", requireAuth, productHandler.CreateProduct)
		}

		transactions := api.Group("/transactions", requireAuth)
		{
			transactions.POST("/buy", transactionHandler.Buy)
			transactions.GET("/history", transactionHandler.History)
		}

		system := api.Group("/system")
		{
			system.GET("/info", systemHandler.GetSystemInfo)
			system.GET("/runs", systemHandler.ListRuns)
			system.GET("/runs/:id", systemHandler.GetRun)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
	})

	return r
}
