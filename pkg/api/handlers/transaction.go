package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/database"
	"github.com/last-emo-boy/market-smoke/pkg/metrics"
)

// TransactionHandler handles purchase endpoints
type TransactionHandler struct {
	db      *database.DB
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(db *database.DB, m *metrics.Metrics, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		db:      db,
		metrics: m,
		logger:  logger,
	}
}

// BuyRequest is the purchase payload
type BuyRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Buy purchases a quantity of a product for the caller
func (h *TransactionHandler) Buy(c *gin.Context) {
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID == "" || req.Quantity == 0 {
		h.metrics.IncrementPurchase("rejected")
		fail(c, http.StatusBadRequest, "Product ID and quantity required")
		return
	}

	txn, err := h.db.TransactionRepository().Buy(c.GetString("user_id"), req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrProductUnavailable):
			h.metrics.IncrementPurchase("unavailable")
			fail(c, http.StatusNotFound, "Product not available")
		case errors.Is(err, database.ErrInsufficientQuantity):
			h.metrics.IncrementPurchase("insufficient_quantity")
			fail(c, http.StatusBadRequest, "Insufficient quantity available")
		default:
			h.metrics.IncrementPurchase("error")
			h.logger.Error("purchase failed", zap.String("product_id", req.ProductID), zap.Error(err))
			fail(c, http.StatusInternalServerError, "Server error creating transaction")
		}
		return
	}

	h.metrics.IncrementPurchase("completed")
	h.logger.Info("purchase completed",
		zap.String("transaction_id", txn.ID),
		zap.String("product_id", txn.ProductID),
		zap.Int("quantity", txn.Quantity))

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Purchase successful",
		"transaction": txn,
	})
}

// History lists the caller's purchases and sales
func (h *TransactionHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	txns, err := h.db.TransactionRepository().ListByUser(c.GetString("user_id"), page, limit)
	if err != nil {
		h.logger.Error("failed to list transactions", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching transactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": txns})
}
