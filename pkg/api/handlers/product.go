package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/database"
)

const (
	maxImages     = 6
	maxImageBytes = 5 << 20
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// ProductHandler handles listing endpoints
type ProductHandler struct {
	db        *database.DB
	uploadDir string
	logger    *zap.Logger
}

// NewProductHandler creates a new ProductHandler. Images are written to uploadDir
// when it is set.
func NewProductHandler(db *database.DB, uploadDir string, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		db:        db,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// CreateProduct creates a listing from a multipart form with up to six images
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	priceField := strings.TrimSpace(c.PostForm("price"))
	originAddress := strings.TrimSpace(c.PostForm("originAddress"))
	if title == "" || priceField == "" || originAddress == "" {
		fail(c, http.StatusBadRequest, "title, price, originAddress required")
		return
	}

	price, err := strconv.ParseFloat(priceField, 64)
	if err != nil || price < 0 {
		fail(c, http.StatusBadRequest, "price must be a non-negative number")
		return
	}
	quantity, err := intField(c, "quantity", 1)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	available, err := intField(c, "availableQuantity", quantity)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		files = form.File["images"]
	}
	if len(files) > maxImages {
		fail(c, http.StatusBadRequest, fmt.Sprintf("at most %d images allowed", maxImages))
		return
	}

	images := make([]string, 0, len(files))
	for _, file := range files {
		if !allowedImageTypes[file.Header.Get("Content-Type")] {
			fail(c, http.StatusBadRequest, "Only PNG and JPG files are allowed")
			return
		}
		if file.Size > maxImageBytes {
			fail(c, http.StatusBadRequest, "Image exceeds 5MB limit")
			return
		}

		name := uuid.New().String() + strings.ToLower(filepath.Ext(file.Filename))
		if h.uploadDir != "" {
			if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
				h.logger.Error("failed to create upload directory", zap.Error(err))
				fail(c, http.StatusInternalServerError, "Server error")
				return
			}
			if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, name)); err != nil {
				h.logger.Error("failed to store image", zap.String("file", file.Filename), zap.Error(err))
				fail(c, http.StatusInternalServerError, "Server error")
				return
			}
		}
		images = append(images, "/uploads/"+name)
	}

	product := &database.Product{
		OwnerID:           c.GetString("user_id"),
		Title:             title,
		Description:       c.PostForm("description"),
		Comment:           c.PostForm("comment"),
		Price:             price,
		OriginAddress:     originAddress,
		Type:              c.PostForm("type"),
		Quantity:          quantity,
		AvailableQuantity: available,
		Images:            images,
	}

	if err := h.db.ProductRepository().Create(product); err != nil {
		h.logger.Error("failed to create product", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "product": product})
}

// ListProducts lists active products, filtered by q, type, minPrice and maxPrice
func (h *ProductHandler) ListProducts(c *gin.Context) {
	filter := database.ProductFilter{
		Query: c.Query("q"),
		Type:  c.Query("type"),
	}
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	for param, dst := range map[string]**float64{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, param+" must be a number")
			return
		}
		*dst = &v
	}

	items, err := h.db.ProductRepository().ListActive(filter)
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
}

// GetProduct returns a single product by id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.db.ProductRepository().GetByID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "Product not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
}

func intField(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.PostForm(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
