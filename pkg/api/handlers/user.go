package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/auth"
	"github.com/last-emo-boy/market-smoke/pkg/database"
)

// UserHandler handles account endpoints
type UserHandler struct {
	auth   *auth.Auth
	db     *database.DB
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(auth *auth.Auth, db *database.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		auth:   auth,
		db:     db,
		logger: logger,
	}
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	FullName string `json:"fullName" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone" binding:"required"`
	Address  string `json:"address" binding:"required"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	Username string `json:"username"`
	Location string `json:"location"`
}

// Register creates a new account and returns a token for it
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	hashedPassword, err := h.auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error during registration")
		return
	}

	user := &database.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Phone:        req.Phone,
		Address:      req.Address,
	}

	if err := h.db.UserRepository().Create(user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			fail(c, http.StatusConflict, "Email already registered")
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error during registration")
		return
	}

	token, _, err := h.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error during registration")
		return
	}

	h.logger.Info("user registered", zap.String("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// Login authenticates a user and returns a JWT token
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.UserRepository().GetByEmail(req.Email)
	if err != nil {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.auth.CheckPassword(req.Password, user.PasswordHash); err != nil {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, _, err := h.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error during login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// GetProfile returns the caller's account
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.db.UserRepository().GetByID(c.GetString("user_id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("failed to load profile", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// UpdateProfile changes username and/or location of the caller
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.UserRepository().UpdateProfile(c.GetString("user_id"), req.Username, req.Location)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrDuplicate):
			fail(c, http.StatusBadRequest, "Username already taken")
		case errors.Is(err, database.ErrNotFound):
			fail(c, http.StatusNotFound, "User not found")
		default:
			h.logger.Error("failed to update profile", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Server error updating profile")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Profile updated",
		"user":    user,
	})
}

// fail writes the error envelope shared by every endpoint
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
