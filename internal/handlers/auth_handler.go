package handlers

import (
	"net/http"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles operator authentication
type AuthHandler struct {
	config    *config.Config
	operators db.OperatorRepository
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, operators db.OperatorRepository) *AuthHandler {
	return &AuthHandler{config: cfg, operators: operators}
}

// Login verifies operator credentials and returns a JWT token
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to parse login request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	op, err := h.operators.GetByName(req.Name)
	if err != nil {
		logger.Error("Operator lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if op == nil || !op.Active {
		logger.Warn("Login rejected", zap.String("operator", req.Name))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("Login rejected", zap.String("operator", req.Name))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expiresAt, err := middleware.GenerateToken(op.Name, h.config)
	if err != nil {
		logger.Error("Failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info("Operator logged in", zap.String("operator", op.Name))
	c.JSON(http.StatusOK, models.LoginResponse{Token: token, ExpiresAt: expiresAt.Unix()})
}
