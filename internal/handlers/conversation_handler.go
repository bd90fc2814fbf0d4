package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/phone"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimRequest is the request body for a conversation claim.
type ClaimRequest struct {
	Minutes int `json:"minutes"`
}

// ConversationHandler handles conversation aggregate requests
type ConversationHandler struct {
	conversations *services.ConversationService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List returns conversation aggregates ordered by most recent activity.
func (h *ConversationHandler) List(c *gin.Context) {
	limit, offset := paginationParams(c)
	convs, err := h.conversations.List(limit, offset)
	if err != nil {
		logger.Error("Failed to list conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Get returns one conversation aggregate.
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.conversations.Get(c.Param("phone"))
	if err != nil {
		if errors.Is(err, phone.ErrInvalid) || errors.Is(err, phone.ErrEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
			return
		}
		logger.Error("Failed to get conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conversation"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Claim attempts a time-bounded assignment of a conversation to the
// calling operator. The operator name comes from the token, never the body.
func (h *ConversationHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	operator := c.GetString("operator")
	result, err := h.conversations.Claim(c.Param("phone"), operator, req.Minutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result.WasAlreadyAssigned {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkRead records that the conversation's inbound side has been read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkRead(c.Param("phone")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// paginationParams reads limit/offset query params with sane bounds.
func paginationParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
