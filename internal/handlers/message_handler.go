package handlers

import (
	"net/http"
	"time"

	"sms-relay-server/internal/events"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/phone"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SendRequest is the request body for an outbound send.
type SendRequest struct {
	To         string `json:"to"`
	Message    string `json:"message"`
	Originator string `json:"originator"`
	AccountRef string `json:"accountRef"`
}

// MessageHandler handles send, inbound-push and message-history requests
type MessageHandler struct {
	sender     *services.SendService
	messages   *services.MessageService
	selfNumber string // the relay's provisioned number, recipient of pushed inbound messages
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(sender *services.SendService, messages *services.MessageService, selfNumber string) *MessageHandler {
	if selfNumber == "" {
		selfNumber = "UNKNOWN"
	}
	return &MessageHandler{sender: sender, messages: messages, selfNumber: selfNumber}
}

// Send runs the outbound pipeline. The response always carries the full
// outcome: a message accepted by the provider but rejected by the store
// still returns sent=true so the caller can reconcile.
func (h *MessageHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	operator := c.GetString("operator")
	outcome := h.sender.Execute(c.Request.Context(), services.SendCommand{
		To:         req.To,
		Message:    req.Message,
		Originator: req.Originator,
		AccountRef: req.AccountRef,
		SentBy:     operator,
	})

	switch outcome.ErrorKind {
	case services.SendErrInvalidRequest, services.SendErrInvalidPhone:
		c.JSON(http.StatusBadRequest, outcome)
	case services.SendErrSendFailed:
		c.JSON(http.StatusBadGateway, outcome)
	default:
		// Includes SaveFailed: the message did go out.
		c.JSON(http.StatusOK, outcome)
	}
}

// Inbound accepts a pushed provider notification. Producers disagree on
// field names, so the raw body is funneled through the canonical decode
// before anything else sees it; duplicates collapse into a 200.
func (h *MessageHandler) Inbound(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	in, err := events.DecodeInbound(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.messages.SaveReceived(in.Phone, h.selfNumber, in.Body, time.Now().UTC(), in.ProviderMsgID)
	if err != nil {
		logger.Error("Failed to persist pushed message",
			zap.String("provider_message_id", in.ProviderMsgID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"duplicate": true})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": result.ID})
}

// ListByPhone returns the message history with one counterparty.
func (h *MessageHandler) ListByPhone(c *gin.Context) {
	n, err := phone.Parse(c.Param("phone"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	limit, offset := paginationParams(c)
	msgs, err := h.messages.ListByPhone(n.Canonical, limit, offset)
	if err != nil {
		logger.Error("Failed to list messages", zap.String("phone", n.Canonical), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
