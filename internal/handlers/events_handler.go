package handlers

import (
	"net/http"
	"time"

	"sms-relay-server/internal/events"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventsHandler streams relay events to clients over SSE
type EventsHandler struct {
	broadcaster *events.Broadcaster
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(broadcaster *events.Broadcaster) *EventsHandler {
	return &EventsHandler{broadcaster: broadcaster}
}

// Stream subscribes the client to the live event feed. Heartbeat comments
// keep intermediaries from closing an idle stream.
func (h *EventsHandler) Stream(c *gin.Context) {
	sub := h.broadcaster.Subscribe(0)
	defer sub.Close()

	operator := c.GetString("operator")
	logger.Info("Event stream opened",
		zap.String("operator", operator),
		zap.String("subscription", sub.ID))
	defer logger.Info("Event stream closed", zap.String("subscription", sub.ID))

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(evt.Name, evt)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
