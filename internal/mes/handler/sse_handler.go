package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeartbeatInterval keeps idle proxies from closing the stream.
var HeartbeatInterval = 30 * time.Second

// SSEHandler streams notifications to floor screens.
type SSEHandler struct {
	hub    *notify.Hub
	logger *zap.Logger
}

func NewSSEHandler(hub *notify.Hub, logger *zap.Logger) *SSEHandler {
	return &SSEHandler{hub: hub, logger: logger}
}

// Stream GET /events?channel=workcenter:<id>
// Without a channel every event is delivered. Order channels are only served on the public
// tracking route.
func (h *SSEHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		NotFound(c, "event stream is not enabled")
		return
	}
	channel := c.Query("channel")
	if channel != "" && notify.ChannelKind(channel) != "workcenter" {
		BadRequest(c, "unknown channel "+channel)
		return
	}
	h.serve(c, GetUserID(c), channel)
}

func (h *SSEHandler) serve(c *gin.Context, userID, channel string) {
	clientID := fmt.Sprintf("%s_%d", strings.ReplaceAll(userID, " ", "_"), time.Now().UnixNano())

	client := &notify.Client{
		ID:      clientID,
		UserID:  userID,
		Channel: channel,
		Events:  make(chan notify.Event, 64),
	}
	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, event.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
