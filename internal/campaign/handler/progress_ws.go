package handler

import (
	"errors"
	"net/http"
	"time"

	"dispatch-server/internal/progress"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsPushInterval = 2 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Add proper origin validation for production
		return true
	},
}

// HandleProgressWS streams progress snapshots over a WebSocket until the
// campaign reaches a terminal status or the client disconnects.
func (h Handler) HandleProgressWS(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	if _, err := h.processor.Get(ctx, userID, campaignID); err != nil {
		h.handleError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	// Reads are discarded; the read loop only notices a closed peer.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	var lastUpdatedAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-clientGone:
			return
		case <-ticker.C:
		}

		entry, err := h.processor.Progress(ctx, userID, campaignID)
		if err != nil {
			if errors.Is(err, progress.ErrNotFound) {
				continue
			}
			h.logger.Error(ctx, "failed to read progress for stream", err)
			return
		}
		if entry.UpdatedAt.Equal(lastUpdatedAt) {
			continue
		}
		lastUpdatedAt = entry.UpdatedAt

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(entry); err != nil {
			return
		}

		if isTerminalStatus(entry.Status) {
			return
		}
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case "completed", "canceled", "concluido", "cancelado":
		return true
	}
	return false
}
