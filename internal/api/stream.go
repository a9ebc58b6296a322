package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/common/errors"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves the run-events:{runId} WebSocket channel of §6.2 by
// pumping events straight off the Registry's local Event Bus subscription —
// the bus already fans out to every subscriber and replays a recent tail to
// late joiners, so unlike a generic multi-topic hub, one connection needs
// only its own Subscription, not a shared broadcast registry.
type StreamHandler struct {
	registry *registry.Registry
	logger   *logger.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(reg *registry.Registry, log *logger.Logger) *StreamHandler {
	return &StreamHandler{registry: reg, logger: log.WithFields(zap.String("component", "run-events-stream"))}
}

// StreamRun upgrades the connection and pumps the named run's events to the
// client as JSON frames until the run terminates, the client disconnects, or
// the subscription is otherwise torn down.
// GET /api/v1/runs/:runId/events
func (h *StreamHandler) StreamRun(c *gin.Context) {
	runID := c.Param("runId")
	if runID == "" {
		appErr := errors.BadRequest("runId is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	sub, err := h.registry.Subscribe(runID)
	if err != nil {
		appErr := errors.FromModelErr(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.String("run_id", runID), zap.Error(err))
		sub.Unsubscribe()
		return
	}

	go h.readPump(conn, sub)
	h.writePump(conn, sub, runID)
}

// readPump's sole job is to notice the client going away (close frame,
// error, or a dead connection past pongWait) and tear the subscription
// down; the run-events channel is server-to-client only.
func (h *StreamHandler) readPump(conn *websocket.Conn, sub *eventbus.Subscription) {
	defer sub.Unsubscribe()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, sub *eventbus.Subscription, runID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		sub.Unsubscribe()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.String("run_id", runID), zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
