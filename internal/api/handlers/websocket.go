package handlers

import (
	"log/slog"
	"net/http"

	"companion-api/internal/websocket"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades listener connections and lets moderators push events
type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Connect upgrades the request and serves the listener until it disconnects
func (h *WebSocketHandler) Connect(c *gin.Context) {
	conn, err := h.hub.Upgrade(c.Writer, c.Request)
	if err != nil {
		// the upgrader has already written the error response
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	if err := h.hub.Serve(conn); err != nil {
		slog.Debug("websocket listener rejected", "error", err)
	}
}

type DispatchResponse struct {
	Subscription string `json:"subscription"`
	Listeners    int    `json:"listeners"`
}

// Dispatch sends the request body as an EVENT to one subscription
func (h *WebSocketHandler) Dispatch(c *gin.Context) {
	subscription := c.Param("subscription")

	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	n := h.hub.Dispatch(subscription, payload)
	utils.SuccessResponse(c, http.StatusOK, "Event dispatched", DispatchResponse{
		Subscription: subscription,
		Listeners:    n,
	})
}

// Stats reports connected listeners per subscription
func (h *WebSocketHandler) Stats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket stats retrieved successfully", h.hub.Stats())
}
