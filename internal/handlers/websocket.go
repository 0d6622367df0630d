package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/thereayou/roomchat/pkg/auth"

	ws "github.com/thereayou/roomchat/internal/websocket"
)

type WebSocketHandler struct {
	gateway  *ws.Gateway
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWebSocketHandler checks upgrade origins against the same list as CORS.
func NewWebSocketHandler(gateway *ws.Gateway, allowedOrigins []string, log *slog.Logger) *WebSocketHandler {
	origins := cors.New(cors.Options{AllowedOrigins: allowedOrigins})
	return &WebSocketHandler{
		gateway: gateway,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.OriginAllowed(r)
			},
		},
	}
}

// HandleWebSocket authenticates before upgrading, so a bad token gets a plain
// 401 and never reaches the registry.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token, err := auth.ExtractToken(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	session, err := h.gateway.Accept(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "err", err)
		session.Close()
		return
	}

	session.Run(c.Request.Context(), ws.NewConnTransport(conn))
}
