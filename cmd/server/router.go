package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/roomchat/internal/handlers"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Rooms       *handlers.RoomHandler
	Messages    *handlers.HTTPMessageHandler
	WebSocket   *handlers.WebSocketHandler
	RequireAuth gin.HandlerFunc
	Metrics     http.Handler
}

func APIEndpoints(r *gin.Engine, h Handlers) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "roomchat API is running"})
	})
	r.GET("/metrics", gin.WrapH(h.Metrics))
	r.GET("/ws", h.WebSocket.HandleWebSocket)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", h.RequireAuth, h.Auth.Logout)
		authGroup.GET("/me", h.RequireAuth, h.Auth.Me)
	}

	protected := api.Group("", h.RequireAuth)
	{
		protected.GET("/rooms", h.Rooms.ListRooms)
		protected.GET("/messages/:roomId", h.Messages.GetRoomMessages)
		protected.POST("/messages", h.Messages.SendMessage)
	}
}
