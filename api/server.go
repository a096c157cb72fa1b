// Package api exposes the chat operations over REST and server-sent events.
package api

import (
	"chathub/projection"
	"chathub/repositories"
	"chathub/services"
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the handlers onto a gin engine with CORS and the Bearer
// auth middleware on everything except register/login.
func NewRouter(
	log *slog.Logger,
	authService services.IAuthService,
	chatService services.IChatService,
	users repositories.IUserRepository,
	messages projection.MessageSource,
	frontendURL string,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{frontendURL}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	h := NewHandler(log, authService, chatService, users, messages)

	root := r.Group("/api")
	root.POST("/auth/register", h.Register)
	root.POST("/auth/login", h.Login)

	authed := root.Group("", AuthMiddleware(authService))
	authed.GET("/users", h.ListUsers)
	authed.POST("/messages", h.SendMessage)
	authed.GET("/rooms", h.ListRooms)
	authed.POST("/rooms/group", h.OpenGroupChat)
	authed.POST("/rooms/:id/leave", h.LeaveChatRoom)
	authed.GET("/rooms/:id/messages", h.History)
	authed.GET("/rooms/:id/stream", h.StreamTimeline)

	return r
}
