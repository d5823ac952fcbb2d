package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pharmalink/pharmalink-backend/internal/handlers"
	"github.com/pharmalink/pharmalink-backend/internal/middleware"
)

type RouterConfig struct {
	HealthcheckHandler *handlers.HealthcheckHandler
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RequestHandler     *handlers.RequestHandler
	ChatHandler        *handlers.ChatHandler
	PharmacyHandler    *handlers.PharmacyHandler
	UploadHandler      *handlers.UploadHandler
	SSEHandler         *handlers.SSEHandler
	AdminHandler       *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	allowOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		allowOrigins = strings.Split(raw, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Admin-Key"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthz", cfg.HealthcheckHandler.Healthcheck)
	api := router.Group("/api")
	{
		api.POST("/auth/register", cfg.AuthHandler.Register)
		api.POST("/auth/login", cfg.AuthHandler.Login)
	}

	// Protected
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.GET("/me", cfg.AuthHandler.Me)
		protected.POST("/me/device-tokens", cfg.AuthHandler.AddDeviceToken)
		protected.DELETE("/me/device-tokens", cfg.AuthHandler.RemoveDeviceToken)

		protected.POST("/requests", cfg.RequestHandler.Create)
		protected.GET("/requests", cfg.RequestHandler.ListMine)
		protected.GET("/requests/nearby", cfg.RequestHandler.ListNearby)
		protected.GET("/requests/:id", cfg.RequestHandler.Get)
		protected.POST("/requests/:id/close", cfg.RequestHandler.Close)
		protected.POST("/requests/:id/responses", cfg.RequestHandler.SubmitResponse)
		protected.GET("/requests/:id/responses", cfg.RequestHandler.ListResponses)
		protected.GET("/requests/:id/responses/mine", cfg.RequestHandler.GetMyResponse)

		protected.GET("/chats", cfg.ChatHandler.ListMine)
		protected.GET("/chats/:id", cfg.ChatHandler.Get)
		protected.GET("/chats/:id/messages", cfg.ChatHandler.ListMessages)
		protected.POST("/chats/:id/messages", cfg.ChatHandler.SendMessage)

		protected.PATCH("/pharmacy/profile", cfg.PharmacyHandler.UpdateProfile)
		protected.POST("/pharmacy/online", cfg.PharmacyHandler.SetOnline)

		protected.POST("/uploads", cfg.UploadHandler.Upload)

		protected.GET("/stream", cfg.SSEHandler.Stream)
	}

	// Admin (shared-key fenced)
	admin := api.Group("/admin")
	admin.Use(cfg.AdminHandler.RequireKey())
	{
		admin.GET("/stats", cfg.AdminHandler.Stats)
		admin.GET("/requests", cfg.AdminHandler.ListRequests)
		admin.GET("/users", cfg.AdminHandler.ListUsers)
	}

	return router
}
