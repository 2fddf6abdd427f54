package router

import (
	"net/http"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/config"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/handlers"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine   *gin.Engine
	sessions *handlers.SessionHandler
	webhooks *handlers.WebhookHandler
	tokens   *handlers.TokenHandler
}

func NewRouter(cfg *config.Config, manager handlers.OTPManagerInterface, tokenService handlers.TokenServiceInterface) *Router {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if manager == nil {
		panic("manager cannot be nil")
	}
	if tokenService == nil {
		panic("token service cannot be nil")
	}

	r := &Router{
		engine:   gin.New(),
		sessions: handlers.NewSessionHandler(manager),
		webhooks: handlers.NewWebhookHandler(manager, tokenService),
		tokens:   handlers.NewTokenHandler(tokenService),
	}

	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestIDMiddleware())
	r.engine.Use(middleware.SecurityHeadersMiddleware())
	r.engine.Use(middleware.CORSMiddleware())
	r.engine.Use(middleware.RequestSizeLimitMiddleware(64 * 1024))
	r.engine.Use(middleware.AuditLogMiddleware())

	// Configure routes
	r.engine.GET("/health", r.sessions.Health)
	r.engine.NoRoute(r.handleNotFound)

	// Public webhook surface: the URL token is the authentication.
	webhookGroup := r.engine.Group("/webhook/sms")
	{
		webhookGroup.POST("/:token", r.webhooks.ReceiveSMS)
		webhookGroup.GET("/:token/status", r.webhooks.Status)
		webhookGroup.POST("/:token/test", r.webhooks.Test)

		webhookGroup.Handle(http.MethodGet, "/:token", r.handleMethodNotAllowed)
		webhookGroup.Handle(http.MethodPut, "/:token", r.handleMethodNotAllowed)
		webhookGroup.Handle(http.MethodDelete, "/:token", r.handleMethodNotAllowed)
		webhookGroup.Handle(http.MethodPatch, "/:token", r.handleMethodNotAllowed)
	}

	apiGroup := r.engine.Group("/api")
	apiGroup.Use(middleware.AuthMiddleware(cfg))
	{
		apiGroup.POST("/sessions", r.sessions.Register)
		apiGroup.DELETE("/sessions/:id", r.sessions.Unregister)
		apiGroup.POST("/sessions/:id/wait", r.sessions.Wait)
		apiGroup.POST("/sessions/:id/otp", r.sessions.ManualOTP)

		apiGroup.POST("/tokens", r.tokens.Register)
		apiGroup.DELETE("/tokens/:token", r.tokens.Revoke)

		apiGroup.Handle(http.MethodGet, "/sessions", r.handleMethodNotAllowed)
		apiGroup.Handle(http.MethodPut, "/sessions", r.handleMethodNotAllowed)
		apiGroup.Handle(http.MethodGet, "/tokens", r.handleMethodNotAllowed)
		apiGroup.Handle(http.MethodPut, "/tokens", r.handleMethodNotAllowed)
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

func (r *Router) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

func (r *Router) handleMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
