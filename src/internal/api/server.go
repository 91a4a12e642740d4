package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moodmeal/src/internal/gateway"

	"github.com/gin-gonic/gin"
)

const wsKeyLabel = "moodmeal-key"

type Server struct {
	Gateway *gateway.Gateway
	Engine  *gin.Engine
}

func NewServer(gw *gateway.Gateway) *Server {
	e := gin.Default()
	s := &Server{
		Gateway: gw,
		Engine:  e,
	}
	s.Engine.Use(s.corsMiddleware())
	s.Engine.Use(s.injectMiddleware())
	s.Engine.Use(s.authMiddleware())
	s.setupRoutesRest()
	s.setupRoutesWebSocket()
	s.setupRoutesAdmin()
	return s
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Server-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutesAdmin() {
	admin := s.Engine.Group("/api/admin/v1", s.adminMiddleware())
	{
		admin.GET("/health", s.handleAdminHealth)
		admin.GET("/config", s.handleGetConfig)
		admin.GET("/jobs", s.handleListJobs)
		admin.POST("/reindex", s.handleReindex)
		admin.GET("/users", s.handleListUsers)
	}
}

func (s *Server) setupRoutesWebSocket() {
	s.Engine.GET("/ws", s.handleWebsocket)
}

func (s *Server) setupRoutesRest() {
	v1 := s.Engine.Group("/api/v1")
	{
		v1.POST("/recommend", s.handleRecommend)
		v1.POST("/recommend/text", s.handleRecommendText)
		v1.GET("/moods", s.handleListMoods)
		v1.GET("/moods/resolve", s.handleResolveMood)
		v1.GET("/moods/suggest", s.handleSuggestMoods)
		v1.POST("/ratings", s.handleRate)
		v1.PUT("/users/:id/preferences", s.handleSetPreferences)
		v1.GET("/users/:id/preferences", s.handleGetPreferences)
		v1.GET("/users/:id/reminder", s.handleReminder)
		v1.POST("/users/:id/meals", s.handleLogMeal)
		v1.GET("/meals", s.handleListMeals)
		v1.GET("/meals/:id", s.handleGetMeal)
		v1.GET("/meals/:id/similar", s.handleSimilar)
		v1.GET("/stats", s.handleStats)
	}
}

func (s *Server) injectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("gateway", s.Gateway)
		c.Next()
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Admin endpoints use basic auth instead.
		if strings.HasPrefix(c.Request.URL.Path, "/api/admin/v1") {
			c.Next()
			return
		}

		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		gw := c.MustGet("gateway").(*gateway.Gateway)
		key := gw.Config.Server.Key
		if key == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Server-Key")

		isWebSocket := false
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			conn := strings.ToLower(c.GetHeader("Connection"))
			if strings.Contains(conn, "upgrade") {
				isWebSocket = true
			}
		}

		// Browsers cannot set headers on websocket handshakes, so the key may
		// arrive as a query parameter or as "moodmeal-key, <value>" subprotocols.
		if isWebSocket && provided == "" {
			provided = c.Query("token")
			if provided == "" {
				protocol := c.GetHeader("Sec-WebSocket-Protocol")
				if strings.Contains(protocol, wsKeyLabel) {
					parts := strings.Split(protocol, ",")
					for i, p := range parts {
						p = strings.TrimSpace(p)
						if p == wsKeyLabel && i+1 < len(parts) {
							provided = strings.TrimSpace(parts[i+1])
							c.Set("ws_key_protocol", true)
							break
						}
					}
				}
			}
		}

		if provided != key {
			slog.Warn("unauthorized request", "path", c.Request.URL.Path, "remote", c.ClientIP(), "provided", provided != "")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing server key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		gw := c.MustGet("gateway").(*gateway.Gateway)
		user := gw.Config.Server.AdminUser
		pass := gw.Config.Server.AdminPass

		// No admin password configured means no admin access.
		if user == "" || pass == "" {
			c.Header("WWW-Authenticate", `Basic realm="Admin Restricted"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		providedUser, providedPass, ok := c.Request.BasicAuth()
		if !ok || providedUser != user || providedPass != pass {
			c.Header("WWW-Authenticate", `Basic realm="Admin Restricted"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed && err != nil {
			slog.Error("server ListenAndServe error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if s.Gateway != nil {
			s.Gateway.Shutdown(context.Background())
		}
		return err
	}
	slog.Info("shutting down server...")

	ctxShut, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server graceful shutdown error", "error", err)
	}

	if s.Gateway != nil {
		s.Gateway.Shutdown(ctxShut)
	}

	slog.Info("server stopped")
	return nil
}
