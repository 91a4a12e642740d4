package api

import (
	"net/http"
	"time"

	"moodmeal/src/internal/gateway"
	"moodmeal/src/internal/recommend"
	"moodmeal/src/internal/system"

	"github.com/gin-gonic/gin"
)

type adminHealthResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Uptime      string          `json:"uptime"`
	System      system.Info     `json:"system"`
	Stats       recommend.Stats `json:"stats"`
	VectorCache int             `json:"vector_cache"`
	LastScan    *time.Time      `json:"last_reminder_scan,omitempty"`
}

func (s *Server) handleAdminHealth(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	resp := adminHealthResponse{
		Status:      "ok",
		Message:     "Admin API is operational",
		Uptime:      gw.Uptime().Round(time.Second).String(),
		System:      system.GetInfo(),
		Stats:       gw.Engine.Stats(),
		VectorCache: gw.VectorCacheSize(),
	}
	if scan, ok := gw.LastReminderScan(); ok {
		resp.LastScan = &scan.LastRun
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gw.Config.Redacted())
}

func (s *Server) handleListJobs(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gin.H{"jobs": gw.Jobs()})
}

func (s *Server) handleReindex(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	start := time.Now()
	if err := gw.Reindex(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "reindexed",
		"meals":    gw.Index.Len(),
		"duration": time.Since(start).String(),
	})
}

func (s *Server) handleListUsers(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gin.H{"users": gw.Preferences.Users()})
}
