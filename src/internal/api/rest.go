package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/gateway"
	"moodmeal/src/internal/preference"
	"moodmeal/src/internal/recommend"

	"github.com/gin-gonic/gin"
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recommend.ErrEmptyIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, recommend.ErrNoCandidates),
		errors.Is(err, recommend.ErrUnknownMeal),
		errors.Is(err, recommend.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, recommend.ErrInvalidRating),
		errors.Is(err, recommend.ErrInvalidInput),
		errors.Is(err, embedding.ErrZeroVector):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// writeMaybePersisted answers 200 with body, or 202 with a warning when the
// change was applied in memory but could not be saved.
func writeMaybePersisted(c *gin.Context, body gin.H, err error) {
	if err == nil {
		c.JSON(http.StatusOK, body)
		return
	}
	if errors.Is(err, preference.ErrPersist) {
		slog.Warn("change not persisted", "path", c.Request.URL.Path, "error", err)
		body["warning"] = err.Error()
		c.JSON(http.StatusAccepted, body)
		return
	}
	writeError(c, err)
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) handleRecommend(c *gin.Context) {
	var q recommend.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	results, err := gw.Engine.Recommend(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleRecommendText(c *gin.Context) {
	var q recommend.TextQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	out, err := gw.Engine.RecommendText(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListMoods(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gin.H{"moods": gw.Taxonomy.Moods()})
}

func (s *Server) handleResolveMood(c *gin.Context) {
	label := c.Query("label")
	if label == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label query param required"})
		return
	}
	gw := c.MustGet("gateway").(*gateway.Gateway)
	r := gw.Engine.ResolveMood(c.Request.Context(), label)
	c.JSON(http.StatusOK, gin.H{
		"label":      label,
		"primary":    r.Primary,
		"secondary":  r.Secondary,
		"method":     r.Method,
		"score":      r.Score,
		"confident": r.Confident(),
	})
}

func (s *Server) handleSuggestMoods(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	gw := c.MustGet("gateway").(*gateway.Gateway)
	out, err := gw.Engine.SuggestMoods(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

func (s *Server) handleRate(c *gin.Context) {
	var r recommend.Rating
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	ev, err := gw.Engine.Rate(c.Request.Context(), r)
	writeMaybePersisted(c, gin.H{"status": "success", "event": ev}, err)
}

type preferencesRequest struct {
	DietaryRestrictions []string `json:"dietary_restrictions"`
	CulturalPreferences []string `json:"cultural_preferences"`
}

func (s *Server) handleSetPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	p, err := gw.Engine.SetRestrictions(c.Request.Context(), c.Param("id"), req.DietaryRestrictions, req.CulturalPreferences)
	writeMaybePersisted(c, gin.H{"status": "success", "profile": p}, err)
}

func (s *Server) handleGetPreferences(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	p, ok := gw.Engine.Profile(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User preferences not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleReminder(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	r, err := gw.Engine.CheckReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleLogMeal(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	at, err := gw.Engine.LogMeal(c.Request.Context(), c.Param("id"))
	writeMaybePersisted(c, gin.H{"status": "success", "last_meal_at": at}, err)
}

func (s *Server) handleListMeals(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gin.H{"meals": gw.Catalog.All()})
}

func (s *Server) handleGetMeal(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	pos, ok := gw.Catalog.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
		return
	}
	c.JSON(http.StatusOK, gw.Catalog.At(pos))
}

func (s *Server) handleSimilar(c *gin.Context) {
	k, ok := queryInt(c, "k", 0)
	if !ok {
		return
	}
	gw := c.MustGet("gateway").(*gateway.Gateway)
	results, err := gw.Engine.FindSimilar(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meal_id": c.Param("id"), "results": results})
}

func (s *Server) handleStats(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gw.Engine.Stats())
}
