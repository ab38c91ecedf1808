// Package webapi serves the travel search over plain HTTP for the web front end.
package webapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_travel/internal/engine"
	"github.com/anatolykoptev/go_travel/internal/toolutil"
	"github.com/gin-gonic/gin"
)

// searchRequest is the POST /search body.
type searchRequest struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Language string `json:"language"`
	Category string `json:"category"`
}

type searchResponse struct {
	Videos       []engine.Video `json:"videos"`
	Query        string         `json:"query"`
	Timestamp    string         `json:"timestamp"`
	TotalResults int            `json:"total_results"`
	Status       engine.Status  `json:"status"`
	Warning      string         `json:"warning,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Query     string `json:"query,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewRouter builds the gin engine with /search, /healthz and /metrics.
func NewRouter(s *toolutil.Searcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.POST("/search", searchHandler(s))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, engine.FormatMetrics(s.Cache))
	})
	return r
}

func searchHandler(s *toolutil.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Timestamp: timestamp()})
			return
		}

		out, err := s.Search(c.Request.Context(), engine.TravelSearchInput{
			Country:  req.Country,
			City:     req.City,
			Language: req.Language,
			Category: req.Category,
		})
		switch {
		case errors.Is(err, toolutil.ErrCountryRequired):
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Timestamp: timestamp()})
			return
		case err != nil:
			slog.Warn("webapi: search failed", slog.String("query", out.Query), slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, errorResponse{
				Error:     "failed to fetch videos",
				Query:     out.Query,
				Timestamp: timestamp(),
			})
			return
		}

		c.JSON(http.StatusOK, searchResponse{
			Videos:       out.Videos,
			Query:        out.Query,
			Timestamp:    timestamp(),
			TotalResults: out.TotalResults,
			Status:       out.Status,
			Warning:      out.Warning,
		})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("webapi: request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
