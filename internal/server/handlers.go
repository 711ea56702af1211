package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/spendwatch/internal/event"
	"github.com/mbd888/spendwatch/internal/metrics"
	"github.com/mbd888/spendwatch/internal/pipeline"
)

// maxEventBody bounds a single posted stream record.
const maxEventBody = 1 << 20

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/readyz", s.handleReadyz)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		v1.POST("/events", s.handleIngestEvent)
		v1.GET("/flags", s.handleRecentFlags)
		v1.GET("/stats", s.handleStats)
		v1.GET("/feed", s.handleFeed)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleIngestEvent accepts one raw stream record per request. The record is
// processed exactly as a stream log line: detection first for purchases, then
// the event is applied. Rejected records have already been written to the
// invalid sink when the 400 goes out.
func (s *Server) handleIngestEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	line := strings.TrimRight(string(body), "\r\n")
	if line == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	s.pipeMu.Lock()
	rec, err := s.pipe.ProcessStreamLine(c.Request.Context(), line)
	s.pipeMu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrConfigMissing):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "batch phase not complete"})
		return
	case isRejection(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		s.logger.Error("event ingest failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{"flagged": rec != nil}
	if rec != nil {
		resp["flag"] = rec
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecentFlags(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	flags := s.ring.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"flags": flags, "count": len(flags)})
}

func (s *Server) handleStats(c *gin.Context) {
	s.pipeMu.Lock()
	stats := s.pipe.Stats()
	s.pipeMu.Unlock()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleFeed(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request)
}

// isRejection reports whether err is a per-record decode rejection.
func isRejection(err error) bool {
	return errors.Is(err, pipeline.ErrUnexpectedConfig) ||
		errors.Is(err, event.ErrMalformed) ||
		errors.Is(err, event.ErrSchema) ||
		errors.Is(err, event.ErrCoercion)
}
