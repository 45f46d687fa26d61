package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pulseengine/pulse/internal/orchestrator"
	"github.com/pulseengine/pulse/pkg/logging"
	"github.com/pulseengine/pulse/pkg/metrics"
	"github.com/pulseengine/pulse/pkg/types"
)

// Server serves the read-only query surface for dashboards.
type Server struct {
	engine  *orchestrator.Engine
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewServer creates the HTTP query server over an engine.
func NewServer(engine *orchestrator.Engine, m *metrics.Metrics) *Server {
	return &Server{
		engine:  engine,
		metrics: m,
		logger:  logging.GetLogger(),
	}
}

// Router builds the gin router with all query routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/entities/:id/health", s.entityHealth)
		v1.GET("/entities/:id/related", s.relatedEntities)
		v1.GET("/alerts", s.activeAlerts)
		v1.GET("/needs", s.needs)
	}

	return router
}

func (s *Server) healthz(c *gin.Context) {
	cycleID, completedAt, ok := s.engine.LastCycle()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "starting",
			"reason": "no cycle has completed yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"last_cycle_id":      cycleID,
		"last_cycle_at":      completedAt.Format(time.RFC3339),
		"seconds_since_last": int(time.Since(completedAt).Seconds()),
	})
}

func (s *Server) entityHealth(c *gin.Context) {
	entityID := c.Param("id")
	report, err := s.engine.GetEntityHealth(entityID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}

	// Stale sources kick off a lazy background refresh; the response itself
	// still serves the published snapshot.
	for _, f := range report.Freshness {
		if f.Stale {
			go s.engine.RefreshEntity(context.Background(), entityID)
			break
		}
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) relatedEntities(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entityID := c.Param("id")
	edges := s.engine.GetRelatedEntities(entityID, limit)

	ids := []string{entityID}
	for _, e := range edges {
		ids = append(ids, e.Other(entityID))
	}

	cycleID, completedAt, _ := s.engine.LastCycle()
	c.JSON(http.StatusOK, gin.H{
		"entity_id":    entityID,
		"related":      edges,
		"freshness":    s.engine.GetFreshness(ids...),
		"cycle_id":     cycleID,
		"completed_at": completedAt.Format(time.RFC3339),
	})
}

func (s *Server) activeAlerts(c *gin.Context) {
	alerts := s.engine.GetActiveAlerts()

	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if a.EntityID != "" {
			ids = append(ids, a.EntityID)
		}
	}

	cycleID, completedAt, _ := s.engine.LastCycle()
	c.JSON(http.StatusOK, gin.H{
		"alerts":       alerts,
		"freshness":    s.engine.GetFreshness(ids...),
		"cycle_id":     cycleID,
		"completed_at": completedAt.Format(time.RFC3339),
	})
}

func (s *Server) needs(c *gin.Context) {
	filter := orchestrator.NeedFilter{
		EntityID: c.Query("entity_id"),
	}

	if raw := c.Query("priority"); raw != "" {
		priority, ok := types.ParsePriority(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority: " + raw})
			return
		}
		filter.Priority = &priority
	}

	needs := s.engine.GetNeeds(filter)

	ids := make([]string, 0, len(needs))
	for _, n := range needs {
		ids = append(ids, n.EntityID)
	}

	cycleID, completedAt, _ := s.engine.LastCycle()
	c.JSON(http.StatusOK, gin.H{
		"needs":        needs,
		"freshness":    s.engine.GetFreshness(ids...),
		"cycle_id":     cycleID,
		"completed_at": completedAt.Format(time.RFC3339),
	})
}
