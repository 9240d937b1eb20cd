package handlers

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/last-emo-boy/market-smoke/pkg/database"
)

// SystemHandler handles health, info and smoke run history endpoints
type SystemHandler struct {
	db        *database.DB
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db *database.DB) *SystemHandler {
	return &SystemHandler{
		db:        db,
		startTime: time.Now(),
	}
}

// HealthCheck returns the health status of the server
func (h *SystemHandler) HealthCheck(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  "connected",
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSystemInfo returns runtime and database statistics
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats, err := h.db.GetStats()
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get database stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"uptime":     time.Since(h.startTime).String(),
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		"memory": gin.H{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"gc_runs":     m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"database":   stats,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns the most recent smoke runs recorded in this database
func (h *SystemHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		fail(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	runs, err := h.db.RunRepository().ListRecent(limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to fetch smoke runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs, "total": len(runs)})
}

// GetRun returns one smoke run with its steps
func (h *SystemHandler) GetRun(c *gin.Context) {
	run, err := h.db.RunRepository().GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "Smoke run not found")
			return
		}
		fail(c, http.StatusInternalServerError, "Failed to fetch smoke run")
		return
	}

	steps, err := h.db.StepRepository().ListByRun(run.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to fetch smoke steps")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "run": run, "steps": steps})
}
