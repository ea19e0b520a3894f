package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tk0miya/roadside-station-maps/internal/cleanup"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/ratelimit"
	"github.com/tk0miya/roadside-station-maps/internal/scheduler"
	"github.com/tk0miya/roadside-station-maps/internal/snapshot"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// DeleteLogReader lists pruned style entries
type DeleteLogReader interface {
	RecentDeletions(ctx context.Context, limit int) ([]models.DeleteLog, error)
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	catalog          *station.Catalog
	deleteLogs       DeleteLogReader
	scheduler        *scheduler.Scheduler
	snapshotService  *snapshot.Service
	cleanupService   *cleanup.Service
	rateLimiter      *ratelimit.RateLimiter
	maxDeletionCount int
}

// NewAdminHandler creates a new admin handler. sched, snapshots and
// deleteLogs may be nil.
func NewAdminHandler(catalog *station.Catalog, sched *scheduler.Scheduler, snapshots *snapshot.Service, cleaner *cleanup.Service, deleteLogs DeleteLogReader, rl *ratelimit.RateLimiter, maxDeletionCount int) *AdminHandler {
	return &AdminHandler{
		catalog:          catalog,
		deleteLogs:       deleteLogs,
		scheduler:        sched,
		snapshotService:  snapshots,
		cleanupService:   cleaner,
		rateLimiter:      rl,
		maxDeletionCount: maxDeletionCount,
	}
}

// GetStats returns dataset and refresh statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ds := h.catalog.Snapshot()
	stats := gin.H{
		"dataset": gin.H{
			"checksum":   ds.Checksum,
			"features":   len(ds.Stations.Features),
			"stations":   ds.Index.Len(),
			"updated_at": ds.UpdatedAt,
		},
	}
	if h.scheduler != nil {
		stats["refresh"] = h.scheduler.Status()
	}
	c.JSON(http.StatusOK, stats)
}

// TriggerRefresh manually starts a dataset refresh
func (h *AdminHandler) TriggerRefresh(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}
	if h.scheduler.Status().Running {
		c.JSON(http.StatusConflict, gin.H{"error": scheduler.ErrAlreadyRunning.Error()})
		return
	}

	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	log.Printf("[Admin] Manual refresh trigger requested (force: %v)", force)

	// Run in goroutine to avoid blocking
	go func() {
		if _, err := h.scheduler.RunNow(context.Background(), scheduler.RunOptions{Force: force}); err != nil {
			log.Printf("[Admin] Manual refresh failed: %v", err)
		} else {
			log.Println("[Admin] Manual refresh completed successfully")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Refresh job started",
		"status":  "running",
		"force":   force,
	})
}

// GetRefreshStatus returns the refresh job state
func (h *AdminHandler) GetRefreshStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// RunCleanup prunes stale style entries from one or every profile
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	config := cleanup.DefaultCleanupConfig()
	if h.maxDeletionCount > 0 {
		config.MaxDeletionCount = h.maxDeletionCount
	}
	if v := c.Query("max_deletion_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxDeletionCount = n
		}
	}
	config.DryRun = c.DefaultQuery("dry_run", "true") != "false"

	profile := c.Query("profile")
	if profile != "" {
		id, err := parseProfile(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile = id
	}

	log.Printf("[Admin] Running cleanup (profile: %q, max: %d, dry-run: %v)",
		profile, config.MaxDeletionCount, config.DryRun)

	_, idx := h.catalog.Current()
	var (
		result *cleanup.CleanupResult
		err    error
	)
	if profile != "" {
		result, err = h.cleanupService.PruneProfile(c.Request.Context(), profile, idx, config)
	} else {
		result, err = h.cleanupService.PruneAll(c.Request.Context(), idx, config)
	}
	if errors.Is(err, cleanup.ErrNoStations) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("[Admin] Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] Cleanup completed: %d/%d deleted (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.DryRun)

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	if h.deleteLogs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Delete logs not available (MySQL/GORM required)",
		})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.deleteLogs.RecentDeletions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetSnapshots returns recent dataset snapshots
func (h *AdminHandler) GetSnapshots(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	snapshots, err := h.snapshotService.GetRecentSnapshots(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// GetSnapshotChanges returns the changes recorded with one snapshot
func (h *AdminHandler) GetSnapshotChanges(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot id"})
		return
	}

	changes, err := h.snapshotService.GetChanges(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": id,
		"changes":     changes,
		"count":       len(changes),
	})
}

// GetStationHistory returns the recorded changes of one station
func (h *AdminHandler) GetStationHistory(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	stationID := c.Param("stationId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	changes, err := h.snapshotService.GetStationHistory(stationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"changes":    changes,
		"count":      len(changes),
	})
}

// GetRateLimitStats returns rate limiter usage for the caller
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	key := c.DefaultQuery("client", c.ClientIP())
	c.JSON(http.StatusOK, h.rateLimiter.GetStats(key))
}

func (h *AdminHandler) requireSnapshots(c *gin.Context) bool {
	if h.snapshotService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Snapshot history not available (MySQL/GORM required)",
		})
		return false
	}
	return true
}
