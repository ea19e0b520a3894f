package handlers

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/metrics"
	"github.com/tk0miya/roadside-station-maps/internal/station"
	"github.com/tk0miya/roadside-station-maps/internal/storage"
	"github.com/tk0miya/roadside-station-maps/internal/style"
)

var errNoProfile = errors.New("profile is required")

// StyleHandler serves the visit styles of a profile or a shared link
type StyleHandler struct {
	backend   storage.Backend
	catalog   *station.Catalog
	timeout   time.Duration
	shareBase string
	shared    gcache.Cache
}

// NewStyleHandler creates a new style handler
func NewStyleHandler(backend storage.Backend, catalog *station.Catalog, cfg *config.Config) *StyleHandler {
	size := cfg.Cache.Size
	if size <= 0 {
		size = 1024
	}
	builder := gcache.New(size).LRU()
	if ttl := cfg.Cache.GetTTL(); ttl > 0 {
		builder = builder.Expiration(ttl)
	}

	return &StyleHandler{
		backend:   backend,
		catalog:   catalog,
		timeout:   cfg.Database.GetTimeout(),
		shareBase: cfg.Share.BaseURL,
		shared:    builder.Build(),
	}
}

// manager builds the Manager for one request against ds. Shared payloads
// are decoded once per dataset and cloned so mutations never leak between
// requests.
func (h *StyleHandler) manager(c *gin.Context, ds station.Dataset) (*style.Manager, error) {
	params := c.Request.URL.Query()

	if storage.IsShared(params) {
		q := storage.QueriesFromValues(params)
		key := ds.Checksum + "|" + q.Values().Encode()

		if cached, err := h.shared.Get(key); err == nil {
			metrics.SharedCacheHitsTotal.Inc()
			m := style.NewManager(cached.(*storage.QueryStore).Clone())
			m.SetIndex(ds.Index)
			return m, nil
		}

		m := style.FromQuery(params, nil)
		m.SetIndex(ds.Index)
		if qs, ok := m.Store().(*storage.QueryStore); ok {
			if err := h.shared.Set(key, qs.Clone()); err != nil {
				log.Printf("[Styles] Warning: failed to cache shared payload: %v", err)
			}
		}
		return m, nil
	}

	profile, err := parseProfile(params)
	if err != nil {
		return nil, err
	}
	durable := storage.NewDurable(h.backend, profile, h.timeout).WithContext(c.Request.Context())
	m := style.FromQuery(params, durable)
	m.SetIndex(ds.Index)
	return m, nil
}

func parseProfile(params url.Values) (string, error) {
	raw := params.Get("profile")
	if raw == "" {
		return "", errNoProfile
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("profile must be a UUID")
	}
	return id.String(), nil
}

func (h *StyleHandler) managerOrAbort(c *gin.Context) (*style.Manager, station.Dataset, bool) {
	ds := h.catalog.Snapshot()
	m, err := h.manager(c, ds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, ds, false
	}
	return m, ds, true
}

// CreateProfile issues a new profile id
func (h *StyleHandler) CreateProfile(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"profile": uuid.NewString()})
}

// GetStyles returns every styled station and the style counts
func (h *StyleHandler) GetStyles(c *gin.Context) {
	m, ds, ok := h.managerOrAbort(c)
	if !ok {
		return
	}
	idx := ds.Index

	c.JSON(http.StatusOK, gin.H{
		"styles": m.Styles(),
		"counts": m.CountByStyle(idx.Len()),
		"shared": m.Shared(),
		"total":  idx.Len(),
	})
}

// GetStyle returns the style of one station
func (h *StyleHandler) GetStyle(c *gin.Context) {
	m, ds, ok := h.managerOrAbort(c)
	if !ok {
		return
	}
	id := c.Param("stationId")
	if !known(ds.Index, id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Station not found"})
		return
	}

	s := m.GetStyle(style.StationID(id))
	c.JSON(http.StatusOK, gin.H{
		"stationId": id,
		"style":     s,
		"icon":      s.Icon(),
	})
}

// ChangeStyle advances a station to its next style
func (h *StyleHandler) ChangeStyle(c *gin.Context) {
	h.mutate(c, "change", func(m *style.Manager, id string) style.Style {
		return m.ChangeStyle(style.StationID(id))
	})
}

// ResetStyle clears a station back to unvisited
func (h *StyleHandler) ResetStyle(c *gin.Context) {
	h.mutate(c, "reset", func(m *style.Manager, id string) style.Style {
		return m.ResetStyle(style.StationID(id))
	})
}

func (h *StyleHandler) mutate(c *gin.Context, action string, apply func(*style.Manager, string) style.Style) {
	m, ds, ok := h.managerOrAbort(c)
	if !ok {
		return
	}
	// Shared views are read-only
	if m.Shared() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Shared views cannot be modified"})
		return
	}
	id := c.Param("stationId")
	if !known(ds.Index, id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Station not found"})
		return
	}

	s := apply(m, id)
	metrics.StyleChangesTotal.WithLabelValues(action).Inc()
	c.JSON(http.StatusOK, gin.H{
		"stationId": id,
		"style":     s,
		"icon":      s.Icon(),
	})
}

// GetCounts returns the number of stations per style
func (h *StyleHandler) GetCounts(c *gin.Context) {
	m, ds, ok := h.managerOrAbort(c)
	if !ok {
		return
	}
	idx := ds.Index
	c.JSON(http.StatusOK, gin.H{
		"counts": m.CountByStyle(idx.Len()),
		"total":  idx.Len(),
	})
}

// GetShareLink serializes the current styles into a shared link
func (h *StyleHandler) GetShareLink(c *gin.Context) {
	m, ds, ok := h.managerOrAbort(c)
	if !ok {
		return
	}
	idx := ds.Index
	if idx.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Station dataset not loaded"})
		return
	}

	q, err := m.ToQuery()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	base := c.DefaultQuery("base", h.shareBase)
	metrics.ShareLinksTotal.Inc()
	c.JSON(http.StatusOK, gin.H{
		"queries": q,
		"url":     style.ShareURL(base, q),
	})
}

// known accepts any id until a dataset is loaded
func known(idx *station.Index, id string) bool {
	return idx.Len() == 0 || idx.Contains(id)
}
