package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tk0miya/roadside-station-maps/internal/search"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// Searcher answers station searches
type Searcher interface {
	Search(params search.FilterParams) (*search.SearchResult, error)
}

// StationHandler serves the station dataset
type StationHandler struct {
	catalog  *station.Catalog
	searcher Searcher
}

// NewStationHandler creates a new station handler. searcher may be nil,
// in which case searches scan the loaded dataset.
func NewStationHandler(catalog *station.Catalog, searcher Searcher) *StationHandler {
	return &StationHandler{catalog: catalog, searcher: searcher}
}

// GetStations returns the current GeoJSON dataset
func (h *StationHandler) GetStations(c *gin.Context) {
	ds := h.catalog.Snapshot()
	if ds.Checksum != "" {
		etag := `"` + ds.Checksum + `"`
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	c.JSON(http.StatusOK, ds.Stations)
}

// SearchStations finds stations by name or address
func (h *StationHandler) SearchStations(c *gin.Context) {
	params := search.FilterParams{Query: strings.TrimSpace(c.Query("q"))}
	if pref := c.Query("pref"); pref != "" {
		params.PrefIDs = strings.Split(pref, ",")
	}
	params.Limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	params.Offset, _ = strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)

	if h.searcher != nil {
		result, err := h.searcher.Search(params)
		if err == nil {
			c.JSON(http.StatusOK, result)
			return
		}
		log.Printf("[Stations] Warning: search failed, scanning dataset: %v", err)
	}

	c.JSON(http.StatusOK, h.scan(params))
}

// scan matches the loaded dataset by substring
func (h *StationHandler) scan(params search.FilterParams) *search.SearchResult {
	fc, _ := h.catalog.Current()

	prefs := make(map[string]bool)
	for _, p := range params.PrefIDs {
		if p = strings.TrimSpace(p); p != "" {
			prefs[p] = true
		}
	}

	var hits []search.Document
	for _, f := range fc.Features {
		p := f.Properties
		if len(prefs) > 0 && !prefs[p.PrefID] {
			continue
		}
		if params.Query != "" && !strings.Contains(p.Name, params.Query) && !strings.Contains(p.Address, params.Query) {
			continue
		}
		hits = append(hits, search.DocumentFromFeature(f))
	}

	result := &search.SearchResult{TotalHits: int64(len(hits)), Hits: []search.Document{}}
	start := min(int(max(params.Offset, 0)), len(hits))
	end := min(start+int(params.PageSize()), len(hits))
	result.Hits = append(result.Hits, hits[start:end]...)
	return result
}
