// Package search keeps a Meilisearch index of stations for name and
// address lookups.
package search

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/meilisearch/meilisearch-go"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

const indexName = "stations"

// Document is the indexed form of a station
type Document struct {
	StationID  string  `json:"stationId"`
	InternalID string  `json:"internalId"`
	PrefID     string  `json:"prefId"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Tel        string  `json:"tel"`
	Hours      string  `json:"hours"`
	URI        string  `json:"uri"`
	Mapcode    string  `json:"mapcode,omitempty"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// DocumentFromFeature flattens a dataset feature
func DocumentFromFeature(f models.StationFeature) Document {
	p := f.Properties
	return Document{
		StationID:  p.StationID,
		InternalID: p.InternalID,
		PrefID:     p.PrefID,
		Name:       p.Name,
		Address:    p.Address,
		Tel:        p.Tel,
		Hours:      p.Hours,
		URI:        p.URI,
		Mapcode:    p.Mapcode,
		Lat:        f.Geometry.Coordinates[1],
		Lng:        f.Geometry.Coordinates[0],
	}
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  indexName,
	}
}

// Healthy reports whether the server answers
func (s *SearchClient) Healthy() bool {
	return s.client.IsHealthy()
}

// InitIndex creates the index and its settings
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "stationId",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	if _, err := s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"name",
		"address",
		"mapcode",
	}); err != nil {
		return err
	}

	if _, err := s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"prefId",
		"stationId",
	}); err != nil {
		return err
	}

	return nil
}

// IndexStations replaces the indexed stations with fc
func (s *SearchClient) IndexStations(fc *models.StationsGeoJSON) error {
	if fc == nil || len(fc.Features) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(fc.Features))
	for _, f := range fc.Features {
		docs = append(docs, DocumentFromFeature(f))
	}

	idx := s.client.Index(s.index)
	if _, err := idx.DeleteAllDocuments(); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if _, err := idx.AddDocuments(docs, "stationId"); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Printf("[Search] Queued %d stations for indexing", len(docs))
	return nil
}

// SearchResult is one page of hits
type SearchResult struct {
	Hits           []Document `json:"hits"`
	TotalHits      int64      `json:"total_hits"`
	ProcessingTime int64      `json:"processing_time_ms"`
}

// Search runs query, optionally restricted to prefectures
func (s *SearchClient) Search(params FilterParams) (*SearchResult, error) {
	req := &meilisearch.SearchRequest{
		Limit:  params.PageSize(),
		Offset: params.Offset,
	}
	if f := params.Filter(); f != "" {
		req.Filter = f
	}

	res, err := s.client.Index(s.index).Search(params.Query, req)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Hits:           make([]Document, 0, len(res.Hits)),
		TotalHits:      res.EstimatedTotalHits,
		ProcessingTime: res.ProcessingTimeMs,
	}
	for _, hit := range res.Hits {
		doc, err := parseHit(hit)
		if err != nil {
			log.Printf("[Search] Warning: skipping unreadable hit: %v", err)
			continue
		}
		result.Hits = append(result.Hits, doc)
	}
	return result, nil
}

func parseHit(hit interface{}) (Document, error) {
	var doc Document
	raw, err := json.Marshal(hit)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(raw, &doc)
	return doc, err
}
