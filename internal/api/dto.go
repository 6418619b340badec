package api

import (
	"time"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/service"
)

type searchResponse struct {
	Query         string          `json:"query"`
	Results       []catalog.Entry `json:"results"`
	Count         int             `json:"count"`
	SearchSeconds float64         `json:"search_seconds"`
	AIEnabled     bool            `json:"ai_enabled"`
}

func toSearchDTO(query string, result service.SearchResult) searchResponse {
	entries := result.Entries
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return searchResponse{
		Query:         query,
		Results:       entries,
		Count:         len(entries),
		SearchSeconds: result.SearchSeconds,
		AIEnabled:     result.AIEnabled,
	}
}

type historyDTO struct {
	Store      string    `json:"store"`
	Price      float64   `json:"price"`
	IsFree     bool      `json:"is_free"`
	ObservedAt time.Time `json:"observed_at"`
}

func toHistoryDTOs(in []catalog.PriceHistoryEntry) []historyDTO {
	out := make([]historyDTO, 0, len(in))
	for _, e := range in {
		out = append(out, historyDTO{
			Store:      string(e.Store),
			Price:      e.Price,
			IsFree:     e.IsFree,
			ObservedAt: e.ObservedAt,
		})
	}
	return out
}
