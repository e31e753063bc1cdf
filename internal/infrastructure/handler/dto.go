package handler

import (
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/application/service"
	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
)

// StatusFields tells callers how fresh the served data is
type StatusFields struct {
	LastUpdated *string `json:"last_updated"`
	IsOffline   bool    `json:"is_offline"`
	MockMode    bool    `json:"mock_mode"`
	CacheAge    string  `json:"cache_age"`
}

// RatesResponse represents the response for the latest rates endpoints
type RatesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
	StatusFields
}

// RateResponse represents the response for the single pair endpoint
type RateResponse struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
	StatusFields
}

// ConvertResponse represents the response for the conversion endpoint
type ConvertResponse struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	Amount          float64 `json:"amount"`
	ConvertedAmount float64 `json:"converted_amount"`
	StatusFields
}

// HistoricalPointResponse is one day of a historical series
type HistoricalPointResponse struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// HistoryResponse represents the response for the historical rates endpoint
type HistoryResponse struct {
	From   string                    `json:"from"`
	To     string                    `json:"to"`
	Days   int                       `json:"days"`
	Points []HistoricalPointResponse `json:"points"`
	StatusFields
}

// SetModeRequest represents the request body for switching the rate source
type SetModeRequest struct {
	Mock *bool `json:"mock"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Status      int    `json:"status"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func newStatusFields(status service.Status) StatusFields {
	fields := StatusFields{
		IsOffline: status.IsOffline,
		MockMode:  status.MockMode,
		CacheAge:  status.CacheAge,
	}
	if status.LastUpdated != nil {
		formatted := status.LastUpdated.UTC().Format(time.RFC3339)
		fields.LastUpdated = &formatted
	}
	return fields
}

func newHistoricalPoints(points []entity.HistoricalPoint) []HistoricalPointResponse {
	out := make([]HistoricalPointResponse, len(points))
	for i, p := range points {
		out[i] = HistoricalPointResponse{
			Date: p.Date.Format(entity.DateLayout),
			Rate: p.Rate,
		}
	}
	return out
}
