// Package handler internal/infrastructure/handler/rate_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/damon-houk/fx-rate-engine/internal/application/service"
	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

// DefaultHistoryDays is used when the days query parameter is absent
const DefaultHistoryDays = 30

// RateHandler handles HTTP requests for exchange rates
type RateHandler struct {
	service *service.RateService
	logger  logger.Logger
}

// NewRateHandler creates a new rate handler
func NewRateHandler(service *service.RateService, log logger.Logger) *RateHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &RateHandler{
		service: service,
		logger:  log,
	}
}

// GetLatestRates handles retrieving the latest rate table
func (h *RateHandler) GetLatestRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	table, err := h.service.FetchLatestRates(r.Context())
	if err != nil {
		h.handleServiceError(w, err, requestID, nil)
		return
	}

	h.logger.Debug("Latest rates served", map[string]interface{}{
		"request_id": requestID,
		"currencies": len(table),
	})

	writeJSON(w, http.StatusOK, RatesResponse{
		Base:         h.service.BaseCurrency(),
		Rates:        table,
		StatusFields: newStatusFields(h.service.Status()),
	})
}

// RefreshRates handles a forced synchronous refresh
func (h *RateHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	h.logger.Info("Handling forced refresh", map[string]interface{}{
		"request_id": requestID,
	})

	table, err := h.service.ForceRefresh(r.Context())
	if err != nil {
		h.handleServiceError(w, err, requestID, nil)
		return
	}

	writeJSON(w, http.StatusOK, RatesResponse{
		Base:         h.service.BaseCurrency(),
		Rates:        table,
		StatusFields: newStatusFields(h.service.Status()),
	})
}

// GetRate handles retrieving the rate of one currency pair
func (h *RateHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	vars := mux.Vars(r)
	from, to := entity.NormalizeCode(vars["from"]), entity.NormalizeCode(vars["to"])

	rate, err := h.service.GetRate(r.Context(), from, to)
	if err != nil {
		h.handleServiceError(w, err, requestID, map[string]interface{}{
			"from": from,
			"to":   to,
		})
		return
	}

	writeJSON(w, http.StatusOK, RateResponse{
		From:         from,
		To:           to,
		Rate:         rate,
		StatusFields: newStatusFields(h.service.Status()),
	})
}

// Convert handles converting an amount between two currencies
func (h *RateHandler) Convert(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	from, to := entity.NormalizeCode(query.Get("from")), entity.NormalizeCode(query.Get("to"))
	if from == "" || to == "" {
		sendErrorResponse(w, h.logger, "Missing currency parameter",
			"The 'from' and 'to' query parameters are required", http.StatusBadRequest, requestID)
		return
	}

	rawAmount := query.Get("amount")
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		h.logger.Warn("Invalid amount", map[string]interface{}{
			"request_id": requestID,
			"amount":     rawAmount,
		})
		sendErrorResponse(w, h.logger, "Invalid amount",
			"The 'amount' query parameter must be a finite number", http.StatusBadRequest, requestID)
		return
	}

	converted, err := h.service.Convert(r.Context(), amount, from, to)
	if err != nil {
		h.handleServiceError(w, err, requestID, map[string]interface{}{
			"from":   from,
			"to":     to,
			"amount": amount,
		})
		return
	}

	h.logger.Info("Amount converted", map[string]interface{}{
		"request_id":       requestID,
		"from":             from,
		"to":               to,
		"amount":           amount,
		"converted_amount": converted,
	})

	writeJSON(w, http.StatusOK, ConvertResponse{
		From:            from,
		To:              to,
		Amount:          amount,
		ConvertedAmount: converted,
		StatusFields:    newStatusFields(h.service.Status()),
	})
}

// GetHistory handles retrieving a daily series for a currency pair
func (h *RateHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	vars := mux.Vars(r)
	from, to := entity.NormalizeCode(vars["from"]), entity.NormalizeCode(vars["to"])

	days := DefaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			sendErrorResponse(w, h.logger, "Invalid days",
				"The 'days' query parameter must be a whole number", http.StatusBadRequest, requestID)
			return
		}
		days = parsed
	}

	points, err := h.service.FetchHistoricalRates(r.Context(), from, to, days)
	if err != nil {
		h.handleServiceError(w, err, requestID, map[string]interface{}{
			"from": from,
			"to":   to,
			"days": days,
		})
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		From:         from,
		To:           to,
		Days:         days,
		Points:       newHistoricalPoints(points),
		StatusFields: newStatusFields(h.service.Status()),
	})
}

// SetMode handles switching between remote and mock data
func (h *RateHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req SetModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mock == nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			`The request body must be JSON of the form {"mock": true}`, http.StatusBadRequest, requestID)
		return
	}

	h.service.SetMockMode(*req.Mock)

	writeJSON(w, http.StatusOK, newStatusFields(h.service.Status()))
}

// ClearCache handles dropping every cached and stored rate
func (h *RateHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if err := h.service.ClearCache(r.Context()); err != nil {
		h.logger.Error("Failed to clear cache", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Internal server error",
			"The cache could not be cleared", http.StatusInternalServerError, requestID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles retrieving the freshness status
func (h *RateHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusFields(h.service.Status()))
}

// RegisterRoutes registers the rate handler routes
func (h *RateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rates", h.GetLatestRates).Methods("GET")
	router.HandleFunc("/rates/refresh", h.RefreshRates).Methods("POST")
	router.HandleFunc("/rates/{from}/{to}", h.GetRate).Methods("GET")
	router.HandleFunc("/convert", h.Convert).Methods("GET")
	router.HandleFunc("/history/{from}/{to}", h.GetHistory).Methods("GET")
	router.HandleFunc("/mode", h.SetMode).Methods("PUT")
	router.HandleFunc("/cache", h.ClearCache).Methods("DELETE")
	router.HandleFunc("/status", h.GetStatus).Methods("GET")

	h.logger.Info("Rate routes registered", map[string]interface{}{
		"routes": []string{
			"GET /rates",
			"POST /rates/refresh",
			"GET /rates/{from}/{to}",
			"GET /convert",
			"GET /history/{from}/{to}",
			"PUT /mode",
			"DELETE /cache",
			"GET /status",
		},
	})
}

// handleServiceError maps service errors onto HTTP responses
func (h *RateHandler) handleServiceError(w http.ResponseWriter, err error, requestID string, fields map[string]interface{}) {
	logFields := map[string]interface{}{
		"request_id": requestID,
		"error":      err.Error(),
	}
	for k, v := range fields {
		logFields[k] = v
	}

	switch {
	case errors.Is(err, service.ErrInvalidCurrency):
		h.logger.Warn("Invalid currency code", logFields)
		sendErrorResponse(w, h.logger, "Invalid currency code",
			"Currency codes must be 3 letters (e.g., EUR, GBP, JPY)", http.StatusBadRequest, requestID)
	case errors.Is(err, service.ErrInvalidDays):
		h.logger.Warn("Invalid days", logFields)
		sendErrorResponse(w, h.logger, "Invalid days", err.Error(), http.StatusBadRequest, requestID)
	case errors.Is(err, service.ErrUnknownCurrency):
		h.logger.Warn("Unknown currency", logFields)
		sendErrorResponse(w, h.logger, "Unknown currency",
			"No rate is available for the requested currency", http.StatusNotFound, requestID)
	case errors.Is(err, service.ErrUnavailable):
		h.logger.Error("Exchange rates unavailable", logFields)
		sendErrorResponse(w, h.logger, "Exchange rate service unavailable",
			"Unable to retrieve exchange rate data. Please try again later.",
			http.StatusServiceUnavailable, requestID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Request cancelled", logFields)
		sendErrorResponse(w, h.logger, "Request cancelled",
			"The request was cancelled before rates were available", http.StatusServiceUnavailable, requestID)
	default:
		h.logger.Error("Unexpected error in rate handler", logFields)
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.",
			http.StatusInternalServerError, requestID)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// sendErrorResponse sends a standardized error response
func sendErrorResponse(w http.ResponseWriter, log logger.Logger, message, description string, statusCode int, requestID string) {
	log.Debug("Sending error response", map[string]interface{}{
		"request_id":  requestID,
		"status_code": statusCode,
		"message":     message,
	})

	writeJSON(w, statusCode, ErrorResponse{
		Error:       message,
		Status:      statusCode,
		Description: description,
		RequestID:   requestID,
	})
}
