// Package httpapi exposes the versioned REST API over the application
// services.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gridwise/utility-rates/internal/app"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/services/associations"
	forecastsvc "github.com/gridwise/utility-rates/internal/app/services/forecast"
	"github.com/gridwise/utility-rates/internal/app/services/providers"
	"github.com/gridwise/utility-rates/internal/middleware"
	"github.com/gridwise/utility-rates/pkg/logger"
)

const apiPrefix = "/api/v1"

// Handler routes API requests to the application services.
type Handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(application *app.Application, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{app: application, log: log}
}

// ServeHTTP dispatches on path segments below /api/v1.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if !strings.HasPrefix(r.URL.Path, apiPrefix+"/") {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/")
	segments := strings.Split(path, "/")

	switch segments[0] {
	case "providers":
		h.routeProviders(w, r, segments[1:])
	case "users":
		h.routeUsers(w, r, segments[1:])
	default:
		writeError(w, http.StatusNotFound, "unknown route")
	}
}

func (h *Handler) routeProviders(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			h.createProvider(w, r)
		case http.MethodGet:
			h.listProviders(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			h.getProvider(w, r, rest[0])
		case http.MethodPatch:
			h.updateProvider(w, r, rest[0])
		case http.MethodDelete:
			h.deleteProvider(w, r, rest[0])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 2 && rest[1] == "rates":
		switch r.Method {
		case http.MethodPost:
			h.createRate(w, r, rest[0])
		case http.MethodGet:
			h.listRates(w, r, rest[0])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 3 && rest[1] == "rates":
		switch r.Method {
		case http.MethodGet:
			h.getRate(w, r, rest[0], rest[2])
		case http.MethodPatch:
			h.updateRate(w, r, rest[0], rest[2])
		case http.MethodDelete:
			h.deleteRate(w, r, rest[0], rest[2])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "unknown route")
	}
}

func (h *Handler) routeUsers(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 || rest[0] != "me" {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	rest = rest[1:]

	switch {
	case len(rest) == 1 && rest[0] == "providers":
		switch r.Method {
		case http.MethodGet:
			h.listAssociations(w, r, userID)
		case http.MethodPost:
			h.createAssociation(w, r, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 2 && rest[0] == "providers":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.deleteAssociation(w, r, userID, rest[1])
	case len(rest) == 1 && rest[0] == "rates":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.listUserRates(w, r, userID)
	case len(rest) == 1 && rest[0] == "forecast":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.computeForecast(w, r, userID)
	case len(rest) == 1 && rest[0] == "forecasts":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.listForecasts(w, r, userID)
	case len(rest) == 2 && rest[0] == "forecasts":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.getForecast(w, r, userID, rest[1])
	default:
		writeError(w, http.StatusNotFound, "unknown route")
	}
}

type providerRequest struct {
	Name     string            `json:"name"`
	Region   string            `json:"region"`
	Website  string            `json:"website"`
	Metadata map[string]string `json:"metadata"`
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.app.Providers.Create(r.Context(), newProvider(req))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Providers.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.app.Providers.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request, id string) {
	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := newProvider(req)
	p.ID = id
	updated, err := h.app.Providers.Update(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.app.Providers.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRateRequest struct {
	Name               string           `json:"name"`
	Kind               rate.Kind        `json:"kind"`
	Currency           string           `json:"currency"`
	FixedMonthlyCharge float64          `json:"fixed_monthly_charge"`
	PricePerKWh        float64          `json:"price_per_kwh"`
	Tiers              []rate.Tier      `json:"tiers"`
	TimeOfUse          []rate.TOUPeriod `json:"time_of_use"`
	EffectiveFrom      time.Time        `json:"effective_from"`
	EffectiveUntil     time.Time        `json:"effective_until"`
}

func (h *Handler) createRate(w http.ResponseWriter, r *http.Request, providerID string) {
	var req createRateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.app.Rates.Create(r.Context(), rate.Structure{
		ProviderID:         providerID,
		Name:               req.Name,
		Kind:               req.Kind,
		Currency:           req.Currency,
		FixedMonthlyCharge: req.FixedMonthlyCharge,
		PricePerKWh:        req.PricePerKWh,
		Tiers:              req.Tiers,
		TimeOfUse:          req.TimeOfUse,
		EffectiveFrom:      req.EffectiveFrom,
		EffectiveUntil:     req.EffectiveUntil,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request, providerID string) {
	if _, err := h.app.Providers.Get(r.Context(), providerID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	list, err := h.app.Rates.List(r.Context(), providerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request, providerID, rateID string) {
	rs, err := h.app.Rates.Get(r.Context(), rateID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if rs.ProviderID != providerID {
		writeError(w, http.StatusNotFound, "rate structure not found")
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

type updateRateRequest struct {
	Name               *string          `json:"name"`
	FixedMonthlyCharge *float64         `json:"fixed_monthly_charge"`
	PricePerKWh        *float64         `json:"price_per_kwh"`
	Tiers              []rate.Tier      `json:"tiers"`
	TimeOfUse          []rate.TOUPeriod `json:"time_of_use"`
	EffectiveUntil     *time.Time       `json:"effective_until"`
	Active             *bool            `json:"active"`
}

func (h *Handler) updateRate(w http.ResponseWriter, r *http.Request, providerID, rateID string) {
	if !h.rateBelongsTo(w, r, providerID, rateID) {
		return
	}

	var req updateRateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.app.Rates.Update(r.Context(), rateID,
		req.Name, req.FixedMonthlyCharge, req.PricePerKWh,
		req.Tiers, req.TimeOfUse, req.EffectiveUntil, req.Active)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteRate(w http.ResponseWriter, r *http.Request, providerID, rateID string) {
	if !h.rateBelongsTo(w, r, providerID, rateID) {
		return
	}

	if err := h.app.Rates.Delete(r.Context(), rateID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rateBelongsTo verifies the rate structure lives under the addressed
// provider, writing a response when it does not.
func (h *Handler) rateBelongsTo(w http.ResponseWriter, r *http.Request, providerID, rateID string) bool {
	rs, err := h.app.Rates.Get(r.Context(), rateID)
	if err != nil {
		h.writeServiceError(w, err)
		return false
	}
	if rs.ProviderID != providerID {
		writeError(w, http.StatusNotFound, "rate structure not found")
		return false
	}
	return true
}

type createAssociationRequest struct {
	ProviderID    string `json:"provider_id"`
	AccountNumber string `json:"account_number"`
	Nickname      string `json:"nickname"`
}

func (h *Handler) createAssociation(w http.ResponseWriter, r *http.Request, userID string) {
	var req createAssociationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.app.Associations.Create(r.Context(), userID, req.ProviderID, req.AccountNumber, req.Nickname)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listAssociations(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.app.Associations.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) deleteAssociation(w http.ResponseWriter, r *http.Request, userID, id string) {
	if err := h.app.Associations.Delete(r.Context(), userID, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserRates(w http.ResponseWriter, r *http.Request, userID string) {
	rates, err := h.app.Rates.ResolveUserRates(r.Context(), userID, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if rates == nil {
		rates = []rate.UserRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

type forecastRequest struct {
	Samples []forecast.UsageSample `json:"samples"`
}

func (h *Handler) computeForecast(w http.ResponseWriter, r *http.Request, userID string) {
	var req forecastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.app.Forecasts.Compute(r.Context(), userID, req.Samples)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, results)
}

func (h *Handler) listForecasts(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.app.Forecasts.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []forecast.Forecast{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getForecast(w http.ResponseWriter, r *http.Request, userID, id string) {
	f, err := h.app.Forecasts.Get(r.Context(), userID, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func newProvider(req providerRequest) provider.Provider {
	return provider.Provider{
		Name:     req.Name,
		Region:   req.Region,
		Website:  req.Website,
		Metadata: req.Metadata,
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, providers.ErrNameTaken),
		errors.Is(err, providers.ErrProviderInUse),
		errors.Is(err, associations.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, associations.ErrNotOwner),
		errors.Is(err, forecastsvc.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return strings.Contains(err.Error(), "not found")
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
