package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridwise/utility-rates/internal/app"
	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/middleware"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)
	return NewHandler(application, nil)
}

func marshal(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func request(t *testing.T, h *Handler, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, marshal(t, body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		r = r.WithContext(middleware.WithUserID(r.Context(), userID))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func createProvider(t *testing.T, h *Handler, name string) provider.Provider {
	t.Helper()
	w := request(t, h, http.MethodPost, "/api/v1/providers", map[string]string{
		"name": name, "region": "us-northwest",
	}, "admin")
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[provider.Provider](t, w)
}

func createFlatRate(t *testing.T, h *Handler, providerID string, price float64) rate.Structure {
	t.Helper()
	w := request(t, h, http.MethodPost, "/api/v1/providers/"+providerID+"/rates", map[string]interface{}{
		"name":           "Residential Flat",
		"kind":           "flat",
		"price_per_kwh":  price,
		"effective_from": time.Now().UTC().AddDate(0, 0, -1),
	}, "admin")
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[rate.Structure](t, w)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodGet, "/api/v1/nope", nil, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderLifecycle(t *testing.T) {
	h := newTestHandler(t)

	created := createProvider(t, h, "Cascade Power")
	require.NotEmpty(t, created.ID)

	// duplicate name conflicts
	w := request(t, h, http.MethodPost, "/api/v1/providers", map[string]string{"name": "cascade power"}, "admin")
	require.Equal(t, http.StatusConflict, w.Code)

	w = request(t, h, http.MethodGet, "/api/v1/providers", nil, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]provider.Provider](t, w), 1)

	w = request(t, h, http.MethodPatch, "/api/v1/providers/"+created.ID, map[string]string{
		"website": "https://cascade.example.com",
	}, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[provider.Provider](t, w)
	require.Equal(t, "Cascade Power", updated.Name)
	require.Equal(t, "https://cascade.example.com", updated.Website)

	w = request(t, h, http.MethodDelete, "/api/v1/providers/"+created.ID, nil, "admin")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = request(t, h, http.MethodGet, "/api/v1/providers/"+created.ID, nil, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderDeleteConflictsWhileInUse(t *testing.T) {
	h := newTestHandler(t)

	created := createProvider(t, h, "Cascade Power")
	createFlatRate(t, h, created.ID, 0.14)

	w := request(t, h, http.MethodDelete, "/api/v1/providers/"+created.ID, nil, "admin")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRateLifecycle(t *testing.T) {
	h := newTestHandler(t)
	p := createProvider(t, h, "Cascade Power")

	rs := createFlatRate(t, h, p.ID, 0.14)
	require.Equal(t, p.ID, rs.ProviderID)
	require.True(t, rs.Active)

	// invalid kind rejected
	w := request(t, h, http.MethodPost, "/api/v1/providers/"+p.ID+"/rates", map[string]interface{}{
		"name": "Demand", "kind": "demand",
	}, "admin")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, h, http.MethodGet, "/api/v1/providers/"+p.ID+"/rates", nil, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]rate.Structure](t, w), 1)

	w = request(t, h, http.MethodPatch, fmt.Sprintf("/api/v1/providers/%s/rates/%s", p.ID, rs.ID), map[string]interface{}{
		"price_per_kwh": 0.16,
	}, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0.16, decode[rate.Structure](t, w).PricePerKWh)

	// rate addressed under the wrong provider is invisible
	other := createProvider(t, h, "Sunbelt")
	w = request(t, h, http.MethodGet, fmt.Sprintf("/api/v1/providers/%s/rates/%s", other.ID, rs.ID), nil, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = request(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/providers/%s/rates/%s", p.ID, rs.ID), nil, "admin")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateMutationUnderWrongProvider(t *testing.T) {
	h := newTestHandler(t)
	owner := createProvider(t, h, "Cascade Power")
	rs := createFlatRate(t, h, owner.ID, 0.14)
	other := createProvider(t, h, "Sunbelt")

	w := request(t, h, http.MethodPatch, fmt.Sprintf("/api/v1/providers/%s/rates/%s", other.ID, rs.ID), map[string]interface{}{
		"price_per_kwh": 0.99,
	}, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = request(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/providers/%s/rates/%s", other.ID, rs.ID), nil, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)

	// the rate is untouched under its real provider
	w = request(t, h, http.MethodGet, fmt.Sprintf("/api/v1/providers/%s/rates/%s", owner.ID, rs.ID), nil, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0.14, decode[rate.Structure](t, w).PricePerKWh)
}

func TestRateListUnknownProvider(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodGet, "/api/v1/providers/missing/rates", nil, "admin")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssociationFlow(t *testing.T) {
	h := newTestHandler(t)
	p := createProvider(t, h, "Cascade Power")

	w := request(t, h, http.MethodPost, "/api/v1/users/me/providers", map[string]string{
		"provider_id": p.ID, "account_number": "A-100", "nickname": "home",
	}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[association.Association](t, w)
	require.Equal(t, "user-1", created.UserID)

	// second association with the same provider conflicts
	w = request(t, h, http.MethodPost, "/api/v1/users/me/providers", map[string]string{
		"provider_id": p.ID, "account_number": "A-200",
	}, "user-1")
	require.Equal(t, http.StatusConflict, w.Code)

	w = request(t, h, http.MethodGet, "/api/v1/users/me/providers", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]association.Association](t, w), 1)

	// another user cannot delete it
	w = request(t, h, http.MethodDelete, "/api/v1/users/me/providers/"+created.ID, nil, "user-2")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, h, http.MethodDelete, "/api/v1/users/me/providers/"+created.ID, nil, "user-1")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestUserRoutesRequireAuthentication(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodGet, "/api/v1/users/me/rates", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserRatesResolution(t *testing.T) {
	h := newTestHandler(t)
	p := createProvider(t, h, "Cascade Power")
	rs := createFlatRate(t, h, p.ID, 0.14)

	w := request(t, h, http.MethodPost, "/api/v1/users/me/providers", map[string]string{
		"provider_id": p.ID, "account_number": "A-100",
	}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)

	w = request(t, h, http.MethodGet, "/api/v1/users/me/rates", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[[]rate.UserRate](t, w)
	require.Len(t, resolved, 1)
	require.Equal(t, rs.ID, resolved[0].Structure.ID)
	require.Equal(t, "Cascade Power", resolved[0].ProviderName)

	// a user without associations sees an empty list, not an error
	w = request(t, h, http.MethodGet, "/api/v1/users/me/rates", nil, "user-2")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[[]rate.UserRate](t, w))
}

func TestForecastFlow(t *testing.T) {
	h := newTestHandler(t)
	p := createProvider(t, h, "Cascade Power")
	createFlatRate(t, h, p.ID, 0.10)

	w := request(t, h, http.MethodPost, "/api/v1/users/me/providers", map[string]string{
		"provider_id": p.ID, "account_number": "A-100",
	}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)

	base := time.Now().UTC().AddDate(0, 0, -10)
	samples := []map[string]interface{}{{"timestamp": base, "kwh": 0}}
	for i := 1; i <= 10; i++ {
		samples = append(samples, map[string]interface{}{
			"timestamp": base.AddDate(0, 0, i), "kwh": 10,
		})
	}

	w = request(t, h, http.MethodPost, "/api/v1/users/me/forecast", map[string]interface{}{
		"samples": samples,
	}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)
	results := decode[[]forecast.Forecast](t, w)
	require.Len(t, results, 1)
	require.InDelta(t, 300.0, results[0].ProjectedKWh, 0.01)
	require.InDelta(t, 30.0, results[0].EstimatedCost, 0.01)

	w = request(t, h, http.MethodGet, "/api/v1/users/me/forecasts", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]forecast.Forecast](t, w), 1)

	w = request(t, h, http.MethodGet, "/api/v1/users/me/forecasts/"+results[0].ID, nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	// another user cannot read it
	w = request(t, h, http.MethodGet, "/api/v1/users/me/forecasts/"+results[0].ID, nil, "user-2")
	require.Equal(t, http.StatusForbidden, w.Code)

	// empty sample set rejected
	w = request(t, h, http.MethodPost, "/api/v1/users/me/forecast", map[string]interface{}{
		"samples": []map[string]interface{}{},
	}, "user-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodPut, "/api/v1/providers", nil, "admin")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRejectsUnknownBodyFields(t *testing.T) {
	h := newTestHandler(t)
	w := request(t, h, http.MethodPost, "/api/v1/providers", map[string]string{
		"name": "Cascade Power", "unexpected": "field",
	}, "admin")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
