package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func corsRequest(t *testing.T, m *CORSMiddleware, origin string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(w, req)
	return w
}

func TestCORSExactOriginAllowed(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.gridwise.io"})
	w := corsRequest(t, m, "https://app.gridwise.io")
	require.Equal(t, "https://app.gridwise.io", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSSubdomainOfBareDomainAllowed(t *testing.T) {
	m := NewCORSMiddleware([]string{"example.com"})
	w := corsRequest(t, m, "https://app.example.com")
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsLookalikeOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"example.com"})
	w := corsRequest(t, m, "https://evil-example.com")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardAllowsAny(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	w := corsRequest(t, m, "https://anywhere.test")
	require.Equal(t, "https://anywhere.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	m := NewCORSMiddleware([]string{"example.com"})
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("preflight must not reach the handler")
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/providers", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}
