// Package testutil provides testing utilities for the enrichment service: a
// configurable mock ArcGIS server and in-memory fakes for the feature store,
// refresh dispatcher, and enrichment gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockArcGIS is a configurable mock of the ArcGIS token and GeoEnrichment
// endpoints.
type MockArcGIS struct {
	server *httptest.Server
	mu     sync.RWMutex

	token        string
	tokenStatus  int
	enrichBody   string
	enrichStatus int

	// Tracking
	TokenRequests  int
	EnrichRequests int
	LastEnrichForm map[string]string
}

// NewMockArcGIS creates a mock provider that issues tokens and serves a
// standard enrichment payload.
func NewMockArcGIS() *MockArcGIS {
	mock := &MockArcGIS{
		token:        "test-token-123",
		tokenStatus:  http.StatusOK,
		enrichBody:   DefaultEnrichPayload(),
		enrichStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/generateToken", mock.handleToken)
	mux.HandleFunc("/enrich", mock.handleEnrich)
	mock.server = httptest.NewServer(mux)

	return mock
}

// TokenURL returns the mock token endpoint.
func (m *MockArcGIS) TokenURL() string {
	return m.server.URL + "/generateToken"
}

// EnrichURL returns the mock enrichment endpoint.
func (m *MockArcGIS) EnrichURL() string {
	return m.server.URL + "/enrich"
}

// Close shuts down the mock server.
func (m *MockArcGIS) Close() {
	m.server.Close()
}

// SetTokenResponse overrides the token endpoint behavior. An empty token
// yields a token-less payload.
func (m *MockArcGIS) SetTokenResponse(status int, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus = status
	m.token = token
}

// SetEnrichResponse overrides the enrichment endpoint body.
func (m *MockArcGIS) SetEnrichResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrichStatus = status
	m.enrichBody = body
}

func (m *MockArcGIS) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.TokenRequests++
	status, token := m.tokenStatus, m.token
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if token == "" {
		fmt.Fprint(w, `{"error": {"code": 400, "message": "Unable to generate token."}}`)
		return
	}
	fmt.Fprintf(w, `{"token": %q, "expires": 9999999999}`, token)
}

func (m *MockArcGIS) handleEnrich(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	m.mu.Lock()
	m.EnrichRequests++
	m.LastEnrichForm = form
	status, body := m.enrichStatus, m.enrichBody
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// GetEnrichRequests returns the number of enrichment calls received.
func (m *MockArcGIS) GetEnrichRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.EnrichRequests
}

// DefaultEnrichPayload returns a provider response with the attribute object
// nested the way GeoEnrichment nests it.
func DefaultEnrichPayload() string {
	return EnrichPayload(map[string]any{
		"TOTPOP_CY":  100000,
		"DIVINDX_CY": 63.2,
		"AVGHHSZ_CY": 2.6,
		"MEDAGE_CY":  36.1,
		"MEDHINC_CY": 85000,
		"BACHDEG_CY": 41.4,
	})
}

// EnrichPayload wraps attribute values in the provider's nested result shape.
func EnrichPayload(attrs map[string]any) string {
	payload := map[string]any{
		"results": []any{
			map[string]any{
				"value": map[string]any{
					"FeatureSet": []any{
						map[string]any{
							"features": []any{
								map[string]any{"attributes": attrs},
							},
						},
					},
				},
			},
		},
	}
	out, _ := json.Marshal(payload)
	return string(out)
}

// ErrorPayload returns a provider-level error response body.
func ErrorPayload(message string) string {
	out, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": 498, "message": message},
	})
	return string(out)
}
