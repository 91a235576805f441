// Package esri implements the enrichment gateway against the ArcGIS
// GeoEnrichment service: credential decoding, token acquisition, enrichment
// requests, and attribute extraction from provider responses.
package esri

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/market"
)

// Prometheus metrics for provider calls.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_provider_requests_total",
		Help: "Total provider requests by operation and outcome",
	}, []string{"operation", "outcome"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_provider_request_duration_seconds",
		Help:    "Provider request duration in seconds by operation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})
)

// Default provider endpoints.
const (
	DefaultTokenURL  = "https://www.arcgis.com/sharing/rest/generateToken"
	DefaultEnrichURL = "https://geoenrich.arcgis.com/arcgis/rest/services/World/geoenrichmentserver/GeoEnrichment/enrich"
	DefaultReferer   = "https://www.arcgis.com"
)

// Config holds the gateway configuration.
type Config struct {
	// TokenURL is the ArcGIS token endpoint.
	TokenURL string

	// EnrichURL is the GeoEnrichment endpoint.
	EnrichURL string

	// Referer sent with token requests (ArcGIS referer-client auth).
	Referer string

	// Credentials yields the raw credential payload.
	Credentials CredentialSource

	// Timeout per outbound call.
	Timeout time.Duration

	// RetryMax is the maximum number of retries per call.
	RetryMax int
}

// DefaultConfig returns a gateway configuration with the production ArcGIS
// endpoints.
func DefaultConfig(creds CredentialSource) Config {
	return Config{
		TokenURL:    DefaultTokenURL,
		EnrichURL:   DefaultEnrichURL,
		Referer:     DefaultReferer,
		Credentials: creds,
		Timeout:     40 * time.Second,
		RetryMax:    3,
	}
}

// Client is the live enrichment gateway.
type Client struct {
	http   *retryablehttp.Client
	config Config
	logger zerolog.Logger
}

// New creates an enrichment gateway.
func New(cfg Config) (*Client, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if cfg.TokenURL == "" || cfg.EnrichURL == "" {
		return nil, fmt.Errorf("token and enrich URLs are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}

	logger := logging.NewLogger("esri-gateway")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = retryLogger{logger}

	return &Client{
		http:   rc,
		config: cfg,
		logger: logger,
	}, nil
}

// Enrich resolves a study area for the descriptor and returns a feature
// record with the requested variables. Failures carry a human-readable cause;
// callers must not assume they are retryable.
func (c *Client) Enrich(ctx context.Context, d market.Descriptor, radiusMiles float64, variables []string, includeGeometry bool) (*cache.FeatureRecord, error) {
	if len(variables) == 0 {
		variables = market.DefaultVariables
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	areas, err := studyAreas(d)
	if err != nil {
		return nil, &ProviderError{Operation: "enrich", Err: err}
	}

	form := url.Values{
		"f":                 {"json"},
		"token":             {token},
		"studyAreas":        {areas},
		"analysisVariables": {strings.Join(variables, ",")},
		"returnGeometry":    {boolParam(includeGeometry)},
	}

	data, err := c.postForm(ctx, "enrich", c.config.EnrichURL, form)
	if err != nil {
		return nil, err
	}

	if provErr, ok := data["error"]; ok && provErr != nil {
		providerRequestsTotal.WithLabelValues("enrich", "provider_error").Inc()
		return nil, &ProviderError{Operation: "enrich", Message: fmt.Sprintf("enrich failed: %v", provErr)}
	}

	attrs := ExtractAttributes(data)
	if attrs == nil {
		providerRequestsTotal.WithLabelValues("enrich", "missing_attributes").Inc()
		return nil, &ProviderError{Operation: "enrich", Message: "payload missing attributes"}
	}

	marketID, _ := d.ID()
	rec := &cache.FeatureRecord{
		MarketID:    marketID,
		AsOfDate:    time.Now().Format("2006-01-02"),
		Metrics:     make(map[string]float64, len(variables)),
		RadiusMiles: radiusMiles,
		Source:      cache.SourceLive,
	}
	for _, v := range variables {
		rec.Metrics[market.MetricName(v)] = attrFloat(attrs[v])
	}
	if includeGeometry {
		rec.Shape = extractGeometry(data)
	}

	c.logger.Debug().
		Str("market_id", marketID).
		Float64("radius_miles", radiusMiles).
		Int("variables", len(variables)).
		Msg("Enriched market")

	return rec, nil
}

// token acquires a short-lived ArcGIS token using referer-client auth.
func (c *Client) token(ctx context.Context) (string, error) {
	raw, err := c.config.Credentials.Lookup(ctx)
	if err != nil {
		return "", fmt.Errorf("credential lookup: %w", err)
	}
	creds, err := DecodeCredentials(raw)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"username":   {creds.Username},
		"password":   {creds.Password},
		"client":     {"referer"},
		"referer":    {c.config.Referer},
		"expiration": {"60"},
		"f":          {"json"},
	}

	data, err := c.postForm(ctx, "token", c.config.TokenURL, form)
	if err != nil {
		return "", err
	}

	token, _ := data["token"].(string)
	if token == "" {
		providerRequestsTotal.WithLabelValues("token", "no_token").Inc()
		return "", &ProviderError{Operation: "token", Message: fmt.Sprintf("token request failed: %v", data)}
	}
	return token, nil
}

// postForm sends a form-encoded POST and decodes the JSON response.
func (c *Client) postForm(ctx context.Context, operation, endpoint string, form url.Values) (map[string]any, error) {
	start := time.Now()
	defer func() {
		providerRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		providerRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, &ProviderError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		providerRequestsTotal.WithLabelValues(operation, "bad_payload").Inc()
		return nil, &ProviderError{Operation: operation, Message: "non-JSON response", Err: err}
	}

	providerRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	return data, nil
}

// studyAreas renders the provider studyAreas parameter: a point geometry
// when coordinates are supplied, otherwise a free-text address query.
func studyAreas(d market.Descriptor) (string, error) {
	var area map[string]any
	if d.HasPoint() {
		area = map[string]any{"geometry": map[string]any{"x": *d.Lon, "y": *d.Lat}}
	} else {
		text, err := d.QueryText()
		if err != nil {
			return "", err
		}
		area = map[string]any{"address": map[string]any{"text": text}}
	}

	out, err := json.Marshal([]map[string]any{area})
	if err != nil {
		return "", fmt.Errorf("marshal study areas: %w", err)
	}
	return string(out), nil
}

// extractGeometry pulls the first geometry object out of the provider
// response, bounded the same way as attribute extraction.
func extractGeometry(node any) json.RawMessage {
	geom := findKey(node, "geometry", 0)
	if geom == nil {
		return nil
	}
	out, err := json.Marshal(geom)
	if err != nil {
		return nil
	}
	return out
}

func findKey(node any, key string, depth int) any {
	if depth > maxExtractDepth {
		return nil
	}
	switch v := node.(type) {
	case map[string]any:
		if val, ok := v[key]; ok {
			return val
		}
		for _, child := range v {
			if found := findKey(child, key, depth+1); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range v {
			if found := findKey(item, key, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// retryLogger adapts zerolog to the retryablehttp leveled logger.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
