package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/market"
	"github.com/marketlens/market-enrich/pkg/orchestrate"
	"github.com/marketlens/market-enrich/pkg/ranking"
)

type enrichRequest struct {
	MarketID        string   `json:"market_id"`
	RadiusMiles     float64  `json:"radius_miles"`
	Variables       []string `json:"variables"`
	IncludeGeometry bool     `json:"include_geometry"`
	ForceRefresh    bool     `json:"force_refresh"`
}

type enrichResponse struct {
	Data      *cache.FeatureRecord `json:"data"`
	Freshness string               `json:"freshness"`
}

type compareRequest struct {
	MarketIDs []string           `json:"market_ids"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	TopK      int                `json:"top_k,omitempty"`
}

type profileRequest struct {
	MarketID string `json:"market_id"`
	City     string `json:"city"`
	State    string `json:"state"`
}

type profileFreshness struct {
	UpdatedAt time.Time `json:"updated_at"`
	AsOfDate  string    `json:"as_of_date"`
}

type profileResponse struct {
	MarketID  string             `json:"market_id"`
	Features  map[string]float64 `json:"features"`
	Freshness profileFreshness   `json:"freshness"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, freshness, err := s.service.Handle(r.Context(), orchestrate.HandleRequest{
		MarketID:        req.MarketID,
		RadiusMiles:     req.RadiusMiles,
		Variables:       req.Variables,
		IncludeGeometry: req.IncludeGeometry,
		ForceRefresh:    req.ForceRefresh,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, enrichResponse{Data: rec, Freshness: string(freshness)})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.Rank(r.Context(), req.MarketIDs, req.Weights, req.TopK)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ranking.ErrNoMarkets):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ranking.ErrNoneFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Ranking failed")
		writeError(w, http.StatusInternalServerError, "ranking failed")
	}
}

// handleProfile serves the most recent cached record for a market without
// triggering enrichment.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d := market.Descriptor{MarketID: req.MarketID, City: req.City, State: req.State}
	marketID, err := d.ID()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Latest(r.Context(), marketID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, profileResponse{
			MarketID: rec.MarketID,
			Features: rec.Metrics,
			Freshness: profileFreshness{
				UpdatedAt: rec.UpdatedAt,
				AsOfDate:  rec.AsOfDate,
			},
		})
	case errors.Is(err, cache.ErrCacheMiss):
		writeError(w, http.StatusNotFound, "no record for market "+marketID)
	default:
		s.logger.Error().Err(err).Str("market_id", marketID).Msg("Profile read failed")
		writeError(w, http.StatusServiceUnavailable, "feature store unavailable")
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var gwErr *orchestrate.GatewayError
	switch {
	case errors.Is(err, orchestrate.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gwErr):
		s.logger.Error().Err(err).Str("market_id", gwErr.MarketID).Msg("Gateway failure")
		writeError(w, http.StatusBadGateway, "enrichment provider failed")
	case errors.Is(err, orchestrate.ErrStoreUnavailable):
		s.logger.Error().Err(err).Msg("Store failure")
		writeError(w, http.StatusServiceUnavailable, "feature store unavailable")
	default:
		s.logger.Error().Err(err).Msg("Enrichment failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
