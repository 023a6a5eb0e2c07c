package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/stats"
)

// DefaultQueryLimit and MaxQueryLimit bound GET /api/queries.
const (
	DefaultQueryLimit = 20
	MaxQueryLimit     = 1000
)

// PropsRequest is the body of the correlated and pairwise endpoints.
type PropsRequest struct {
	Props []domain.PropQuery `json:"props"`
}

// CorrelatedResponse is the reply to a correlated query.
type CorrelatedResponse struct {
	Success               bool     `json:"success"`
	CorrelatedProbability float64  `json:"correlated_probability"`
	AllButOneProbability  float64  `json:"all_but_one_probability"`
	AllButTwoProbability  *float64 `json:"all_but_two_probability,omitempty"`
	ParlayID              string   `json:"parlay_id"`
	NumProps              int      `json:"num_props"`
	TotalSims             uint64   `json:"total_sims"`
}

// ProbabilityResponse is the reply to a single-prop query.
type ProbabilityResponse struct {
	Success     bool    `json:"success"`
	Prop        string  `json:"prop"`
	Player      string  `json:"player"`
	StatType    string  `json:"stat_type"`
	Threshold   int64   `json:"threshold"`
	Probability float64 `json:"probability"`
	HitCount    uint64  `json:"hit_count"`
	TotalSims   uint64  `json:"total_sims"`
	Source      string  `json:"source"`
}

// PhiResponse is the reply to a pairwise correlation query.
type PhiResponse struct {
	Success bool    `json:"success"`
	Phi     float64 `json:"phi"`
}

// LookupResponse carries every stats-table probability by group.
type LookupResponse struct {
	Success bool              `json:"success"`
	Players stats.LookupTable `json:"players"`
}

// PlayerResponse reports whether a player is in the current batch.
type PlayerResponse struct {
	Success bool   `json:"success"`
	Player  string `json:"player"`
	Exists  bool   `json:"exists"`
}

// QueryRecordJSON is one logged correlated query.
type QueryRecordJSON struct {
	ParlayID     string   `json:"parlay_id"`
	Props        []string `json:"props"`
	NumProps     int      `json:"num_props"`
	AllHit       uint64   `json:"all_hit"`
	AllButOneHit uint64   `json:"all_but_one_hit"`
	AllButTwoHit *uint64  `json:"all_but_two_hit,omitempty"`
	TotalSims    uint64   `json:"total_sims"`
	ComputedAtMs int64    `json:"computed_at_ms"`
	DurationMs   int64    `json:"duration_ms"`
}

// QueriesResponse is the reply to GET /api/queries.
type QueriesResponse struct {
	Success bool              `json:"success"`
	Queries []QueryRecordJSON `json:"queries"`
}

func (s *Server) handleCorrelated(w http.ResponseWriter, r *http.Request) {
	var req PropsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp, err := s.correlate(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// correlate runs one correlated request. Shared by HTTP and WebSocket.
func (s *Server) correlate(ctx context.Context, req PropsRequest) (*CorrelatedResponse, error) {
	res, err := s.svc.Correlate(ctx, req.Props)
	if err != nil {
		return nil, err
	}
	resp := &CorrelatedResponse{
		Success:               true,
		CorrelatedProbability: res.CorrelatedProbability(),
		AllButOneProbability:  res.AllButOneProbability(),
		ParlayID:              res.ParlayID,
		NumProps:              res.NumProps,
		TotalSims:             res.TotalSims,
	}
	if p, ok := res.AllButTwoProbability(); ok {
		resp.AllButTwoProbability = &p
	}
	return resp, nil
}

func (s *Server) handleProbability(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("prop"))
	if key == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing query parameter \"prop\"", errBadRequest))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.svc.Probability(ctx, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProbabilityResponse{
		Success:     true,
		Prop:        res.Key,
		Player:      res.Prop.Player,
		StatType:    res.Prop.StatType,
		Threshold:   res.Prop.IntThreshold(),
		Probability: res.Probability,
		HitCount:    res.HitCount,
		TotalSims:   res.TotalSims,
		Source:      string(res.Source),
	})
}

func (s *Server) handlePropCorrelation(w http.ResponseWriter, r *http.Request) {
	var req PropsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Props) != 2 {
		s.writeError(w, r, fmt.Errorf("%w: exactly 2 props required, got %d", errBadRequest, len(req.Props)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	phi, err := s.svc.PairCorrelation(ctx, req.Props[0], req.Props[1])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PhiResponse{Success: true, Phi: phi})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	table, err := s.svc.LookupTable(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LookupResponse{Success: true, Players: table})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	exists, err := s.svc.HasPlayer(ctx, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlayerResponse{
		Success: true,
		Player:  domain.NormalizePlayerName(name),
		Exists:  exists,
	})
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := DefaultQueryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxQueryLimit {
			s.writeError(w, r, fmt.Errorf("%w: limit must be 1-%d", errBadRequest, MaxQueryLimit))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var (
		records []*domain.QueryRecord
		err     error
	)
	if parlayID := q.Get("parlay_id"); parlayID != "" {
		records, err = s.svc.QueriesByParlay(ctx, parlayID)
	} else {
		records, err = s.svc.RecentQueries(ctx, limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := QueriesResponse{Success: true, Queries: make([]QueryRecordJSON, 0, len(records))}
	for _, rec := range records {
		resp.Queries = append(resp.Queries, QueryRecordJSON{
			ParlayID:     rec.ParlayID,
			Props:        rec.PropKeys,
			NumProps:     rec.NumProps,
			AllHit:       rec.AllHit,
			AllButOneHit: rec.AllButOneHit,
			AllButTwoHit: rec.AllButTwoHit,
			TotalSims:    rec.TotalSims,
			ComputedAtMs: rec.ComputedAt,
			DurationMs:   rec.DurationMs,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}
