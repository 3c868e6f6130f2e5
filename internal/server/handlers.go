package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/vector"
	"github.com/jkoiv/minivec/internal/websocket"
)

const version = "0.1.0"

// EmbedRequest is the body of POST /v1/embed
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the reply to POST /v1/embed
type EmbedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dims       int       `json:"dims"`
	TokenCount int       `json:"token_count"`
	CacheHit   bool      `json:"cache_hit"`
	DurationMS float64   `json:"duration_ms"`
}

// EmbedBatchRequest is the body of POST /v1/embed/batch
type EmbedBatchRequest struct {
	Texts []string `json:"texts"`
}

// EmbedBatchResponse is the reply to POST /v1/embed/batch
type EmbedBatchResponse struct {
	Embeddings  [][]float32 `json:"embeddings"`
	Dims        int         `json:"dims"`
	TotalTokens int         `json:"total_tokens"`
	DurationMS  float64     `json:"duration_ms"`
}

// SimilarityRequest is the body of POST /v1/similarity
type SimilarityRequest struct {
	TextA string `json:"text_a"`
	TextB string `json:"text_b"`
}

// SimilarityResponse is the reply to POST /v1/similarity
type SimilarityResponse struct {
	Similarity float32 `json:"similarity"`
	DurationMS float64 `json:"duration_ms"`
}

// ClassifyRequest is the body of POST /v1/classify
type ClassifyRequest struct {
	Texts []string `json:"texts"`
}

// ClassifyPrediction is one classified text in a ClassifyResponse
type ClassifyPrediction struct {
	Label         int       `json:"label"`
	LabelText     string    `json:"label_text,omitempty"`
	Probabilities []float32 `json:"probabilities"`
}

// ClassifyResponse is the reply to POST /v1/classify
type ClassifyResponse struct {
	Predictions []ClassifyPrediction `json:"predictions"`
	DurationMS  float64              `json:"duration_ms"`
}

// SearchRequest is the body of POST /v1/search
type SearchRequest struct {
	Text          string  `json:"text"`
	Limit         int     `json:"limit"`
	MinSimilarity float32 `json:"min_similarity"`
}

// SearchResult is one match in a SearchResponse
type SearchResult struct {
	Text       string  `json:"text"`
	LabelText  string  `json:"label_text,omitempty"`
	Label      int     `json:"label"`
	Similarity float32 `json:"similarity"`
}

// SearchResponse is the reply to POST /v1/search
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	DurationMS float64        `json:"duration_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":       "minivec",
		"version":    version,
		"model":      s.config.Embedder.ModelName,
		"dims":       s.emb.Dims(),
		"normalize":  s.config.Embedder.Normalize,
		"max_length": s.config.Embedder.MaxLength,
		"classifier": s.cls != nil,
		"search":     s.store != nil,
		"stats":      s.emb.GetStats(),
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	start := time.Now()
	result, err := s.emb.Embed(r.Context(), req.Text)
	if err != nil {
		s.writeEmbedderError(w, err)
		return
	}

	duration := time.Since(start)
	s.broadcastEmbedding(r, 1, result.Dims, result.TokenCount, result.CacheHit, duration)

	s.writeJSON(w, http.StatusOK, EmbedResponse{
		Embedding:  result.Embedding,
		Dims:       result.Dims,
		TokenCount: result.TokenCount,
		CacheHit:   result.CacheHit,
		DurationMS: durationMS(duration),
	})
}

func (s *Server) handleEmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req EmbedBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	start := time.Now()
	result, err := s.emb.EmbedBatch(r.Context(), req.Texts)
	if err != nil {
		s.writeEmbedderError(w, err)
		return
	}

	duration := time.Since(start)
	s.broadcastEmbedding(r, len(req.Texts), result.Dims, result.TotalTokens, false, duration)

	s.writeJSON(w, http.StatusOK, EmbedBatchResponse{
		Embeddings:  result.Embeddings,
		Dims:        result.Dims,
		TotalTokens: result.TotalTokens,
		DurationMS:  durationMS(duration),
	})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	var req SimilarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	start := time.Now()
	result, err := s.emb.EmbedBatch(r.Context(), []string{req.TextA, req.TextB})
	if err != nil {
		s.writeEmbedderError(w, err)
		return
	}

	similarity := embedder.CosineSimilarity(result.Embeddings[0], result.Embeddings[1])

	s.writeJSON(w, http.StatusOK, SimilarityResponse{
		Similarity: similarity,
		DurationMS: durationMS(time.Since(start)),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.cls == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("classifier is not configured"))
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Texts) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("texts cannot be empty"))
		return
	}

	start := time.Now()
	predictions, err := s.cls.Predict(r.Context(), req.Texts)
	if err != nil {
		s.writeEmbedderError(w, err)
		return
	}

	duration := time.Since(start)
	resp := ClassifyResponse{
		Predictions: make([]ClassifyPrediction, len(predictions)),
		DurationMS:  durationMS(duration),
	}
	for i, p := range predictions {
		resp.Predictions[i] = ClassifyPrediction{
			Label:         p.Label,
			LabelText:     p.LabelText,
			Probabilities: p.Probabilities,
		}
	}

	if len(predictions) > 0 {
		first := predictions[0]
		confidence := float32(0)
		if first.Label < len(first.Probabilities) {
			confidence = first.Probabilities[first.Label]
		}
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeClassification,
			Timestamp: time.Now(),
			RequestID: getRequestID(r.Context()),
			Data: websocket.ClassificationEvent{
				RequestID:  getRequestID(r.Context()),
				Texts:      len(req.Texts),
				Label:      first.Label,
				LabelText:  first.LabelText,
				Confidence: confidence,
				DurationMS: durationMS(duration),
			},
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("vector store is not configured"))
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	start := time.Now()
	embedded, err := s.emb.Embed(r.Context(), req.Text)
	if err != nil {
		s.writeEmbedderError(w, err)
		return
	}

	matches, err := s.store.FindSimilar(r.Context(), embedded.Embedding, &vector.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := SearchResponse{
		Results:    make([]SearchResult, len(matches)),
		DurationMS: durationMS(time.Since(start)),
	}
	for i, m := range matches {
		resp.Results[i] = SearchResult{
			Text:       m.Vector.Text,
			LabelText:  m.Vector.LabelText,
			Label:      m.Vector.Label,
			Similarity: m.Similarity,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) broadcastEmbedding(r *http.Request, texts, dims, tokens int, cacheHit bool, duration time.Duration) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeEmbedding,
		Timestamp: time.Now(),
		RequestID: getRequestID(r.Context()),
		Data: websocket.EmbeddingEvent{
			RequestID:  getRequestID(r.Context()),
			Texts:      texts,
			Dims:       dims,
			TokenCount: tokens,
			CacheHit:   cacheHit,
			DurationMS: durationMS(duration),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEmbedderError maps embedder error types to HTTP statuses.
func (s *Server) writeEmbedderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := 0

	var embErr *embedder.Error
	if errors.As(err, &embErr) {
		code = embErr.Code
		switch {
		case errors.Is(err, embedder.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, embedder.ErrEncoderNotLoaded):
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func durationMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
