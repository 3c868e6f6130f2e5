package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/classifier"
	"github.com/jkoiv/minivec/internal/config"
	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/encoder"
	"github.com/jkoiv/minivec/internal/logger"
	"github.com/jkoiv/minivec/internal/tokenizer"
)

func testServer(t *testing.T, withClassifier bool) *Server {
	t.Helper()

	tokens := []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"this", "is", "a", "test", "sentence", ".",
		"transformers", "generate", "embeddings",
	}
	vocabPath := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(vocabPath, []byte(strings.Join(tokens, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write vocab: %v", err)
	}
	tok, err := tokenizer.New(vocabPath, tokenizer.DefaultOptions())
	if err != nil {
		t.Fatalf("tokenizer.New failed: %v", err)
	}

	emb, err := embedder.New(embedder.Config{ModelName: "test", BatchSize: 8}, tok, encoder.NewFake(64), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("embedder.New failed: %v", err)
	}

	var cls *classifier.Classifier
	if withClassifier {
		cls, err = classifier.New(classifier.Config{
			Classes:      3,
			Labels:       []string{"negative", "neutral", "positive"},
			LearningRate: 0.1,
			Seed:         42,
		}, emb, zap.NewNop())
		if err != nil {
			t.Fatalf("classifier.New failed: %v", err)
		}
	}

	log := &logger.Logger{Logger: zap.NewNop()}
	cfg := config.GetDefaults()

	srv, err := New(cfg, emb, cls, nil, log)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	srv := testServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/info", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/info status = %d, want 200", rec.Code)
	}
	var info map[string]interface{}
	decode(t, rec, &info)
	if info["name"] != "minivec" {
		t.Errorf("info name = %v", info["name"])
	}
	if info["dims"].(float64) != 64 {
		t.Errorf("info dims = %v, want 64", info["dims"])
	}
}

func TestHandleEmbed(t *testing.T) {
	srv := testServer(t, false)

	t.Run("Success", func(t *testing.T) {
		rec := postJSON(t, srv.Router(), "/v1/embed", EmbedRequest{Text: "This is a test sentence."})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp EmbedResponse
		decode(t, rec, &resp)
		if resp.Dims != 64 || len(resp.Embedding) != 64 {
			t.Errorf("dims = %d, embedding len = %d, want 64", resp.Dims, len(resp.Embedding))
		}
		if resp.TokenCount == 0 {
			t.Error("token count should be positive")
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		rec := postJSON(t, srv.Router(), "/v1/embed", EmbedRequest{Text: "   "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleEmbedBatch(t *testing.T) {
	srv := testServer(t, false)

	rec := postJSON(t, srv.Router(), "/v1/embed/batch", EmbedBatchRequest{
		Texts: []string{"This is a test sentence.", "Sentence transformers generate embeddings."},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp EmbedBatchResponse
	decode(t, rec, &resp)
	if len(resp.Embeddings) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(resp.Embeddings))
	}
	for i, emb := range resp.Embeddings {
		if len(emb) != 64 {
			t.Errorf("embedding %d has %d dims, want 64", i, len(emb))
		}
	}
}

func TestHandleSimilarity(t *testing.T) {
	srv := testServer(t, false)

	t.Run("IdenticalTexts", func(t *testing.T) {
		rec := postJSON(t, srv.Router(), "/v1/similarity", SimilarityRequest{
			TextA: "This is a test sentence.",
			TextB: "This is a test sentence.",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp SimilarityResponse
		decode(t, rec, &resp)
		if diff := math.Abs(float64(resp.Similarity) - 1.0); diff > 1e-5 {
			t.Errorf("similarity = %f, want 1.0 for identical texts", resp.Similarity)
		}
	})

	t.Run("DifferentTexts", func(t *testing.T) {
		rec := postJSON(t, srv.Router(), "/v1/similarity", SimilarityRequest{
			TextA: "This is a test sentence.",
			TextB: "Sentence transformers generate embeddings.",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp SimilarityResponse
		decode(t, rec, &resp)
		if resp.Similarity < -1.0001 || resp.Similarity > 1.0001 {
			t.Errorf("similarity = %f out of [-1, 1]", resp.Similarity)
		}
	})
}

func TestHandleClassify(t *testing.T) {
	t.Run("WithClassifier", func(t *testing.T) {
		srv := testServer(t, true)
		rec := postJSON(t, srv.Router(), "/v1/classify", ClassifyRequest{
			Texts: []string{"This is a test sentence."},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp ClassifyResponse
		decode(t, rec, &resp)
		if len(resp.Predictions) != 1 {
			t.Fatalf("got %d predictions, want 1", len(resp.Predictions))
		}
		pred := resp.Predictions[0]
		if pred.Label < 0 || pred.Label > 2 {
			t.Errorf("label = %d out of range", pred.Label)
		}
		if len(pred.Probabilities) != 3 {
			t.Errorf("got %d probabilities, want 3", len(pred.Probabilities))
		}
		var sum float64
		for _, p := range pred.Probabilities {
			sum += float64(p)
		}
		if diff := math.Abs(sum - 1.0); diff > 1e-5 {
			t.Errorf("probabilities sum to %f", sum)
		}
	})

	t.Run("NoClassifier", func(t *testing.T) {
		srv := testServer(t, false)
		rec := postJSON(t, srv.Router(), "/v1/classify", ClassifyRequest{Texts: []string{"x"}})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("EmptyTexts", func(t *testing.T) {
		srv := testServer(t, true)
		rec := postJSON(t, srv.Router(), "/v1/classify", ClassifyRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleSearchWithoutStore(t *testing.T) {
	srv := testServer(t, false)
	rec := postJSON(t, srv.Router(), "/v1/search", SearchRequest{Text: "query"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := testServer(t, false)
	srv.config.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}
	srv.limiters = newClientLimiters(1, 1)
	defer srv.limiters.stop()

	handler := srv.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/embed", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}

	// A different client has its own bucket.
	other := httptest.NewRequest(http.MethodGet, "/v1/embed", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}
