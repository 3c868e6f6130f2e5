package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/classifier"
	"github.com/jkoiv/minivec/internal/config"
	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/logger"
	"github.com/jkoiv/minivec/internal/vector"
	"github.com/jkoiv/minivec/internal/websocket"
)

// Server is the embedding service's HTTP front end.
type Server struct {
	config *config.Config
	logger *logger.Logger

	emb   embedder.Service
	cls   *classifier.Classifier
	store *vector.Store

	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiters *clientLimiters
}

// New creates the HTTP server. The classifier and vector store are optional;
// their endpoints return 503 when the component is absent.
func New(cfg *config.Config, emb embedder.Service, cls *classifier.Classifier, store *vector.Store, log *logger.Logger) (*Server, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		MaxConnections:  cfg.WebSocket.MaxConnections,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	}, log.WithComponent("websocket").Logger)

	s := &Server{
		config: cfg,
		logger: log.WithComponent("server"),
		emb:    emb,
		cls:    cls,
		store:  store,
		router: mux.NewRouter(),
		wsHub:  wsHub,
	}
	if cfg.RateLimit.Enabled {
		s.limiters = newClientLimiters(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.config.RateLimit.Enabled {
		api.Use(s.rateLimitMiddleware)
	}
	api.HandleFunc("/embed", s.handleEmbed).Methods("POST")
	api.HandleFunc("/embed/batch", s.handleEmbedBatch).Methods("POST")
	api.HandleFunc("/similarity", s.handleSimilarity).Methods("POST")
	api.HandleFunc("/classify", s.handleClassify).Methods("POST")
	api.HandleFunc("/search", s.handleSearch).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting MiniVec server",
		zap.Int("port", s.config.Server.Port),
		zap.String("model", s.config.Embedder.ModelName),
		zap.Int("dims", s.emb.Dims()),
		zap.Bool("classifier", s.cls != nil),
		zap.Bool("vector_store", s.store != nil),
	)

	if s.config.WebSocket.Enabled {
		go s.wsHub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping MiniVec server")
	if s.limiters != nil {
		s.limiters.stop()
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the route table, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
