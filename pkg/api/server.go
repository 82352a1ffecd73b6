package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradewire/pkg/pipeline"
)

// Submitter accepts raw front-end commands; *pipeline.Publisher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, command string) error
}

// Server is the thin command-intake boundary: commands in, log lines out.
type Server struct {
	sub      Submitter
	router   *mux.Router
	hub      *Hub
	gatherer prometheus.Gatherer
	log      *zap.SugaredLogger

	srvMu   sync.Mutex
	httpSrv *http.Server
	hubCtx  context.Context
	stopHub context.CancelFunc
}

func NewServer(sub Submitter, hub *Hub, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *Server {
	hubCtx, stopHub := context.WithCancel(context.Background())
	s := &Server{
		sub:      sub,
		router:   mux.NewRouter(),
		hub:      hub,
		gatherer: gatherer,
		log:      log,
		hubCtx:   hubCtx,
		stopHub:  stopHub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/commands", s.handleSubmitCommand).Methods("POST")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start starts the hub and blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run(s.hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srvMu.Lock()
	s.httpSrv = srv
	s.srvMu.Unlock()

	s.log.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stopHub()
	s.srvMu.Lock()
	srv := s.httpSrv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, id, "invalid request body", err.Error())
		return
	}
	command := strings.TrimSpace(req.Command)

	err := s.sub.Submit(r.Context(), command)
	switch {
	case err == nil:
		respondStatus(w, http.StatusAccepted, CommandResponse{ID: id, Status: "published", Command: command})
	case errors.Is(err, pipeline.ErrInvalidCommand):
		respondError(w, http.StatusBadRequest, id, "invalid command", err.Error())
	case errors.Is(err, pipeline.ErrTransportSaturated), errors.Is(err, pipeline.ErrTransport):
		respondError(w, http.StatusServiceUnavailable, id, "publish failed", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, id, "publish failed", err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// handleWebSocket streams log lines to the client until either side closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
		id:   conn.RemoteAddr().String(),
	}

	select {
	case s.hub.register <- client:
	case <-s.hubCtx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s.hubCtx)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, id, error string, message string) {
	respondStatus(w, status, ErrorResponse{
		ID:      id,
		Error:   error,
		Message: message,
	})
}
