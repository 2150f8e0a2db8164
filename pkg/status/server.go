// Package status serves a local read-only view of the running client:
// session state, merged order-book snapshots and the submission journal.
// Intended for dashboards and operators on localhost, not for the internet.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tradeforge/lyra-go/pkg/client"
)

type Server struct {
	client *client.Client
	router *mux.Router
	log    *zap.SugaredLogger
}

func NewServer(c *client.Client, log *zap.SugaredLogger) *Server {
	s := &Server{client: c, router: mux.NewRouter(), log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/orderbooks", s.handleListBooks).Methods("GET")
	api.HandleFunc("/orderbooks/{channel}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/journal", s.handleJournal).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}).Handler(s.router)

	s.log.Infow("status_server_listening", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("status_response_encode_failed", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":  s.client.Session().State().String(),
		"wallet": s.client.Wallet().Hex(),
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"channels": s.client.Session().Router().Channels(),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	book, ok := s.client.Session().Router().Snapshot(channel)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data for channel " + channel})
		return
	}
	s.writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	jour := s.client.Journal()
	if jour == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	entries, err := jour.List(200)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
