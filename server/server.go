package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultMaxContentBytes caps the size of a stored memory.
const DefaultMaxContentBytes = 64 << 10

// Server exposes a memory.Provider over HTTP and websocket.
type Server struct {
	provider        memory.Provider
	router          *mux.Router
	upgrader        websocket.Upgrader
	allowedOrigins  map[string]bool
	maxContentBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// Without it, only same-host origins are accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[o] = true
		}
	}
}

// WithMaxContentBytes overrides DefaultMaxContentBytes.
func WithMaxContentBytes(n int64) Option {
	return func(s *Server) {
		s.maxContentBytes = n
	}
}

// New builds the HTTP handler for provider.
func New(provider memory.Provider, opts ...Option) *Server {
	s := &Server{
		provider:        provider,
		router:          mux.NewRouter(),
		allowedOrigins:  make(map[string]bool),
		maxContentBytes: DefaultMaxContentBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(s.allowedOrigins) > 0 {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return s.allowedOrigins[r.Header.Get("Origin")]
		}
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1/spaces/{key}").Subrouter()
	v1.HandleFunc("/memories", s.handleAdd).Methods(http.MethodPost)
	v1.HandleFunc("/memories/{id}", s.handleDelete).Methods(http.MethodDelete)
	v1.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// addRequest keeps Content as a pointer so a missing field is told apart
// from empty content, which is stored like any other.
type addRequest struct {
	Content *string `json:"content"`
}

type addResponse struct {
	ID string `json:"id"`
}

type searchResponse struct {
	Results map[string]string `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req addRequest
	body := http.MaxBytesReader(w, r.Body, s.maxContentBytes+1024)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Content == nil {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}
	if int64(len(*req.Content)) > s.maxContentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("content exceeds %d bytes", s.maxContentBytes))
		return
	}

	id, err := s.provider.Add(r.Context(), key, *req.Content)
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, addResponse{ID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.provider.Delete(r.Context(), vars["key"], vars["id"]); err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	query := r.URL.Query().Get("q")

	limit := memory.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	results, err := s.provider.Search(r.Context(), key, query, limit)
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// StatusFor maps a memory error to an HTTP status code.
func StatusFor(err error) int {
	var cfgErr *memory.ConfigurationError
	var stErr *memory.StorageError
	switch {
	case errors.Is(err, memory.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &stErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Printf("[SERVER] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Printf("[SERVER] %d: %v", status, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
