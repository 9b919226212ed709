// Package fixture serves a local, mutable copy of a server directory so the
// auto-connect flow can be rehearsed without a live game server.
package fixture

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

const ServersPath = "/api/server"

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger *log.Logger
	Store  *Store
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	store *Store
}

// Patch is the body accepted by PATCH /api/server/{id}. Nil fields are left untouched.
type Patch struct {
	Occupancy *int           `json:"clientNum,omitempty"`
	Capacity  *int           `json:"maxClients,omitempty"`
	Map       *types.MapInfo `json:"currentMap,omitempty"`
}

type outageRequest struct {
	Requests int `json:"requests"`
}

// Store is the in-memory directory served by the fixture.
type Store struct {
	mu      sync.Mutex
	records []types.ServerRecord
	outage  int
}

func NewStore(records []types.ServerRecord) *Store {
	return &Store{records: append([]types.ServerRecord(nil), records...)}
}

// LoadFile reads a YAML (or JSON) list of directory records.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read fixture %q: %w", path, err)
	}
	var records []types.ServerRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse fixture %q: %w", path, err)
	}
	return NewStore(records), nil
}

// Records returns a copy of the served records.
func (s *Store) Records() []types.ServerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ServerRecord(nil), s.records...)
}

// Apply patches the record with the given id and reports whether it exists.
func (s *Store) Apply(id types.ServerID, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if p.Occupancy != nil {
			s.records[i].Occupancy = *p.Occupancy
		}
		if p.Capacity != nil {
			s.records[i].Capacity = *p.Capacity
		}
		if p.Map != nil {
			s.records[i].Map = *p.Map
		}
		return true
	}
	return false
}

// Remove drops the record with the given id.
func (s *Store) Remove(id types.ServerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

// SimulateOutage makes the next n list requests fail with 503.
func (s *Store) SimulateOutage(n int) {
	s.mu.Lock()
	s.outage = n
	s.mu.Unlock()
}

func (s *Store) takeOutage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outage <= 0 {
		return false
	}
	s.outage--
	return true
}

// New constructs the fixture HTTP server.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8085"
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Store == nil {
		deps.Store = NewStore(nil)
	}

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{Server: s, store: deps.Store}
}

// NewHandler returns the router on its own so tests can mount it on httptest.
func NewHandler(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Store == nil {
		deps.Store = NewStore(nil)
	}
	r := mux.NewRouter()
	r.HandleFunc(ServersPath, listHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc(ServersPath+"/{id}", patchHandler(deps)).Methods(http.MethodPatch)
	r.HandleFunc(ServersPath+"/{id}", deleteHandler(deps)).Methods(http.MethodDelete)
	r.HandleFunc("/admin/outage", outageHandler(deps)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func (s *Server) Store() *Store {
	return s.store
}

func listHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store.takeOutage() {
			http.Error(w, "simulated outage", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(deps.Store.Records()); err != nil {
			deps.Logger.Printf("encode server list failed: %v", err)
		}
	}
}

func patchHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := types.ServerID(mux.Vars(r)["id"])

		var p Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !deps.Store.Apply(id, p) {
			http.Error(w, "server not found", http.StatusNotFound)
			return
		}
		deps.Logger.Printf("fixture patched server %s", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := types.ServerID(mux.Vars(r)["id"])
		if !deps.Store.Remove(id) {
			http.Error(w, "server not found", http.StatusNotFound)
			return
		}
		deps.Logger.Printf("fixture removed server %s", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func outageHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req outageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Requests < 0 {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		deps.Store.SimulateOutage(req.Requests)
		w.WriteHeader(http.StatusNoContent)
	}
}
