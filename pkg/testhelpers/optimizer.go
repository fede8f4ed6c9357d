// Package testhelpers provides shared test fixtures: a stub external
// optimizer and helpers for seeding the file-backed stores.
package testhelpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// StubOptimizer is a fake external optimizer service for tests. By default it
// answers /health with 200 and /optimize with a minimal successful result.
type StubOptimizer struct {
	Server *httptest.Server

	mu              sync.Mutex
	healthStatus    int
	optimizeStatus  int
	optimizeBody    string
	optimizeHandler http.HandlerFunc
	requests        [][]byte
}

// NewStubOptimizer starts a stub optimizer. It is shut down automatically
// when the test finishes.
func NewStubOptimizer(t *testing.T) *StubOptimizer {
	t.Helper()

	s := &StubOptimizer{
		healthStatus:   http.StatusOK,
		optimizeStatus: http.StatusOK,
		optimizeBody:   `{"bestScore": 0.5, "optimizedProgram": {"instruction": "Test instruction.", "demos": []}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		status := s.healthStatus
		s.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("/optimize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, body)
		handler := s.optimizeHandler
		status := s.optimizeStatus
		response := s.optimizeBody
		s.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// BaseURL returns the stub's address for optimizer client configuration.
func (s *StubOptimizer) BaseURL() string {
	return s.Server.URL
}

// SetHealthStatus overrides the /health response code.
func (s *StubOptimizer) SetHealthStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
}

// SetOptimizeResponse overrides the /optimize response.
func (s *StubOptimizer) SetOptimizeResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimizeStatus = status
	s.optimizeBody = body
}

// SetOptimizeHandler replaces the /optimize behavior entirely, e.g. to block
// until the request is cancelled.
func (s *StubOptimizer) SetOptimizeHandler(handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimizeHandler = handler
}

// Requests returns the captured /optimize request bodies.
func (s *StubOptimizer) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

// WriteSamples writes the given document as samples.json inside dir and
// returns its path.
func WriteSamples(t *testing.T, dir string, doc any) string {
	t.Helper()

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal samples document: %v", err)
	}

	path := filepath.Join(dir, "samples.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write samples document: %v", err)
	}
	return path
}
