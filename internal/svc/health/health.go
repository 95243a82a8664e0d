// If you are AI: This file implements the health check endpoint for monitoring and integration tests.

package health

import (
	"net/http"
)

// Checker reports whether a component is healthy. nil means healthy.
type Checker func() error

// Service provides health check functionality.
type Service struct {
	checks map[string]Checker
}

// New creates a new health service instance.
func New() *Service {
	return &Service{checks: make(map[string]Checker)}
}

// AddCheck registers a named check consulted by /healthz.
func (s *Service) AddCheck(name string, c Checker) {
	s.checks[name] = c
}

// RegisterRoutes adds health check routes to the provided mux.
// Currently registers /healthz.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
}

// handleHealth responds 200 when every check passes, 503 with the failing
// check names otherwise.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	for name, check := range s.checks {
		if err := check(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(name + ": " + err.Error() + "\n"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
