package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the whole health check.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency (database, redis).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under a shared deadline and
// answers 200 when all pass, 503 otherwise. A probe still running at the
// deadline counts as failed.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	errs := make([]error, len(s.HealthProbes))
	done := make([]bool, len(s.HealthProbes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, probe := range s.HealthProbes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runProbe(ctx, probe)
			mu.Lock()
			errs[i], done[i] = err, true
			mu.Unlock()
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	status := http.StatusOK
	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for i, probe := range s.HealthProbes {
		c := componentStatus{Status: "healthy"}
		switch {
		case !done[i]:
			c = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case errs[i] != nil:
			c = componentStatus{Status: "unhealthy", Message: errs[i].Error()}
		}
		if c.Status != "healthy" {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}
		resp.Components[probe.Name()] = c
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
