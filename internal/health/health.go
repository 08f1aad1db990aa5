package health

import (
    "context"
    "encoding/json"
    "net/http"
    "sync"
    "time"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type result struct {
    Status string `json:"status"`
    Error  string `json:"error,omitempty"`
}

type report struct {
    Status string            `json:"status"`
    Checks map[string]result `json:"checks"`
    Time   time.Time         `json:"time"`
}

// Checker runs registered dependency probes and serves the aggregate
// over HTTP. Database and cache checks are registered at startup.
type Checker struct {
    mu     sync.RWMutex
    checks map[string]Check
}

func NewChecker() *Checker {
    return &Checker{
        checks: make(map[string]Check),
    }
}

func (c *Checker) Register(name string, check Check) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.checks[name] = check
}

// Run executes every registered check with a shared deadline.
func (c *Checker) Run(ctx context.Context) report {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()

    c.mu.RLock()
    checks := make(map[string]Check, len(c.checks))
    for name, check := range c.checks {
        checks[name] = check
    }
    c.mu.RUnlock()

    rep := report{
        Status: "healthy",
        Checks: make(map[string]result, len(checks)),
        Time:   time.Now().UTC(),
    }

    for name, check := range checks {
        if err := check(ctx); err != nil {
            rep.Checks[name] = result{Status: "unhealthy", Error: err.Error()}
            rep.Status = "degraded"
        } else {
            rep.Checks[name] = result{Status: "healthy"}
        }
    }

    return rep
}

// Handler serves the health report. Degraded reports still answer 200
// so orchestrators distinguish liveness from dependency trouble via
// the body.
func (c *Checker) Handler() http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        rep := c.Run(r.Context())

        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(http.StatusOK)
        json.NewEncoder(w).Encode(rep)
    }
}

// ReadyHandler answers 503 while any dependency check fails, so load
// balancers stop routing before the process is killed.
func (c *Checker) ReadyHandler() http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        rep := c.Run(r.Context())

        status := http.StatusOK
        if rep.Status != "healthy" {
            status = http.StatusServiceUnavailable
        }

        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(status)
        json.NewEncoder(w).Encode(rep)
    }
}
