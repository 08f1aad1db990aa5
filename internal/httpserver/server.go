package httpserver

import (
    "context"
    "fmt"
    "net/http"
    "time"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/hamzaKhattat/fs-xml-router/internal/health"
    "github.com/hamzaKhattat/fs-xml-router/internal/metrics"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Resolver produces the XML answer for one lookup section.
type Resolver interface {
    Resolve(ctx context.Context, req models.SwitchRequest) string
}

// Server hosts the switch-facing lookup endpoint and the admin REST
// surface on one listener.
type Server struct {
    router    *mux.Router
    srv       *http.Server
    store     DataStore
    resolvers map[string]Resolver
    timeout   time.Duration
}

func New(port int, requestTimeout time.Duration, store DataStore, dialplan, directory, configuration Resolver, checker *health.Checker) *Server {
    s := &Server{
        router: mux.NewRouter(),
        store:  store,
        resolvers: map[string]Resolver{
            "dialplan":      dialplan,
            "directory":     directory,
            "configuration": configuration,
        },
        timeout: requestTimeout,
    }

    s.router.HandleFunc("/", s.handleSwitchLookup).Methods(http.MethodPost)
    if checker != nil {
        s.router.HandleFunc("/health", checker.Handler()).Methods(http.MethodGet)
        s.router.HandleFunc("/health/live", checker.Handler()).Methods(http.MethodGet)
        s.router.HandleFunc("/health/ready", checker.ReadyHandler()).Methods(http.MethodGet)
    }
    s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

    s.registerAdminRoutes(s.router.PathPrefix("/v1").Subrouter())

    s.srv = &http.Server{
        Addr:         fmt.Sprintf(":%d", port),
        Handler:      s.router,
        ReadTimeout:  10 * time.Second,
        WriteTimeout: 10 * time.Second,
        IdleTimeout:  60 * time.Second,
    }

    return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
    return s.router
}

func (s *Server) Start() error {
    logger.WithField("addr", s.srv.Addr).Info("HTTP server listening")
    return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
    return s.srv.Shutdown(ctx)
}

// handleSwitchLookup answers the switch's XML curl requests. The
// switch inspects document content, not status codes, so any resolved
// answer ships as 200.
func (s *Server) handleSwitchLookup(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
    defer cancel()

    if err := r.ParseForm(); err != nil {
        http.Error(w, "malformed form body", http.StatusBadRequest)
        return
    }

    req := make(models.SwitchRequest, len(r.PostForm))
    for k, vs := range r.PostForm {
        if len(vs) > 0 {
            req[k] = vs[0]
        }
    }

    section := req.Section()
    if section == "" {
        metrics.LookupsTotal.WithLabelValues("none", "bad_request").Inc()
        http.Error(w, "missing section", http.StatusBadRequest)
        return
    }

    resolver, ok := s.resolvers[section]
    if !ok {
        metrics.LookupsTotal.WithLabelValues(section, "unknown_section").Inc()
        http.Error(w, "unknown section", http.StatusNotFound)
        return
    }

    start := time.Now()
    body := resolver.Resolve(ctx, req)
    metrics.LookupDuration.WithLabelValues(section).Observe(time.Since(start).Seconds())
    metrics.LookupsTotal.WithLabelValues(section, "ok").Inc()

    logger.WithContext(ctx).WithFields(map[string]interface{}{
        "section":  section,
        "domain":   req.Domain(),
        "duration": time.Since(start).String(),
    }).Debug("Lookup resolved")

    w.Header().Set("Content-Type", "application/xml")
    w.WriteHeader(http.StatusOK)
    w.Write([]byte(body))
}
