package httpserver

import (
    "context"
    "encoding/json"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"

    "github.com/hamzaKhattat/fs-xml-router/internal/metrics"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// DataStore is everything the admin surface needs from the store.
type DataStore interface {
    TenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
    ListTenants(ctx context.Context) ([]models.Tenant, error)
    CreateTenant(ctx context.Context, tenant *models.Tenant) error
    DeleteTenant(ctx context.Context, domain string) error

    FindSipClient(ctx context.Context, domain, userID string) (*models.SipClient, error)
    CreateSipClient(ctx context.Context, domain string, client *models.SipClient) error
    UpdateSipClient(ctx context.Context, domain string, client *models.SipClient) error
    DeleteSipClient(ctx context.Context, domain, userID string) error

    CreateGroup(ctx context.Context, domain string, group *models.Group) error
    DeleteGroup(ctx context.Context, domain, name string) error

    CreateDID(ctx context.Context, domain string, did *models.DID) error
    DeleteDID(ctx context.Context, domain, didNumber string) error

    CreateDialplanEntry(ctx context.Context, domain string, entry *models.DialplanEntry) error
    DeleteDialplanEntry(ctx context.Context, domain, name string) error

    Gateways(ctx context.Context) ([]models.Gateway, error)
    GatewayByName(ctx context.Context, name string) (*models.Gateway, error)
    CreateGateway(ctx context.Context, gw *models.Gateway) error
    UpdateGateway(ctx context.Context, gw *models.Gateway) error
    DeleteGateway(ctx context.Context, name string) error
}

func (s *Server) registerAdminRoutes(r *mux.Router) {
    r.Use(adminMetricsMiddleware)

    r.HandleFunc("/tenants", s.handleListTenants).Methods(http.MethodGet)
    r.HandleFunc("/tenants", s.handleCreateTenant).Methods(http.MethodPost)
    r.HandleFunc("/tenants/{domain}", s.handleGetTenant).Methods(http.MethodGet)
    r.HandleFunc("/tenants/{domain}", s.handleDeleteTenant).Methods(http.MethodDelete)

    r.HandleFunc("/tenants/{domain}/clients", s.handleCreateClient).Methods(http.MethodPost)
    r.HandleFunc("/tenants/{domain}/clients/{user_id}", s.handleGetClient).Methods(http.MethodGet)
    r.HandleFunc("/tenants/{domain}/clients/{user_id}", s.handleUpdateClient).Methods(http.MethodPut)
    r.HandleFunc("/tenants/{domain}/clients/{user_id}", s.handleDeleteClient).Methods(http.MethodDelete)

    r.HandleFunc("/tenants/{domain}/groups", s.handleCreateGroup).Methods(http.MethodPost)
    r.HandleFunc("/tenants/{domain}/groups/{name}", s.handleDeleteGroup).Methods(http.MethodDelete)

    r.HandleFunc("/tenants/{domain}/dids", s.handleCreateDID).Methods(http.MethodPost)
    r.HandleFunc("/tenants/{domain}/dids/{number}", s.handleDeleteDID).Methods(http.MethodDelete)

    r.HandleFunc("/tenants/{domain}/dialplan", s.handleCreateDialplanEntry).Methods(http.MethodPost)
    r.HandleFunc("/tenants/{domain}/dialplan/{name}", s.handleDeleteDialplanEntry).Methods(http.MethodDelete)

    r.HandleFunc("/gateways", s.handleListGateways).Methods(http.MethodGet)
    r.HandleFunc("/gateways", s.handleCreateGateway).Methods(http.MethodPost)
    r.HandleFunc("/gateways/{name}", s.handleGetGateway).Methods(http.MethodGet)
    r.HandleFunc("/gateways/{name}", s.handleUpdateGateway).Methods(http.MethodPut)
    r.HandleFunc("/gateways/{name}", s.handleDeleteGateway).Methods(http.MethodDelete)
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func adminMetricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        metrics.AdminRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
    })
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if payload != nil {
        json.NewEncoder(w).Encode(payload)
    }
}

// respondError maps store errors onto admin status codes: AppError
// carries its own status, anything else is a 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
    status := http.StatusInternalServerError
    message := "internal error"

    if appErr, ok := err.(*errors.AppError); ok {
        if appErr.StatusCode != 0 {
            status = appErr.StatusCode
        }
        message = appErr.Message
    }

    if status >= 500 {
        logger.WithContext(r.Context()).WithError(err).Error("Admin request failed")
    }

    respondJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
    if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
        respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
        return false
    }
    return true
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
    tenants, err := s.store.ListTenants(r.Context())
    if err != nil {
        respondError(w, r, err)
        return
    }
    if tenants == nil {
        tenants = []models.Tenant{}
    }
    respondJSON(w, http.StatusOK, tenants)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
    var tenant models.Tenant
    if !decodeBody(w, r, &tenant) {
        return
    }
    if err := s.store.CreateTenant(r.Context(), &tenant); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, tenant)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
    tenant, err := s.store.TenantByDomain(r.Context(), mux.Vars(r)["domain"])
    if err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
    if err := s.store.DeleteTenant(r.Context(), mux.Vars(r)["domain"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
    var client models.SipClient
    if !decodeBody(w, r, &client) {
        return
    }
    if err := s.store.CreateSipClient(r.Context(), mux.Vars(r)["domain"], &client); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, client)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    client, err := s.store.FindSipClient(r.Context(), vars["domain"], vars["user_id"])
    if err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusOK, client)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
    var client models.SipClient
    if !decodeBody(w, r, &client) {
        return
    }
    client.UserID = mux.Vars(r)["user_id"]
    if err := s.store.UpdateSipClient(r.Context(), mux.Vars(r)["domain"], &client); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusOK, client)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    if err := s.store.DeleteSipClient(r.Context(), vars["domain"], vars["user_id"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
    var group models.Group
    if !decodeBody(w, r, &group) {
        return
    }
    if err := s.store.CreateGroup(r.Context(), mux.Vars(r)["domain"], &group); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    if err := s.store.DeleteGroup(r.Context(), vars["domain"], vars["name"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDID(w http.ResponseWriter, r *http.Request) {
    var did models.DID
    if !decodeBody(w, r, &did) {
        return
    }
    if err := s.store.CreateDID(r.Context(), mux.Vars(r)["domain"], &did); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, did)
}

func (s *Server) handleDeleteDID(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    if err := s.store.DeleteDID(r.Context(), vars["domain"], vars["number"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDialplanEntry(w http.ResponseWriter, r *http.Request) {
    var entry models.DialplanEntry
    if !decodeBody(w, r, &entry) {
        return
    }
    if err := s.store.CreateDialplanEntry(r.Context(), mux.Vars(r)["domain"], &entry); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteDialplanEntry(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    if err := s.store.DeleteDialplanEntry(r.Context(), vars["domain"], vars["name"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
    gateways, err := s.store.Gateways(r.Context())
    if err != nil {
        respondError(w, r, err)
        return
    }
    if gateways == nil {
        gateways = []models.Gateway{}
    }
    metrics.GatewayPoolSize.Set(float64(len(gateways)))
    respondJSON(w, http.StatusOK, gateways)
}

func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
    var gw models.Gateway
    if !decodeBody(w, r, &gw) {
        return
    }
    if err := s.store.CreateGateway(r.Context(), &gw); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusCreated, gw)
}

func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
    gw, err := s.store.GatewayByName(r.Context(), mux.Vars(r)["name"])
    if err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusOK, gw)
}

func (s *Server) handleUpdateGateway(w http.ResponseWriter, r *http.Request) {
    var gw models.Gateway
    if !decodeBody(w, r, &gw) {
        return
    }
    gw.Name = mux.Vars(r)["name"]
    if err := s.store.UpdateGateway(r.Context(), &gw); err != nil {
        respondError(w, r, err)
        return
    }
    respondJSON(w, http.StatusOK, gw)
}

func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
    if err := s.store.DeleteGateway(r.Context(), mux.Vars(r)["name"]); err != nil {
        respondError(w, r, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}
