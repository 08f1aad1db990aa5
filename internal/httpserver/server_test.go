package httpserver

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "net/url"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
)

type fakeStore struct {
    tenants  map[string]*models.Tenant
    gateways map[string]*models.Gateway
}

func newFakeStore() *fakeStore {
    return &fakeStore{
        tenants:  make(map[string]*models.Tenant),
        gateways: make(map[string]*models.Gateway),
    }
}

func (f *fakeStore) TenantByDomain(_ context.Context, domain string) (*models.Tenant, error) {
    if t, ok := f.tenants[domain]; ok {
        return t, nil
    }
    return nil, errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
}

func (f *fakeStore) ListTenants(_ context.Context) ([]models.Tenant, error) {
    var out []models.Tenant
    for _, t := range f.tenants {
        out = append(out, *t)
    }
    return out, nil
}

func (f *fakeStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
    if tenant.DomainName == "" {
        return errors.New(errors.ErrInvalidRequest, "domain_name is required").WithStatusCode(400)
    }
    if _, ok := f.tenants[tenant.DomainName]; ok {
        return errors.New(errors.ErrDuplicate, "tenant already exists").WithStatusCode(409)
    }
    tenant.ID = int64(len(f.tenants) + 1)
    f.tenants[tenant.DomainName] = tenant
    return nil
}

func (f *fakeStore) DeleteTenant(_ context.Context, domain string) error {
    if _, ok := f.tenants[domain]; !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    delete(f.tenants, domain)
    return nil
}

func (f *fakeStore) FindSipClient(_ context.Context, domain, userID string) (*models.SipClient, error) {
    t, ok := f.tenants[domain]
    if !ok {
        return nil, errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.SipClients {
        if t.SipClients[i].UserID == userID {
            return &t.SipClients[i], nil
        }
    }
    return nil, errors.New(errors.ErrClientNotFound, "sip client not found").WithStatusCode(404)
}

func (f *fakeStore) CreateSipClient(_ context.Context, domain string, client *models.SipClient) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for _, c := range t.SipClients {
        if c.UserID == client.UserID {
            return errors.New(errors.ErrDuplicate, "sip client already exists").WithStatusCode(409)
        }
    }
    t.SipClients = append(t.SipClients, *client)
    return nil
}

func (f *fakeStore) UpdateSipClient(_ context.Context, domain string, client *models.SipClient) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.SipClients {
        if t.SipClients[i].UserID == client.UserID {
            t.SipClients[i] = *client
            return nil
        }
    }
    return errors.New(errors.ErrClientNotFound, "sip client not found").WithStatusCode(404)
}

func (f *fakeStore) DeleteSipClient(_ context.Context, domain, userID string) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.SipClients {
        if t.SipClients[i].UserID == userID {
            t.SipClients = append(t.SipClients[:i], t.SipClients[i+1:]...)
            return nil
        }
    }
    return errors.New(errors.ErrClientNotFound, "sip client not found").WithStatusCode(404)
}

func (f *fakeStore) CreateGroup(_ context.Context, domain string, group *models.Group) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    t.Groups = append(t.Groups, *group)
    return nil
}

func (f *fakeStore) DeleteGroup(_ context.Context, domain, name string) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.Groups {
        if t.Groups[i].Name == name {
            t.Groups = append(t.Groups[:i], t.Groups[i+1:]...)
            return nil
        }
    }
    return errors.New(errors.ErrGroupNotFound, "group not found").WithStatusCode(404)
}

func (f *fakeStore) CreateDID(_ context.Context, domain string, did *models.DID) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    t.DIDs = append(t.DIDs, *did)
    return nil
}

func (f *fakeStore) DeleteDID(_ context.Context, domain, didNumber string) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.DIDs {
        if t.DIDs[i].DidNumber == didNumber {
            t.DIDs = append(t.DIDs[:i], t.DIDs[i+1:]...)
            return nil
        }
    }
    return errors.New(errors.ErrDIDNotFound, "did not found").WithStatusCode(404)
}

func (f *fakeStore) CreateDialplanEntry(_ context.Context, domain string, entry *models.DialplanEntry) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    t.Dialplan = append(t.Dialplan, *entry)
    return nil
}

func (f *fakeStore) DeleteDialplanEntry(_ context.Context, domain, name string) error {
    t, ok := f.tenants[domain]
    if !ok {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").WithStatusCode(404)
    }
    for i := range t.Dialplan {
        if t.Dialplan[i].Name == name {
            t.Dialplan = append(t.Dialplan[:i], t.Dialplan[i+1:]...)
            return nil
        }
    }
    return errors.New(errors.ErrRouteNotFound, "dialplan extension not found").WithStatusCode(404)
}

func (f *fakeStore) Gateways(_ context.Context) ([]models.Gateway, error) {
    var out []models.Gateway
    for _, gw := range f.gateways {
        out = append(out, *gw)
    }
    return out, nil
}

func (f *fakeStore) GatewayByName(_ context.Context, name string) (*models.Gateway, error) {
    if gw, ok := f.gateways[name]; ok {
        return gw, nil
    }
    return nil, errors.New(errors.ErrGatewayNotFound, "gateway not found").WithStatusCode(404)
}

func (f *fakeStore) CreateGateway(_ context.Context, gw *models.Gateway) error {
    if _, ok := f.gateways[gw.Name]; ok {
        return errors.New(errors.ErrDuplicate, "gateway already exists").WithStatusCode(409)
    }
    f.gateways[gw.Name] = gw
    return nil
}

func (f *fakeStore) UpdateGateway(_ context.Context, gw *models.Gateway) error {
    if _, ok := f.gateways[gw.Name]; !ok {
        return errors.New(errors.ErrGatewayNotFound, "gateway not found").WithStatusCode(404)
    }
    f.gateways[gw.Name] = gw
    return nil
}

func (f *fakeStore) DeleteGateway(_ context.Context, name string) error {
    if _, ok := f.gateways[name]; !ok {
        return errors.New(errors.ErrGatewayNotFound, "gateway not found").WithStatusCode(404)
    }
    delete(f.gateways, name)
    return nil
}

type staticResolver struct {
    body string
}

func (r *staticResolver) Resolve(_ context.Context, _ models.SwitchRequest) string {
    return r.body
}

func newTestServer(store DataStore) *Server {
    resolver := &staticResolver{body: `<document type="freeswitch/xml"></document>`}
    return New(0, 3*time.Second, store, resolver, resolver, resolver, nil)
}

func postForm(t *testing.T, srv *Server, form url.Values) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
    req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    w := httptest.NewRecorder()
    srv.Handler().ServeHTTP(w, req)
    return w
}

func TestSwitchLookupDialplan(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := postForm(t, srv, url.Values{
        "section": {"dialplan"},
        "domain":  {"a.example"},
    })

    assert.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
    assert.Contains(t, w.Body.String(), "freeswitch/xml")
}

func TestSwitchLookupMissingSection(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := postForm(t, srv, url.Values{"domain": {"a.example"}})

    assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwitchLookupUnknownSection(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := postForm(t, srv, url.Values{"section": {"unknown"}})

    assert.Equal(t, http.StatusNotFound, w.Code)
    assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
    assert.NotEmpty(t, w.Body.String())
}

func adminRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        require.NoError(t, json.NewEncoder(&buf).Encode(body))
    }
    req := httptest.NewRequest(method, path, &buf)
    req.Header.Set("Content-Type", "application/json")
    w := httptest.NewRecorder()
    srv.Handler().ServeHTTP(w, req)
    return w
}

func TestTenantRoundTrip(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{DomainName: "a.example"})
    require.Equal(t, http.StatusCreated, w.Code)

    w = adminRequest(t, srv, http.MethodGet, "/v1/tenants/a.example", nil)
    require.Equal(t, http.StatusOK, w.Code)
    var got models.Tenant
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
    assert.Equal(t, "a.example", got.DomainName)

    w = adminRequest(t, srv, http.MethodDelete, "/v1/tenants/a.example", nil)
    require.Equal(t, http.StatusNoContent, w.Code)

    w = adminRequest(t, srv, http.MethodGet, "/v1/tenants/a.example", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDuplicateTenantConflict(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{DomainName: "a.example"})
    require.Equal(t, http.StatusCreated, w.Code)

    w = adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{DomainName: "a.example"})
    assert.Equal(t, http.StatusConflict, w.Code)

    var body map[string]string
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    assert.NotEmpty(t, body["error"])
}

func TestCreateTenantValidation(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{})
    assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientCRUD(t *testing.T) {
    srv := newTestServer(newFakeStore())

    require.Equal(t, http.StatusCreated,
        adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{DomainName: "a.example"}).Code)

    w := adminRequest(t, srv, http.MethodPost, "/v1/tenants/a.example/clients",
        models.SipClient{UserID: "1001", Password: "p"})
    require.Equal(t, http.StatusCreated, w.Code)

    w = adminRequest(t, srv, http.MethodPost, "/v1/tenants/a.example/clients",
        models.SipClient{UserID: "1001", Password: "other"})
    assert.Equal(t, http.StatusConflict, w.Code)

    w = adminRequest(t, srv, http.MethodPut, "/v1/tenants/a.example/clients/1001",
        models.SipClient{Password: "newpass"})
    assert.Equal(t, http.StatusOK, w.Code)

    w = adminRequest(t, srv, http.MethodDelete, "/v1/tenants/a.example/clients/1001", nil)
    assert.Equal(t, http.StatusNoContent, w.Code)

    w = adminRequest(t, srv, http.MethodDelete, "/v1/tenants/a.example/clients/1001", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSingleClient(t *testing.T) {
    srv := newTestServer(newFakeStore())

    require.Equal(t, http.StatusCreated,
        adminRequest(t, srv, http.MethodPost, "/v1/tenants", models.Tenant{DomainName: "a.example"}).Code)
    require.Equal(t, http.StatusCreated,
        adminRequest(t, srv, http.MethodPost, "/v1/tenants/a.example/clients",
            models.SipClient{UserID: "1001", Password: "p", DisplayName: "Alice"}).Code)

    w := adminRequest(t, srv, http.MethodGet, "/v1/tenants/a.example/clients/1001", nil)
    require.Equal(t, http.StatusOK, w.Code)
    var got models.SipClient
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
    assert.Equal(t, "1001", got.UserID)
    assert.Equal(t, "Alice", got.DisplayName)

    w = adminRequest(t, srv, http.MethodGet, "/v1/tenants/a.example/clients/9999", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientUnderMissingTenant(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := adminRequest(t, srv, http.MethodPost, "/v1/tenants/nope.example/clients",
        models.SipClient{UserID: "1001", Password: "p"})
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayCRUD(t *testing.T) {
    srv := newTestServer(newFakeStore())

    w := adminRequest(t, srv, http.MethodPost, "/v1/gateways",
        models.Gateway{Name: "sw1", Realm: "sip.carrier.example"})
    require.Equal(t, http.StatusCreated, w.Code)

    w = adminRequest(t, srv, http.MethodGet, "/v1/gateways", nil)
    require.Equal(t, http.StatusOK, w.Code)
    var gws []models.Gateway
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gws))
    require.Len(t, gws, 1)
    assert.Equal(t, "sw1", gws[0].Name)

    w = adminRequest(t, srv, http.MethodPut, "/v1/gateways/sw1",
        models.Gateway{Realm: "new.carrier.example"})
    assert.Equal(t, http.StatusOK, w.Code)

    w = adminRequest(t, srv, http.MethodDelete, "/v1/gateways/sw1", nil)
    assert.Equal(t, http.StatusNoContent, w.Code)

    w = adminRequest(t, srv, http.MethodDelete, "/v1/gateways/sw1", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSingleGateway(t *testing.T) {
    srv := newTestServer(newFakeStore())

    require.Equal(t, http.StatusCreated,
        adminRequest(t, srv, http.MethodPost, "/v1/gateways",
            models.Gateway{Name: "sw1", Realm: "sip.carrier.example"}).Code)

    w := adminRequest(t, srv, http.MethodGet, "/v1/gateways/sw1", nil)
    require.Equal(t, http.StatusOK, w.Code)
    var gw models.Gateway
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gw))
    assert.Equal(t, "sip.carrier.example", gw.Realm)

    w = adminRequest(t, srv, http.MethodGet, "/v1/gateways/missing", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidJSONBody(t *testing.T) {
    srv := newTestServer(newFakeStore())

    req := httptest.NewRequest(http.MethodPost, "/v1/tenants", strings.NewReader("{not json"))
    w := httptest.NewRecorder()
    srv.Handler().ServeHTTP(w, req)

    assert.Equal(t, http.StatusBadRequest, w.Code)
}
