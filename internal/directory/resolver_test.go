package directory

import (
    "context"
    "encoding/xml"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
)

type stubStore struct {
    tenant *models.Tenant
}

func (s *stubStore) TenantByDomain(_ context.Context, domain string) (*models.Tenant, error) {
    if s.tenant != nil && s.tenant.DomainName == domain {
        return s.tenant, nil
    }
    return nil, errors.New(errors.ErrTenantNotFound, "tenant not found")
}

type parsedUser struct {
    ID      string `xml:"id,attr"`
    Mailbox string `xml:"mailbox,attr"`
    Params  []struct {
        Name  string `xml:"name,attr"`
        Value string `xml:"value,attr"`
    } `xml:"params>param"`
    Variables []struct {
        Name  string `xml:"name,attr"`
        Value string `xml:"value,attr"`
    } `xml:"variables>variable"`
}

type parsedDirectory struct {
    Section struct {
        Domain []struct {
            Name string       `xml:"name,attr"`
            User []parsedUser `xml:"user"`
        } `xml:"domain"`
    } `xml:"section"`
}

func parse(t *testing.T, raw string) *parsedDirectory {
    t.Helper()
    var doc parsedDirectory
    require.NoError(t, xml.Unmarshal([]byte(raw), &doc))
    return &doc
}

func param(u parsedUser, name string) string {
    for _, p := range u.Params {
        if p.Name == name {
            return p.Value
        }
    }
    return ""
}

func testTenant() *models.Tenant {
    return &models.Tenant{
        DomainName: "a.example",
        SipClients: []models.SipClient{
            {
                UserID:          "1001",
                Password:        "secret",
                DisplayName:     "Alice",
                EnableVoicemail: true,
                VoicemailPin:    "4242",
                VoicemailEmail:  "alice@a.example",
            },
            {UserID: "1002", Password: "p2"},
        },
        Groups: []models.Group{
            {Name: "sales", VoicemailBoxID: "7000"},
        },
        DIDs: []models.DID{
            {
                DidNumber:             "+15125551234",
                Active:                true,
                RoutingType:           models.RoutingTypeExtension,
                RoutingTarget:         "1001",
                FailoverRoutingType:   "dialplan_extension",
                FailoverRoutingTarget: "voicemail_8000",
            },
        },
    }
}

func request(domain, user string) models.SwitchRequest {
    return models.SwitchRequest{
        "section": "directory",
        "domain":  domain,
        "user":    user,
    }
}

func voicemailRequest(domain, user string) models.SwitchRequest {
    req := request(domain, user)
    req["action"] = "voicemail-lookup"
    return req
}

func TestSipClientLookup(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), request("a.example", "1001")))

    require.Len(t, doc.Section.Domain, 1)
    assert.Equal(t, "a.example", doc.Section.Domain[0].Name)
    require.Len(t, doc.Section.Domain[0].User, 1)

    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "1001", u.ID)
    assert.Equal(t, "secret", param(u, "password"))
    assert.Equal(t, "4242", param(u, "vm-password"))
    assert.Equal(t, "alice@a.example", param(u, "vm-mailto"))
    assert.NotEmpty(t, param(u, "dial-string"))
}

func TestSipClientWithoutVoicemail(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), request("a.example", "1002")))

    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "p2", param(u, "password"))
    assert.Empty(t, param(u, "vm-password"))
}

func TestGroupMailboxPseudoUser(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), voicemailRequest("a.example", "7000")))

    require.Len(t, doc.Section.Domain, 1)
    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "7000", u.ID)
    assert.Equal(t, "NO_SIP_AUTH", param(u, "password"))
}

func TestDIDFailoverMailboxByBoxID(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), voicemailRequest("a.example", "8000")))

    require.Len(t, doc.Section.Domain, 1)
    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "8000", u.ID)
    assert.Equal(t, "NO_SIP_AUTH", param(u, "password"))
}

func TestDIDFailoverMailboxByNumber(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), voicemailRequest("a.example", "+15125551234")))

    require.Len(t, doc.Section.Domain, 1)
    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "8000", u.Mailbox)
}

func TestMailboxHiddenWithoutVoicemailAction(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), request("a.example", "7000")))

    assert.Empty(t, doc.Section.Domain, "mailbox pseudo-users only answer voicemail lookups")
}

func TestSipClientWinsOverMailboxes(t *testing.T) {
    tenant := testTenant()
    tenant.Groups[0].VoicemailBoxID = "1001"
    r := New(&stubStore{tenant: tenant})

    doc := parse(t, r.Resolve(context.Background(), request("a.example", "1001")))

    u := doc.Section.Domain[0].User[0]
    assert.Equal(t, "secret", param(u, "password"), "real client takes precedence over a same-named mailbox")
}

func TestUnknownUserEmptyDocument(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), request("a.example", "9999")))

    assert.Empty(t, doc.Section.Domain)
}

func TestUnknownTenantEmptyDocument(t *testing.T) {
    r := New(&stubStore{tenant: testTenant()})

    doc := parse(t, r.Resolve(context.Background(), request("b.example", "1001")))

    assert.Empty(t, doc.Section.Domain)
}
