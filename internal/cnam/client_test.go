package cnam

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// testClient points the lookup at a local httptest server.
func testClient(t *testing.T, handler http.HandlerFunc) *Client {
    t.Helper()
    srv := httptest.NewTLSServer(handler)
    t.Cleanup(srv.Close)

    c := New(srv.Listener.Addr().String(), "proj", "tok")
    c.http = srv.Client()
    return c
}

func TestLookupSuccess(t *testing.T) {
    var gotPath, gotUser string
    c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
        gotPath = r.URL.Path
        gotUser, _, _ = r.BasicAuth()
        w.Header().Set("Content-Type", "application/json")
        w.Write([]byte(`{
            "national_number_formatted": "(512) 555-0100",
            "cnam": {"caller_id": "JOHN DOE"},
            "carrier": {"city": "Austin", "state": "TX"}
        }`))
    })

    rec := c.Lookup(context.Background(), "+15125550100")
    require.NotNil(t, rec)
    assert.Equal(t, "(512) 555-0100", rec.NationalNumberFormatted)
    assert.Equal(t, "JOHN DOE", rec.CallerID)
    assert.Equal(t, "Austin, TX", rec.Location)
    assert.Contains(t, gotPath, "/lookup/phone_number/+15125550100")
    assert.Equal(t, "proj", gotUser)
}

func TestLookupNormalizesTenDigitNumbers(t *testing.T) {
    var gotPath string
    c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
        gotPath = r.URL.Path
        w.Write([]byte(`{}`))
    })

    c.Lookup(context.Background(), "5125550100")
    assert.Contains(t, gotPath, "+15125550100")
}

func TestLookupNon200ReturnsNil(t *testing.T) {
    c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNotFound)
    })

    assert.Nil(t, c.Lookup(context.Background(), "+15125550100"))
}

func TestLookupBadBodyReturnsNil(t *testing.T) {
    c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte("not json"))
    })

    assert.Nil(t, c.Lookup(context.Background(), "+15125550100"))
}

func TestLookupDisabledWithoutCredentials(t *testing.T) {
    c := New("", "", "")
    assert.False(t, c.Enabled())
    assert.Nil(t, c.Lookup(context.Background(), "+15125550100"))
}

func TestLookupUnreachableUpstreamReturnsNil(t *testing.T) {
    c := New("127.0.0.1:1", "proj", "tok")
    assert.Nil(t, c.Lookup(context.Background(), "+15125550100"))
}

func TestLocationStateOnly(t *testing.T) {
    c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"carrier": {"state": "TX"}}`))
    })

    rec := c.Lookup(context.Background(), "+15125550100")
    require.NotNil(t, rec)
    assert.Equal(t, "TX", rec.Location)
}
