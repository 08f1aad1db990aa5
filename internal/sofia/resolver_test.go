package sofia

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
    gateways []models.Gateway
    err      error
}

func (s *stubStore) Gateways(_ context.Context) ([]models.Gateway, error) {
    return s.gateways, s.err
}

type parsedConfig struct {
    Section struct {
        Name          string `xml:"name,attr"`
        Configuration []struct {
            Name     string `xml:"name,attr"`
            Profiles struct {
                Profile []struct {
                    Name     string `xml:"name,attr"`
                    Settings struct {
                        Param []struct {
                            Name  string `xml:"name,attr"`
                            Value string `xml:"value,attr"`
                        } `xml:"param"`
                    } `xml:"settings"`
                    Gateways struct {
                        Gateway []struct {
                            Name  string `xml:"name,attr"`
                            Param []struct {
                                Name  string `xml:"name,attr"`
                                Value string `xml:"value,attr"`
                            } `xml:"param"`
                        } `xml:"gateway"`
                    } `xml:"gateways"`
                } `xml:"profile"`
            } `xml:"profiles"`
        } `xml:"configuration"`
        Result []struct {
            Status string `xml:"status,attr"`
        } `xml:"result"`
    } `xml:"section"`
}

func parse(t *testing.T, raw string) *parsedConfig {
    t.Helper()
    var doc parsedConfig
    require.NoError(t, xml.Unmarshal([]byte(raw), &doc))
    return &doc
}

func request(key string) models.SwitchRequest {
    return models.SwitchRequest{
        "section":   "configuration",
        "key_value": key,
    }
}

func TestProfilesWithGateways(t *testing.T) {
    store := &stubStore{gateways: []models.Gateway{
        {
            Name:              "sw1",
            Realm:             "sip.carrier.example",
            Username:          "acct",
            Password:          "tok",
            Proxy:             "proxy.carrier.example",
            Register:          true,
            RegisterTransport: "tls",
            DTMFType:          "rfc2833",
            CodecPrefs:        "PCMU,PCMA",
        },
        {Name: "sw2", Realm: "backup.carrier.example"},
    }}
    r := New(store)

    doc := parse(t, r.Resolve(context.Background(), request("sofia.conf")))

    assert.Equal(t, "configuration", doc.Section.Name)
    require.Len(t, doc.Section.Configuration, 1)
    assert.Equal(t, "sofia.conf", doc.Section.Configuration[0].Name)

    profiles := doc.Section.Configuration[0].Profiles.Profile
    require.Len(t, profiles, 2)
    assert.Equal(t, "internal", profiles[0].Name)
    assert.Equal(t, "external", profiles[1].Name)

    assert.Empty(t, profiles[0].Gateways.Gateway)
    require.Len(t, profiles[1].Gateways.Gateway, 2)

    gw := profiles[1].Gateways.Gateway[0]
    assert.Equal(t, "sw1", gw.Name)
    values := map[string]string{}
    for _, p := range gw.Param {
        values[p.Name] = p.Value
    }
    assert.Equal(t, "sip.carrier.example", values["realm"])
    assert.Equal(t, "acct", values["username"])
    assert.Equal(t, "true", values["register"])
    assert.Equal(t, "tls", values["register-transport"])
    assert.Equal(t, "proxy.carrier.example", values["proxy"])
}

func TestInternalProfileSettings(t *testing.T) {
    r := New(&stubStore{})

    doc := parse(t, r.Resolve(context.Background(), request("sofia.conf")))

    internal := doc.Section.Configuration[0].Profiles.Profile[0]
    values := map[string]string{}
    for _, p := range internal.Settings.Param {
        values[p.Name] = p.Value
    }
    assert.Equal(t, "default", values["context"])
    assert.Equal(t, "true", values["auth-calls"])
    assert.NotEmpty(t, values["codec-prefs"])
}

func TestEmptyPoolStillEmitsExternalProfile(t *testing.T) {
    r := New(&stubStore{})

    doc := parse(t, r.Resolve(context.Background(), request("sofia.conf")))

    profiles := doc.Section.Configuration[0].Profiles.Profile
    require.Len(t, profiles, 2)
    assert.Equal(t, "external", profiles[1].Name)
    assert.Empty(t, profiles[1].Gateways.Gateway)

    values := map[string]string{}
    for _, p := range profiles[1].Settings.Param {
        values[p.Name] = p.Value
    }
    assert.Equal(t, "public", values["context"])
    assert.Equal(t, "false", values["auth-calls"])
}

func TestIdempotentForSamePool(t *testing.T) {
    store := &stubStore{gateways: []models.Gateway{{Name: "sw1", Realm: "r"}}}
    r := New(store)

    first := r.Resolve(context.Background(), request("sofia.conf"))
    second := r.Resolve(context.Background(), request("sofia.conf"))

    assert.Equal(t, first, second)
}

func TestUnknownKeyNotFound(t *testing.T) {
    r := New(&stubStore{})

    doc := parse(t, r.Resolve(context.Background(), request("acl.conf")))

    assert.Equal(t, "result", doc.Section.Name)
    require.Len(t, doc.Section.Result, 1)
    assert.Equal(t, "not found", doc.Section.Result[0].Status)
}

func TestStoreFailureDegradesToEmptyPool(t *testing.T) {
    store := &stubStore{err: errors.New(errors.ErrDatabase, "store down")}
    r := New(store)

    doc := parse(t, r.Resolve(context.Background(), request("sofia.conf")))

    profiles := doc.Section.Configuration[0].Profiles.Profile
    require.Len(t, profiles, 2)
    assert.Empty(t, profiles[1].Gateways.Gateway)
}
