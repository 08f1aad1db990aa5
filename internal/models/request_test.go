package models

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestDomainPrecedence(t *testing.T) {
    req := SwitchRequest{
        "variable_sip_to_host":  "c.example",
        "variable_domain_name":  "b.example",
        "domain":                "a.example",
    }
    assert.Equal(t, "a.example", req.Domain())

    delete(req, "domain")
    assert.Equal(t, "b.example", req.Domain())

    delete(req, "variable_domain_name")
    assert.Equal(t, "c.example", req.Domain())
}

func TestCallContextDefault(t *testing.T) {
    assert.Equal(t, "default", SwitchRequest{}.CallContext())
    assert.Equal(t, "public", SwitchRequest{"Caller-Context": "public"}.CallContext())
    assert.Equal(t, "features", SwitchRequest{"variable_dialplan_context": "features"}.CallContext())
}

func TestDestinationPrecedence(t *testing.T) {
    req := SwitchRequest{
        "Caller-Destination-Number": "1001",
        "destination_number":        "2002",
    }
    assert.Equal(t, "1001", req.Destination())

    delete(req, "Caller-Destination-Number")
    assert.Equal(t, "2002", req.Destination())
}

func TestTrunkCalleePrecedence(t *testing.T) {
    req := SwitchRequest{
        "variable_sip_dest_user": "5125550002",
        "variable_sip_to_user":   "5125550001",
    }
    assert.Equal(t, "5125550001", req.TrunkCallee())

    delete(req, "variable_sip_to_user")
    assert.Equal(t, "5125550002", req.TrunkCallee())
}

func TestChannelDomain(t *testing.T) {
    cases := []struct {
        channel string
        want    string
    }{
        {"sofia/internal/1001@b.example", "b.example"},
        {"sofia/internal/1001@b.example:5060", "b.example"},
        {"sofia/internal/1001@b.example;transport=tls", "b.example"},
        {"sofia/internal/1001", ""},
        {"", ""},
        {"sofia/internal/1001@", ""},
    }
    for _, tc := range cases {
        req := SwitchRequest{"Caller-Channel-Name": tc.channel}
        assert.Equal(t, tc.want, req.ChannelDomain(), "channel %q", tc.channel)
    }
}

func TestNormalizeDomain(t *testing.T) {
    assert.Equal(t, "aexample", NormalizeDomain("A.Example"))
    assert.Equal(t, "aexample", NormalizeDomain("a-examplE"))
    assert.Equal(t, "", NormalizeDomain(".-:"))
    assert.Equal(t, NormalizeDomain("B.Example"), NormalizeDomain("b.example"))
}

func TestCanonicalDID(t *testing.T) {
    cases := []struct {
        in   string
        want string
    }{
        {"5125551234", "+15125551234"},
        {"15125551234", "+15125551234"},
        {"+15125551234", "+15125551234"},
        {"+442071234567", "+442071234567"},
        {"sales", "sales"},
        {"", ""},
    }
    for _, tc := range cases {
        assert.Equal(t, tc.want, CanonicalDID(tc.in), "input %q", tc.in)
    }
}

func TestEmptyValuesSkipPrecedence(t *testing.T) {
    req := SwitchRequest{
        "domain":               "",
        "variable_domain_name": "b.example",
    }
    assert.Equal(t, "b.example", req.Domain())
}
