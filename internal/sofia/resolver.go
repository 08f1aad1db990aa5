package sofia

import (
    "context"
    "fmt"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/internal/fsxml"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Store is the read-only slice of the data store the resolver needs.
type Store interface {
    Gateways(ctx context.Context) ([]models.Gateway, error)
}

// Resolver answers configuration lookups. Only the SIP profile file is
// recognized; it always carries two profiles: the static internal one
// tenants' phones register to, and the external one enumerating the
// shared gateway pool.
type Resolver struct {
    store Store
}

const profileConfigKey = "sofia.conf"

func New(store Store) *Resolver {
    return &Resolver{store: store}
}

// Resolve handles one configuration request. Unrecognized keys get the
// "not found" result document.
func (r *Resolver) Resolve(ctx context.Context, req models.SwitchRequest) string {
    key := req.ConfigKey()
    if key != profileConfigKey {
        logger.WithContext(ctx).WithField("key", key).Debug("Unrecognized configuration key")
        return fsxml.RenderNotFound()
    }

    gateways, err := r.store.Gateways(ctx)
    if err != nil {
        // a temporarily unreadable pool still yields a loadable
        // profile; the switch retries the config on rescan
        logger.WithContext(ctx).WithError(err).Error("Gateway pool lookup failed, emitting empty external profile")
        gateways = nil
    }

    return renderProfiles(gateways)
}

// internalSettings is the fixed configuration for the registration
// profile. Tenant phones land in the default context with NAT handling
// and presence enabled.
var internalSettings = []fsxml.Param{
    {Name: "context", Value: "default"},
    {Name: "sip-port", Value: "5060"},
    {Name: "dialplan", Value: "XML"},
    {Name: "dtmf-type", Value: "rfc2833"},
    {Name: "codec-prefs", Value: "PCMU,PCMA,OPUS"},
    {Name: "inbound-codec-negotiation", Value: "generous"},
    {Name: "auth-calls", Value: "true"},
    {Name: "apply-nat-acl", Value: "nat.auto"},
    {Name: "apply-inbound-acl", Value: "domains"},
    {Name: "local-network-acl", Value: "localnet.auto"},
    {Name: "manage-presence", Value: "true"},
    {Name: "presence-hosts", Value: "$${domain}"},
    {Name: "record-path", Value: "$${recordings_dir}"},
    {Name: "record-template", Value: "${caller_id_number}.${target_domain}.${strftime(%Y-%m-%d-%H-%M-%S)}.wav"},
    {Name: "rtp-timeout-sec", Value: "300"},
    {Name: "rtp-hold-timeout-sec", Value: "1800"},
}

// externalSettings is what the trunk profile uses whether or not the
// gateway pool has entries: no registration auth, public context, the
// safe codec pair every carrier takes.
var externalSettings = []fsxml.Param{
    {Name: "context", Value: "public"},
    {Name: "sip-port", Value: "5080"},
    {Name: "dialplan", Value: "XML"},
    {Name: "dtmf-type", Value: "rfc2833"},
    {Name: "codec-prefs", Value: "PCMU,PCMA"},
    {Name: "auth-calls", Value: "false"},
    {Name: "rtp-timeout-sec", Value: "300"},
}

func renderProfiles(gateways []models.Gateway) string {
    var b strings.Builder
    b.WriteString(`<document type="freeswitch/xml">` + "\n")
    b.WriteString(`  <section name="configuration">` + "\n")
    b.WriteString(`    <configuration name="sofia.conf" description="Sofia SIP Profiles">` + "\n")
    b.WriteString("      <profiles>\n")

    b.WriteString(`        <profile name="internal">` + "\n")
    writeSettings(&b, internalSettings)
    b.WriteString("        </profile>\n")

    b.WriteString(`        <profile name="external">` + "\n")
    b.WriteString("          <gateways>\n")
    for _, gw := range gateways {
        writeGateway(&b, gw)
    }
    b.WriteString("          </gateways>\n")
    writeSettings(&b, externalSettings)
    b.WriteString("        </profile>\n")

    b.WriteString("      </profiles>\n")
    b.WriteString("    </configuration>\n")
    b.WriteString("  </section>\n")
    b.WriteString("</document>\n")

    return b.String()
}

func writeSettings(b *strings.Builder, settings []fsxml.Param) {
    b.WriteString("          <settings>\n")
    for _, p := range settings {
        fmt.Fprintf(b, `            <param name="%s" value="%s"/>`+"\n",
            fsxml.EscapeAttr(p.Name), fsxml.EscapeAttr(p.Value))
    }
    b.WriteString("          </settings>\n")
}

func writeGateway(b *strings.Builder, gw models.Gateway) {
    fmt.Fprintf(b, `            <gateway name="%s">`+"\n", fsxml.EscapeAttr(gw.Name))

    params := []fsxml.Param{
        {Name: "realm", Value: gw.Realm},
        {Name: "username", Value: gw.Username},
        {Name: "password", Value: gw.Password},
        {Name: "register", Value: boolValue(gw.Register)},
        {Name: "register-transport", Value: gw.RegisterTransport},
        {Name: "dtmf-type", Value: gw.DTMFType},
        {Name: "codec-prefs", Value: gw.CodecPrefs},
    }
    if gw.Proxy != "" {
        params = append(params, fsxml.Param{Name: "proxy", Value: gw.Proxy})
    }
    for _, p := range params {
        fmt.Fprintf(b, `              <param name="%s" value="%s"/>`+"\n",
            fsxml.EscapeAttr(p.Name), fsxml.EscapeAttr(p.Value))
    }

    if gw.SecureMedia {
        b.WriteString("              <variables>\n")
        b.WriteString(`                <variable name="rtp_secure_media" value="true" direction="outbound"/>` + "\n")
        b.WriteString("              </variables>\n")
    }

    b.WriteString("            </gateway>\n")
}

func boolValue(v bool) string {
    if v {
        return "true"
    }
    return "false"
}
