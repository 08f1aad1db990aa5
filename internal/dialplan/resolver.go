package dialplan

import (
    "context"
    "fmt"
    "regexp"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/internal/cnam"
    "github.com/hamzaKhattat/fs-xml-router/internal/fsxml"
    "github.com/hamzaKhattat/fs-xml-router/internal/metrics"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Store is the read-only slice of the data store the resolver needs.
type Store interface {
    TenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
    TenantByDIDNumber(ctx context.Context, didNumber string) (*models.Tenant, *models.DID, error)
    Gateways(ctx context.Context) ([]models.Gateway, error)
}

// CNAMLookup resolves a calling number to a caller-name record, or nil.
type CNAMLookup interface {
    Lookup(ctx context.Context, number string) *cnam.Record
}

// Resolver classifies a call from the switch's request variables and
// produces the extension program the switch will execute. It never
// returns an error to the transport: every failure path degrades to a
// valid announce-and-hangup document.
type Resolver struct {
    store Store
    cnam  CNAMLookup
}

const (
    voicemailCheckCode = "*98"
    announceFile       = "ivr/ivr-call_cannot_be_completed_as_dialed.wav"
    defaultCallTimeout = 30
)

var (
    pstnPattern     = regexp.MustCompile(`^(\+?1?)?(\d{10})$`)
    externalPattern = regexp.MustCompile(`^\+?\d{10,15}$`)
)

func New(store Store, lookup CNAMLookup) *Resolver {
    return &Resolver{
        store: store,
        cnam:  lookup,
    }
}

// Resolve handles one dialplan request end to end and returns the XML
// document for the switch.
func (r *Resolver) Resolve(ctx context.Context, req models.SwitchRequest) string {
    callContext := req.CallContext()
    domain := req.Domain()
    dest := req.Destination()

    log := logger.WithContext(ctx).WithFields(map[string]interface{}{
        "call_context": callContext,
        "domain":       domain,
        "destination":  dest,
    })

    switch callContext {
    case "public":
        return r.resolvePublic(ctx, req)
    case "default":
        return r.resolveDefault(ctx, req)
    default:
        log.Warn("Unrecognized call context, emitting fallback")
        return fsxml.RenderDialplan(callContext, fallbackProgram(dest))
    }
}

// resolvePublic handles calls arriving from a carrier trunk. The real
// DID is recovered from the trunk-side hints and the call is handed to
// inbound-DID routing in the default context, which transfers it out
// of public.
func (r *Resolver) resolvePublic(ctx context.Context, req models.SwitchRequest) string {
    didNumber := req.ActualDID()
    if didNumber == "" {
        didNumber = req.TrunkCallee()
    }

    if didNumber == "" {
        logger.WithContext(ctx).Warn("Public call without a trunk DID hint")
        metrics.DialplanRoutes.WithLabelValues("no_did").Inc()
        program := &fsxml.Program{
            Name:           "no_did_found",
            ConditionField: "destination_number",
            Expression:     anchorLiteral(req.Destination()),
            Actions: []fsxml.Action{
                {Application: "answer"},
                {Application: "playback", Data: announceFile},
                {Application: "hangup"},
            },
        }
        return fsxml.RenderDialplan("public", program)
    }

    metrics.DialplanRoutes.WithLabelValues("inbound_did").Inc()
    return fsxml.RenderDialplan("default", r.inboundDIDProgram(ctx, req, didNumber))
}

// resolveDefault runs the internal-context pipeline: inter-domain
// guard, outbound PSTN, then local dispatch.
func (r *Resolver) resolveDefault(ctx context.Context, req models.SwitchRequest) string {
    dest := req.Destination()

    if program := r.interDomainGuard(ctx, req); program != nil {
        return fsxml.RenderDialplan("default", program)
    }

    if program := r.outboundPSTN(ctx, dest); program != nil {
        return fsxml.RenderDialplan("default", program)
    }

    return fsxml.RenderDialplan("default", r.localDispatch(ctx, req))
}

// interDomainGuard rejects calls whose channel claims one domain while
// the request targets another. Returns nil when the call is allowed.
func (r *Resolver) interDomainGuard(ctx context.Context, req models.SwitchRequest) *fsxml.Program {
    callerDomain := req.ChannelDomain()
    reqDomain := req.Domain()
    if callerDomain == "" || reqDomain == "" {
        return nil
    }
    if models.NormalizeDomain(callerDomain) == models.NormalizeDomain(reqDomain) {
        return nil
    }

    logger.WithContext(ctx).WithFields(map[string]interface{}{
        "caller_domain":  callerDomain,
        "request_domain": reqDomain,
    }).Warn("Inter-domain call rejected")

    metrics.DialplanRoutes.WithLabelValues("interdomain_reject").Inc()
    return &fsxml.Program{
        Name:           "interdomain_reject",
        ConditionField: "destination_number",
        Expression:     anchorLiteral(req.Destination()),
        Actions: []fsxml.Action{
            {Application: "hangup", Data: "CALL_REJECTED"},
        },
    }
}

// outboundPSTN matches North-American numbers and bridges them through
// the first gateway in the shared pool. Returns nil on no match or an
// empty pool so the caller falls through to local dispatch.
func (r *Resolver) outboundPSTN(ctx context.Context, dest string) *fsxml.Program {
    m := pstnPattern.FindStringSubmatch(dest)
    if m == nil {
        return nil
    }

    gateways, err := r.store.Gateways(ctx)
    if err != nil {
        logger.WithContext(ctx).WithError(err).Error("Gateway pool lookup failed")
        return nil
    }
    if len(gateways) == 0 {
        return nil
    }

    number := "+1" + m[2]
    gw := gateways[0]

    metrics.DialplanRoutes.WithLabelValues("outbound_pstn").Inc()
    return &fsxml.Program{
        Name:           "outbound_pstn",
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions: []fsxml.Action{
            {Application: "bridge", Data: fmt.Sprintf("sofia/gateway/%s/%s", gw.Name, number)},
            {Application: "playback", Data: announceFile},
            {Application: "hangup"},
        },
    }
}

// localDispatch resolves a destination inside the caller's own tenant,
// in strict precedence order: the voicemail feature code, groups,
// tenant dialplan entries, SIP clients, external dial-out, fallback.
func (r *Resolver) localDispatch(ctx context.Context, req models.SwitchRequest) *fsxml.Program {
    domain := req.Domain()
    dest := req.Destination()

    tenant, err := r.store.TenantByDomain(ctx, domain)
    if err != nil {
        if errors.Is(err, errors.ErrTenantNotFound) {
            logger.WithContext(ctx).WithField("domain", domain).Warn("Unknown tenant domain")
            metrics.DialplanRoutes.WithLabelValues("no_route").Inc()
            return fallbackProgram(dest)
        }
        logger.WithContext(ctx).WithError(err).Error("Tenant lookup failed")
        metrics.DialplanRoutes.WithLabelValues("error").Inc()
        return fsxml.ErrorProgram()
    }

    if dest == voicemailCheckCode {
        metrics.DialplanRoutes.WithLabelValues("voicemail_check").Inc()
        return voicemailCheckProgram(domain)
    }

    if group := tenant.GroupByName(dest); group != nil {
        metrics.DialplanRoutes.WithLabelValues("group").Inc()
        return r.groupProgram(domain, group, dest)
    }

    if program := matchDialplanEntry(tenant, dest); program != nil {
        metrics.DialplanRoutes.WithLabelValues("dialplan_entry").Inc()
        return program
    }

    if client := clientByNormalizedID(tenant, dest); client != nil {
        metrics.DialplanRoutes.WithLabelValues("client").Inc()
        return r.clientProgram(domain, client, dest)
    }

    if program := r.externalDialOut(ctx, dest); program != nil {
        metrics.DialplanRoutes.WithLabelValues("external").Inc()
        return program
    }

    metrics.DialplanRoutes.WithLabelValues("no_route").Inc()
    return fallbackProgram(dest)
}

func voicemailCheckProgram(domain string) *fsxml.Program {
    return &fsxml.Program{
        Name:           "voicemail_check",
        ConditionField: "destination_number",
        Expression:     anchorLiteral(voicemailCheckCode),
        Actions: []fsxml.Action{
            {Application: "answer"},
            {Application: "sleep", Data: "1000"},
            {Application: "voicemail", Data: "check default " + domain},
            {Application: "hangup"},
        },
    }
}

// groupProgram composes the bridge string for a hunt or ring group and
// appends its no-answer handling.
func (r *Resolver) groupProgram(domain string, group *models.Group, dest string) *fsxml.Program {
    actions := []fsxml.Action{
        {Application: "set", Data: "hangup_after_bridge=true"},
        {Application: "set", Data: "continue_on_fail=true"},
        {Application: "bridge", Data: groupBridgeData(domain, group)},
    }
    actions = append(actions, groupFailoverActions(domain, group)...)

    return &fsxml.Program{
        Name:           "group_" + group.Name,
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions:        actions,
    }
}

// groupBridgeData joins member URIs with "|" for sequential hunting or
// "," for simultaneous ringing, with an optional leading timeout token.
func groupBridgeData(domain string, group *models.Group) string {
    sep := "|"
    if group.Type == models.GroupTypeRing {
        sep = ","
    }

    uris := make([]string, 0, len(group.Members))
    for _, m := range group.Members {
        uris = append(uris, fmt.Sprintf("user/%s@%s", m.UserID, domain))
    }

    data := strings.Join(uris, sep)
    if group.Timeout > 0 {
        data = fmt.Sprintf("timeout=%d,%s", group.Timeout, data)
    }
    return data
}

func groupFailoverActions(domain string, group *models.Group) []fsxml.Action {
    if group.VoicemailBoxID != "" {
        return []fsxml.Action{
            {Application: "answer"},
            {Application: "sleep", Data: "1000"},
            {Application: "voicemail", Data: fmt.Sprintf("default %s %s", domain, group.VoicemailBoxID)},
            {Application: "hangup"},
        }
    }
    if group.NoAnswerAction != "" {
        app, data := splitAction(group.NoAnswerAction)
        return []fsxml.Action{
            {Application: app, Data: data},
            {Application: "hangup"},
        }
    }
    return []fsxml.Action{
        {Application: "answer"},
        {Application: "playback", Data: announceFile},
        {Application: "hangup"},
    }
}

// matchDialplanEntry returns the first tenant rule on destination_number
// whose anchored expression matches. Entry actions pass through as
// stored.
func matchDialplanEntry(tenant *models.Tenant, dest string) *fsxml.Program {
    for i := range tenant.Dialplan {
        entry := &tenant.Dialplan[i]
        if entry.ConditionField != "destination_number" {
            continue
        }
        re, err := regexp.Compile(entry.ConditionExpression)
        if err != nil {
            logger.WithField("entry", entry.Name).WithError(err).Warn("Skipping dialplan entry with invalid expression")
            continue
        }
        if !re.MatchString(dest) {
            continue
        }

        actions := make([]fsxml.Action, 0, len(entry.Actions))
        for _, a := range entry.Actions {
            actions = append(actions, fsxml.Action{Application: a.Application, Data: a.Data})
        }
        return &fsxml.Program{
            Name:           entry.Name,
            ConditionField: entry.ConditionField,
            Expression:     entry.ConditionExpression,
            Actions:        actions,
        }
    }
    return nil
}

func clientByNormalizedID(tenant *models.Tenant, dest string) *models.SipClient {
    want := models.NormalizeDomain(dest)
    if want == "" {
        return nil
    }
    for i := range tenant.SipClients {
        if models.NormalizeDomain(tenant.SipClients[i].UserID) == want {
            return &tenant.SipClients[i]
        }
    }
    return nil
}

// clientProgram builds the standard per-user program: channel setup,
// call-return bookkeeping, the bridge, and voicemail-or-announce on
// no answer. The condition anchors the dialed destination, not the
// client's user_id: the two differ whenever normalization matched them.
func (r *Resolver) clientProgram(domain string, client *models.SipClient, dest string) *fsxml.Program {
    timeout := client.NoAnswerTimeout
    if timeout <= 0 {
        timeout = defaultCallTimeout
    }

    actions := []fsxml.Action{
        {Application: "set", Data: fmt.Sprintf("user_exists=${user_exists id %s %s}", client.UserID, domain)},
        {Application: "set", Data: "dialed_extension=" + client.UserID},
        {Application: "export", Data: "dialed_extension=" + client.UserID},
        {Application: "bind_meta_app", Data: "1 b s execute_extension::dx XML features"},
        {Application: "bind_meta_app", Data: "2 b s record_session::${recordings_dir}/${caller_id_number}.${strftime(%Y-%m-%d-%H-%M-%S)}.wav"},
        {Application: "bind_meta_app", Data: "3 b s execute_extension::cf XML features"},
        {Application: "bind_meta_app", Data: "4 b s execute_extension::att_xfer XML features"},
        {Application: "set", Data: "ringback=${us-ring}"},
        {Application: "set", Data: "transfer_ringback=$${hold_music}"},
        {Application: "set", Data: fmt.Sprintf("call_timeout=%d", timeout)},
        {Application: "set", Data: "hangup_after_bridge=true"},
        {Application: "set", Data: "continue_on_fail=true"},
        {Application: "hash", Data: fmt.Sprintf("insert/%s-call_return/%s/${caller_id_number}", domain, client.UserID)},
        {Application: "hash", Data: fmt.Sprintf("insert/%s-last_dial_ext/%s/${uuid}", domain, client.UserID)},
        {Application: "bridge", Data: fmt.Sprintf("user/%s@%s", client.UserID, domain)},
    }

    if client.EnableVoicemail {
        actions = append(actions,
            fsxml.Action{Application: "answer"},
            fsxml.Action{Application: "sleep", Data: "1000"},
            fsxml.Action{Application: "voicemail", Data: fmt.Sprintf("default %s %s", domain, client.UserID)},
            fsxml.Action{Application: "hangup"},
        )
    } else {
        actions = append(actions,
            fsxml.Action{Application: "answer"},
            fsxml.Action{Application: "playback", Data: announceFile},
            fsxml.Action{Application: "hangup"},
        )
    }

    return &fsxml.Program{
        Name:           "local_" + client.UserID,
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions:        actions,
    }
}

// externalDialOut bridges long-form numbers through the shared trunk
// pool. Returns nil when the destination doesn't look external or the
// pool is empty.
func (r *Resolver) externalDialOut(ctx context.Context, dest string) *fsxml.Program {
    if !externalPattern.MatchString(dest) {
        return nil
    }

    gateways, err := r.store.Gateways(ctx)
    if err != nil || len(gateways) == 0 {
        return nil
    }

    return &fsxml.Program{
        Name:           "external_dialout",
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions: []fsxml.Action{
            {Application: "set", Data: "hangup_after_bridge=true"},
            {Application: "bridge", Data: fmt.Sprintf("sofia/gateway/%s/%s", gateways[0].Name, dest)},
            {Application: "playback", Data: announceFile},
            {Application: "hangup"},
        },
    }
}

// fallbackProgram answers, announces the failure, and hangs up. This is
// the terminal no-match route: a routing decision, not an error.
func fallbackProgram(dest string) *fsxml.Program {
    return &fsxml.Program{
        Name:           "no_route",
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions: []fsxml.Action{
            {Application: "answer"},
            {Application: "playback", Data: announceFile},
            {Application: "hangup"},
        },
    }
}

// anchorLiteral builds the condition expression that matches the
// destination literally: regex metacharacters escaped, anchored on
// both ends. The emitter passes expressions through untouched, so the
// XML-escaping of this user-controlled value happens here. The switch's
// XML parser undoes the entity escapes before regex evaluation.
func anchorLiteral(dest string) string {
    return "^" + fsxml.EscapeAttr(regexp.QuoteMeta(dest)) + "$"
}

// splitAction parses a stored "application data" action string.
func splitAction(s string) (string, string) {
    parts := strings.SplitN(strings.TrimSpace(s), " ", 2)
    if len(parts) == 2 {
        return parts[0], parts[1]
    }
    return parts[0], ""
}
