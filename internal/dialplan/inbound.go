package dialplan

import (
    "context"
    "fmt"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/internal/fsxml"
    "github.com/hamzaKhattat/fs-xml-router/internal/metrics"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// inboundDIDProgram routes a trunk call addressed to a public number:
// enrich the caller identity, find the tenant owning the DID, set and
// export the identity variables, then dispatch on the DID's routing
// type with its failover appended.
func (r *Resolver) inboundDIDProgram(ctx context.Context, req models.SwitchRequest, didNumber string) *fsxml.Program {
    dest := req.Destination()
    if dest == "" {
        dest = didNumber
    }

    callerName, callerNumber := r.enrichCaller(ctx, req)

    tenant, did, err := r.store.TenantByDIDNumber(ctx, didNumber)
    if err != nil {
        if errors.Is(err, errors.ErrDIDNotFound) || errors.Is(err, errors.ErrTenantNotFound) {
            logger.WithContext(ctx).WithField("did", didNumber).Warn("No tenant owns inbound DID")
            return fallbackProgram(dest)
        }
        logger.WithContext(ctx).WithError(err).Error("DID lookup failed")
        return fsxml.ErrorProgram()
    }

    domain := tenant.DomainName
    actions := identityPreamble(domain, callerName, callerNumber)

    routed, ok := r.routeDID(tenant, did, domain)
    if !ok {
        logger.WithContext(ctx).WithFields(map[string]interface{}{
            "did":            did.DidNumber,
            "routing_type":   did.RoutingType,
            "routing_target": did.RoutingTarget,
        }).Warn("Inbound DID routing target missing")
        return fallbackProgram(dest)
    }
    actions = append(actions, routed...)
    actions = append(actions, didFailoverActions(domain, did)...)

    return &fsxml.Program{
        Name:           "inbound_did_" + did.DidNumber,
        ConditionField: "destination_number",
        Expression:     anchorLiteral(dest),
        Actions:        actions,
    }
}

// enrichCaller runs the best-effort CNAM lookup and returns the display
// name and number to present, both with any leading +1 stripped. When
// the lookup yields nothing the switch-supplied identity passes
// through unchanged.
func (r *Resolver) enrichCaller(ctx context.Context, req models.SwitchRequest) (string, string) {
    callerName := req.CallerIDName()
    callerNumber := req.CallerIDNumber()

    if r.cnam != nil {
        rec := r.cnam.Lookup(ctx, callerNumber)
        if rec == nil {
            metrics.CNAMLookupsTotal.WithLabelValues("miss").Inc()
        } else {
            metrics.CNAMLookupsTotal.WithLabelValues("hit").Inc()
            parts := make([]string, 0, 3)
            for _, p := range []string{rec.NationalNumberFormatted, rec.CallerID, rec.Location} {
                if p != "" {
                    parts = append(parts, p)
                }
            }
            if len(parts) > 0 {
                callerName = strings.Join(parts, ", ")
            }
        }
    }

    return stripNANPPrefix(callerName), stripNANPPrefix(callerNumber)
}

// identityPreamble sets and exports the caller identity so the bridged
// leg sees the enriched values, then arms bridge failure handling.
func identityPreamble(domain, callerName, callerNumber string) []fsxml.Action {
    pairs := []struct{ name, value string }{
        {"caller_id_name", callerName},
        {"caller_id_number", callerNumber},
        {"effective_caller_id_name", callerName},
        {"effective_caller_id_number", callerNumber},
        {"sip_invite_domain", domain},
        {"sip_from_host", domain},
        {"sip_from_user", callerNumber},
        {"sip_from_display", callerName},
        {"sip_from_uri", callerNumber + "@" + domain},
    }

    actions := make([]fsxml.Action, 0, len(pairs)*2+2)
    for _, p := range pairs {
        // caller identity is wire-supplied; escape it here since the
        // emitter leaves action data untouched
        data := fsxml.EscapeAttr(p.name + "=" + p.value)
        actions = append(actions,
            fsxml.Action{Application: "set", Data: data},
            fsxml.Action{Application: "export", Data: data},
        )
    }
    actions = append(actions,
        fsxml.Action{Application: "set", Data: "continue_on_fail=true"},
        fsxml.Action{Application: "set", Data: "hangup_after_bridge=true"},
    )
    return actions
}

// routeDID produces the routing actions for a DID. The second return is
// false when the configured target no longer exists.
func (r *Resolver) routeDID(tenant *models.Tenant, did *models.DID, domain string) ([]fsxml.Action, bool) {
    switch did.RoutingType {
    case models.RoutingTypeExtension:
        client := tenant.ClientByUserID(did.RoutingTarget)
        if client == nil {
            return nil, false
        }
        return []fsxml.Action{
            {Application: "bridge", Data: fmt.Sprintf("user/%s@%s", client.UserID, domain)},
        }, true

    case models.RoutingTypeGroup:
        group := tenant.GroupByName(did.RoutingTarget)
        if group == nil {
            return nil, false
        }
        return []fsxml.Action{
            {Application: "bridge", Data: groupBridgeData(domain, group)},
        }, true

    case models.RoutingTypeIVR:
        return []fsxml.Action{
            {Application: "transfer", Data: fmt.Sprintf("%s XML %s_ivr_context", did.RoutingTarget, domain)},
        }, true

    default:
        return []fsxml.Action{
            {Application: "transfer", Data: did.RoutingTarget},
        }, true
    }
}

// didFailoverActions appends what happens if the routed leg fails: the
// DID's voicemail box when one is configured as failover, otherwise
// announce and hang up.
func didFailoverActions(domain string, did *models.DID) []fsxml.Action {
    if did.FailoverRoutingType == "dialplan_extension" && strings.HasPrefix(did.FailoverRoutingTarget, "voicemail_") {
        box := strings.TrimPrefix(did.FailoverRoutingTarget, "voicemail_")
        return []fsxml.Action{
            {Application: "answer"},
            {Application: "sleep", Data: "1000"},
            {Application: "voicemail", Data: fmt.Sprintf("default %s %s", domain, box)},
            {Application: "hangup"},
        }
    }
    return []fsxml.Action{
        {Application: "answer"},
        {Application: "playback", Data: announceFile},
        {Application: "hangup"},
    }
}

// stripNANPPrefix drops a leading +1 or 1 from an 11-digit
// North-American number so displays show the national form.
func stripNANPPrefix(s string) string {
    if strings.HasPrefix(s, "+1") && len(s) == 12 {
        return s[2:]
    }
    if strings.HasPrefix(s, "1") && len(s) == 11 && allDigits(s) {
        return s[1:]
    }
    return s
}

func allDigits(s string) bool {
    for _, c := range s {
        if c < '0' || c > '9' {
            return false
        }
    }
    return len(s) > 0
}
