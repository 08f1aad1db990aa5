package models

import (
    "strings"
)

// SwitchRequest is the loose string map of variables the switch posts
// with every lookup. Accessors encode the documented key precedence so
// resolvers never touch raw keys.
type SwitchRequest map[string]string

func (r SwitchRequest) get(keys ...string) string {
    for _, k := range keys {
        if v, ok := r[k]; ok && v != "" {
            return v
        }
    }
    return ""
}

// Section returns the lookup family requested by the switch.
func (r SwitchRequest) Section() string {
    return r.get("section")
}

// Domain returns the tenant domain hint.
func (r SwitchRequest) Domain() string {
    return r.get("domain", "variable_domain_name", "variable_sip_to_host")
}

// CallContext returns the dialplan context, defaulting to "default".
func (r SwitchRequest) CallContext() string {
    if ctx := r.get("Caller-Context", "variable_dialplan_context"); ctx != "" {
        return ctx
    }
    return "default"
}

// Destination returns the dialed number or identifier.
func (r SwitchRequest) Destination() string {
    return r.get("Caller-Destination-Number", "destination_number")
}

// ActualDID returns the trunk-provided DID override, if any.
func (r SwitchRequest) ActualDID() string {
    return r.get("variable_signalwire_actual_did")
}

// TrunkCallee returns the trunk-side callee hint used to recover the
// real DID for calls arriving in the public context.
func (r SwitchRequest) TrunkCallee() string {
    return r.get("variable_sip_to_user", "variable_sip_dest_user")
}

// CallerIDNumber returns the caller's number as supplied by the switch.
func (r SwitchRequest) CallerIDNumber() string {
    return r.get("Caller-Caller-ID-Number")
}

// CallerIDName returns the caller's display name as supplied by the switch.
func (r SwitchRequest) CallerIDName() string {
    return r.get("Caller-Caller-ID-Name")
}

// ChannelName returns the caller's channel name.
func (r SwitchRequest) ChannelName() string {
    return r.get("Caller-Channel-Name")
}

// ChannelDomain extracts the domain component from the channel name
// (e.g. "sofia/internal/1001@b.example" -> "b.example"). Empty when the
// channel name carries no domain.
func (r SwitchRequest) ChannelDomain() string {
    name := r.ChannelName()
    idx := strings.LastIndex(name, "@")
    if idx < 0 || idx == len(name)-1 {
        return ""
    }
    domain := name[idx+1:]
    // Strip any trailing port or transport suffix
    if i := strings.IndexAny(domain, ":;"); i >= 0 {
        domain = domain[:i]
    }
    return domain
}

// User returns the directory user id being looked up.
func (r SwitchRequest) User() string {
    return r.get("user", "sip_auth_username")
}

// Action returns the directory action, e.g. "voicemail-lookup".
func (r SwitchRequest) Action() string {
    return r.get("action")
}

// ConfigKey returns the requested configuration file name.
func (r SwitchRequest) ConfigKey() string {
    return r.get("key_value")
}

// NormalizeDomain compares domains loosely: lowercase with every
// non-alphanumeric stripped. Trunk gear is creative about case and
// separators in host fields.
func NormalizeDomain(domain string) string {
    var b strings.Builder
    for _, c := range strings.ToLower(domain) {
        if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
            b.WriteRune(c)
        }
    }
    return b.String()
}

// CanonicalDID normalizes a dialed number to stored DID form: a bare
// 10-digit national number gains the +1 prefix, 1XXXXXXXXXX gains the
// plus. Anything else is returned untouched.
func CanonicalDID(number string) string {
    digits := number
    if strings.HasPrefix(digits, "+") {
        digits = digits[1:]
    }
    if len(digits) == 10 && allDigits(digits) {
        return "+1" + digits
    }
    if len(digits) == 11 && digits[0] == '1' && allDigits(digits) {
        return "+" + digits
    }
    return number
}

func allDigits(s string) bool {
    for _, c := range s {
        if c < '0' || c > '9' {
            return false
        }
    }
    return len(s) > 0
}
