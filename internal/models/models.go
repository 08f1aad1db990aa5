package models

import (
    "time"
)

// Group types
type GroupType string

const (
    GroupTypeHunt GroupType = "hunt"
    GroupTypeRing GroupType = "ring"
)

// Group ring strategies
type GroupStrategy string

const (
    StrategySequential   GroupStrategy = "sequential"
    StrategySimultaneous GroupStrategy = "simultaneous"
    StrategyRandom       GroupStrategy = "random"
)

// DID routing types
type RoutingType string

const (
    RoutingTypeExtension RoutingType = "extension"
    RoutingTypeGroup     RoutingType = "group"
    RoutingTypeIVR       RoutingType = "ivr"
    RoutingTypeExternal  RoutingType = "external_number"
    RoutingTypeCustom    RoutingType = "custom"
)

// UnassignedTarget is written into a DID's routing target when the
// extension or group it pointed at is deleted.
const UnassignedTarget = "unassigned"

// Tenant is the aggregate root for one customer domain. The embedded
// slices preserve insertion order as stored.
type Tenant struct {
    ID         int64             `json:"id" db:"id"`
    DomainName string            `json:"domain_name" db:"domain_name"`
    Profile    string            `json:"profile" db:"profile"`
    SipClients []SipClient       `json:"sip_clients"`
    Groups     []Group           `json:"groups"`
    DIDs       []DID             `json:"dids"`
    Dialplan   []DialplanEntry   `json:"dialplan"`
    CreatedAt  time.Time         `json:"created_at" db:"created_at"`
    UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// SipClient is a registering SIP user owned by a tenant.
type SipClient struct {
    ID                int64  `json:"id" db:"id"`
    TenantID          int64  `json:"-" db:"tenant_id"`
    UserID            string `json:"user_id" db:"user_id"`
    Password          string `json:"password,omitempty" db:"password"`
    DisplayName       string `json:"display_name" db:"display_name"`
    EnableVoicemail   bool   `json:"enable_voicemail" db:"enable_voicemail"`
    VoicemailPin      string `json:"voicemail_pin,omitempty" db:"voicemail_pin"`
    VoicemailEmail    string `json:"voicemail_email,omitempty" db:"voicemail_email"`
    NoAnswerTimeout   int    `json:"no_answer_timeout" db:"no_answer_timeout"`
    LocalCallerIDName string `json:"local_caller_id_name,omitempty" db:"local_caller_id_name"`
}

// Group is a hunt or ring group owned by a tenant. Members keep the
// stored order; routing composes dial strings member by member.
type Group struct {
    ID             int64         `json:"id" db:"id"`
    TenantID       int64         `json:"-" db:"tenant_id"`
    Name           string        `json:"name" db:"name"`
    Type           GroupType     `json:"type" db:"type"`
    Timeout        int           `json:"timeout" db:"timeout"`
    Strategy       GroupStrategy `json:"strategy" db:"strategy"`
    VoicemailBoxID string        `json:"voicemail_box_id,omitempty" db:"voicemail_box_id"`
    NoAnswerAction string        `json:"no_answer_action,omitempty" db:"no_answer_action"`
    Members        []GroupMember `json:"members"`
}

// GroupMember references a SIP client by user id.
type GroupMember struct {
    ID       int64  `json:"-" db:"id"`
    GroupID  int64  `json:"-" db:"group_id"`
    UserID   string `json:"user_id" db:"user_id"`
    Position int    `json:"position" db:"position"`
}

// DID maps a public number to a tenant routing target. Numbers are
// stored canonically with a leading +1 for North-American numbers.
type DID struct {
    ID                    int64       `json:"id" db:"id"`
    TenantID              int64       `json:"-" db:"tenant_id"`
    DidNumber             string      `json:"did_number" db:"did_number"`
    Active                bool        `json:"active" db:"active"`
    RoutingType           RoutingType `json:"routing_type" db:"routing_type"`
    RoutingTarget         string      `json:"routing_target" db:"routing_target"`
    FailoverRoutingType   string      `json:"failover_routing_type,omitempty" db:"failover_routing_type"`
    FailoverRoutingTarget string      `json:"failover_routing_target,omitempty" db:"failover_routing_target"`
}

// DialplanEntry is a tenant-defined routing rule: a condition plus
// ordered actions appended verbatim when the condition matches.
type DialplanEntry struct {
    ID                  int64            `json:"id" db:"id"`
    TenantID            int64            `json:"-" db:"tenant_id"`
    Name                string           `json:"name" db:"name"`
    ConditionField      string           `json:"condition_field" db:"condition_field"`
    ConditionExpression string           `json:"condition_expression" db:"condition_expression"`
    Position            int              `json:"position" db:"position"`
    Actions             []DialplanAction `json:"actions"`
}

// DialplanAction is one switch application invocation.
type DialplanAction struct {
    ID          int64  `json:"-" db:"id"`
    ExtensionID int64  `json:"-" db:"extension_id"`
    Application string `json:"application" db:"application"`
    Data        string `json:"data" db:"data"`
    Position    int    `json:"position" db:"position"`
}

// Gateway is an upstream carrier trunk shared across tenants.
type Gateway struct {
    ID                int64     `json:"id" db:"id"`
    Name              string    `json:"name" db:"name"`
    Realm             string    `json:"realm" db:"realm"`
    Username          string    `json:"username" db:"username"`
    Password          string    `json:"password,omitempty" db:"password"`
    Proxy             string    `json:"proxy" db:"proxy"`
    Register          bool      `json:"register" db:"register"`
    RegisterTransport string    `json:"register_transport" db:"register_transport"`
    DTMFType          string    `json:"dtmf_type" db:"dtmf_type"`
    CodecPrefs        string    `json:"codec_prefs" db:"codec_prefs"`
    SecureMedia       bool      `json:"secure_media" db:"secure_media"`
    CreatedAt         time.Time `json:"created_at" db:"created_at"`
    UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// ClientByUserID returns the tenant's SIP client with the given user id.
func (t *Tenant) ClientByUserID(userID string) *SipClient {
    for i := range t.SipClients {
        if t.SipClients[i].UserID == userID {
            return &t.SipClients[i]
        }
    }
    return nil
}

// GroupByName returns the tenant's group with the given name.
func (t *Tenant) GroupByName(name string) *Group {
    for i := range t.Groups {
        if t.Groups[i].Name == name {
            return &t.Groups[i]
        }
    }
    return nil
}

// DIDByNumber returns the tenant's DID with the given canonical number.
func (t *Tenant) DIDByNumber(number string) *DID {
    for i := range t.DIDs {
        if t.DIDs[i].DidNumber == number {
            return &t.DIDs[i]
        }
    }
    return nil
}
