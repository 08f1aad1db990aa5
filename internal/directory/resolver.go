package directory

import (
    "context"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/internal/fsxml"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Store is the read-only slice of the data store the resolver needs.
type Store interface {
    TenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
}

// Resolver answers directory lookups: who is this SIP user, what is
// the password, where does voicemail live. Besides real SIP clients it
// serves voicemail-only pseudo-users for group and DID mailboxes.
type Resolver struct {
    store Store
}

// noSIPAuth marks a pseudo-user the switch must never let register.
const noSIPAuth = "NO_SIP_AUTH"

const dialString = "{^^:sip_invite_domain=${dialed_domain}:presence_id=${dialed_user}@${dialed_domain}}${sofia_contact(*/${dialed_user}@${dialed_domain})}"

func New(store Store) *Resolver {
    return &Resolver{store: store}
}

// Resolve handles one directory request and returns the XML document.
// Unknown users and unknown tenants both yield the empty document the
// switch reads as "no such user".
func (r *Resolver) Resolve(ctx context.Context, req models.SwitchRequest) string {
    domain := req.Domain()
    userID := req.User()

    tenant, err := r.store.TenantByDomain(ctx, domain)
    if err != nil {
        if !errors.Is(err, errors.ErrTenantNotFound) {
            logger.WithContext(ctx).WithError(err).Error("Directory tenant lookup failed")
        }
        return fsxml.RenderDirectory(domain, nil)
    }

    if client := tenant.ClientByUserID(userID); client != nil {
        return fsxml.RenderDirectory(domain, clientUser(domain, client))
    }

    // Mailbox pseudo-users only exist for the voicemail application.
    // Serving them on registration or call lookups would let the
    // switch treat a bare box id as a dialable user.
    if req.Action() == "voicemail-lookup" {
        if group := groupByMailbox(tenant, userID); group != nil {
            return fsxml.RenderDirectory(domain, mailboxUser(userID, group.VoicemailBoxID, ""))
        }

        if did, box := didMailbox(tenant, userID); did != nil {
            return fsxml.RenderDirectory(domain, mailboxUser(userID, box, ""))
        }
    }

    return fsxml.RenderDirectory(domain, nil)
}

// clientUser renders a full SIP user entry: auth credentials, dial
// string, and voicemail settings when the box is enabled.
func clientUser(domain string, client *models.SipClient) *fsxml.DirectoryUser {
    user := &fsxml.DirectoryUser{
        ID: client.UserID,
        Params: []fsxml.Param{
            {Name: "password", Value: client.Password},
            {Name: "dial-string", Value: dialString},
        },
        Variables: []fsxml.Param{
            {Name: "user_context", Value: "default"},
            {Name: "domain_name", Value: domain},
            {Name: "effective_caller_id_number", Value: client.UserID},
        },
    }

    name := client.DisplayName
    if client.LocalCallerIDName != "" {
        name = client.LocalCallerIDName
    }
    if name != "" {
        user.Variables = append(user.Variables, fsxml.Param{Name: "effective_caller_id_name", Value: name})
    }

    if client.EnableVoicemail {
        if client.VoicemailPin != "" {
            user.Params = append(user.Params, fsxml.Param{Name: "vm-password", Value: client.VoicemailPin})
        }
        if client.VoicemailEmail != "" {
            user.Params = append(user.Params, fsxml.Param{Name: "vm-mailto", Value: client.VoicemailEmail})
            user.Params = append(user.Params, fsxml.Param{Name: "vm-email-all-messages", Value: "true"})
        }
    }

    return user
}

// mailboxUser renders a voicemail-only pseudo-user. It cannot register
// and exists only so the voicemail application finds a box.
func mailboxUser(userID, box, pin string) *fsxml.DirectoryUser {
    user := &fsxml.DirectoryUser{
        ID: userID,
        Params: []fsxml.Param{
            {Name: "password", Value: noSIPAuth},
        },
        Variables: []fsxml.Param{
            {Name: "user_context", Value: "default"},
        },
    }
    if box != "" && box != userID {
        user.Mailbox = box
    }
    if pin != "" {
        user.Params = append(user.Params, fsxml.Param{Name: "vm-password", Value: pin})
    }
    return user
}

func groupByMailbox(tenant *models.Tenant, userID string) *models.Group {
    if userID == "" {
        return nil
    }
    for i := range tenant.Groups {
        if tenant.Groups[i].VoicemailBoxID == userID {
            return &tenant.Groups[i]
        }
    }
    return nil
}

// didMailbox matches DIDs whose failover is a voicemail box, by either
// the DID number or the box id itself.
func didMailbox(tenant *models.Tenant, userID string) (*models.DID, string) {
    if userID == "" {
        return nil, ""
    }
    for i := range tenant.DIDs {
        did := &tenant.DIDs[i]
        if !strings.HasPrefix(did.FailoverRoutingTarget, "voicemail_") {
            continue
        }
        box := strings.TrimPrefix(did.FailoverRoutingTarget, "voicemail_")
        if did.DidNumber == userID || did.DidNumber == models.CanonicalDID(userID) || box == userID {
            return did, box
        }
    }
    return nil, ""
}
