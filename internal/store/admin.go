package store

import (
    "context"
    "database/sql"
    "regexp"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Administrative writes. Each mutation runs in one transaction and
// invalidates the cache keys it touches. The lookup resolvers never
// call anything in this file.

func isDuplicate(err error) bool {
    return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
    if tenant.DomainName == "" {
        return errors.New(errors.ErrInvalidRequest, "domain_name is required").WithStatusCode(400)
    }
    if tenant.Profile == "" {
        tenant.Profile = "internal"
    }

    result, err := s.db.ExecContext(ctx,
        "INSERT INTO tenants (domain_name, profile) VALUES (?, ?)",
        tenant.DomainName, tenant.Profile)
    if err != nil {
        if isDuplicate(err) {
            return errors.New(errors.ErrDuplicate, "tenant already exists").
                WithContext("domain", tenant.DomainName).WithStatusCode(409)
        }
        return errors.Wrap(err, errors.ErrDatabase, "failed to insert tenant")
    }

    tenant.ID, _ = result.LastInsertId()

    logger.WithContext(ctx).WithField("domain", tenant.DomainName).Info("Tenant created")
    return nil
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, domain_name, profile, created_at, updated_at
        FROM tenants ORDER BY domain_name`)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query tenants")
    }
    defer rows.Close()

    var tenants []models.Tenant
    for rows.Next() {
        var t models.Tenant
        if err := rows.Scan(&t.ID, &t.DomainName, &t.Profile, &t.CreatedAt, &t.UpdatedAt); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "failed to scan tenant")
        }
        tenants = append(tenants, t)
    }

    return tenants, rows.Err()
}

func (s *Store) DeleteTenant(ctx context.Context, domain string) error {
    result, err := s.db.ExecContext(ctx, "DELETE FROM tenants WHERE domain_name = ?", domain)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to delete tenant")
    }

    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrTenantNotFound, "tenant not found").
            WithContext("domain", domain).WithStatusCode(404)
    }

    s.invalidateTenant(ctx, domain)
    logger.WithContext(ctx).WithField("domain", domain).Info("Tenant deleted")
    return nil
}

func (s *Store) CreateSipClient(ctx context.Context, domain string, client *models.SipClient) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    if client.UserID == "" || client.Password == "" {
        return errors.New(errors.ErrInvalidRequest, "user_id and password are required").WithStatusCode(400)
    }

    result, err := s.db.ExecContext(ctx, `
        INSERT INTO sip_clients
            (tenant_id, user_id, password, display_name, enable_voicemail,
             voicemail_pin, voicemail_email, no_answer_timeout, local_caller_id_name)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        tenant.ID, client.UserID, client.Password, client.DisplayName,
        client.EnableVoicemail, client.VoicemailPin, client.VoicemailEmail,
        client.NoAnswerTimeout, client.LocalCallerIDName)
    if err != nil {
        if isDuplicate(err) {
            return errors.New(errors.ErrDuplicate, "sip client already exists").
                WithContext("user_id", client.UserID).WithStatusCode(409)
        }
        return errors.Wrap(err, errors.ErrDatabase, "failed to insert sip client")
    }

    client.ID, _ = result.LastInsertId()
    client.TenantID = tenant.ID

    s.invalidateTenant(ctx, domain)
    return nil
}

func (s *Store) UpdateSipClient(ctx context.Context, domain string, client *models.SipClient) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    result, err := s.db.ExecContext(ctx, `
        UPDATE sip_clients
        SET password = ?, display_name = ?, enable_voicemail = ?,
            voicemail_pin = ?, voicemail_email = ?, no_answer_timeout = ?,
            local_caller_id_name = ?
        WHERE tenant_id = ? AND user_id = ?`,
        client.Password, client.DisplayName, client.EnableVoicemail,
        client.VoicemailPin, client.VoicemailEmail, client.NoAnswerTimeout,
        client.LocalCallerIDName, tenant.ID, client.UserID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to update sip client")
    }

    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrClientNotFound, "sip client not found").
            WithContext("user_id", client.UserID).WithStatusCode(404)
    }

    s.invalidateTenant(ctx, domain)
    return nil
}

// DeleteSipClient removes the client and repairs every reference to it:
// group member rows are purged and DIDs routed at the client are
// rewritten to an unassigned custom target so lookups keep working.
func (s *Store) DeleteSipClient(ctx context.Context, domain, userID string) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
        result, err := tx.ExecContext(ctx,
            "DELETE FROM sip_clients WHERE tenant_id = ? AND user_id = ?",
            tenant.ID, userID)
        if err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to delete sip client")
        }
        if n, _ := result.RowsAffected(); n == 0 {
            return errors.New(errors.ErrClientNotFound, "sip client not found").
                WithContext("user_id", userID).WithStatusCode(404)
        }

        if _, err := tx.ExecContext(ctx, `
            DELETE gm FROM group_members gm
            JOIN tenant_groups g ON gm.group_id = g.id
            WHERE g.tenant_id = ? AND gm.user_id = ?`, tenant.ID, userID); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to purge group memberships")
        }

        if _, err := tx.ExecContext(ctx, `
            UPDATE dids
            SET routing_type = ?, routing_target = ?
            WHERE tenant_id = ? AND routing_type = ? AND routing_target = ?`,
            models.RoutingTypeCustom, models.UnassignedTarget,
            tenant.ID, models.RoutingTypeExtension, userID); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to rewrite dids")
        }

        return nil
    })
    if err != nil {
        return err
    }

    s.invalidateTenant(ctx, domain)
    for i := range tenant.DIDs {
        s.invalidateDID(ctx, tenant.DIDs[i].DidNumber)
    }

    logger.WithContext(ctx).WithFields(map[string]interface{}{
        "domain":  domain,
        "user_id": userID,
    }).Info("SIP client deleted")

    return nil
}

func (s *Store) CreateGroup(ctx context.Context, domain string, group *models.Group) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    if group.Name == "" {
        return errors.New(errors.ErrInvalidRequest, "group name is required").WithStatusCode(400)
    }
    if group.Type == "" {
        group.Type = models.GroupTypeHunt
    }
    if group.Strategy == "" {
        if group.Type == models.GroupTypeRing {
            group.Strategy = models.StrategySimultaneous
        } else {
            group.Strategy = models.StrategySequential
        }
    }

    err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
        result, err := tx.ExecContext(ctx, `
            INSERT INTO tenant_groups
                (tenant_id, name, type, timeout, strategy, voicemail_box_id, no_answer_action)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
            tenant.ID, group.Name, group.Type, group.Timeout, group.Strategy,
            group.VoicemailBoxID, group.NoAnswerAction)
        if err != nil {
            if isDuplicate(err) {
                return errors.New(errors.ErrDuplicate, "group already exists").
                    WithContext("name", group.Name).WithStatusCode(409)
            }
            return errors.Wrap(err, errors.ErrDatabase, "failed to insert group")
        }

        group.ID, _ = result.LastInsertId()
        group.TenantID = tenant.ID

        for i, member := range group.Members {
            if _, err := tx.ExecContext(ctx,
                "INSERT INTO group_members (group_id, user_id, position) VALUES (?, ?, ?)",
                group.ID, member.UserID, i); err != nil {
                return errors.Wrap(err, errors.ErrDatabase, "failed to insert group member")
            }
        }

        return nil
    })
    if err != nil {
        return err
    }

    s.invalidateTenant(ctx, domain)
    return nil
}

// DeleteGroup removes the group and rewrites DIDs pointed at it, the
// same repair DeleteSipClient does for extension targets.
func (s *Store) DeleteGroup(ctx context.Context, domain, name string) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
        result, err := tx.ExecContext(ctx,
            "DELETE FROM tenant_groups WHERE tenant_id = ? AND name = ?",
            tenant.ID, name)
        if err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to delete group")
        }
        if n, _ := result.RowsAffected(); n == 0 {
            return errors.New(errors.ErrGroupNotFound, "group not found").
                WithContext("name", name).WithStatusCode(404)
        }

        if _, err := tx.ExecContext(ctx, `
            UPDATE dids
            SET routing_type = ?, routing_target = ?
            WHERE tenant_id = ? AND routing_type = ? AND routing_target = ?`,
            models.RoutingTypeCustom, models.UnassignedTarget,
            tenant.ID, models.RoutingTypeGroup, name); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to rewrite dids")
        }

        return nil
    })
    if err != nil {
        return err
    }

    s.invalidateTenant(ctx, domain)
    for i := range tenant.DIDs {
        s.invalidateDID(ctx, tenant.DIDs[i].DidNumber)
    }

    return nil
}

func (s *Store) CreateDID(ctx context.Context, domain string, did *models.DID) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    if did.DidNumber == "" || did.RoutingType == "" {
        return errors.New(errors.ErrInvalidRequest, "did_number and routing_type are required").WithStatusCode(400)
    }

    did.DidNumber = models.CanonicalDID(did.DidNumber)

    result, err := s.db.ExecContext(ctx, `
        INSERT INTO dids
            (tenant_id, did_number, active, routing_type, routing_target,
             failover_routing_type, failover_routing_target)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
        tenant.ID, did.DidNumber, did.Active, did.RoutingType, did.RoutingTarget,
        did.FailoverRoutingType, did.FailoverRoutingTarget)
    if err != nil {
        if isDuplicate(err) {
            return errors.New(errors.ErrDuplicate, "did already exists").
                WithContext("did_number", did.DidNumber).WithStatusCode(409)
        }
        return errors.Wrap(err, errors.ErrDatabase, "failed to insert did")
    }

    did.ID, _ = result.LastInsertId()
    did.TenantID = tenant.ID

    s.invalidateTenant(ctx, domain)
    s.invalidateDID(ctx, did.DidNumber)
    return nil
}

func (s *Store) DeleteDID(ctx context.Context, domain, didNumber string) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    canonical := models.CanonicalDID(didNumber)

    result, err := s.db.ExecContext(ctx,
        "DELETE FROM dids WHERE tenant_id = ? AND did_number = ?",
        tenant.ID, canonical)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to delete did")
    }
    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrDIDNotFound, "did not found").
            WithContext("did_number", canonical).WithStatusCode(404)
    }

    s.invalidateTenant(ctx, domain)
    s.invalidateDID(ctx, canonical)
    return nil
}

// validateDialplanEntry rejects entries the lookup path cannot emit.
// Stored expressions and action data pass into the XML verbatim, so
// XML-breaking characters are refused here, and the expression must
// compile or the entry would never match anything.
func validateDialplanEntry(entry *models.DialplanEntry) error {
    if entry.Name == "" || entry.ConditionExpression == "" {
        return errors.New(errors.ErrInvalidRequest, "name and condition_expression are required").WithStatusCode(400)
    }
    if _, err := regexp.Compile(entry.ConditionExpression); err != nil {
        return errors.New(errors.ErrInvalidRequest, "condition_expression is not a valid regex").
            WithContext("name", entry.Name).WithContext("error", err.Error()).WithStatusCode(400)
    }
    if strings.ContainsAny(entry.ConditionExpression, `"<&`) {
        return errors.New(errors.ErrInvalidRequest, `condition_expression must not contain ", < or &`).
            WithContext("name", entry.Name).WithStatusCode(400)
    }
    for _, a := range entry.Actions {
        if a.Application == "" {
            return errors.New(errors.ErrInvalidRequest, "action application is required").
                WithContext("name", entry.Name).WithStatusCode(400)
        }
        if strings.ContainsAny(a.Data, `"<&`) {
            return errors.New(errors.ErrInvalidRequest, `action data must not contain ", < or &`).
                WithContext("name", entry.Name).WithContext("application", a.Application).WithStatusCode(400)
        }
    }
    return nil
}

func (s *Store) CreateDialplanEntry(ctx context.Context, domain string, entry *models.DialplanEntry) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    if entry.ConditionField == "" {
        entry.ConditionField = "destination_number"
    }
    if err := validateDialplanEntry(entry); err != nil {
        return err
    }

    err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
        result, err := tx.ExecContext(ctx, `
            INSERT INTO dialplan_extensions
                (tenant_id, name, condition_field, condition_expression, position)
            VALUES (?, ?, ?, ?,
                (SELECT COALESCE(MAX(position), 0) + 1 FROM dialplan_extensions de WHERE de.tenant_id = ?))`,
            tenant.ID, entry.Name, entry.ConditionField, entry.ConditionExpression, tenant.ID)
        if err != nil {
            if isDuplicate(err) {
                return errors.New(errors.ErrDuplicate, "dialplan extension already exists").
                    WithContext("name", entry.Name).WithStatusCode(409)
            }
            return errors.Wrap(err, errors.ErrDatabase, "failed to insert dialplan extension")
        }

        entry.ID, _ = result.LastInsertId()
        entry.TenantID = tenant.ID

        for i, action := range entry.Actions {
            if _, err := tx.ExecContext(ctx,
                "INSERT INTO dialplan_actions (extension_id, application, data, position) VALUES (?, ?, ?, ?)",
                entry.ID, action.Application, action.Data, i); err != nil {
                return errors.Wrap(err, errors.ErrDatabase, "failed to insert dialplan action")
            }
        }

        return nil
    })
    if err != nil {
        return err
    }

    s.invalidateTenant(ctx, domain)
    return nil
}

func (s *Store) DeleteDialplanEntry(ctx context.Context, domain, name string) error {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return err
    }

    result, err := s.db.ExecContext(ctx,
        "DELETE FROM dialplan_extensions WHERE tenant_id = ? AND name = ?",
        tenant.ID, name)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to delete dialplan extension")
    }
    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrRouteNotFound, "dialplan extension not found").
            WithContext("name", name).WithStatusCode(404)
    }

    s.invalidateTenant(ctx, domain)
    return nil
}

func (s *Store) CreateGateway(ctx context.Context, gw *models.Gateway) error {
    if gw.Name == "" {
        return errors.New(errors.ErrInvalidRequest, "gateway name is required").WithStatusCode(400)
    }
    if gw.RegisterTransport == "" {
        gw.RegisterTransport = "udp"
    }
    if gw.DTMFType == "" {
        gw.DTMFType = "rfc2833"
    }
    if gw.CodecPrefs == "" {
        gw.CodecPrefs = "PCMU,PCMA"
    }

    result, err := s.db.ExecContext(ctx, `
        INSERT INTO external_gateways
            (name, realm, username, password, proxy, register,
             register_transport, dtmf_type, codec_prefs, secure_media)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        gw.Name, gw.Realm, gw.Username, gw.Password, gw.Proxy, gw.Register,
        gw.RegisterTransport, gw.DTMFType, gw.CodecPrefs, gw.SecureMedia)
    if err != nil {
        if isDuplicate(err) {
            return errors.New(errors.ErrDuplicate, "gateway already exists").
                WithContext("name", gw.Name).WithStatusCode(409)
        }
        return errors.Wrap(err, errors.ErrDatabase, "failed to insert gateway")
    }

    gw.ID, _ = result.LastInsertId()

    s.invalidateGateways(ctx)
    logger.WithContext(ctx).WithField("gateway", gw.Name).Info("Gateway created")
    return nil
}

func (s *Store) UpdateGateway(ctx context.Context, gw *models.Gateway) error {
    result, err := s.db.ExecContext(ctx, `
        UPDATE external_gateways
        SET realm = ?, username = ?, password = ?, proxy = ?, register = ?,
            register_transport = ?, dtmf_type = ?, codec_prefs = ?, secure_media = ?
        WHERE name = ?`,
        gw.Realm, gw.Username, gw.Password, gw.Proxy, gw.Register,
        gw.RegisterTransport, gw.DTMFType, gw.CodecPrefs, gw.SecureMedia, gw.Name)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to update gateway")
    }

    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrGatewayNotFound, "gateway not found").
            WithContext("name", gw.Name).WithStatusCode(404)
    }

    s.invalidateGateways(ctx)
    return nil
}

func (s *Store) DeleteGateway(ctx context.Context, name string) error {
    result, err := s.db.ExecContext(ctx, "DELETE FROM external_gateways WHERE name = ?", name)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to delete gateway")
    }

    if n, _ := result.RowsAffected(); n == 0 {
        return errors.New(errors.ErrGatewayNotFound, "gateway not found").
            WithContext("name", name).WithStatusCode(404)
    }

    s.invalidateGateways(ctx)
    logger.WithContext(ctx).WithField("gateway", name).Info("Gateway deleted")
    return nil
}
