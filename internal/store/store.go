package store

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/hamzaKhattat/fs-xml-router/internal/db"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Store is the data-store adapter over the tenant aggregates and the
// shared gateway pool. The lookup paths are read-only; all writes live
// in admin.go and belong to the administrative surface.
type Store struct {
    db           *db.DB
    cache        CacheInterface
    queryTimeout time.Duration
}

// CacheInterface defines the cache operations the store relies on.
type CacheInterface interface {
    Get(ctx context.Context, key string, dest interface{}) error
    Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
    Delete(ctx context.Context, keys ...string) error
}

const (
    aggregateCacheTTL   = time.Minute
    defaultQueryTimeout = 500 * time.Millisecond
)

func New(database *db.DB, cache CacheInterface, queryTimeout time.Duration) *Store {
    if queryTimeout <= 0 {
        queryTimeout = defaultQueryTimeout
    }
    return &Store{
        db:           database,
        cache:        cache,
        queryTimeout: queryTimeout,
    }
}

// queryCtx caps a lookup at the store's query budget. Aggregate loads
// issue several queries; the budget covers the whole load, not each
// statement.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(ctx, s.queryTimeout)
}

// TenantByDomain loads the full tenant aggregate for a domain. Returns
// ErrTenantNotFound when no tenant owns the domain.
func (s *Store) TenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
    cacheKey := fmt.Sprintf("tenant:domain:%s", domain)
    var cached models.Tenant
    if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
        return &cached, nil
    }

    ctx, cancel := s.queryCtx(ctx)
    defer cancel()

    var tenant models.Tenant
    err := s.db.QueryRowContext(ctx, `
        SELECT id, domain_name, profile, created_at, updated_at
        FROM tenants WHERE domain_name = ?`, domain).Scan(
        &tenant.ID, &tenant.DomainName, &tenant.Profile, &tenant.CreatedAt, &tenant.UpdatedAt)

    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrTenantNotFound, "tenant not found").
            WithContext("domain", domain).WithStatusCode(404)
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query tenant")
    }

    if err := s.loadEmbeds(ctx, &tenant); err != nil {
        return nil, err
    }

    s.cache.Set(ctx, cacheKey, tenant, aggregateCacheTTL)

    return &tenant, nil
}

// TenantByDIDNumber locates the tenant owning an active DID, returning
// the aggregate and the matched DID record. The input is canonicalized
// before comparison so 10-digit numbers match stored +1 form.
func (s *Store) TenantByDIDNumber(ctx context.Context, didNumber string) (*models.Tenant, *models.DID, error) {
    canonical := models.CanonicalDID(didNumber)

    cacheKey := fmt.Sprintf("tenant:did:%s", canonical)
    var cachedDomain string
    if err := s.cache.Get(ctx, cacheKey, &cachedDomain); err == nil {
        tenant, err := s.TenantByDomain(ctx, cachedDomain)
        if err == nil {
            if did := tenant.DIDByNumber(canonical); did != nil && did.Active {
                return tenant, did, nil
            }
        }
        // Stale mapping, fall through to the query
    }

    qctx, cancel := s.queryCtx(ctx)
    defer cancel()

    var domain string
    err := s.db.QueryRowContext(qctx, `
        SELECT t.domain_name
        FROM dids d
        JOIN tenants t ON d.tenant_id = t.id
        WHERE d.did_number = ? AND d.active = TRUE`, canonical).Scan(&domain)

    if err == sql.ErrNoRows {
        return nil, nil, errors.New(errors.ErrDIDNotFound, "no active DID").
            WithContext("did_number", canonical).WithStatusCode(404)
    }
    if err != nil {
        return nil, nil, errors.Wrap(err, errors.ErrDatabase, "failed to query DID")
    }

    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return nil, nil, err
    }

    did := tenant.DIDByNumber(canonical)
    if did == nil {
        return nil, nil, errors.New(errors.ErrDIDNotFound, "DID missing from aggregate").
            WithContext("did_number", canonical)
    }

    s.cache.Set(ctx, cacheKey, domain, aggregateCacheTTL)

    return tenant, did, nil
}

// FindSipClient resolves a single client by (domain, user_id).
func (s *Store) FindSipClient(ctx context.Context, domain, userID string) (*models.SipClient, error) {
    tenant, err := s.TenantByDomain(ctx, domain)
    if err != nil {
        return nil, err
    }

    client := tenant.ClientByUserID(userID)
    if client == nil {
        return nil, errors.New(errors.ErrClientNotFound, "sip client not found").
            WithContext("domain", domain).WithContext("user_id", userID).WithStatusCode(404)
    }

    return client, nil
}

// Gateways enumerates the shared external gateway pool ordered by name.
func (s *Store) Gateways(ctx context.Context) ([]models.Gateway, error) {
    cacheKey := "gateways:all"
    var cached []models.Gateway
    if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
        return cached, nil
    }

    ctx, cancel := s.queryCtx(ctx)
    defer cancel()

    rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, realm, username, password, proxy, register,
               register_transport, dtmf_type, codec_prefs, secure_media,
               created_at, updated_at
        FROM external_gateways
        ORDER BY name`)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query gateways")
    }
    defer rows.Close()

    var gateways []models.Gateway
    for rows.Next() {
        var gw models.Gateway
        var realm, username, password, proxy sql.NullString

        err := rows.Scan(&gw.ID, &gw.Name, &realm, &username, &password, &proxy,
            &gw.Register, &gw.RegisterTransport, &gw.DTMFType, &gw.CodecPrefs,
            &gw.SecureMedia, &gw.CreatedAt, &gw.UpdatedAt)
        if err != nil {
            logger.WithContext(ctx).WithError(err).Warn("Failed to scan gateway")
            continue
        }

        gw.Realm = realm.String
        gw.Username = username.String
        gw.Password = password.String
        gw.Proxy = proxy.String

        gateways = append(gateways, gw)
    }

    s.cache.Set(ctx, cacheKey, gateways, aggregateCacheTTL)

    return gateways, nil
}

// GatewayByName fetches one gateway from the pool.
func (s *Store) GatewayByName(ctx context.Context, name string) (*models.Gateway, error) {
    gateways, err := s.Gateways(ctx)
    if err != nil {
        return nil, err
    }

    for i := range gateways {
        if gateways[i].Name == name {
            return &gateways[i], nil
        }
    }

    return nil, errors.New(errors.ErrGatewayNotFound, "gateway not found").
        WithContext("name", name).WithStatusCode(404)
}

// loadEmbeds fills the tenant's embedded collections in stored order.
// Routing precedence within a rule family depends on that order, so
// every query carries an explicit ORDER BY.
func (s *Store) loadEmbeds(ctx context.Context, tenant *models.Tenant) error {
    if err := s.loadClients(ctx, tenant); err != nil {
        return err
    }
    if err := s.loadGroups(ctx, tenant); err != nil {
        return err
    }
    if err := s.loadDIDs(ctx, tenant); err != nil {
        return err
    }
    return s.loadDialplan(ctx, tenant)
}

func (s *Store) loadClients(ctx context.Context, tenant *models.Tenant) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, tenant_id, user_id, password, display_name, enable_voicemail,
               voicemail_pin, voicemail_email, no_answer_timeout, local_caller_id_name
        FROM sip_clients
        WHERE tenant_id = ?
        ORDER BY id`, tenant.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query sip clients")
    }
    defer rows.Close()

    for rows.Next() {
        var c models.SipClient
        var displayName, pin, email, callerID sql.NullString
        var timeout sql.NullInt64

        if err := rows.Scan(&c.ID, &c.TenantID, &c.UserID, &c.Password, &displayName,
            &c.EnableVoicemail, &pin, &email, &timeout, &callerID); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan sip client")
        }

        c.DisplayName = displayName.String
        c.VoicemailPin = pin.String
        c.VoicemailEmail = email.String
        c.NoAnswerTimeout = int(timeout.Int64)
        c.LocalCallerIDName = callerID.String

        tenant.SipClients = append(tenant.SipClients, c)
    }

    return rows.Err()
}

func (s *Store) loadGroups(ctx context.Context, tenant *models.Tenant) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, tenant_id, name, type, timeout, strategy, voicemail_box_id, no_answer_action
        FROM tenant_groups
        WHERE tenant_id = ?
        ORDER BY id`, tenant.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query groups")
    }
    defer rows.Close()

    for rows.Next() {
        var g models.Group
        var boxID, action sql.NullString

        if err := rows.Scan(&g.ID, &g.TenantID, &g.Name, &g.Type, &g.Timeout,
            &g.Strategy, &boxID, &action); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan group")
        }

        g.VoicemailBoxID = boxID.String
        g.NoAnswerAction = action.String

        tenant.Groups = append(tenant.Groups, g)
    }
    if err := rows.Err(); err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "group rows")
    }

    for i := range tenant.Groups {
        if err := s.loadGroupMembers(ctx, &tenant.Groups[i]); err != nil {
            return err
        }
    }

    return nil
}

func (s *Store) loadGroupMembers(ctx context.Context, group *models.Group) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, group_id, user_id, position
        FROM group_members
        WHERE group_id = ?
        ORDER BY position, id`, group.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query group members")
    }
    defer rows.Close()

    for rows.Next() {
        var m models.GroupMember
        if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Position); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan group member")
        }
        group.Members = append(group.Members, m)
    }

    return rows.Err()
}

func (s *Store) loadDIDs(ctx context.Context, tenant *models.Tenant) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, tenant_id, did_number, active, routing_type, routing_target,
               failover_routing_type, failover_routing_target
        FROM dids
        WHERE tenant_id = ?
        ORDER BY id`, tenant.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query dids")
    }
    defer rows.Close()

    for rows.Next() {
        var d models.DID
        var foType, foTarget sql.NullString

        if err := rows.Scan(&d.ID, &d.TenantID, &d.DidNumber, &d.Active,
            &d.RoutingType, &d.RoutingTarget, &foType, &foTarget); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan did")
        }

        d.FailoverRoutingType = foType.String
        d.FailoverRoutingTarget = foTarget.String

        tenant.DIDs = append(tenant.DIDs, d)
    }

    return rows.Err()
}

func (s *Store) loadDialplan(ctx context.Context, tenant *models.Tenant) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, tenant_id, name, condition_field, condition_expression, position
        FROM dialplan_extensions
        WHERE tenant_id = ?
        ORDER BY position, id`, tenant.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query dialplan extensions")
    }
    defer rows.Close()

    for rows.Next() {
        var e models.DialplanEntry
        if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.ConditionField,
            &e.ConditionExpression, &e.Position); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan dialplan extension")
        }
        tenant.Dialplan = append(tenant.Dialplan, e)
    }
    if err := rows.Err(); err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "dialplan rows")
    }

    for i := range tenant.Dialplan {
        if err := s.loadDialplanActions(ctx, &tenant.Dialplan[i]); err != nil {
            return err
        }
    }

    return nil
}

func (s *Store) loadDialplanActions(ctx context.Context, entry *models.DialplanEntry) error {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, extension_id, application, data, position
        FROM dialplan_actions
        WHERE extension_id = ?
        ORDER BY position, id`, entry.ID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to query dialplan actions")
    }
    defer rows.Close()

    for rows.Next() {
        var a models.DialplanAction
        var data sql.NullString
        if err := rows.Scan(&a.ID, &a.ExtensionID, &a.Application, &data, &a.Position); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to scan dialplan action")
        }
        a.Data = data.String
        entry.Actions = append(entry.Actions, a)
    }

    return rows.Err()
}

// invalidateTenant drops every cache key derived from a tenant.
func (s *Store) invalidateTenant(ctx context.Context, domain string) {
    s.cache.Delete(ctx, fmt.Sprintf("tenant:domain:%s", domain))
}

func (s *Store) invalidateDID(ctx context.Context, didNumber string) {
    s.cache.Delete(ctx, fmt.Sprintf("tenant:did:%s", models.CanonicalDID(didNumber)))
}

func (s *Store) invalidateGateways(ctx context.Context) {
    s.cache.Delete(ctx, "gateways:all")
}
