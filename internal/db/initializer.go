package db

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// InitializeDatabase creates (and optionally resets) the control-plane
// schema: tenant aggregates plus the shared gateway pool.
func InitializeDatabase(ctx context.Context, db *sql.DB, dropExisting bool) error {
    log := logger.WithContext(ctx)

    if dropExisting {
        log.Warn("Dropping existing tables and data...")
        if err := dropAllTables(ctx, db); err != nil {
            return fmt.Errorf("failed to drop existing tables: %w", err)
        }
    }

    log.Info("Creating database schema...")

    if err := createCoreTables(ctx, db); err != nil {
        return fmt.Errorf("failed to create core tables: %w", err)
    }

    if err := insertSeedData(ctx, db); err != nil {
        return fmt.Errorf("failed to insert seed data: %w", err)
    }

    log.Info("Database initialization completed successfully")
    return nil
}

func dropAllTables(ctx context.Context, db *sql.DB) error {
    // Disable foreign key checks
    if _, err := db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
        return err
    }

    rows, err := db.QueryContext(ctx, `
        SELECT table_name
        FROM information_schema.tables
        WHERE table_schema = DATABASE()
    `)
    if err != nil {
        return err
    }
    defer rows.Close()

    var tables []string
    for rows.Next() {
        var tableName string
        if err := rows.Scan(&tableName); err != nil {
            continue
        }
        tables = append(tables, tableName)
    }

    for _, table := range tables {
        if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
            logger.WithContext(ctx).WithError(err).WithField("table", table).Warn("Failed to drop table")
        }
    }

    // Re-enable foreign key checks
    if _, err := db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
        return err
    }

    return nil
}

func createCoreTables(ctx context.Context, db *sql.DB) error {
    queries := []string{
        // Tenants - aggregate roots
        `CREATE TABLE IF NOT EXISTS tenants (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            domain_name VARCHAR(255) UNIQUE NOT NULL,
            profile VARCHAR(100) DEFAULT 'internal',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            INDEX idx_domain (domain_name)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // SIP clients, embedded in tenants
        `CREATE TABLE IF NOT EXISTS sip_clients (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            tenant_id BIGINT NOT NULL,
            user_id VARCHAR(100) NOT NULL,
            password VARCHAR(100) NOT NULL,
            display_name VARCHAR(255),
            enable_voicemail BOOLEAN DEFAULT FALSE,
            voicemail_pin VARCHAR(20),
            voicemail_email VARCHAR(255),
            no_answer_timeout INT DEFAULT 0,
            local_caller_id_name VARCHAR(255),
            UNIQUE KEY uq_tenant_user (tenant_id, user_id),
            FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Hunt and ring groups
        `CREATE TABLE IF NOT EXISTS tenant_groups (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            tenant_id BIGINT NOT NULL,
            name VARCHAR(100) NOT NULL,
            type ENUM('hunt', 'ring') NOT NULL DEFAULT 'hunt',
            timeout INT DEFAULT 0,
            strategy ENUM('sequential', 'simultaneous', 'random') DEFAULT 'sequential',
            voicemail_box_id VARCHAR(100),
            no_answer_action VARCHAR(255),
            UNIQUE KEY uq_tenant_group (tenant_id, name),
            FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Ordered group membership
        `CREATE TABLE IF NOT EXISTS group_members (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            group_id BIGINT NOT NULL,
            user_id VARCHAR(100) NOT NULL,
            position INT NOT NULL DEFAULT 0,
            INDEX idx_group_order (group_id, position),
            FOREIGN KEY (group_id) REFERENCES tenant_groups(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // DIDs, stored canonically with the +1 prefix
        `CREATE TABLE IF NOT EXISTS dids (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            tenant_id BIGINT NOT NULL,
            did_number VARCHAR(20) NOT NULL,
            active BOOLEAN DEFAULT TRUE,
            routing_type ENUM('extension', 'group', 'ivr', 'external_number', 'custom') NOT NULL,
            routing_target VARCHAR(255) NOT NULL,
            failover_routing_type VARCHAR(50),
            failover_routing_target VARCHAR(255),
            UNIQUE KEY uq_tenant_did (tenant_id, did_number),
            INDEX idx_did_number (did_number),
            FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Tenant dialplan rules, ordered
        `CREATE TABLE IF NOT EXISTS dialplan_extensions (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            tenant_id BIGINT NOT NULL,
            name VARCHAR(100) NOT NULL,
            condition_field VARCHAR(100) NOT NULL DEFAULT 'destination_number',
            condition_expression VARCHAR(255) NOT NULL,
            position INT NOT NULL DEFAULT 0,
            UNIQUE KEY uq_tenant_ext (tenant_id, name),
            INDEX idx_tenant_order (tenant_id, position),
            FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Ordered actions per dialplan extension
        `CREATE TABLE IF NOT EXISTS dialplan_actions (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            extension_id BIGINT NOT NULL,
            application VARCHAR(100) NOT NULL,
            data VARCHAR(1024),
            position INT NOT NULL DEFAULT 0,
            INDEX idx_ext_order (extension_id, position),
            FOREIGN KEY (extension_id) REFERENCES dialplan_extensions(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Shared carrier gateway pool, independent of tenants
        `CREATE TABLE IF NOT EXISTS external_gateways (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            name VARCHAR(100) UNIQUE NOT NULL,
            realm VARCHAR(255),
            username VARCHAR(100),
            password VARCHAR(100),
            proxy VARCHAR(255),
            register BOOLEAN DEFAULT TRUE,
            register_transport VARCHAR(20) DEFAULT 'udp',
            dtmf_type VARCHAR(20) DEFAULT 'rfc2833',
            codec_prefs VARCHAR(255) DEFAULT 'PCMU,PCMA',
            secure_media BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    }

    for _, query := range queries {
        if _, err := db.ExecContext(ctx, query); err != nil {
            return err
        }
    }

    return nil
}

func insertSeedData(ctx context.Context, db *sql.DB) error {
    // A demo tenant so a fresh install can answer directory and
    // dialplan lookups immediately.
    result, err := db.ExecContext(ctx, `
        INSERT IGNORE INTO tenants (domain_name, profile) VALUES ('demo.localhost', 'internal')`)
    if err != nil {
        return err
    }

    tenantID, err := result.LastInsertId()
    if err != nil || tenantID == 0 {
        return err
    }

    if _, err := db.ExecContext(ctx, `
        INSERT IGNORE INTO sip_clients
            (tenant_id, user_id, password, display_name, enable_voicemail, voicemail_pin, no_answer_timeout)
        VALUES
            (?, '1000', 'changeme', 'Demo User 1000', TRUE, '1000', 30),
            (?, '1001', 'changeme', 'Demo User 1001', TRUE, '1001', 30)`,
        tenantID, tenantID); err != nil {
        return err
    }

    logger.WithContext(ctx).WithField("tenant_id", tenantID).Info("Seeded demo tenant")
    return nil
}
