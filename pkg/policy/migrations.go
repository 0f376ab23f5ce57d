package policy

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all policy-store migrations. Uniqueness of
// (app_id, code), (app_id, name) and (org_id, org_type, policy_id) is
// enforced by the indexes here; the application-level checks only produce
// friendlier errors ahead of the constraint.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create policies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS policies (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					code VARCHAR(255) NOT NULL,
					type VARCHAR(32) NOT NULL,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					grant_stage VARCHAR(32) NOT NULL,
					description TEXT,
					app_id VARCHAR(64) NOT NULL,
					client_id VARCHAR(64),
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					tenant_id VARCHAR(64) NOT NULL,
					created_by VARCHAR(64),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_by VARCHAR(64),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(app_id, code),
					UNIQUE(app_id, name)
				);

				CREATE INDEX idx_policies_tenant_id ON policies(tenant_id);
				CREATE INDEX idx_policies_type ON policies(type);
				CREATE INDEX idx_policies_app_id ON policies(app_id);
			`,
		},
		{
			Version:     2,
			Description: "Create policy_bindings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS policy_bindings (
					id BIGSERIAL PRIMARY KEY,
					org_id VARCHAR(64) NOT NULL,
					org_type VARCHAR(16) NOT NULL,
					policy_id VARCHAR(64) NOT NULL,
					app_id VARCHAR(64) NOT NULL,
					granted_by VARCHAR(64),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					open_auth BOOLEAN NOT NULL DEFAULT FALSE,
					grant_scope VARCHAR(32) NOT NULL DEFAULT '',
					UNIQUE(org_id, org_type, policy_id)
				);

				CREATE INDEX idx_policy_bindings_policy_id ON policy_bindings(policy_id);
				CREATE INDEX idx_policy_bindings_org ON policy_bindings(org_id, org_type);
			`,
		},
		{
			Version:     3,
			Description: "Create app_opens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS app_opens (
					id BIGSERIAL PRIMARY KEY,
					tenant_id VARCHAR(64) NOT NULL,
					app_id VARCHAR(64) NOT NULL,
					edition VARCHAR(16) NOT NULL,
					opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, app_id, edition)
				);

				CREATE INDEX idx_app_opens_tenant_id ON app_opens(tenant_id);
			`,
		},
		{
			Version:     4,
			Description: "Create org membership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_members (
					id BIGSERIAL PRIMARY KEY,
					user_id VARCHAR(64) NOT NULL,
					org_id VARCHAR(64) NOT NULL,
					org_type VARCHAR(16) NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, org_id, org_type)
				);

				CREATE INDEX idx_org_members_user_id ON org_members(user_id);

				CREATE TABLE IF NOT EXISTS tenant_admins (
					id BIGSERIAL PRIMARY KEY,
					tenant_id VARCHAR(64) NOT NULL,
					user_id VARCHAR(64) NOT NULL,
					is_sys_admin BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(tenant_id, user_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create tenant_quotas table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_quotas (
					tenant_id VARCHAR(64) PRIMARY KEY,
					max_custom_policies INT NOT NULL,
					max_bindings INT NOT NULL
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS policy_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM policy_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read migration versions: %w", err)
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO policy_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
