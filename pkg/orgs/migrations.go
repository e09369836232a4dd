package orgs

import "github.com/wardenhq/warden/pkg/storage/postgres"

// Migrations returns the organization-graph table migrations.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id VARCHAR(64) PRIMARY KEY,
					owner_id VARCHAR(64) NOT NULL,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					visibility VARCHAR(16) NOT NULL DEFAULT 'APPLY',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_owner ON organizations(owner_id);
			`,
		},
		{
			Version:     2,
			Description: "Create organization_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_memberships (
					id VARCHAR(64) PRIMARY KEY,
					organization_id VARCHAR(64) NOT NULL REFERENCES organizations(id),
					member_id VARCHAR(64) NOT NULL,
					role_name VARCHAR(32) NOT NULL REFERENCES roles(name),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (organization_id, member_id, role_name)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_member ON organization_memberships(member_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_org ON organization_memberships(organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id VARCHAR(64) PRIMARY KEY,
					token VARCHAR(128) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL,
					invited_by VARCHAR(64) NOT NULL,
					organization_id VARCHAR(64) NOT NULL REFERENCES organizations(id),
					role_name VARCHAR(32) NOT NULL REFERENCES roles(name),
					dispatched_at TIMESTAMP,
					accepted_at TIMESTAMP,
					accepted_by VARCHAR(64),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_invitations_org ON invitations(organization_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_undispatched ON invitations(dispatched_at) WHERE dispatched_at IS NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create organization_join_requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_join_requests (
					id VARCHAR(64) PRIMARY KEY,
					organization_id VARCHAR(64) NOT NULL REFERENCES organizations(id),
					persona_id VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_join_requests_org ON organization_join_requests(organization_id);
				CREATE INDEX IF NOT EXISTS idx_join_requests_persona ON organization_join_requests(persona_id);
			`,
		},
	}
}
