package resource

import "github.com/wardenhq/warden/pkg/storage/postgres"

// Migrations returns the resource and grant table migrations.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id VARCHAR(64) PRIMARY KEY,
					persona_id VARCHAR(64),
					parent_id VARCHAR(64) REFERENCES resources(id),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_resources_persona ON resources(persona_id);
				CREATE INDEX IF NOT EXISTS idx_resources_parent ON resources(parent_id);
			`,
		},
		{
			Version:     2,
			Description: "Create persona_resource_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS persona_resource_roles (
					id VARCHAR(64) PRIMARY KEY,
					persona_id VARCHAR(64) NOT NULL,
					resource_id VARCHAR(64) NOT NULL REFERENCES resources(id),
					role_name VARCHAR(32) NOT NULL REFERENCES roles(name),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (persona_id, resource_id, role_name)
				);

				CREATE INDEX IF NOT EXISTS idx_prr_persona_resource ON persona_resource_roles(persona_id, resource_id);
				CREATE INDEX IF NOT EXISTS idx_prr_resource ON persona_resource_roles(resource_id);
			`,
		},
	}
}
