package permission

import "github.com/wardenhq/warden/pkg/storage/postgres"

// Migrations returns the operation and permission table migrations.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create operations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS operations (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					operation_id VARCHAR(64) NOT NULL REFERENCES operations(id),
					role_name VARCHAR(32) NOT NULL REFERENCES roles(name),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (operation_id, role_name)
				);
			`,
		},
	}
}
