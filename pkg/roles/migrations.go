package roles

import "github.com/wardenhq/warden/pkg/storage/postgres"

// Migrations returns the role schema migrations.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					name VARCHAR(32) PRIMARY KEY,
					description TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
	}
}
