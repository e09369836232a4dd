package persona

import "github.com/wardenhq/warden/pkg/storage/postgres"

// Migrations returns the user table migrations. The organizations table is
// owned by the orgs component.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
	}
}
