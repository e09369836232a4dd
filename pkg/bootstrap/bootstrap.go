// Package bootstrap seeds the fixed role set and the baseline operation
// configuration at process start, and keeps the configuration in sync with
// its file while the process runs.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/permission"
	"github.com/wardenhq/warden/pkg/roles"
)

// Bootstrapper applies the idempotent startup state: the seven roles and
// the operation→permitted-roles baseline. Running it twice performs no
// permission writes the second time, since the setup builder already
// no-ops unchanged sets.
type Bootstrapper struct {
	roles       *roles.Store
	permissions *permission.Store
	cache       permission.Cache
	logger      *observability.Logger
}

// New creates a bootstrapper.
func New(roleStore *roles.Store, permissions *permission.Store, cache permission.Cache, logger *observability.Logger) *Bootstrapper {
	return &Bootstrapper{
		roles:       roleStore,
		permissions: permissions,
		cache:       cache,
		logger:      logger,
	}
}

// Run seeds the roles and applies the operations file. A missing file is
// not an error: the service can run with operations configured through the
// API only.
func (b *Bootstrapper) Run(ctx context.Context, operationsFile string) error {
	if err := b.roles.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	if operationsFile == "" {
		return nil
	}
	if _, err := os.Stat(operationsFile); os.IsNotExist(err) {
		b.logger.WithField("file", operationsFile).Info("no operations file, skipping baseline configuration")
		return nil
	}

	return b.ApplyOperations(ctx, operationsFile)
}

type operationsFile struct {
	Operations []operationSpec `yaml:"operations"`
}

type operationSpec struct {
	Name  string   `yaml:"name"`
	Clear bool     `yaml:"clear"`
	Roles []string `yaml:"roles"`
}

// ApplyOperations reads the YAML baseline and pushes every entry through
// the setup builder.
func (b *Bootstrapper) ApplyOperations(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read operations file: %w", err)
	}

	var file operationsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse operations file: %w", err)
	}

	for _, spec := range file.Operations {
		if spec.Name == "" {
			return errs.InvalidArgument("operations file entry without a name")
		}

		setup := b.permissions.Configure(spec.Name, b.cache)
		if spec.Clear {
			setup.Clear()
		}
		for _, name := range spec.Roles {
			role := roles.Role(name)
			if !roles.Valid(role) {
				return errs.InvalidArgument("operations file: unknown role %q for %s", name, spec.Name)
			}
			setup.Require(role)
		}

		if err := setup.Commit(ctx); err != nil {
			return fmt.Errorf("failed to configure operation %s: %w", spec.Name, err)
		}
	}

	b.logger.WithFields(map[string]interface{}{
		"file":       path,
		"operations": len(file.Operations),
	}).Info("baseline operation configuration applied")
	return nil
}
