package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver for local development
)

// ConnectionConfig holds database connection configuration.
type ConnectionConfig struct {
	// Driver is "postgres" in production; "sqlite3" is supported for
	// local development.
	Driver      string
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionManager manages the primary connection and optional read
// replicas. Reads that tolerate replica lag can use Reader; everything else
// goes through Primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // round-robin replica selection
}

// NewConnectionManager connects to the primary and any configured replicas.
// Replica failures are not fatal; the primary serves reads when no replica
// is reachable.
func NewConnectionManager(config ConnectionConfig) (*ConnectionManager, error) {
	driver := config.Driver
	if driver == "" {
		driver = "postgres"
	}

	primary, err := sql.Open(driver, config.PrimaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	primary.SetMaxOpenConns(config.MaxConns)
	primary.SetMaxIdleConns(config.MinConns)
	primary.SetConnMaxLifetime(config.MaxLifetime)
	primary.SetConnMaxIdleTime(config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := primary.PingContext(ctx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm := &ConnectionManager{primary: primary}

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := sql.Open(driver, replicaURL)
		if err != nil {
			fmt.Printf("Warning: failed to open replica %d: %v\n", i, err)
			continue
		}

		replicaMaxConns := config.MaxConns / 2
		if replicaMaxConns < 2 {
			replicaMaxConns = 2
		}
		replica.SetMaxOpenConns(replicaMaxConns)
		replica.SetMaxIdleConns(config.MinConns)
		replica.SetConnMaxLifetime(config.MaxLifetime)
		replica.SetConnMaxIdleTime(config.MaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		err = replica.PingContext(ctx)
		cancel()
		if err != nil {
			replica.Close()
			fmt.Printf("Warning: failed to ping replica %d: %v\n", i, err)
			continue
		}

		cm.replicas = append(cm.replicas, replica)
	}

	return cm, nil
}

// Primary returns the primary connection. All writes go here.
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Reader returns a replica connection in round-robin order, falling back to
// the primary when no replica is available.
func (cm *ConnectionManager) Reader() *sql.DB {
	if len(cm.replicas) == 0 {
		return cm.primary
	}
	idx := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(idx)%len(cm.replicas)]
}

// Close closes the primary and all replicas.
func (cm *ConnectionManager) Close() error {
	var firstErr error
	if err := cm.primary.Close(); err != nil {
		firstErr = err
	}
	for _, replica := range cm.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats exposes pool statistics for the primary connection, used by the
// metrics collector.
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.primary.Stats()
}
