// Command warden runs the authorization service: the permission engine, the
// organization-graph workflows and the REST adapter in front of them.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/bootstrap"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/permission"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
	"github.com/wardenhq/warden/pkg/storage/postgres"
	storageredis "github.com/wardenhq/warden/pkg/storage/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		Driver:      cfg.Database.Driver,
		PrimaryURL:  cfg.Database.PrimaryURL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer cm.Close()

	db := cm.Primary()
	for _, component := range []struct {
		name       string
		migrations []postgres.Migration
	}{
		{"roles", roles.Migrations()},
		{"users", persona.Migrations()},
		{"resources", resource.Migrations()},
		{"orgs", orgs.Migrations()},
		{"permissions", permission.Migrations()},
	} {
		if err := postgres.RunMigrations(ctx, db, component.name, component.migrations); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", component.name, err)
		}
	}

	var cache permission.Cache
	if cfg.Redis.Addr != "" {
		client, err := storageredis.NewClient(storageredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		cache = permission.NewRedisCache(client, cfg.Redis.CacheTTL, metrics)
		logger.Info("using redis permitted-roles cache")
	} else {
		lruCache, err := permission.NewLRUCache(cfg.Observability.CacheSize, metrics)
		if err != nil {
			return err
		}
		cache = lruCache
		logger.Info("using in-process permitted-roles cache")
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notifier.Endpoint != "" {
		notifier = notify.NewHTTPNotifier(cfg.Notifier.Endpoint, cfg.Notifier.Timeout, cfg.Notifier.Retries)
	}

	roleStore := roles.NewStore(db)
	personaStore := persona.NewStore(db)
	resourceStore := resource.NewStore(db)
	grantStore := resource.NewGrantStore(db)
	permStore := permission.NewStore(db)
	orgStore := orgs.NewStore(db)
	memberStore := orgs.NewMembershipStore(db)
	invitationStore := orgs.NewInvitationStore(db)
	joinRequestStore := orgs.NewJoinRequestStore(db)

	resolver := permission.NewResolver(grantStore, memberStore, metrics)
	checker := permission.NewChecker(permStore, cache, resolver, resourceStore, personaStore, logger, metrics)

	service := orgs.NewService(
		orgStore, memberStore, invitationStore, joinRequestStore,
		resourceStore, grantStore, personaStore,
		notifier, logger, metrics,
	)

	if cfg.OIDC.IssuerURL == "" {
		return fmt.Errorf("WARDEN_OIDC_ISSUER is required")
	}
	principals, err := persona.NewPrincipalResolver(ctx, persona.ResolverConfig{
		IssuerURL:    cfg.OIDC.IssuerURL,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURL,
	}, personaStore)
	if err != nil {
		return err
	}

	boot := bootstrap.New(roleStore, permStore, cache, logger)
	if err := boot.Run(ctx, cfg.Bootstrap.OperationsFile); err != nil {
		return err
	}

	sweepLog := logrus.New()
	sweepLog.SetFormatter(&logrus.JSONFormatter{})
	sweep := bootstrap.NewSweep(invitationStore, orgStore, notifier, sweepLog, metrics, cfg.Bootstrap.SweepBatchSize)
	cronJobs, err := sweep.Start(cfg.Bootstrap.SweepSchedule)
	if err != nil {
		return fmt.Errorf("failed to schedule invitation sweep: %w", err)
	}
	defer cronJobs.Stop()

	server := api.NewServer(checker, permStore, cache, service, roleStore, grantStore, principals, logger, metrics)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Bootstrap.WatchFile && cfg.Bootstrap.OperationsFile != "" {
		group.Go(func() error {
			err := boot.Watch(groupCtx, cfg.Bootstrap.OperationsFile)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.CollectDBStats(cm.Stats())
			}
		}
	})

	return group.Wait()
}
