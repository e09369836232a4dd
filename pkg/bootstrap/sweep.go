package bootstrap

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
)

// Sweep re-dispatches invitations whose dispatched_at is still NULL.
// Dispatch at creation time is fire-and-forget, so a failed or crashed
// dispatch leaves the stamp unset; the sweep retries those until delivery
// sticks.
type Sweep struct {
	invitations *orgs.InvitationStore
	store       *orgs.Store
	notifier    notify.Notifier
	log         *logrus.Logger
	metrics     *observability.Metrics
	batchSize   int
}

// NewSweep creates the re-dispatch sweep.
func NewSweep(invitations *orgs.InvitationStore, store *orgs.Store, notifier notify.Notifier, log *logrus.Logger, metrics *observability.Metrics, batchSize int) *Sweep {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweep{
		invitations: invitations,
		store:       store,
		notifier:    notifier,
		log:         log,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Start schedules the sweep on the given cron expression and returns the
// running scheduler. The caller stops it on shutdown.
func (s *Sweep) Start(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// RunOnce processes one batch of undispatched invitations.
func (s *Sweep) RunOnce(ctx context.Context) {
	pending, err := s.invitations.ListUndispatched(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("invitation sweep: failed to list undispatched invitations")
		return
	}
	if len(pending) == 0 {
		return
	}

	s.log.WithField("count", len(pending)).Info("invitation sweep: re-dispatching")

	for _, inv := range pending {
		if ctx.Err() != nil {
			return
		}

		org, err := s.store.Get(ctx, inv.OrganizationID)
		if err != nil {
			s.log.WithError(err).WithField("invitation", inv.ID).Warn("invitation sweep: organization lookup failed")
			s.metrics.InvitationSweepTotal.WithLabelValues("error").Inc()
			continue
		}

		props := map[string]string{
			"email":        inv.Email,
			"organization": org.Name,
			"role":         string(inv.Role),
			"token":        inv.Token,
		}
		if err := s.notifier.Notify(ctx, notify.TemplateInvitation, props); err != nil {
			s.log.WithError(err).WithField("invitation", inv.ID).Warn("invitation sweep: dispatch failed")
			s.metrics.InvitationSweepTotal.WithLabelValues("error").Inc()
			continue
		}

		if err := s.invitations.MarkDispatched(ctx, inv.ID); err != nil {
			s.log.WithError(err).WithField("invitation", inv.ID).Warn("invitation sweep: failed to stamp dispatch")
			s.metrics.InvitationSweepTotal.WithLabelValues("error").Inc()
			continue
		}
		s.metrics.InvitationSweepTotal.WithLabelValues("dispatched").Inc()
	}
}
