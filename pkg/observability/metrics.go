package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration *prometheus.HistogramVec
	EffectiveRolesDuration  prometheus.Histogram
	MembershipCyclesTotal   prometheus.Counter

	// Permitted-roles cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Workflow metrics
	InvitationsCreatedTotal   prometheus.Counter
	InvitationsAcceptedTotal  prometheus.Counter
	InvitationSweepTotal      *prometheus.CounterVec
	JoinRequestDecisionsTotal *prometheus.CounterVec
	NotifierDispatchesTotal   *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permission_checks_total",
				Help: "Total number of permission checks by outcome",
			},
			[]string{"operation", "allowed"},
		),
		PermissionCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		EffectiveRolesDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_effective_roles_duration_seconds",
				Help:    "Effective-role resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		MembershipCyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_membership_cycles_detected_total",
				Help: "Membership cycles detected during role resolution",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permitted_roles_cache_hits_total",
				Help: "Permitted-roles cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permitted_roles_cache_misses_total",
				Help: "Permitted-roles cache misses",
			},
			[]string{"backend"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permitted_roles_cache_invalidations_total",
				Help: "Permitted-roles cache invalidations on operation commit",
			},
			[]string{"backend"},
		),
		InvitationsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_invitations_created_total",
				Help: "Invitations created",
			},
		),
		InvitationsAcceptedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_invitations_accepted_total",
				Help: "Invitations accepted for the first time",
			},
		),
		InvitationSweepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invitation_sweep_total",
				Help: "Invitations picked up by the re-dispatch sweep",
			},
			[]string{"outcome"},
		),
		JoinRequestDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_join_request_decisions_total",
				Help: "Join-request decisions by final status",
			},
			[]string{"status"},
		),
		NotifierDispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifier_dispatches_total",
				Help: "Notifier dispatch attempts by outcome",
			},
			[]string{"template", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.EffectiveRolesDuration,
		m.MembershipCyclesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.InvitationsCreatedTotal,
		m.InvitationsAcceptedTotal,
		m.InvitationSweepTotal,
		m.JoinRequestDecisionsTotal,
		m.NotifierDispatchesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePermissionCheck records the outcome and latency of one check.
func (m *Metrics) ObservePermissionCheck(operation string, allowed bool, elapsed time.Duration) {
	m.PermissionChecksTotal.WithLabelValues(operation, strconv.FormatBool(allowed)).Inc()
	m.PermissionCheckDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CollectDBStats copies connection-pool stats into the gauges. Call
// periodically or on scrape.
func (m *Metrics) CollectDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// InstrumentHandler wraps an HTTP handler with request count and duration
// metrics. The path label is the mux route template, not the raw URL, to
// keep cardinality bounded.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
