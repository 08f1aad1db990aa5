package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    // LookupsTotal counts switch lookups by section and outcome.
    LookupsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "fsrouter_lookups_total",
            Help: "Switch XML lookups by section and outcome",
        },
        []string{"section", "outcome"},
    )

    // LookupDuration observes resolver latency per section.
    LookupDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "fsrouter_lookup_duration_seconds",
            Help:    "Resolver latency by section",
            Buckets: prometheus.DefBuckets,
        },
        []string{"section"},
    )

    // DialplanRoutes counts dialplan decisions by route kind.
    DialplanRoutes = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "fsrouter_dialplan_routes_total",
            Help: "Dialplan routing decisions by kind",
        },
        []string{"route"},
    )

    // CNAMLookupsTotal counts CNAM lookups by result.
    CNAMLookupsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "fsrouter_cnam_lookups_total",
            Help: "CNAM enrichment lookups by result",
        },
        []string{"result"},
    )

    // GatewayPoolSize tracks the size of the shared gateway pool.
    GatewayPoolSize = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "fsrouter_gateway_pool_size",
            Help: "Number of gateways in the shared pool",
        },
    )

    // AdminRequestsTotal counts admin API requests by method and status.
    AdminRequestsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "fsrouter_admin_requests_total",
            Help: "Admin API requests by method and status",
        },
        []string{"method", "status"},
    )
)
