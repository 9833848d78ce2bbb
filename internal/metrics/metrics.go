// Package metrics exposes Prometheus instrumentation for the relay core.
// Label cardinality is kept bounded: direction and failure reason only,
// never per-thread or per-user labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Relayed counts successfully relayed messages by direction
	// ("to_user" or "from_user").
	Relayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_messages_relayed_total",
			Help: "Total number of successfully relayed messages.",
		},
		[]string{"direction"},
	)

	// SendFailures counts delivery failures by classified reason
	// ("dm_unavailable", "too_long", "blocked", "channel_missing", "send").
	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_send_failures_total",
			Help: "Total number of failed message deliveries.",
		},
		[]string{"reason"},
	)

	// MirrorFailures counts best-effort staff-channel mirror failures.
	// These never roll back the primary delivery.
	MirrorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modmail_mirror_failures_total",
			Help: "Total number of failed best-effort staff mirrors.",
		},
	)

	// Recovered counts user messages replayed by downtime recovery.
	Recovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modmail_messages_recovered_total",
			Help: "Total number of messages replayed after downtime.",
		},
	)
)

func init() {
	prometheus.MustRegister(Relayed, SendFailures, MirrorFailures, Recovered)
}
