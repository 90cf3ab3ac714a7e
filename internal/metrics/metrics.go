package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dtreewatch"

// Registry holds the engine's collectors. A nil *Registry records nothing.
type Registry struct {
	registry           *prometheus.Registry
	events             *prometheus.CounterVec
	reads              prometheus.Counter
	readBytes          prometheus.Counter
	supplementaryReads *prometheus.CounterVec
	renames            *prometheus.CounterVec
	rebuilds           *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
	activeRoots        prometheus.Gauge
	consoleCommands    *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Notification records processed, per event kind",
		}, []string{"kind"}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reads_total",
			Help:      "Reads from the notification channel that returned data",
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "read_bytes_total",
			Help:      "Bytes read from the notification channel",
		}),
		supplementaryReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "supplementary_reads_total",
			Help:      "Bounded reads issued to complete a split rename, per outcome (received/timeout)",
		}, []string{"outcome"}),
		renames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "renames_total",
			Help:      "Directory renames applied, per kind (in_tree/out_of_tree)",
		}, []string{"kind"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rebuilds_total",
			Help:      "Cache rebuilds, per reason",
		}, []string{"reason"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Directories currently in the watch cache",
		}),
		activeRoots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "active_roots",
			Help:      "Root directories not yet zapped",
		}),
		consoleCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "commands_total",
			Help:      "Operator commands executed, per command letter",
		}, []string{"command"}),
	}
	r.registry.MustRegister(
		r.events,
		r.reads,
		r.readBytes,
		r.supplementaryReads,
		r.renames,
		r.rebuilds,
		r.cacheEntries,
		r.activeRoots,
		r.consoleCommands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) ObserveEvent(kind string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(label(kind)).Inc()
}

func (r *Registry) ObserveRead(bytes int) {
	if r == nil {
		return
	}
	r.reads.Inc()
	r.readBytes.Add(float64(bytes))
}

func (r *Registry) ObserveSupplementaryRead(outcome string) {
	if r == nil {
		return
	}
	r.supplementaryReads.WithLabelValues(label(outcome)).Inc()
}

func (r *Registry) ObserveRename(kind string) {
	if r == nil {
		return
	}
	r.renames.WithLabelValues(label(kind)).Inc()
}

func (r *Registry) ObserveRebuild(reason string) {
	if r == nil {
		return
	}
	r.rebuilds.WithLabelValues(label(reason)).Inc()
}

func (r *Registry) ObserveCommand(command string) {
	if r == nil {
		return
	}
	r.consoleCommands.WithLabelValues(label(command)).Inc()
}

func (r *Registry) SetCacheEntries(count int) {
	if r == nil {
		return
	}
	r.cacheEntries.Set(float64(count))
}

func (r *Registry) SetActiveRoots(count int) {
	if r == nil {
		return
	}
	r.activeRoots.Set(float64(count))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
