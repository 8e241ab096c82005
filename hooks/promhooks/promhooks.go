// Package promhooks counts tiercache events with Prometheus collectors.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache"
)

const namespace = "tiercache"

// Hooks implements tiercache.Hooks by incrementing counters.
type Hooks struct {
	SelfHeals     *prometheus.CounterVec // by reason
	CatalogBuilds *prometheus.CounterVec // by root
	CatalogSize   *prometheus.GaugeVec   // by root
	MetaRebuilds  prometheus.Counter
	Orphans       prometheus.Counter
	Backfills     *prometheus.CounterVec // by target member
	Mismatches    prometheus.Counter
}

var _ tiercache.Hooks = (*Hooks)(nil)

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		SelfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Entries dropped because their payload was truncated or corrupt",
		}, []string{"reason"}),
		CatalogBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_builds_total",
			Help:      "Catalog builds from a store listing",
		}, []string{"root"}),
		CatalogSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Entries found by the last catalog build",
		}, []string{"root"}),
		MetaRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meta_rebuilt_total",
			Help:      "Metadata sidecars recreated from the store listing",
		}),
		Orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_meta_total",
			Help:      "Metadata sidecars found without a data object",
		}),
		Backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfills_total",
			Help:      "Entries copied between members of a multi cache",
		}, []string{"to"}),
		Mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_total",
			Help:      "Keys found with divergent copies across members",
		}),
	}
	for _, c := range []prometheus.Collector{
		h.SelfHeals, h.CatalogBuilds, h.CatalogSize, h.MetaRebuilds, h.Orphans, h.Backfills, h.Mismatches,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_ string, reason string) { h.SelfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) CatalogBuilt(root string, entries int) {
	h.CatalogBuilds.WithLabelValues(root).Inc()
	h.CatalogSize.WithLabelValues(root).Set(float64(entries))
}

func (h *Hooks) MetaRebuilt(string) { h.MetaRebuilds.Inc() }
func (h *Hooks) OrphanMeta(string)  { h.Orphans.Inc() }

func (h *Hooks) Backfill(_, _, to string) { h.Backfills.WithLabelValues(to).Inc() }

func (h *Hooks) Mismatch(string, int) { h.Mismatches.Inc() }
