package profile

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes a profiler as a prometheus.Collector.
//
// It reads a fresh snapshot on every scrape and emits constant metrics, so
// registering it never mutates profiler state. Register with any
// prometheus.Registerer:
//
//	reg.MustRegister(profile.NewCollector(p))
type Collector struct {
	p *Profiler

	factorizations  *prometheus.Desc
	structureChecks *prometheus.Desc
	evaluations     *prometheus.Desc
	evalSeconds     *prometheus.Desc
	dirtyBlocks     *prometheus.Desc
	divergences     *prometheus.Desc
	modeEvents      *prometheus.Desc
}

// NewCollector creates a collector reading from p.
func NewCollector(p *Profiler) *Collector {
	return &Collector{
		p: p,
		factorizations: prometheus.NewDesc(
			"jacquard_factorizations_total",
			"Factorizations by kind (symbolic or numerical).",
			[]string{"kind"}, nil,
		),
		structureChecks: prometheus.NewDesc(
			"jacquard_structure_checks_total",
			"Structure change checks by outcome.",
			[]string{"outcome"}, nil,
		),
		evaluations: prometheus.NewDesc(
			"jacquard_jacobian_evaluations_total",
			"Jacobian evaluations by update strategy.",
			[]string{"strategy"}, nil,
		),
		evalSeconds: prometheus.NewDesc(
			"jacquard_jacobian_evaluation_seconds_total",
			"Cumulative wall time spent evaluating Jacobians.",
			nil, nil,
		),
		dirtyBlocks: prometheus.NewDesc(
			"jacquard_dirty_blocks_recomputed_total",
			"Blocks recomputed across all evaluations.",
			nil, nil,
		),
		divergences: prometheus.NewDesc(
			"jacquard_divergences_total",
			"Unconverged nonlinear solves reported to the engine.",
			nil, nil,
		),
		modeEvents: prometheus.NewDesc(
			"jacquard_mode_changes_total",
			"Mode change events by kind.",
			[]string{"kind"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.factorizations
	ch <- c.structureChecks
	ch <- c.evaluations
	ch <- c.evalSeconds
	ch <- c.dirtyBlocks
	ch <- c.divergences
	ch <- c.modeEvents
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.p.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.factorizations, prometheus.CounterValue,
		float64(s.SymbolicFactorizations), "symbolic")
	ch <- prometheus.MustNewConstMetric(c.factorizations, prometheus.CounterValue,
		float64(s.NumericalFactorizations), "numerical")

	quiet := s.StructureChecks - s.StructureChanges - s.FalsePositivesAvoided
	ch <- prometheus.MustNewConstMetric(c.structureChecks, prometheus.CounterValue,
		float64(s.StructureChanges), "changed")
	ch <- prometheus.MustNewConstMetric(c.structureChecks, prometheus.CounterValue,
		float64(s.FalsePositivesAvoided), "avoided")
	ch <- prometheus.MustNewConstMetric(c.structureChecks, prometheus.CounterValue,
		float64(quiet), "quiet")

	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue,
		float64(s.FullUpdates), string(EvalFull))
	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue,
		float64(s.PartialUpdates), string(EvalPartial))
	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue,
		float64(s.Reuses), string(EvalReuse))

	ch <- prometheus.MustNewConstMetric(c.evalSeconds, prometheus.CounterValue,
		s.TotalJacobianTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.dirtyBlocks, prometheus.CounterValue,
		float64(s.DirtyBlocksUpdated))
	ch <- prometheus.MustNewConstMetric(c.divergences, prometheus.CounterValue,
		float64(s.Divergences))

	for kind, n := range s.ModeEvents {
		ch <- prometheus.MustNewConstMetric(c.modeEvents, prometheus.CounterValue,
			float64(n), kind)
	}
}
