package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of instruments recorded by the search engine.  All
// methods are safe for concurrent use.
type Metrics struct {
	oracleCalls      *prometheus.CounterVec
	oracleDuration   *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	evaluations      *prometheus.CounterVec
	generationTime   *prometheus.HistogramVec
	populationSize   *prometheus.GaugeVec
	bestFitness      *prometheus.GaugeVec
	budgetRemaining  *prometheus.GaugeVec
	runsByState      *prometheus.CounterVec
	snapshotsWritten *prometheus.CounterVec
	proposalsTotal   *prometheus.CounterVec
}

// NewMetrics registers the search engine's instruments on the collector.
// Call once per Collector; a second call panics on duplicate registration.
func NewMetrics(c *Collector) *Metrics {
	return &Metrics{
		oracleCalls: c.counterVec("oracle_calls_total",
			"Oracle evaluations by engine and terminal status (SUCCESS, FAILED, TIMED_OUT).",
			"engine", "status"),
		oracleDuration: c.histogramVec("oracle_call_duration_seconds",
			"Wall-clock latency of oracle evaluations, including retries.",
			"engine"),
		cacheLookups: c.counterVec("cache_lookups_total",
			"Score cache lookups by outcome (hit, miss).",
			"outcome"),
		evaluations: c.counterVec("evaluations_total",
			"Budget-charged candidate evaluations by run.",
			"run_id"),
		generationTime: c.histogramVec("generation_duration_seconds",
			"Duration of one full generation: propose, score, select.",
			"run_id"),
		populationSize: c.gaugeVec("population_size",
			"Current number of scored survivors in the population.",
			"run_id"),
		bestFitness: c.gaugeVec("best_fitness",
			"Best fitness observed so far for the run.",
			"run_id"),
		budgetRemaining: c.gaugeVec("budget_remaining_evaluations",
			"Evaluations left before the run's budget is exhausted.",
			"run_id"),
		runsByState: c.counterVec("run_transitions_total",
			"Run state transitions by target state.",
			"state"),
		snapshotsWritten: c.counterVec("snapshots_written_total",
			"Run snapshots persisted, by destination store.",
			"store"),
		proposalsTotal: c.counterVec("proposals_total",
			"Candidates proposed by strategy, split into novel vs duplicate.",
			"strategy", "novelty"),
	}
}

// ObserveOracleCall records one completed oracle evaluation.
func (m *Metrics) ObserveOracleCall(engine, status string, elapsed time.Duration) {
	m.oracleCalls.WithLabelValues(engine, status).Inc()
	m.oracleDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

// CacheHit records a score cache lookup that returned a stored record.
func (m *Metrics) CacheHit() { m.cacheLookups.WithLabelValues("hit").Inc() }

// CacheMiss records a score cache lookup that required an oracle call.
func (m *Metrics) CacheMiss() { m.cacheLookups.WithLabelValues("miss").Inc() }

// AddEvaluations charges n evaluations against the run's budget counter.
func (m *Metrics) AddEvaluations(runID string, n int) {
	m.evaluations.WithLabelValues(runID).Add(float64(n))
}

// ObserveGeneration records the duration of one generation.
func (m *Metrics) ObserveGeneration(runID string, elapsed time.Duration) {
	m.generationTime.WithLabelValues(runID).Observe(elapsed.Seconds())
}

// SetPopulationSize publishes the post-selection population size.
func (m *Metrics) SetPopulationSize(runID string, n int) {
	m.populationSize.WithLabelValues(runID).Set(float64(n))
}

// SetBestFitness publishes the best fitness seen so far.
func (m *Metrics) SetBestFitness(runID string, fitness float64) {
	m.bestFitness.WithLabelValues(runID).Set(fitness)
}

// SetBudgetRemaining publishes the run's remaining evaluation budget.
func (m *Metrics) SetBudgetRemaining(runID string, n int) {
	m.budgetRemaining.WithLabelValues(runID).Set(float64(n))
}

// RunTransition records a run entering the given state.
func (m *Metrics) RunTransition(state string) {
	m.runsByState.WithLabelValues(state).Inc()
}

// SnapshotWritten records a persisted snapshot.
func (m *Metrics) SnapshotWritten(store string) {
	m.snapshotsWritten.WithLabelValues(store).Inc()
}

// AddProposals records candidates emitted by a strategy.  novel counts
// canonical keys not seen before in the run; the rest are duplicates the
// controller discarded.
func (m *Metrics) AddProposals(strategy string, novel, duplicate int) {
	m.proposalsTotal.WithLabelValues(strategy, "novel").Add(float64(novel))
	m.proposalsTotal.WithLabelValues(strategy, "duplicate").Add(float64(duplicate))
}

// ReleaseRun removes per-run gauge series once a run reaches a terminal
// state, bounding label cardinality on long-lived workers.
func (m *Metrics) ReleaseRun(runID string) {
	labels := prometheus.Labels{"run_id": runID}
	m.populationSize.Delete(labels)
	m.bestFitness.Delete(labels)
	m.budgetRemaining.Delete(labels)
}
