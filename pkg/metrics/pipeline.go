package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline stages.
const (
	StageRollups         = "rollups"
	StageForecasts       = "forecasts"
	StageRecommendations = "recommendations"
	StageAlerts          = "alerts"
	StageLedger          = "ledger"
)

// Unit outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// PipelineMetrics counts per-unit outcomes of the batch stages and workflow transitions.
type PipelineMetrics struct {
	units       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline counters on reg. A nil registerer yields a no-op recorder.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_units_total",
		Help:      "Units (events, pairs, candidates) handled by pipeline stages.",
	}, []string{"stage", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recommendation_transitions_total",
		Help:      "Recommendation state transition attempts.",
	}, []string{"transition", "outcome"})
	reg.MustRegister(units, transitions)
	return &PipelineMetrics{units: units, transitions: transitions}
}

// AddUnits adds n to the counter for stage/outcome. Non-positive n is ignored.
func (p *PipelineMetrics) AddUnits(stage, outcome string, n int) {
	if p == nil || p.units == nil || n <= 0 {
		return
	}
	p.units.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Add(float64(n))
}

// IncTransition records one transition attempt, e.g. ("approve", "conflict").
func (p *PipelineMetrics) IncTransition(transition, outcome string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(transition), normalizeLabel(outcome)).Inc()
}
