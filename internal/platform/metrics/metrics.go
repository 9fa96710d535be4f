package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PipelinesStarted    prometheus.Counter
	PipelinesCompleted  *prometheus.CounterVec
	StageOutcomes       *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	CredentialsIssued   *prometheus.CounterVec
	CredentialsRevoked  prometheus.Counter
	PacketsAssembled    prometheus.Counter
	PacketVerifications *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PipelinesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "velos_pipelines_started_total",
			Help: "Total number of screening pipelines started",
		}),
		PipelinesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "velos_pipelines_completed_total",
			Help: "Total number of pipelines reaching a terminal state, by state",
		}, []string{"state"}),
		StageOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "velos_stage_outcomes_total",
			Help: "Stage outcomes by stage and status",
		}, []string{"stage", "status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "velos_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600},
		}, []string{"stage"}),
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "velos_credentials_issued_total",
			Help: "Verifiable credentials issued, by type",
		}, []string{"type"}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "velos_credentials_revoked_total",
			Help: "Verifiable credentials revoked",
		}),
		PacketsAssembled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "velos_trust_packets_assembled_total",
			Help: "Trust packets assembled at terminal pipeline states",
		}),
		PacketVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "velos_packet_verifications_total",
			Help: "Trust packet integrity verifications, by result",
		}, []string{"result"}),
	}
}
