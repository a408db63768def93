package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded in shipscan_runs_total.
const (
	OutcomeOK            = "ok"
	OutcomePartial       = "partial"
	OutcomeNoAcquisition = "no_acquisition"
	OutcomeError         = "error"
)

// Metrics records pipeline activity in Prometheus collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	candidates    prometheus.Histogram
	waterPixels   prometheus.Histogram
	emptyWater    prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipscan_runs_total",
				Help: "Detection runs by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipscan_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"stage"},
		),
		candidates: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shipscan_candidates",
				Help:    "Ship candidates emitted per run after the length filter",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		waterPixels: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shipscan_water_pixels",
				Help:    "Water pixels per run after coastline erosion",
				Buckets: prometheus.ExponentialBuckets(1, 10, 9),
			},
		),
		emptyWater: f.NewCounter(
			prometheus.CounterOpts{
				Name: "shipscan_empty_water_mask_total",
				Help: "Runs whose water mask was empty after erosion",
			},
		),
	}
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) observeResult(res *Result) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(len(res.Candidates)))
	m.waterPixels.Observe(float64(res.Diagnostics.WaterPixelsEroded))
	if res.Diagnostics.EmptyWaterMask {
		m.emptyWater.Inc()
	}
}
