package observability

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PanelCollector bundles the Prometheus metrics of the panel service: entity
// counts driven by the state owner, command and simulation-tick counters, and
// HTTP request metrics for the API surface.
type PanelCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
	Commands      *prometheus.CounterVec

	SimTicks        prometheus.Counter
	SimTickDuration prometheus.Histogram

	Tapes          prometheus.Gauge
	Segments       prometheus.Gauge
	ActiveSegments prometheus.Gauge
	Sensors        prometheus.Gauge
	UnackedAlerts  prometheus.Gauge
}

// NewPanelCollector registers panel Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPanelCollector(reg prometheus.Registerer) (*PanelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_http_requests_total",
		Help: "Total number of handled API requests, labeled by method, route, and status code.",
	}, []string{"method", "path", "status"})
	requests, err := registerCounterVec(reg, requests, "panel_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_http_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})
	durations, err = registerHistogramVec(reg, durations, "panel_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_commands_total",
		Help: "Total number of state commands processed, labeled by operation and outcome.",
	}, []string{"op", "outcome"})
	commands, err = registerCounterVec(reg, commands, "panel_commands_total")
	if err != nil {
		return nil, err
	}

	simTicks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "panel_sim_ticks_total",
		Help: "Cumulative number of simulation ticks executed.",
	})
	simTicks, err = registerCounter(reg, simTicks, "panel_sim_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "panel_sim_tick_duration_seconds",
		Help:    "Duration of one simulation tick, including persistence.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	tickDuration, err = registerHistogram(reg, tickDuration, "panel_sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	tapes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panel_tapes",
		Help: "Current number of tapes in the installation.",
	}), "panel_tapes")
	if err != nil {
		return nil, err
	}
	segments, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panel_segments",
		Help: "Current number of segments across all tapes.",
	}), "panel_segments")
	if err != nil {
		return nil, err
	}
	activeSegments, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panel_active_segments",
		Help: "Segments counted as active: segment and owning tape both enabled.",
	}), "panel_active_segments")
	if err != nil {
		return nil, err
	}
	sensors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panel_sensors",
		Help: "Current number of sensors across all segments.",
	}), "panel_sensors")
	if err != nil {
		return nil, err
	}
	unacked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panel_unacked_alerts",
		Help: "Alerts not yet acknowledged by the operator.",
	}), "panel_unacked_alerts")
	if err != nil {
		return nil, err
	}

	return &PanelCollector{
		gatherer:        gatherer,
		HTTPRequests:    requests,
		HTTPDurations:   durations,
		Commands:        commands,
		SimTicks:        simTicks,
		SimTickDuration: tickDuration,
		Tapes:           tapes,
		Segments:        segments,
		ActiveSegments:  activeSegments,
		Sensors:         sensors,
		UnackedAlerts:   unacked,
	}, nil
}

// EchoMiddleware records request counts and latencies for every route. It
// labels by the registered route pattern, not the raw URL, to keep metric
// cardinality bounded.
func (c *PanelCollector) EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			start := time.Now()
			err := next(ec)

			if c == nil {
				return err
			}

			status := ec.Response().Status
			if err != nil {
				// The centralized error handler has not run yet; mirror
				// echo's mapping so the label matches the final response.
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			path := ec.Path()
			if path == "" {
				path = ec.Request().URL.Path
			}
			method := ec.Request().Method

			if c.HTTPRequests != nil {
				c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			}
			if c.HTTPDurations != nil {
				c.HTTPDurations.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			}
			return err
		}
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PanelCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetPanelCounts satisfies the state package's MetricsRecorder interface so
// the state owner can drive gauge values directly from its mutators.
func (c *PanelCollector) SetPanelCounts(tapes, segments, activeSegments, sensors, unackedAlerts int) {
	if c == nil {
		return
	}
	if c.Tapes != nil {
		c.Tapes.Set(float64(tapes))
	}
	if c.Segments != nil {
		c.Segments.Set(float64(segments))
	}
	if c.ActiveSegments != nil {
		c.ActiveSegments.Set(float64(activeSegments))
	}
	if c.Sensors != nil {
		c.Sensors.Set(float64(sensors))
	}
	if c.UnackedAlerts != nil {
		c.UnackedAlerts.Set(float64(unackedAlerts))
	}
}

// RecordCommand counts one processed command by operation and outcome.
func (c *PanelCollector) RecordCommand(op string, applied bool) {
	if c == nil || c.Commands == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}
	c.Commands.WithLabelValues(op, outcome).Inc()
}

// ObserveSimTick records one completed simulation tick.
func (c *PanelCollector) ObserveSimTick(d time.Duration) {
	if c == nil {
		return
	}
	if c.SimTicks != nil {
		c.SimTicks.Inc()
	}
	if c.SimTickDuration != nil {
		c.SimTickDuration.Observe(d.Seconds())
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
