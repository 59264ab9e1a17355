package runtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gonglijing/nbconsole/internal/circuit"
)

const metricPrefix = "nbconsole_northbound_"

// Metrics 北向运行时指标
type Metrics struct {
	connected       *prometheus.GaugeVec
	connectAttempts *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

// NewMetrics 创建并注册指标，reg 为空时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "connected",
			Help: "Whether the northbound connector is connected (1) or not (0).",
		}, []string{"name", "type"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "connect_attempts_total",
			Help: "Number of northbound connect attempts by result.",
		}, []string{"name", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half_open.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(m.connected, m.connectAttempts, m.breakerState)
	}
	return m
}

func (m *Metrics) setConnected(name, nbType string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.connected.WithLabelValues(name, nbType).Set(v)
}

func (m *Metrics) attempt(name string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connectAttempts.WithLabelValues(name, result).Inc()
}

func (m *Metrics) breaker(name string, state circuit.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) forget(name, nbType string) {
	if m == nil {
		return
	}
	m.connected.DeleteLabelValues(name, nbType)
	m.breakerState.DeleteLabelValues(name)
	m.connectAttempts.DeleteLabelValues(name, "success")
	m.connectAttempts.DeleteLabelValues(name, "failure")
}
