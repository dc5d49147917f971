// Package prom exports observability.Observer events to Prometheus.
// Grounded on the teacher's observability/prom/prom.go TunnelObserver
// (registry + gauge/counter wiring), retargeted to this domain's events:
// connection gauges per peer kind, login-outcome and ban counters, and
// report lifecycle counters.
package prom

import (
	"net/http"

	"github.com/fbugreporter/server/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observer exports server metrics to Prometheus.
type Observer struct {
	reporterConnGauge prometheus.Gauge
	operatorConnGauge prometheus.Gauge
	handshakeFailures prometheus.Counter
	loginTotal        *prometheus.CounterVec
	reportsSubmitted  prometheus.Counter
	reportsDeleted    prometheus.Counter
	bansIssued        prometheus.Counter
	closeTotal        *prometheus.CounterVec
}

// New registers server metrics on reg.
func New(reg *prometheus.Registry) *Observer {
	o := &Observer{
		reporterConnGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbugreporter_reporter_connections",
			Help: "Current reporter connection count.",
		}),
		operatorConnGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbugreporter_operator_connections",
			Help: "Current operator connection count.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbugreporter_handshake_failures_total",
			Help: "Diffie-Hellman handshake failures.",
		}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbugreporter_login_total",
			Help: "Operator login attempts by outcome.",
		}, []string{"result"}),
		reportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbugreporter_reports_submitted_total",
			Help: "Bug reports accepted from reporters.",
		}),
		reportsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbugreporter_reports_deleted_total",
			Help: "Bug reports deleted by admins.",
		}),
		bansIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbugreporter_bans_issued_total",
			Help: "IP addresses banned for repeated failed logins.",
		}),
		closeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbugreporter_connection_close_total",
			Help: "Connection close reasons.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		o.reporterConnGauge,
		o.operatorConnGauge,
		o.handshakeFailures,
		o.loginTotal,
		o.reportsSubmitted,
		o.reportsDeleted,
		o.bansIssued,
		o.closeTotal,
	)
	return o
}

func (o *Observer) ReporterConnCount(n int64) { o.reporterConnGauge.Set(float64(n)) }
func (o *Observer) OperatorConnCount(n int64) { o.operatorConnGauge.Set(float64(n)) }
func (o *Observer) HandshakeFailed()          { o.handshakeFailures.Inc() }
func (o *Observer) LoginResult(r observability.LoginResult) {
	o.loginTotal.WithLabelValues(string(r)).Inc()
}
func (o *Observer) ReportSubmitted() { o.reportsSubmitted.Inc() }
func (o *Observer) ReportDeleted()   { o.reportsDeleted.Inc() }
func (o *Observer) BanIssued()       { o.bansIssued.Inc() }
func (o *Observer) ConnectionClosed(r observability.CloseReason) {
	o.closeTotal.WithLabelValues(string(r)).Inc()
}

var _ observability.Observer = (*Observer)(nil)
