package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "securecomm"

// Metrics holds the securecomm Prometheus collectors.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	handshakes *prometheus.CounterVec
	packets    *prometheus.CounterVec
	custodyOps *prometheus.CounterVec
}

// NewMetrics creates the securecomm collectors and registers them with reg.
// It errors if a collector can not be registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "channel",
				Name:      "handshakes_total",
				Help:      "Completed handshake attempts by result.",
			},
			[]string{"result"},
		),
		packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "channel",
				Name:      "packets_total",
				Help:      "Message packets processed by direction and result.",
			},
			[]string{"direction", "result"},
		),
		custodyOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "custody",
				Name:      "operations_total",
				Help:      "Custody store operations by operation and result.",
			},
			[]string{"op", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.handshakes, m.packets, m.custodyOps} {
		if err := reg.Register(c); nil != err {
			return nil, err
		}
	}

	return m, nil
}

// Handshake records a handshake outcome.
func (self *Metrics) Handshake(result string) {
	if nil == self {
		return
	}
	self.handshakes.WithLabelValues(result).Inc()
}

// Packet records the processing of a message packet.
func (self *Metrics) Packet(direction, result string) {
	if nil == self {
		return
	}
	self.packets.WithLabelValues(direction, result).Inc()
}

// CustodyOp records a custody store operation.
func (self *Metrics) CustodyOp(op, result string) {
	if nil == self {
		return
	}
	self.custodyOps.WithLabelValues(op, result).Inc()
}
