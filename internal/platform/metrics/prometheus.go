package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freshy"

// Recorder exports business counters to Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	ordersCreated      *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	stockFailures      *prometheus.CounterVec
	gatewayCalls       *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
}

// NewRecorder registers the counters plus the Go and process collectors on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted at checkout, by payment method.",
		}, []string{"payment_method"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions, by target status.",
		}, []string{"status"}),
		stockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustment_failures_total",
			Help:      "Stock adjustments that failed after the order was persisted.",
		}, []string{"op"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_gateway_calls_total",
			Help:      "Payment gateway calls, by provider, operation and outcome.",
		}, []string{"provider", "op", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Notification deliveries, by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
	r.registry.MustRegister(
		r.ordersCreated,
		r.orderTransitions,
		r.stockFailures,
		r.gatewayCalls,
		r.notificationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) OrderCreated(paymentMethod string) {
	r.ordersCreated.WithLabelValues(paymentMethod).Inc()
}

func (r *Recorder) OrderTransitioned(status string) {
	r.orderTransitions.WithLabelValues(status).Inc()
}

func (r *Recorder) StockAdjustmentFailed(op string) {
	r.stockFailures.WithLabelValues(op).Inc()
}

func (r *Recorder) GatewayCall(provider, op, outcome string) {
	r.gatewayCalls.WithLabelValues(provider, op, outcome).Inc()
}

func (r *Recorder) NotificationDelivered(channel, outcome string) {
	r.notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
