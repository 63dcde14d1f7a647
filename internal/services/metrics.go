package services

// Metrics receives business counters from the services. Implementations must be safe for concurrent use.
type Metrics interface {
	OrderCreated(paymentMethod string)
	OrderTransitioned(status string)
	StockAdjustmentFailed(op string)
	GatewayCall(provider, op, outcome string)
	NotificationDelivered(channel, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) OrderCreated(string)                  {}
func (noopMetrics) OrderTransitioned(string)             {}
func (noopMetrics) StockAdjustmentFailed(string)         {}
func (noopMetrics) GatewayCall(string, string, string)   {}
func (noopMetrics) NotificationDelivered(string, string) {}
