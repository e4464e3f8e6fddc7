package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_http_requests_total",
			Help: "Total number of HTTP requests processed by the support chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_ws_active_connections",
			Help: "Number of live customer websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	channelDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_channel_deliveries_total",
			Help: "Messages delivered per channel (websocket, telegram_dm, operator_topic).",
		},
		[]string{"channel"},
	)
	telegramSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_telegram_sends_total",
			Help: "Outbound Bot API sends by kind.",
		},
		[]string{"kind"},
	)
	telegramDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_telegram_rate_limited_total",
			Help: "Sends dropped by the per-thread rate limit.",
		},
	)
	aiAnswersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_ai_answers_total",
			Help: "Generated AI answers delivered to customers.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		channelDeliveriesTotal,
		telegramSendsTotal,
		telegramDropsTotal,
		aiAnswersTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncChannelDelivery(channel string) {
	channelDeliveriesTotal.WithLabelValues(channel).Inc()
}

func IncTelegramSend(kind string) {
	telegramSendsTotal.WithLabelValues(kind).Inc()
}

func IncTelegramDrop() {
	telegramDropsTotal.Inc()
}

func IncAIAnswer() {
	aiAnswersTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
