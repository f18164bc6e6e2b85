// Package metrics provides Prometheus metrics for the clinical documentation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	ResponsesCreated      prometheus.Counter
	ResponsesCompleted    prometheus.Counter
	FieldSaves            prometheus.Counter
	AttachmentUploads     *prometheus.CounterVec
	UploadDuration        prometheus.Histogram
	RequisitionsSubmitted prometheus.Counter
	RequisitionItemsSent  *prometheus.CounterVec
	ActiveDraftOrders     prometheus.Gauge
	WebsocketClients      prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		ResponsesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_responses_created_total",
			Help: "Total chart responses created",
		}),
		ResponsesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_responses_completed_total",
			Help: "Total chart responses completed",
		}),
		FieldSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_field_saves_total",
			Help: "Total field response saves",
		}),
		AttachmentUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_uploads_total",
			Help: "Total attachment uploads by outcome",
		}, []string{"outcome"}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attachment_upload_duration_seconds",
			Help:    "Attachment upload duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		RequisitionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requisitions_submitted_total",
			Help: "Total requisitions submitted",
		}),
		RequisitionItemsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requisition_items_sent_total",
			Help: "Total requisition items sent by order type and outcome",
		}, []string{"order_type", "outcome"}),
		ActiveDraftOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "draft_order_items_active",
			Help: "Draft order items currently staged across sessions",
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients_connected",
			Help: "Currently connected websocket clients",
		}),
	}

	prometheus.MustRegister(
		m.ResponsesCreated,
		m.ResponsesCompleted,
		m.FieldSaves,
		m.AttachmentUploads,
		m.UploadDuration,
		m.RequisitionsSubmitted,
		m.RequisitionItemsSent,
		m.ActiveDraftOrders,
		m.WebsocketClients,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
