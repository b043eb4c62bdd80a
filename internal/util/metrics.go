package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order lifecycle transitions",
	}, []string{"to_status"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	PaymentLinksIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_links_issued_total",
		Help: "Total number of payment links issued",
	})

	PaymentLinkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_link_failures_total",
		Help: "Total number of failed payment link creations",
	})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of orders marked paid via webhook",
	})

	DeliveryOTPIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_otp_issued_total",
		Help: "Total number of delivery confirmation codes issued",
	})

	DeliveryOTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_otp_verifications_total",
		Help: "Total number of delivery confirmation attempts",
	}, []string{"result"})

	RefundsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_requested_total",
		Help: "Total number of refund requests filed",
	})

	RefundsDecidedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_decided_total",
		Help: "Total number of refund decisions",
	}, []string{"decision"})

	StockDecrementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_decrement_latency_seconds",
		Help:    "Latency of stock decrement operations",
		Buckets: prometheus.DefBuckets,
	})

	StockDecrementsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_decrements_failed_total",
		Help: "Total number of failed stock decrements",
	}, []string{"reason"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications dispatched",
	}, []string{"kind"})

	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notification dispatch failures",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
