package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "library_login_total",
			Help: "Total number of login attempts",
		},
	)

	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "library_register_total",
			Help: "Total number of membership registrations",
		},
	)

	ApprovalCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_membership_decisions_total",
			Help: "Total number of membership approval decisions",
		},
		[]string{"decision"}, // "approve" or "reject"
	)

	LoanCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_loan_operations_total",
			Help: "Total number of loan operations",
		},
		[]string{"operation"}, // "borrow", "renew", "return", "pay_fine"
	)

	UploadCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_uploads_total",
			Help: "Total number of file uploads by outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected"
	)

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	ActiveSchoolsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_active_schools",
			Help: "Number of currently active schools",
		},
	)

	PendingMembersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_pending_members",
			Help: "Number of memberships awaiting approval per school",
		},
		[]string{"school_id"},
	)

	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_info",
			Help: "Information about the library service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(ApprovalCounter)
	prometheus.MustRegister(LoanCounter)
	prometheus.MustRegister(UploadCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveSchoolsGauge)
	prometheus.MustRegister(PendingMembersGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordApproval records a membership approval decision
func RecordApproval(decision string) {
	ApprovalCounter.With(prometheus.Labels{"decision": decision}).Inc()
}

// RecordLoanOperation records a loan operation by type
func RecordLoanOperation(operation string) {
	LoanCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordUpload records an upload outcome
func RecordUpload(outcome string) {
	UploadCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// UpdateActiveSchools updates the active schools gauge
func UpdateActiveSchools(count int) {
	ActiveSchoolsGauge.Set(float64(count))
}

// UpdatePendingMembers updates the pending memberships gauge for a school
func UpdatePendingMembers(schoolID uint, count int) {
	PendingMembersGauge.With(prometheus.Labels{
		"school_id": strconv.FormatUint(uint64(schoolID), 10),
	}).Set(float64(count))
}
