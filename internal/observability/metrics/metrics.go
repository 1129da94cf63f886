package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors are usable before registration so services work in tests;
// MustRegister attaches the service label.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	VerificationCodesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verification_codes_sent_total",
			Help: "Verification codes created, by purpose and email delivery result.",
		},
		[]string{"purpose", "email_result"},
	)

	VerificationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verification_checks_total",
			Help: "Verification code checks, by purpose and outcome.",
		},
		[]string{"purpose", "status"},
	)

	WalletVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_wallet_verifications_total",
			Help: "Wallet signature verifications, by result.",
		},
		[]string{"result"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"method", "result"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of tokens issued or refreshed.",
		},
		[]string{"flow", "result"},
	)

	CleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_cleanup_deleted_total",
			Help: "Rows removed by the expiry sweeper.",
		},
		[]string{"kind"},
	)
)

func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		VerificationCodesSentTotal,
		VerificationChecksTotal,
		WalletVerificationsTotal,
		AuthLoginsTotal,
		TokensIssuedTotal,
		CleanupDeletedTotal,
	)
}
