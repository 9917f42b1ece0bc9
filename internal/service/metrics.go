package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linkageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instructor_linkage_outcomes_total",
			Help: "Account linkage resolutions by outcome",
		},
		[]string{"outcome"},
	)

	verificationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instructor_verification_events_total",
			Help: "Verified events emitted by the race detector, by winning strategy",
		},
		[]string{"source"},
	)

	verificationPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "instructor_verification_poll_errors_total",
			Help: "Transient errors observed by the verification poll loop",
		},
	)

	resendRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "instructor_verification_resend_rejected_total",
			Help: "Verification sends suppressed by the resend cooldown",
		},
	)

	applicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instructor_applications_submitted_total",
			Help: "Submit calls by result",
		},
		[]string{"result"},
	)
)
