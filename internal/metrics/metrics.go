// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts successfully created class sessions.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_created_total",
		Help: "Class sessions created.",
	})

	// SessionsClosed counts session closures by cause.
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_closed_total",
		Help: "Class sessions closed.",
	}, []string{"cause"}) // explicit | expired

	// MarksAccepted counts attendance records flipped to PRESENT.
	MarksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_accepted_total",
		Help: "Attendance marks accepted.",
	})

	// MarksRejected counts rejected mark attempts by reason.
	MarksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_rejected_total",
		Help: "Attendance marks rejected.",
	}, []string{"reason"})

	// JustificationsDecided counts justification decisions by outcome.
	JustificationsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_justifications_decided_total",
		Help: "Justification decisions.",
	}, []string{"outcome"}) // approved | rejected
)
