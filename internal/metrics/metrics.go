// Package metrics holds the prometheus collectors of the autoposter.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoposter_posts_total",
		Help: "Publish flows by outcome",
	}, []string{"outcome"})

	SubmitAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoposter_submit_attempts_total",
		Help: "createRecord attempts, retries included",
	})

	ImageUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoposter_image_uploads_total",
		Help: "Thumbnail uploads by result",
	}, []string{"result"})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoposter_events_total",
		Help: "Post transition events received, by source",
	}, []string{"source"})

	XRPCRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoposter_xrpc_request_duration_seconds",
		Help:    "Duration of XRPC calls to the PDS",
		Buckets: prometheus.DefBuckets,
	}, []string{"nsid", "status"})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsTotal,
		SubmitAttemptsTotal,
		ImageUploadsTotal,
		EventsTotal,
		XRPCRequestDuration,
	)
}

// ObserveXRPC records one XRPC round trip. status 0 means the request never
// got a response.
func ObserveXRPC(nsid string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	XRPCRequestDuration.WithLabelValues(nsid, label).Observe(time.Since(start).Seconds())
}
