// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the recording interface handed to middleware and services,
// so they never depend on Prometheus directly and tests can pass Nop.
type Recorder interface {
	RecordRequest(statusCode int)
	RecordAuthDenied(code string)
	RecordRotation()
	RecordSynthesis(chars int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests   *prometheus.CounterVec
	authDenied *prometheus.CounterVec
	rotations  prometheus.Counter
	synthCalls prometheus.Counter
	synthChars prometheus.Counter
}

// NewCollector registers the application metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_http_requests_total",
			Help: "HTTP responses by status code",
		}, []string{"status_code"}),
		authDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_auth_denied_total",
			Help: "Request denials by auth error code",
		}, []string{"code"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speech_token_rotations_total",
			Help: "Successful refresh-token rotations",
		}),
		synthCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speech_synthesis_calls_total",
			Help: "Text-to-speech synthesis calls",
		}),
		synthChars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speech_synthesis_chars_total",
			Help: "Characters sent to the synthesis provider",
		}),
	}
	reg.MustRegister(c.requests, c.authDenied, c.rotations, c.synthCalls, c.synthChars)
	return c
}

func (c *Collector) RecordRequest(statusCode int) {
	c.requests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordAuthDenied(code string) {
	c.authDenied.WithLabelValues(code).Inc()
}

func (c *Collector) RecordRotation() { c.rotations.Inc() }

func (c *Collector) RecordSynthesis(chars int) {
	c.synthCalls.Inc()
	c.synthChars.Add(float64(chars))
}

// Nop discards all measurements; used in tests and when metrics are off.
type Nop struct{}

func (Nop) RecordRequest(int)       {}
func (Nop) RecordAuthDenied(string) {}
func (Nop) RecordRotation()         {}
func (Nop) RecordSynthesis(int)     {}
