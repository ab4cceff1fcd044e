package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	obserrors "github.com/target/ldap-user-collection/internal/observability/errors"
	"github.com/target/ldap-user-collection/internal/observability/statsd"
)

// LoginOutcome labels how a login attempt ended.
type LoginOutcome string

const (
	// OutcomeLocalSuccess is a login verified against the stored credential.
	OutcomeLocalSuccess LoginOutcome = "local_success"
	// OutcomeDirectorySuccess is a login verified by the directory for an existing record.
	OutcomeDirectorySuccess LoginOutcome = "directory_success"
	// OutcomeProvisioned is a directory login that created a new record.
	OutcomeProvisioned LoginOutcome = "provisioned"
	// OutcomeRejected is a bad-credentials response.
	OutcomeRejected LoginOutcome = "rejected"
	// OutcomeError is a login aborted by a store or session failure.
	OutcomeError LoginOutcome = "error"
)

// LoginMetric captures a finished login attempt.
type LoginMetric struct {
	Outcome LoginOutcome
	// Directory is the directory result label, empty when the directory was not consulted.
	Directory string
	Duration  time.Duration
	Err       error
}

// AuthRecorderOptions groups dependencies for AuthRecorder.
type AuthRecorderOptions struct {
	// Registerer receives the Prometheus collectors; nil uses prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Sink optionally mirrors every metric to StatsD.
	Sink statsd.Sink
}

// AuthRecorder counts login outcomes and collection requests.
// A nil *AuthRecorder is valid and records nothing.
type AuthRecorder struct {
	sink statsd.Sink

	logins        *prometheus.CounterVec
	loginDuration *prometheus.HistogramVec
	requests      *prometheus.CounterVec
}

// NewAuthRecorder creates and registers the auth collectors.
func NewAuthRecorder(opts AuthRecorderOptions) (*AuthRecorder, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &AuthRecorder{
		sink: opts.Sink,
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercollection_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		loginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usercollection_login_duration_seconds",
				Help:    "Login processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercollection_requests_total",
				Help: "User collection requests by method and status",
			},
			[]string{"method", "status"},
		),
	}

	for _, c := range []prometheus.Collector{r.logins, r.loginDuration, r.requests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordLogin records a finished login attempt.
func (r *AuthRecorder) RecordLogin(in LoginMetric) {
	if r == nil {
		return
	}
	outcome := string(in.Outcome)
	r.logins.WithLabelValues(outcome).Inc()
	if in.Duration > 0 {
		r.loginDuration.WithLabelValues(outcome).Observe(in.Duration.Seconds())
	}

	if r.sink == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	if in.Directory != "" {
		tags["directory"] = in.Directory
	}
	if in.Err != nil && in.Outcome == OutcomeError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	r.sink.Count("auth.login", 1, tags)
	if in.Duration > 0 {
		r.sink.Timing("auth.login.duration", in.Duration, CloneTags(tags))
	}
}

// RecordRequest records a served collection request.
func (r *AuthRecorder) RecordRequest(method string, status int) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.requests.WithLabelValues(method, code).Inc()
	if r.sink != nil {
		r.sink.Count("users.request", 1, map[string]string{"method": method, "status": code})
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
