package scheduler

import (
	"net/http"
	"time"
)

const (
	DefaultTickInterval         = time.Second
	DefaultExecutionTimeout     = 10 * time.Second
	DefaultConnectRetryInterval = 5 * time.Second
	DefaultMaxConcurrentRunners = 50
)

type options struct {
	tickInterval         time.Duration
	executionTimeout     time.Duration
	connectRetryInterval time.Duration
	maxConcurrentRunners int64
	httpClient           *http.Client
	now                  func() time.Time
}

func defaultOptions() options {
	return options{
		tickInterval:         DefaultTickInterval,
		executionTimeout:     DefaultExecutionTimeout,
		connectRetryInterval: DefaultConnectRetryInterval,
		maxConcurrentRunners: DefaultMaxConcurrentRunners,
		now:                  time.Now,
	}
}

// Option configures a Scheduler.
type Option func(*options)

func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithExecutionTimeout bounds every outbound step call.
func WithExecutionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.executionTimeout = d
		}
	}
}

// WithConnectRetryInterval sets the fixed backoff between store connection attempts in Init.
func WithConnectRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectRetryInterval = d
		}
	}
}

// WithMaxConcurrentRunners caps how many transactions execute at once. Due runners over the cap
// stay pending until a slot frees up.
func WithMaxConcurrentRunners(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentRunners = int64(n)
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
