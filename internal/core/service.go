package core

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Clock returns the current time as epoch seconds.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 {
	return time.Now().Unix()
}

// FixedClock always returns ts.
func FixedClock(ts int64) Clock {
	return func() int64 { return ts }
}

// Metrics receives domain events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	FormPublished()
	SubmissionAccepted()
	SubmissionRejected(kind Kind)
	SequenceRetry()
	ExportFinished(rows int, err error)
}

type nopMetrics struct{}

func (nopMetrics) FormPublished()            {}
func (nopMetrics) SubmissionAccepted()       {}
func (nopMetrics) SubmissionRejected(Kind)   {}
func (nopMetrics) SequenceRetry()            {}
func (nopMetrics) ExportFinished(int, error) {}

// Default sequence retry settings.
const (
	DefaultSequenceRetries = 8
	DefaultSequenceBackoff = 5 * time.Millisecond
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	Clock           Clock
	Metrics         Metrics
	SequenceRetries uint64
	SequenceBackoff time.Duration
	ExportLimiter   *ExportLimiter
}

// Service provides the form lifecycle, submission and export operations.
// It holds no entity state between calls; every read goes to the store.
type Service struct {
	store      Store
	now        Clock
	metrics    Metrics
	seqRetries uint64
	seqBackoff time.Duration
	exports    *ExportLimiter
}

// NewService creates a new Service instance backed by store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		now:        opts.Clock,
		metrics:    opts.Metrics,
		seqRetries: opts.SequenceRetries,
		seqBackoff: opts.SequenceBackoff,
		exports:    opts.ExportLimiter,
	}
	if s.now == nil {
		s.now = SystemClock
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.seqRetries == 0 {
		s.seqRetries = DefaultSequenceRetries
	}
	if s.seqBackoff <= 0 {
		s.seqBackoff = DefaultSequenceBackoff
	}
	if s.exports == nil {
		s.exports = NewExportLimiter(DefaultMaxConcurrentExports, DefaultMaxWaitTime)
	}
	return s
}

// backoff is the jittered exponential schedule used when a transaction loses
// a uniqueness race and is run again.
func (s *Service) backoff(maxRetries uint64) retry.Backoff {
	b := retry.NewExponential(s.seqBackoff)
	b = retry.WithJitterPercent(50, b)
	return retry.WithMaxRetries(maxRetries, b)
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ExportLimiterStatus returns the export limiter state for monitoring.
func (s *Service) ExportLimiterStatus() ExportLimiterStatus {
	return s.exports.Status()
}

// WaitForExports blocks until in-flight exports finish or ctx is done.
func (s *Service) WaitForExports(ctx context.Context) error {
	return s.exports.WaitForDrain(ctx)
}
