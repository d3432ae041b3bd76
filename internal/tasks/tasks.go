package tasks

import (
	"errors"
	"sync"
	"time"

	"github.com/desertthunder/tmx/internal/shared"
)

// Settings tunes the engine. Build it from the config with [SettingsFromConfig].
type Settings struct {
	Workers            int
	PageSize           int
	AnalyzeConcurrency int
	RetryAttempts      int
	RetryDelay         time.Duration
	RetryMaxDelay      time.Duration
	RateLimit          float64 // records per second across a job's workers
	Burst              int
	LeaseTTL           time.Duration // ownership of a running job, renewed every LeaseTTL/3
}

// SettingsFromConfig reads the [engine] and [platform] sections.
func SettingsFromConfig(cfg *shared.Config) Settings {
	return Settings{
		Workers:            cfg.Engine.Workers,
		PageSize:           cfg.Engine.PageSize,
		AnalyzeConcurrency: cfg.Engine.AnalyzeConcurrency,
		RetryAttempts:      cfg.Engine.RetryAttempts,
		RetryDelay:         cfg.Engine.RetryDelay(),
		RetryMaxDelay:      cfg.Engine.RetryMaxDelay(),
		RateLimit:          cfg.Platform.RateLimit,
		Burst:              cfg.Platform.Burst,
		LeaseTTL:           cfg.Engine.Lease(),
	}
}

// DefaultSettings returns the settings of the embedded default config.
func DefaultSettings() Settings {
	return SettingsFromConfig(shared.DefaultConfig())
}

func (s Settings) normalize() Settings {
	if s.Workers <= 0 {
		s.Workers = 5
	}
	if s.PageSize <= 0 {
		s.PageSize = 100
	}
	if s.AnalyzeConcurrency <= 0 {
		s.AnalyzeConcurrency = 4
	}
	if s.RetryAttempts <= 0 {
		s.RetryAttempts = 1
	}
	if s.RetryDelay <= 0 {
		s.RetryDelay = time.Millisecond
	}
	if s.RetryMaxDelay < s.RetryDelay {
		s.RetryMaxDelay = s.RetryDelay
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.LeaseTTL <= 0 {
		s.LeaseTTL = 30 * time.Second
	}
	return s
}

// Fault is the class of an error as seen by the engine.
type Fault int

const (
	// FaultRecord affects a single record: rejection, conflict, exhausted retries.
	FaultRecord Fault = iota
	// FaultTransient may succeed when retried: rate limiting, timeouts, upstream errors.
	FaultTransient
	// FaultAccount makes the whole account unusable: bad key, lost permissions, unreachable.
	FaultAccount
)

func (f Fault) String() string {
	switch f {
	case FaultTransient:
		return "transient"
	case FaultAccount:
		return "account"
	default:
		return "record"
	}
}

// Classify maps an error onto a [Fault].
func Classify(err error) Fault {
	switch {
	case err == nil:
		return FaultRecord
	case errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrUnreachable),
		errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrMissingCredentials):
		return FaultAccount
	case errors.Is(err, shared.ErrRateLimited),
		errors.Is(err, shared.ErrTimeout),
		errors.Is(err, shared.ErrUpstream):
		return FaultTransient
	}
	return FaultRecord
}

// CancelToken is a cooperative cancellation flag checked between records and categories.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it more than once is harmless.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelled {
		t.cancelled = true
		close(t.done)
	}
}

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done is closed by Cancel.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Unless runs fn unless the token is cancelled and reports whether it ran.
// Cancel blocks until fn returns, so fn is ordered entirely before or after any cancellation.
func (t *CancelToken) Unless(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	fn()
	return true
}
