package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing fast, calls rejected
	StateHalfOpen              // Probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults applied by Config.withDefaults for zero-valued fields.
const (
	DefaultFailureThreshold = 5
	DefaultTimeout          = 30 * time.Second
	DefaultSuccessThreshold = 2
)

// Config carries the tunables of a single breaker. Zero values fall back
// to the package defaults, so Config{} is usable as-is.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that trips the breaker open.
	FailureThreshold int

	// Timeout is how long the breaker stays open before a probe call
	// is admitted.
	Timeout time.Duration

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state required to close the breaker again.
	SuccessThreshold int

	// Classifier maps an operation's error to an outcome. Nil means
	// any non-nil error counts as a failure.
	Classifier Classifier

	// OnStateChange, when set, is invoked for every transition. It runs
	// with the breaker's lock held, in transition order; it must not
	// call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Logger receives a Warn entry per transition. Nil means slog.Default.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Classifier == nil {
		c.Classifier = defaultClassifier
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Transition is one entry of a breaker's append-only state change log.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Breaker guards calls to one downstream dependency. All state is behind
// a single mutex; transitions are strictly ordered.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger

	mutex           sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time // zero means no failure recorded yet
	totalCalls      int64
	totalFailures   int64
	totalSuccesses  int64
	transitions     []Transition
}

// New creates a closed breaker named after the dependency it protects.
func New(name string, cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		name:  name,
		cfg:   cfg,
		log:   cfg.Logger,
		state: StateClosed,
	}
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Execute runs op through the breaker: the call is first admitted or
// rejected, then its error is classified and recorded. A rejected call
// returns *OpenError without invoking op. Excluded outcomes propagate
// their error but touch no counter and trigger no transition.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	result, err := op()

	switch b.cfg.Classifier(err) {
	case OutcomeSuccess:
		b.recordSuccess()
	case OutcomeFailure:
		b.recordFailure()
	case OutcomeExcluded:
		// Caller still sees the error; the breaker stays oblivious.
	}
	return result, err
}

// Do is the typed counterpart of Execute.
func Do[T any](b *Breaker, op func() (T, error)) (T, error) {
	var result T
	_, err := b.Execute(func() (any, error) {
		v, opErr := op()
		result = v
		return v, opErr
	})
	return result, err
}

// allow admits or rejects a call. Every call, rejected ones included,
// counts toward totalCalls.
func (b *Breaker) allow() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.totalCalls++

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.lastFailureTime.IsZero() {
			return nil
		}
		elapsed := time.Since(b.lastFailureTime)
		if elapsed >= b.cfg.Timeout {
			b.successCount = 0
			b.transition(StateHalfOpen)
			return nil
		}
		retryAfter := b.cfg.Timeout - elapsed
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &OpenError{Name: b.name, RetryAfter: retryAfter}
	case StateHalfOpen:
		// Every probe is admitted while half-open.
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.totalSuccesses++

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.totalFailures++
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateHalfOpen:
		b.successCount = 0
		b.transition(StateOpen)
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// ForceOpen trips the breaker regardless of counters. The open window
// starts now.
func (b *Breaker) ForceOpen() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastFailureTime = time.Now()
	b.transition(StateOpen)
}

// ForceClose closes the breaker and clears both consecutive counters.
func (b *Breaker) ForceClose() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failureCount = 0
	b.successCount = 0
	b.transition(StateClosed)
}

// Reset returns the breaker to its initial state: closed, counters
// cleared, no failure recorded. Cumulative totals and the transition
// log are preserved.
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.transition(StateClosed)
}

// Transitions returns a copy of the state change log, oldest first.
func (b *Breaker) Transitions() []Transition {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	out := make([]Transition, len(b.transitions))
	copy(out, b.transitions)
	return out
}

// transition must be called with the mutex held. Same-state changes are
// dropped, so a threshold crossed by several goroutines at once still
// yields a single log entry.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.transitions = append(b.transitions, Transition{From: from, To: to, At: time.Now()})

	b.log.Warn("circuit breaker state change",
		slog.String("breaker", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
