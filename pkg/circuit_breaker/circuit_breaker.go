package circuit_breaker

import (
	"errors"
	"sync"
	"time"
)

type state uint8

const (
	stateClosed state = iota + 1
	stateOpen
	stateHalfOpen
)

var ErrOpen = errors.New("circuit breaker is open")

type CircuitBreaker interface {
	Call(fn func() error) error
	Reset()
}

type breaker struct {
	mu sync.Mutex

	state        state
	windowSize   int
	cooldown     time.Duration
	failureRatio float64
	// successes required in half-open before closing again
	recovery int

	failures  []bool
	pos       int
	successes int
	openedAt  time.Time
}

// New builds a closed breaker tracking the last windowSize calls. It opens
// once the failed share of the window reaches failureRatio, and after
// cooldown lets calls through half-open until recovery successes close it.
func New(windowSize int, cooldown time.Duration, failureRatio float64, recovery int) CircuitBreaker {
	return &breaker{
		state:        stateClosed,
		windowSize:   windowSize,
		cooldown:     cooldown,
		failureRatio: failureRatio,
		recovery:     recovery,
		failures:     make([]bool, windowSize),
	}
}

func (b *breaker) Call(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

func (b *breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateOpen {
		return nil
	}
	if time.Since(b.openedAt) <= b.cooldown {
		return ErrOpen
	}
	b.state = stateHalfOpen
	b.successes = 0
	return nil
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures[b.pos] = err != nil
	b.pos = (b.pos + 1) % b.windowSize

	if b.state == stateHalfOpen {
		if err != nil {
			b.trip()
			return
		}
		b.successes++
		if b.successes > b.recovery {
			b.reset()
		}
		return
	}

	failed := 0
	for _, f := range b.failures {
		if f {
			failed++
		}
	}
	if float64(failed)/float64(b.windowSize) >= b.failureRatio {
		b.trip()
	}
}

func (b *breaker) trip() {
	b.state = stateOpen
	b.successes = 0
	b.openedAt = time.Now()
}

func (b *breaker) reset() {
	for i := range b.failures {
		b.failures[i] = false
	}
	b.pos = 0
	b.successes = 0
	b.state = stateClosed
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}
