package helpers

import (
	"errors"
	"log"
	"time"

	"github.com/jpillora/backoff"
)

var logger = log.New(log.Writer(), "[retry] ", log.LstdFlags)

// ErrRetryCancelled is returned when the done channel closes before the
// operation succeeded.
var ErrRetryCancelled = errors.New("retry cancelled")

// Retry runs an operation until it succeeds. Some remote calls have to be
// retried indefinitely: a book that never becomes ready is preferable to a
// silently wrong book, and the trades notifier cannot run at all without an
// initial trade id.
type Retry struct {
	// Delay is the fixed wait between attempts. Zero means retry
	// immediately, for callers whose transport does its own backoff.
	Delay time.Duration

	// Backoff, when set, supersedes Delay with a growing wait.
	Backoff *backoff.Backoff

	// Message names the operation in retry log lines.
	Message string

	// EscalateAfter is the attempt count from which failures are logged as
	// errors instead of warnings. Zero disables escalation.
	EscalateAfter int

	// MaxAttempts bounds the number of attempts. Zero means unbounded.
	MaxAttempts int
}

// Do runs fn until it returns nil, MaxAttempts is exhausted (returning the
// last error), or done closes (returning ErrRetryCancelled).
func (r *Retry) Do(done <-chan struct{}, fn func() error) error {
	attempt := 0
	for {
		select {
		case <-done:
			return ErrRetryCancelled
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		attempt++
		r.logAttempt(attempt, err)
		if r.MaxAttempts > 0 && attempt >= r.MaxAttempts {
			return err
		}

		if delay := r.nextDelay(); delay > 0 {
			select {
			case <-done:
				return ErrRetryCancelled
			case <-time.After(delay):
			}
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](r *Retry, done <-chan struct{}, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(done, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func (r *Retry) nextDelay() time.Duration {
	if r.Backoff != nil {
		return r.Backoff.Duration()
	}
	return r.Delay
}

func (r *Retry) logAttempt(attempt int, err error) {
	level := "WARN"
	if r.EscalateAfter > 0 && attempt >= r.EscalateAfter {
		level = "ERROR"
	}
	logger.Printf("%s %s failed (attempt %d): %s", level, r.Message, attempt, err)
}
