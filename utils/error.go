package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrorClass tells a retry loop whether repeating the same input can succeed.
type ErrorClass uint8

const (
	// Transient failures are expected to resolve on retry (network, locks).
	Transient ErrorClass = iota
	// Deterministic failures recur identically until the input changes.
	Deterministic
)

func (c ErrorClass) String() string {
	if c == Deterministic {
		return "deterministic"
	}
	return "transient"
}

// ClassifiedError carries the class of the error it wraps.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s failure: %s", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with class; nil stays nil.
func Classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) && classified.Class == class {
		return err
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf returns the class attached to err. Unclassified errors are transient.
func ClassOf(err error) ErrorClass {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}
	return Transient
}

func IsDeterministic(err error) bool {
	return err != nil && ClassOf(err) == Deterministic
}

// Backoff bounds a retry loop: at most Attempts calls, sleeping Wait after the
// first failure and doubling up to MaxWait.
type Backoff struct {
	Attempts int
	Wait     time.Duration
	MaxWait  time.Duration
}

// RetryOnBackoff calls f until it succeeds, returns a deterministic error, the
// context is done or the attempts are used up. The last error is returned.
func RetryOnBackoff(ctx context.Context, log zerolog.Logger, backoff Backoff, f func(attempt int) error) error {
	attempts := max(backoff.Attempts, 1)
	sleep := backoff.Wait

	var err error
	for cur := 0; cur < attempts; cur++ {
		if err = f(cur); err == nil {
			return nil
		}
		if IsDeterministic(err) {
			return err
		}
		if cur == attempts-1 {
			break
		}

		log.Debug().Err(err).Int("attempt", cur+1).Dur("backoff", sleep).Msg("retrying after transient failure")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %s)", ctx.Err(), err)
		case <-time.After(sleep):
		}
		sleep *= 2
		if backoff.MaxWait > 0 && sleep > backoff.MaxWait {
			sleep = backoff.MaxWait
		}
	}

	return err
}
