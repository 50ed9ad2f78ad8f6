// Package promise implements the spec's deferred-result type: a single-
// assignment container that starts pending, is completed at most once with
// either a value or an error, and lets callers attach continuations before or
// after that happens. It is the Go analogue of the original's templated
// Promise<T>/Thenable<T>; Go methods can't add type parameters of their own,
// so combinators that change the carried type (ThenApply, ThenCompose) are
// free functions instead of methods.
package promise

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loopwire/binder/internal/affinity"
)

// ErrAlreadyCompleted is returned by Complete/CompleteWith when the Promise
// has already reached a terminal state. A Promise completes
// at most once, per spec §4.5.
var ErrAlreadyCompleted = errors.New("promise: already completed")

// ErrTimeout is the error value carried by a Promise that OrTimeout forced
// into its failed state, and the error GetTimeout returns when its wait
// elapses.
var ErrTimeout = errors.New("promise: timed out")

// ErrCancelled is the error value carried by a Promise that was Cancelled
// before it had a result.
var ErrCancelled = errors.New("promise: cancelled")

// Executor runs a continuation. *looper.Handler satisfies this (it schedules
// the call onto its Looper); syncExecutor below runs it inline.
type Executor interface {
	Execute(func())
}

type syncExecutor struct{}

func (syncExecutor) Execute(fn func()) { fn() }

// defaultExecutor resolves the executor a Promise uses for continuations when
// none is given explicitly: the current goroutine's Looper-bound executor if
// one is registered (spec §4.5, "Executors default to the current Looper's
// executor for Promises constructed on a Looper thread"), else a synchronous
// executor that just runs the continuation in whatever goroutine completes
// the Promise.
func defaultExecutor() Executor {
	if ex, ok := affinity.Current(); ok {
		return ex
	}
	return syncExecutor{}
}

// Promise carries the eventual result of an asynchronous operation. The zero
// value is not usable; construct with New.
type Promise[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	closed   bool
	value    T
	err      error
	executor Executor

	// continuations queued before completion; run (in order) once done closes.
	continuations []func()
}

// New creates a pending Promise using the current goroutine's Looper executor
// as its default, falling back to synchronous dispatch off-Looper.
func New[T any]() *Promise[T] {
	return NewWithExecutor[T](defaultExecutor())
}

// NewWithExecutor creates a pending Promise that runs its continuations on ex.
func NewWithExecutor[T any](ex Executor) *Promise[T] {
	return &Promise[T]{done: make(chan struct{}), executor: ex}
}

// Completed returns an already-fulfilled Promise carrying value.
func Completed[T any](value T) *Promise[T] {
	p := New[T]()
	p.Complete(value)
	return p
}

// Failed returns an already-failed Promise carrying err.
func Failed[T any](err error) *Promise[T] {
	p := New[T]()
	p.CompleteWith(err)
	return p
}

// Complete fulfills the Promise with value. It returns ErrAlreadyCompleted if
// called more than once across Complete/CompleteWith/CompleteWithPromise.
func (p *Promise[T]) Complete(value T) error {
	return p.complete(value, nil)
}

// CompleteWith fails the Promise with err.
func (p *Promise[T]) CompleteWith(err error) error {
	if err == nil {
		err = errors.New("promise: CompleteWith requires a non-nil error")
	}
	var zero T
	return p.complete(zero, err)
}

// CompleteWithPromise makes p adopt other's eventual terminal state: when
// other fulfills or fails, p does the same. If p is already completed, the
// adoption is silently dropped (a Promise completes once, per spec §4.5).
func (p *Promise[T]) CompleteWithPromise(other *Promise[T]) {
	other.whenDone(func(v T, err error) {
		_ = p.complete(v, err)
	})
}

func (p *Promise[T]) complete(value T, err error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrAlreadyCompleted
	}
	p.value, p.err = value, err
	p.closed = true
	conts := p.continuations
	p.continuations = nil
	close(p.done)
	p.mu.Unlock()

	for _, c := range conts {
		p.executor.Execute(c)
	}
	return nil
}

// whenDone registers fn to run (on p's executor) once p completes, with the
// terminal value/error. If p is already complete, fn runs immediately via the
// executor.
func (p *Promise[T]) whenDone(fn func(T, error)) {
	p.mu.Lock()
	if p.closed {
		v, err := p.value, p.err
		p.mu.Unlock()
		p.executor.Execute(func() { fn(v, err) })
		return
	}
	p.continuations = append(p.continuations, func() {
		p.mu.Lock()
		v, err := p.value, p.err
		p.mu.Unlock()
		fn(v, err)
	})
	p.mu.Unlock()
}

// Get blocks until the Promise completes and returns its value or error.
func (p *Promise[T]) Get() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// GetTimeout blocks until the Promise completes or d elapses, whichever comes
// first. On timeout it returns ErrTimeout without altering the Promise's own
// state (unlike OrTimeout, it does not force completion).
func (p *Promise[T]) GetTimeout(d time.Duration) (T, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-time.After(d):
		var zero T
		return zero, ErrTimeout
	}
}

// Cancel fails a still-pending Promise with ErrCancelled. It is a no-op
// (returns false) if the Promise already completed.
func (p *Promise[T]) Cancel() bool {
	return p.complete(*new(T), ErrCancelled) == nil
}

// IsDone reports whether the Promise has reached a terminal state.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// OrTimeout arranges for p to fail with ErrTimeout if it has not completed
// within d; it returns p for chaining.
func (p *Promise[T]) OrTimeout(d time.Duration) *Promise[T] {
	timer := time.AfterFunc(d, func() {
		_ = p.complete(*new(T), ErrTimeout)
	})
	p.whenDone(func(T, error) { timer.Stop() })
	return p
}

// ThenAccept runs fn with the fulfilled value once p succeeds; it is skipped
// if p fails. It returns a Promise[struct{}] that completes once fn has run
// (or carries p's error if p failed).
func (p *Promise[T]) ThenAccept(fn func(T)) *Promise[struct{}] {
	next := NewWithExecutor[struct{}](p.executor)
	p.whenDone(func(v T, err error) {
		if err != nil {
			_ = next.CompleteWith(err)
			return
		}
		fn(v)
		_ = next.Complete(struct{}{})
	})
	return next
}

// ThenRun runs fn once p reaches any terminal state, ignoring the value; it
// propagates p's error if it failed.
func (p *Promise[T]) ThenRun(fn func()) *Promise[struct{}] {
	next := NewWithExecutor[struct{}](p.executor)
	p.whenDone(func(_ T, err error) {
		fn()
		if err != nil {
			_ = next.CompleteWith(err)
			return
		}
		_ = next.Complete(struct{}{})
	})
	return next
}

// CatchException runs fn if p fails, producing a recovered value of the same
// type T; it is skipped (simply forwarding the value) if p succeeds.
func (p *Promise[T]) CatchException(fn func(error) T) *Promise[T] {
	next := NewWithExecutor[T](p.executor)
	p.whenDone(func(v T, err error) {
		if err != nil {
			_ = next.Complete(fn(err))
			return
		}
		_ = next.Complete(v)
	})
	return next
}

// ThenApply maps a fulfilled Promise[T] into a Promise[U] via fn. Errors
// propagate without calling fn. Defined as a free function because Go
// methods cannot introduce a new type parameter U.
func ThenApply[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	next := NewWithExecutor[U](p.executor)
	p.whenDone(func(v T, err error) {
		if err != nil {
			_ = next.CompleteWith(err)
			return
		}
		u, ferr := fn(v)
		if ferr != nil {
			_ = next.CompleteWith(ferr)
			return
		}
		_ = next.Complete(u)
	})
	return next
}

// ThenCompose is ThenApply's flat-mapping counterpart: fn itself returns a
// Promise[U], and the returned Promise adopts its terminal state once it
// settles. This is how one binder Transact's reply is chained into another's
// request.
func ThenCompose[T, U any](p *Promise[T], fn func(T) *Promise[U]) *Promise[U] {
	next := NewWithExecutor[U](p.executor)
	p.whenDone(func(v T, err error) {
		if err != nil {
			_ = next.CompleteWith(err)
			return
		}
		inner := fn(v)
		next.CompleteWithPromise(inner)
	})
	return next
}

// AllOf returns a Promise that fulfills with every input Promise's value,
// in input order, once all have fulfilled, or fails with the first
// encountered error.
func AllOf[T any](promises ...*Promise[T]) *Promise[[]T] {
	next := New[[]T]()
	if len(promises) == 0 {
		_ = next.Complete(nil)
		return next
	}

	results := make([]T, len(promises))
	var mu sync.Mutex
	remaining := len(promises)
	failed := false

	for i, p := range promises {
		i := i
		p.whenDone(func(v T, err error) {
			mu.Lock()
			defer mu.Unlock()
			if failed {
				return
			}
			if err != nil {
				failed = true
				_ = next.CompleteWith(err)
				return
			}
			results[i] = v
			remaining--
			if remaining == 0 {
				_ = next.Complete(results)
			}
		})
	}
	return next
}

// AnyOf returns a Promise that settles the instant any input Promise does,
// adopting its value or error.
func AnyOf[T any](promises ...*Promise[T]) *Promise[T] {
	next := New[T]()
	for _, p := range promises {
		next.CompleteWithPromise(p)
	}
	return next
}

// context.Context integration: WaitContext blocks until the Promise
// completes or ctx is cancelled first, matching the Go idiom used elsewhere
// in this module for caller-supplied deadlines.
func (p *Promise[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
