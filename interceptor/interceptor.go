// Package interceptor wraps a binder's OnTransact dispatch routine with
// cross-cutting behavior — panic recovery, logging, metrics — the same
// shape as the teacher's HTTP-style core/middleware package, generalized
// from wrapping core.Handler to wrapping core.OnTransact.
package interceptor

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
)

// Interceptor wraps an OnTransact with additional behavior, composing the
// same way middleware does: Chain(a, b, c)(h) applies a on the outside, c
// innermost.
type Interceptor func(core.OnTransact) core.OnTransact

// Chain composes interceptors outer-to-inner: Chain(a, b)(h) behaves like
// a(b(h)).
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next core.OnTransact) core.OnTransact {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// Recovery returns an interceptor that recovers from panics raised by next,
// logs the stack trace, and completes the transaction's result Promise with
// a RemoteException instead of letting the panic escape onto the binder's
// Looper.
func Recovery() Interceptor {
	return func(next core.OnTransact) core.OnTransact {
		return func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Printf("[binder] PANIC recovered in onTransact(what=%d): %v\n%s", what, r, buf[:n])
					_ = result.CompleteWith(&core.RemoteException{Message: fmt.Sprintf("%v", r)})
				}
			}()
			next(what, data, result)
		}
	}
}

// Logging returns an interceptor that logs transaction duration and outcome
// once the result Promise settles. Duration covers the full transaction,
// including any asynchronous work next does before completing result.
func Logging() Interceptor {
	return func(next core.OnTransact) core.OnTransact {
		return func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
			start := time.Now()
			next(what, data, result)
			result.ThenRun(func() {
				_, err := result.Get()
				elapsed := time.Since(start)
				if err != nil {
					log.Printf("[binder] ERROR what=%d elapsed=%s err=%v", what, elapsed, err)
				} else {
					log.Printf("[binder] OK    what=%d elapsed=%s", what, elapsed)
				}
			})
		}
	}
}

// MetricsCollector is the interface metrics backends implement, kept
// decoupled from any specific metrics library — same role as the teacher's
// middleware.MetricsCollector.
type MetricsCollector interface {
	// TransactionProcessed records that a transaction identified by what
	// was processed in duration, with err nil on success.
	TransactionProcessed(what int32, duration time.Duration, err error)
}

// Metrics returns an interceptor that reports transaction outcomes to
// collector once the result Promise settles.
func Metrics(collector MetricsCollector) Interceptor {
	return func(next core.OnTransact) core.OnTransact {
		return func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
			start := time.Now()
			next(what, data, result)
			result.ThenRun(func() {
				_, err := result.Get()
				collector.TransactionProcessed(what, time.Since(start), err)
			})
		}
	}
}
