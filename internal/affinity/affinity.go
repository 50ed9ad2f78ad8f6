// Package affinity stands in for the thread-local storage the original
// Mindroid runtime uses to find "the current thread's Looper". Go has no
// thread-locals and no stable public API for a goroutine id, so this package
// extracts one the conventional way — by parsing the header line of
// runtime.Stack — and keys a small registry on it. looper.HandlerThread
// registers its Executor when it prepares a Looper and deregisters it when
// the Looper quits; promise.defaultExecutor and looper.Current read the
// registry.
//
// This is the one place in the module that deviates from a literal
// translation of the spec's thread-local requirement in order to stay within
// what Go actually offers.
package affinity

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Executor schedules a function for later (or immediate) execution. It is
// satisfied by *looper.Handler.
type Executor interface {
	Execute(func())
}

var (
	mu       sync.RWMutex
	byGoroutine = make(map[uint64]Executor)
)

// goroutineID parses "goroutine 123 [running]:\n..." off the current stack
// trace. It is intentionally small and self-contained rather than a
// dependency, since no example repo in the corpus already vendors a
// goroutine-id library.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Register associates ex with the calling goroutine. Call this once when a
// Looper-bound thread starts.
func Register(ex Executor) {
	mu.Lock()
	byGoroutine[goroutineID()] = ex
	mu.Unlock()
}

// Deregister removes the association installed by Register. Call this when
// the Looper-bound thread quits.
func Deregister() {
	mu.Lock()
	delete(byGoroutine, goroutineID())
	mu.Unlock()
}

// Current returns the Executor registered for the calling goroutine, if any.
func Current() (Executor, bool) {
	mu.RLock()
	ex, ok := byGoroutine[goroutineID()]
	mu.RUnlock()
	return ex, ok
}
