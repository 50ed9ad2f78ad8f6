package looper_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopwire/binder/looper"
)

func TestHandlerSendMessageDispatchesCallback(t *testing.T) {
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	var got atomic.Int32
	done := make(chan struct{})

	h := looper.NewHandler(thread.Looper(), func(msg *looper.Message) bool {
		got.Store(msg.What)
		close(done)
		return true
	})

	h.SendMessage(&looper.Message{What: 7})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never dispatched")
	}
	if got.Load() != 7 {
		t.Fatalf("got %d, want 7", got.Load())
	}
}

func TestHandlerPostCallback(t *testing.T) {
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	h := looper.NewHandler(thread.Looper(), nil)
	done := make(chan struct{})
	h.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted runnable never ran")
	}
}

// TestDelayedCallbackRemoval is spec §8 scenario 2, literally: post a
// runnable with a 1000ms delay, remove it, and confirm it never runs.
func TestDelayedCallbackRemoval(t *testing.T) {
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	h := looper.NewHandler(thread.Looper(), nil)
	var ran atomic.Bool
	runnable := func() { ran.Store(true) }

	h.PostDelayed(runnable, 1000*time.Millisecond)
	h.RemoveCallbacks(runnable, nil)

	time.Sleep(1200 * time.Millisecond)
	if ran.Load() {
		t.Fatal("removed callback ran anyway")
	}
}

// TestEchoAcrossHandlers follows spec §8 scenario 1 with a channel in place
// of a Promise: a runnable on HandlerThread A posts a runnable onto B, which
// sends 123 back to the test goroutine.
func TestEchoAcrossHandlers(t *testing.T) {
	a := looper.NewHandlerThread()
	defer a.Quit()
	b := looper.NewHandlerThread()
	defer b.Quit()

	result := make(chan int, 1)
	bHandler := b.Handler()

	aHandler := a.Handler()
	aHandler.Post(func() {
		bHandler.Post(func() {
			result <- 123
		})
	})

	select {
	case v := <-result:
		if v != 123 {
			t.Fatalf("got %d, want 123", v)
		}
	case <-time.After(time.Second):
		t.Fatal("cross-handler post never completed")
	}
}

func TestConcurrentLoopOnSameLooperPanics(t *testing.T) {
	l := looper.NewLooper()
	started := make(chan struct{})
	go func() {
		close(started)
		l.Loop()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	panicked := make(chan any, 1)
	func() {
		defer func() { panicked <- recover() }()
		l.Loop()
	}()

	l.Quit()
	if r := <-panicked; r == nil {
		t.Fatal("expected panic calling Loop twice on the same Looper")
	}
}
