package looper

import (
	"errors"
	"sync"

	"github.com/loopwire/binder/internal/affinity"
)

// ErrLooperAlreadyPrepared is the value Loop panics with when it is called on
// a Looper whose loop is already running. A second Looper run on a goroutine
// that already runs one is not detected.
var ErrLooperAlreadyPrepared = errors.New("looper: a Looper is already prepared on this goroutine")

// Looper is a cooperative event loop dequeuing Messages in When order. Only
// one Loop call at a time may run a given Looper.
type Looper struct {
	queue *MessageQueue

	mu      sync.Mutex
	running bool
}

// NewLooper allocates a Looper with a fresh MessageQueue. It is not bound to
// any goroutine, so NewHandlerThread can construct the Looper before starting
// the goroutine that runs it.
func NewLooper() *Looper {
	return &Looper{queue: NewMessageQueue()}
}

// Queue returns the Looper's MessageQueue.
func (l *Looper) Queue() *MessageQueue { return l.queue }

// Loop repeatedly dequeues and dispatches messages on the calling goroutine
// until the queue quits. It does not touch the affinity registry; that is
// done by NewHandlerThread's goroutine. Calling Loop while another Loop call
// on the same Looper is still running panics with ErrLooperAlreadyPrepared.
func (l *Looper) Loop() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		panic(ErrLooperAlreadyPrepared)
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		msg := l.queue.Next()
		if msg == nil {
			return
		}
		dispatch(msg)
		msg.Recycle()
	}
}

func dispatch(msg *Message) {
	switch {
	case msg.Callback != nil:
		msg.Callback()
	case msg.Target != nil && msg.Target.callback != nil && msg.Target.callback(msg):
		// handled by the Handler's own callback
	case msg.Target != nil:
		msg.Target.HandleMessage(msg)
	}
}

// Quit stops the Looper: the next Next() call (or one already blocked)
// returns nil and Loop returns.
func (l *Looper) Quit() {
	l.queue.Quit()
}

// Current returns the Looper bound to the calling goroutine, if any, via
// the HandlerThread that prepared it.
func Current() (*Looper, bool) {
	ex, ok := affinity.Current()
	if !ok {
		return nil, false
	}
	h, ok := ex.(*Handler)
	if !ok || h.looper == nil {
		return nil, false
	}
	return h.looper, true
}

// HandlerThread runs a Looper on a dedicated goroutine, the Go analogue of
// the original's thread-bound Looper. NewHandlerThread both allocates the
// Looper and starts the goroutine; callers retrieve a Handler bound to it
// via Handler().
type HandlerThread struct {
	looper  *Looper
	handler *Handler
	started chan struct{}
}

// NewHandlerThread starts a goroutine running a fresh Looper and returns
// once it has registered itself as the current-goroutine executor.
func NewHandlerThread() *HandlerThread {
	t := &HandlerThread{
		looper:  NewLooper(),
		started: make(chan struct{}),
	}
	t.handler = NewHandler(t.looper, nil)

	go func() {
		affinity.Register(t.handler)
		close(t.started)
		t.looper.Loop()
		affinity.Deregister()
	}()
	<-t.started
	return t
}

// Looper returns the Looper running on this thread.
func (t *HandlerThread) Looper() *Looper { return t.looper }

// Handler returns a Handler bound to this thread's Looper.
func (t *HandlerThread) Handler() *Handler { return t.handler }

// Quit stops the thread's Looper.
func (t *HandlerThread) Quit() { t.looper.Quit() }
