package looper

import (
	"fmt"
	"time"
)

// Callback lets a Handler be constructed with an inline dispatch function
// instead of a HandleMessage override, mirroring the original's
// Handler.Callback interface. Returning true stops further dispatch (i.e.
// HandleMessage is not also called).
type Callback func(msg *Message) bool

// Handler submits Messages and runnables to a Looper and, by default,
// dispatches them back to itself. Dispatch is customized with a Callback
// passed to NewHandler or with HandleMessageFunc; the Looper calls
// (*Handler).HandleMessage directly, so a HandleMessage method declared on a
// type that embeds Handler is not called.
type Handler struct {
	looper   *Looper
	callback Callback

	// HandleMessageFunc, if set, is used by the default HandleMessage
	// implementation. This lets callers that don't want to define a named
	// type still customize dispatch without a Callback.
	HandleMessageFunc func(msg *Message)
}

// NewHandler binds a Handler to looper. If looper is nil, the calling
// goroutine's current Looper is used; NewHandler panics if neither is
// available, matching the spec's "attempts to use a Looper that doesn't
// exist" failure mode.
func NewHandler(looper *Looper, cb Callback) *Handler {
	if looper == nil {
		l, ok := Current()
		if !ok {
			panic("looper: NewHandler requires a Looper (none prepared on this goroutine)")
		}
		looper = l
	}
	return &Handler{looper: looper, callback: cb}
}

// Looper returns the Handler's bound Looper.
func (h *Handler) Looper() *Looper { return h.looper }

// HandleMessage is the default dispatch target when neither msg.Callback nor
// h.callback handled the message. It calls HandleMessageFunc if set and
// otherwise silently drops the message.
func (h *Handler) HandleMessage(msg *Message) {
	if h.HandleMessageFunc != nil {
		h.HandleMessageFunc(msg)
	}
}

func (h *Handler) enqueue(msg *Message, when time.Time) error {
	msg.Target = h
	if err := h.looper.queue.Enqueue(msg, when); err != nil {
		return fmt.Errorf("looper: send to %v: %w", h, err)
	}
	return nil
}

// SendMessage enqueues msg for immediate dispatch (When = now).
func (h *Handler) SendMessage(msg *Message) error {
	return h.enqueue(msg, time.Now())
}

// SendMessageDelayed enqueues msg for dispatch after d has elapsed.
func (h *Handler) SendMessageDelayed(msg *Message, d time.Duration) error {
	return h.enqueue(msg, time.Now().Add(d))
}

// SendMessageAtTime enqueues msg for dispatch no earlier than when.
func (h *Handler) SendMessageAtTime(msg *Message, when time.Time) error {
	return h.enqueue(msg, when)
}

// Post enqueues runnable for immediate execution on h's Looper.
func (h *Handler) Post(runnable func()) error {
	msg := Obtain()
	msg.Callback = runnable
	return h.SendMessage(msg)
}

// PostDelayed enqueues runnable for execution after d has elapsed.
func (h *Handler) PostDelayed(runnable func(), d time.Duration) error {
	msg := Obtain()
	msg.Callback = runnable
	return h.SendMessageDelayed(msg, d)
}

// RemoveMessages revokes not-yet-dispatched messages carrying code what.
func (h *Handler) RemoveMessages(what int32, token any) {
	h.looper.queue.RemoveMessages(h, what, token)
}

// RemoveCallbacks revokes a not-yet-dispatched runnable posted via Post or
// PostDelayed. callback must be the same closure value that was posted.
func (h *Handler) RemoveCallbacks(callback func(), token any) {
	h.looper.queue.RemoveCallbacks(h, callback, token)
}

// RemoveCallbacksAndMessages revokes every not-yet-dispatched entry sent by
// h, optionally restricted to a token.
func (h *Handler) RemoveCallbacksAndMessages(token any) {
	h.looper.queue.RemoveCallbacksAndMessages(h, token)
}

// HasMessages is the predicate counterpart of RemoveMessages.
func (h *Handler) HasMessages(what int32, token any) bool {
	return h.looper.queue.HasMessages(h, what, token)
}

// HasCallbacks is the predicate counterpart of RemoveCallbacks.
func (h *Handler) HasCallbacks(callback func(), token any) bool {
	return h.looper.queue.HasCallbacks(h, callback, token)
}

// Execute implements affinity.Executor / promise.Executor: it schedules fn
// on h's Looper, letting a Handler stand in wherever the spec calls for "the
// Handler exposes itself as an Executor".
func (h *Handler) Execute(fn func()) {
	// Post errors only when the queue is quitting; a quitting executor
	// silently drops scheduled work, matching "sending to a quitting queue
	// fails and is reported to the caller" — there is no caller here to
	// report to since Execute has no error return (Executor's contract),
	// so the failure is observable only via the dropped side effect.
	_ = h.Post(fn)
}
