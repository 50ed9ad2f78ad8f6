package looper

import (
	"sync"
	"time"
)

// Message is a timestamped, callback-bearing envelope dispatched by a
// Looper. Fields mirror spec §3: What/Arg1/Arg2 are integer codes, Obj is an
// opaque payload, Data is an optional bundle of typed fields, When is the
// absolute time the message becomes eligible for dispatch, Target is the
// owning Handler, Callback is an optional closure run instead of
// Target.HandleMessage, and next is the intrusive queue link.
type Message struct {
	What     int32
	Arg1     int32
	Arg2     int32
	Obj      any
	Data     map[string]any
	When     time.Time
	Target   *Handler
	Callback func()

	// Token lets callers group related messages for bulk removal via
	// MessageQueue.RemoveMessages/RemoveCallbacks without relying on What
	// alone.
	Token any

	next *Message
}

var messagePool = sync.Pool{New: func() any { return new(Message) }}

// Obtain returns a zeroed Message from a small pool, mirroring the
// original's Message.obtain()/recycle() pattern.
func Obtain() *Message {
	return messagePool.Get().(*Message)
}

// Recycle clears m and returns it to the pool. Callers must not touch m
// afterwards.
func (m *Message) Recycle() {
	*m = Message{}
	messagePool.Put(m)
}
