package core

import (
	"sync"

	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// Flags bits accepted by IBinder.Transact.
const (
	// FlagOneWay requests a fire-and-forget transaction: Transact returns
	// (nil, nil) immediately and incurs no Promise obligation (spec §4.2).
	FlagOneWay int32 = 1 << 0
)

// OnTransact is a binder's dispatch routine. It is invoked on the binder's
// own Looper thread with the request parcel, and must eventually complete
// result — either with a reply parcel or with an error — rather than
// returning one directly, so it can do further asynchronous work (post to
// another Looper, await another Promise) before replying.
type OnTransact func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel])

// DeathRecipient is notified when a binder it has linked to goes away,
// whether by local detachment or by the owning transport connection
// dropping.
type DeathRecipient interface {
	BinderDied(b IBinder)
}

// IBinder is the capability set shared by local Binders and remote Proxies:
// identity, interface discovery, and the transact call itself.
type IBinder interface {
	ID() uint64
	URI() *uri.URI
	Descriptor() string
	QueryLocalInterface(descriptor string) any
	Transact(what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error)
	Link(recipient DeathRecipient) error
	Unlink(recipient DeathRecipient) bool
}

// Binder is a locally-hosted remotable object. Construction attaches it to a
// Looper (the caller's current one if none is supplied) and registers it
// with a Runtime, which assigns its id and URI. onTransact always runs on
// the binder's own Looper thread, reached by posting a self-addressed
// message — this is what makes Binder.Transact safe to call from any
// goroutine.
type Binder struct {
	id         uint64
	binderURI  *uri.URI
	descriptor string
	iface      any

	rt      *Runtime
	handler *looper.Handler

	onTransact OnTransact

	mu        sync.Mutex
	recipients []DeathRecipient
	detached  bool
}

// NewBinder attaches a Binder to l (or the calling goroutine's current
// Looper if l is nil) and registers it with rt. iface, if non-nil, is
// returned by QueryLocalInterface when the descriptor matches — this is how
// generated Stub types expose themselves for the fast local-call path (spec
// §4.2/§4.3).
func NewBinder(rt *Runtime, descriptor string, l *looper.Looper, onTransact OnTransact, iface any) (*Binder, error) {
	if l == nil {
		current, ok := looper.Current()
		if !ok {
			return nil, &IllegalStateError{Message: "NewBinder requires a Looper (none prepared on this goroutine)"}
		}
		l = current
	}
	b := &Binder{
		descriptor: descriptor,
		handler:    looper.NewHandler(l, nil),
		onTransact: onTransact,
		iface:      iface,
	}
	if err := rt.attachBinder(b); err != nil {
		return nil, err
	}
	b.rt = rt
	return b, nil
}

func (b *Binder) ID() uint64          { return b.id }
func (b *Binder) URI() *uri.URI       { return b.binderURI }
func (b *Binder) Descriptor() string  { return b.descriptor }

// QueryLocalInterface returns the bound interface value when descriptor
// matches this binder's DESCRIPTOR, enabling the fast path described in spec
// §4.2: a Proxy on the same Looper thread calls straight through rather than
// marshaling a Parcel.
func (b *Binder) QueryLocalInterface(descriptor string) any {
	if descriptor == b.descriptor {
		return b.iface
	}
	return nil
}

// Transact submits a self-addressed message to the owning Looper; on that
// Looper's thread onTransact is invoked with data. The returned Promise
// completes when onTransact completes result. With FlagOneWay set, Transact
// returns (nil, nil) immediately and the call's eventual result, if any, is
// discarded.
func (b *Binder) Transact(what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	b.mu.Lock()
	detached := b.detached
	b.mu.Unlock()
	if detached {
		return nil, &TransactionFailure{Message: "binder transaction failure"}
	}

	result := promise.New[*parcel.Parcel]()
	oneWay := flags&FlagOneWay != 0

	err := b.handler.Post(func() {
		b.onTransact(what, data, result)
	})
	if err != nil {
		return nil, &TransactionFailure{Message: "binder transaction failure"}
	}
	if oneWay {
		return nil, nil
	}
	return result, nil
}

// Link registers recipient to be notified via BinderDied when this binder is
// detached from its Runtime.
func (b *Binder) Link(recipient DeathRecipient) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detached {
		return &IllegalStateError{Message: "binder already detached"}
	}
	b.recipients = append(b.recipients, recipient)
	return nil
}

// Unlink removes a previously linked recipient. It reports whether recipient
// was found.
func (b *Binder) Unlink(recipient DeathRecipient) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.recipients {
		if r == recipient {
			b.recipients = append(b.recipients[:i], b.recipients[i+1:]...)
			return true
		}
	}
	return false
}

// detach removes b from its Runtime's registries and notifies any linked
// death recipients. Called by Runtime.DetachBinder.
func (b *Binder) detach() {
	b.mu.Lock()
	if b.detached {
		b.mu.Unlock()
		return
	}
	b.detached = true
	recipients := b.recipients
	b.recipients = nil
	b.mu.Unlock()

	for _, r := range recipients {
		r.BinderDied(b)
	}
}
