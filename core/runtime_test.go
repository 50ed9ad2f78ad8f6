package core_test

import (
	"testing"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

func mustParseURI(t *testing.T, s string) *uri.URI {
	t.Helper()
	u, err := uri.Parse(s)
	if err != nil {
		t.Fatalf("uri.Parse(%q): %v", s, err)
	}
	return u
}

func echoBinder(t *testing.T, rt *core.Runtime, thread *looper.HandlerThread) *core.Binder {
	t.Helper()
	b, err := core.NewBinder(rt, "test.IEcho", thread.Looper(), func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		s, _ := data.GetString()
		reply := parcel.New()
		reply.PutString("echo:" + s)
		result.Complete(reply)
	}, nil)
	if err != nil {
		t.Fatalf("NewBinder: %v", err)
	}
	return b
}

// TestIDUniqueness is spec §8's id-uniqueness invariant: no two live binders
// on a node share an id.
func TestIDUniqueness(t *testing.T) {
	rt := core.New(1)
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	seen := make(map[uint64]bool)
	for i := 0; i < 50; i++ {
		b := echoBinder(t, rt, thread)
		if seen[b.ID()] {
			t.Fatalf("duplicate id %d at iteration %d", b.ID(), i)
		}
		seen[b.ID()] = true
	}
}

// TestURIRoundTrip is spec §8's URI round-trip invariant: for every binder
// b registered on a node, runtime.getBinder(b.uri).equals(b) holds.
func TestURIRoundTrip(t *testing.T) {
	rt := core.New(1)
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	b := echoBinder(t, rt, thread)
	got, ok := rt.GetBinder(b.URI())
	if !ok {
		t.Fatal("GetBinder missed a just-registered binder")
	}
	if got != b {
		t.Fatalf("GetBinder returned a different instance")
	}
}

func TestAttachServiceReservedID(t *testing.T) {
	rt := core.New(1, core.WithReservedService("serviceManager", 17))
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	b := echoBinder(t, rt, thread)
	serviceURI, err := rt.AttachService("serviceManager", b)
	if err != nil {
		t.Fatalf("AttachService: %v", err)
	}

	if localID, _ := b.URI().LocalID(); localID != 17 {
		t.Fatalf("expected reserved id 17, got %d", localID)
	}

	byName, ok := rt.GetBinder(serviceURI)
	if !ok || byName != b {
		t.Fatal("GetBinder by symbolic service URI failed")
	}
	byID, ok := rt.GetBinder(b.URI())
	if !ok || byID != b {
		t.Fatal("GetBinder by numeric URI failed after reservation")
	}
}

func TestDetachBinderRemovesFromRegistries(t *testing.T) {
	rt := core.New(1)
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	b := echoBinder(t, rt, thread)
	rt.DetachBinder(b)

	if _, ok := rt.GetBinder(b.URI()); ok {
		t.Fatal("binder still resolvable after DetachBinder")
	}
}

type deathWatcher struct {
	died chan core.IBinder
}

func (w *deathWatcher) BinderDied(b core.IBinder) { w.died <- b }

func TestDetachNotifiesDeathRecipients(t *testing.T) {
	rt := core.New(1)
	thread := looper.NewHandlerThread()
	defer thread.Quit()

	b := echoBinder(t, rt, thread)
	w := &deathWatcher{died: make(chan core.IBinder, 1)}
	if err := b.Link(w); err != nil {
		t.Fatalf("Link: %v", err)
	}

	rt.DetachBinder(b)

	select {
	case died := <-w.died:
		if died != core.IBinder(b) {
			t.Fatal("BinderDied called with a different binder")
		}
	default:
		t.Fatal("BinderDied was not called")
	}
}

func TestGetProxyUnknownSchemeFails(t *testing.T) {
	rt := core.New(1)
	target := mustParseURI(t, "mindroid+nats://2/1")
	if _, err := rt.GetProxy(target, ""); err != core.ErrNoSuchPlugin {
		t.Fatalf("got %v, want ErrNoSuchPlugin", err)
	}
}
