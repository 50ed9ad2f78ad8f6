package core_test

import (
	"testing"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"pgregory.net/rapid"
)

// TestBinderIDsAreUnique is spec §8's id-uniqueness invariant: every Binder
// created on a Runtime gets a distinct local id, however many are created
// and whatever order AttachService is interleaved with plain NewBinder
// calls.
func TestBinderIDsAreUnique(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		runtime := core.New(1)
		thread := looper.NewHandlerThread()
		defer thread.Quit()

		onTransact := func(int32, *parcel.Parcel, *promise.Promise[*parcel.Parcel]) {}

		n := rapid.IntRange(1, 50).Draw(rt, "n")
		named := rapid.IntRange(0, n).Draw(rt, "named")

		seen := make(map[uint64]bool, n)
		for i := 0; i < n; i++ {
			b, err := core.NewBinder(runtime, "test.IProp", thread.Looper(), onTransact, nil)
			if err != nil {
				rt.Fatalf("NewBinder: %v", err)
			}
			if i < named {
				if _, err := runtime.AttachService(rapid.StringMatching(`[a-z][a-z0-9]{0,8}`).Draw(rt, "name"), b); err != nil {
					rt.Fatalf("AttachService: %v", err)
				}
			}
			if seen[b.ID()] {
				rt.Fatalf("duplicate binder id %d after %d binders", b.ID(), i+1)
			}
			seen[b.ID()] = true
		}
	})
}
