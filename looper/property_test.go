package looper_test

import (
	"testing"
	"time"

	"github.com/loopwire/binder/looper"
	"pgregory.net/rapid"
)

// TestMessageQueueFIFOAtEqualWhen is spec §8's FIFO-ordering invariant:
// messages enqueued for the same due time dispatch in enqueue order, for a
// randomly drawn number of messages.
func TestMessageQueueFIFOAtEqualWhen(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := looper.NewMessageQueue()
		when := time.Now()

		n := rapid.IntRange(1, 100).Draw(rt, "n")
		order := make([]int32, n)
		for i := range order {
			order[i] = int32(i)
		}

		for _, what := range order {
			q.Enqueue(&looper.Message{What: what}, when)
		}
		for _, want := range order {
			if got := q.Next().What; got != want {
				rt.Fatalf("dispatch order broken: got %d, want %d", got, want)
			}
		}
	})
}
