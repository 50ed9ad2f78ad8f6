package promise_test

import (
	"errors"
	"testing"

	"github.com/loopwire/binder/promise"
	"pgregory.net/rapid"
)

// TestPromiseIsOneShot is spec §8's one-shot invariant generalized: however
// many completion attempts follow one after another, exactly the first one
// wins and every later attempt observes ErrAlreadyCompleted without
// changing the settled value.
func TestPromiseIsOneShot(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := promise.New[int]()
		attempts := rapid.IntRange(1, 20).Draw(rt, "attempts")
		firstValue := rapid.Int().Draw(rt, "firstValue")

		if err := p.Complete(firstValue); err != nil {
			rt.Fatalf("first Complete: %v", err)
		}

		for i := 0; i < attempts; i++ {
			asError := rapid.Bool().Draw(rt, "asError")
			var err error
			if asError {
				err = p.CompleteWith(errors.New("late"))
			} else {
				err = p.Complete(rapid.Int().Draw(rt, "lateValue"))
			}
			if !errors.Is(err, promise.ErrAlreadyCompleted) {
				rt.Fatalf("attempt %d: got %v, want ErrAlreadyCompleted", i, err)
			}
		}

		v, err := p.Get()
		if err != nil || v != firstValue {
			rt.Fatalf("got (%v, %v), want (%v, nil)", v, err, firstValue)
		}
	})
}
