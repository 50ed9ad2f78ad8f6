package looper_test

import (
	"testing"
	"time"

	"github.com/loopwire/binder/looper"
)

func TestEnqueueOrderedByWhen(t *testing.T) {
	q := looper.NewMessageQueue()
	base := time.Now()

	late := &looper.Message{What: 2}
	early := &looper.Message{What: 1}
	middle := &looper.Message{What: 3}

	q.Enqueue(late, base.Add(30*time.Millisecond))
	q.Enqueue(early, base.Add(10*time.Millisecond))
	q.Enqueue(middle, base.Add(20*time.Millisecond))

	got := []int32{q.Next().What, q.Next().What, q.Next().What}
	want := []int32{1, 3, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEnqueueStableFIFOAtEqualWhen(t *testing.T) {
	q := looper.NewMessageQueue()
	when := time.Now()

	for i := int32(0); i < 5; i++ {
		q.Enqueue(&looper.Message{What: i}, when)
	}
	for i := int32(0); i < 5; i++ {
		if got := q.Next().What; got != i {
			t.Fatalf("dispatch order: got %d, want %d", got, i)
		}
	}
}

func TestNextBlocksUntilDue(t *testing.T) {
	q := looper.NewMessageQueue()
	q.Enqueue(&looper.Message{What: 1}, time.Now().Add(60*time.Millisecond))

	start := time.Now()
	msg := q.Next()
	elapsed := time.Since(start)

	if msg == nil || msg.What != 1 {
		t.Fatalf("got %+v", msg)
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("Next returned too early: %v", elapsed)
	}
}

func TestQuitUnblocksNext(t *testing.T) {
	q := looper.NewMessageQueue()
	done := make(chan *looper.Message, 1)
	go func() { done <- q.Next() }()

	time.Sleep(20 * time.Millisecond)
	q.Quit()

	select {
	case msg := <-done:
		if msg != nil {
			t.Fatalf("expected nil on quit, got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on Quit")
	}
}

func TestEnqueueAfterQuitFails(t *testing.T) {
	q := looper.NewMessageQueue()
	q.Quit()
	if err := q.Enqueue(&looper.Message{}, time.Now()); err != looper.ErrQueueQuitting {
		t.Fatalf("expected ErrQueueQuitting, got %v", err)
	}
}

func TestRemoveMessages(t *testing.T) {
	q := looper.NewMessageQueue()
	h := &looper.Handler{}
	when := time.Now().Add(time.Hour)

	m1 := &looper.Message{What: 1, Target: h}
	m2 := &looper.Message{What: 2, Target: h}
	q.Enqueue(m1, when)
	q.Enqueue(m2, when)

	q.RemoveMessages(h, 1, nil)

	if q.HasMessages(h, 1, nil) {
		t.Fatal("message 1 should have been removed")
	}
	if !q.HasMessages(h, 2, nil) {
		t.Fatal("message 2 should still be present")
	}
}

func TestRemoveMessagesByToken(t *testing.T) {
	q := looper.NewMessageQueue()
	h := &looper.Handler{}
	when := time.Now().Add(time.Hour)

	tokenA, tokenB := "a", "b"
	q.Enqueue(&looper.Message{What: 1, Target: h, Token: tokenA}, when)
	q.Enqueue(&looper.Message{What: 1, Target: h, Token: tokenB}, when)

	q.RemoveMessages(h, 1, tokenA)

	if q.HasMessages(h, 1, tokenA) {
		t.Fatal("tokenA message should have been removed")
	}
	if !q.HasMessages(h, 1, tokenB) {
		t.Fatal("tokenB message should still be present")
	}
}
