package interceptor_test

import (
	"errors"
	"testing"
	"time"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/interceptor"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
)

func TestRecoveryConvertsPanicToError(t *testing.T) {
	wrapped := interceptor.Recovery()(func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		panic("boom")
	})

	result := promise.New[*parcel.Parcel]()
	wrapped(1, parcel.New(), result)

	_, err := result.Get()
	var remote *core.RemoteException
	if !errors.As(err, &remote) {
		t.Fatalf("got %v, want *core.RemoteException", err)
	}
}

func TestRecoveryPassesThroughOnSuccess(t *testing.T) {
	wrapped := interceptor.Recovery()(func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		result.Complete(parcel.New())
	})

	result := promise.New[*parcel.Parcel]()
	wrapped(1, parcel.New(), result)

	if _, err := result.Get(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsRecordsOutcome(t *testing.T) {
	var gotWhat int32
	var gotErr error
	collector := recordingCollector(func(what int32, d time.Duration, err error) {
		gotWhat = what
		gotErr = err
	})

	wrapped := interceptor.Metrics(collector)(func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		result.Complete(parcel.New())
	})

	result := promise.New[*parcel.Parcel]()
	wrapped(7, parcel.New(), result)
	result.Get()

	time.Sleep(10 * time.Millisecond)
	if gotWhat != 7 || gotErr != nil {
		t.Fatalf("collector saw what=%d err=%v, want what=7 err=nil", gotWhat, gotErr)
	}
}

type recordingCollector func(what int32, d time.Duration, err error)

func (r recordingCollector) TransactionProcessed(what int32, d time.Duration, err error) {
	r(what, d, err)
}

func TestChainOrdersOutsideIn(t *testing.T) {
	var order []string
	mark := func(name string) interceptor.Interceptor {
		return func(next core.OnTransact) core.OnTransact {
			return func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
				order = append(order, name)
				next(what, data, result)
			}
		}
	}

	chained := interceptor.Chain(mark("a"), mark("b"))(func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		order = append(order, "handler")
		result.Complete(parcel.New())
	})

	result := promise.New[*parcel.Parcel]()
	chained(1, parcel.New(), result)
	result.Get()

	want := []string{"a", "b", "handler"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}
