// Package mock provides test doubles for core.TransportPlugin, used by
// packages that need to exercise runtime/plugin wiring without a real
// transport (tcp, nats, kafka, rabbitmq) behind it.
package mock

import (
	"context"
	"sync"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// Plugin is a test double for core.TransportPlugin. Transact records every
// call and resolves according to Reply/Err and the FlagOneWay flag, letting tests drive the
// runtime's remote-binder path without a real wire transport.
type Plugin struct {
	SchemeName string

	// Reply is returned as the completed Promise's value for every
	// Transact call, unless Err is set.
	Reply *parcel.Parcel
	// Err, if set, fails every Transact call outright.
	Err error
	// StartErr, if set, is returned by Start.
	StartErr error

	mu      sync.Mutex
	calls   []Call
	started bool
	stopped bool
}

// Call records one Transact invocation.
type Call struct {
	Target *uri.URI
	What   int32
	Data   *parcel.Parcel
	Flags  int32
}

func NewPlugin(scheme string) *Plugin {
	return &Plugin{SchemeName: scheme}
}

func (p *Plugin) Scheme() string { return p.SchemeName }

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return p.StartErr
}

func (p *Plugin) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *Plugin) Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Target: target, What: what, Data: data, Flags: flags})
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if flags&core.FlagOneWay != 0 {
		return nil, nil
	}
	reply := p.Reply
	if reply == nil {
		reply = parcel.New()
	}
	return promise.Completed(reply), nil
}

// Calls returns every Transact call recorded so far.
func (p *Plugin) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Started reports whether Start was called.
func (p *Plugin) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stopped reports whether Stop was called.
func (p *Plugin) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
