package core

import (
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// Proxy is a remote reference to a binder hosted on another node (or
// through another scheme's transport). It owns no exclusive claim on the
// remote binder: multiple Proxies to the same URI behave identically but
// are independent objects, compared by remote URI (spec §3).
type Proxy struct {
	remoteURI  *uri.URI
	remoteID   uint64
	localID    uint64 // this node's own bookkeeping id for the proxy, high bit set
	descriptor string
	plugin     TransportPlugin
}

// NewProxy builds a Proxy addressing remoteURI through plugin. localID is
// this node's own local id for the proxy (high bit set, per spec §3),
// assigned by the Runtime when it mints the Proxy.
func NewProxy(remoteURI *uri.URI, remoteID uint64, localID uint64, descriptor string, plugin TransportPlugin) *Proxy {
	return &Proxy{remoteURI: remoteURI, remoteID: remoteID, localID: localID, descriptor: descriptor, plugin: plugin}
}

func (p *Proxy) ID() uint64         { return p.remoteID }
func (p *Proxy) LocalID() uint64    { return p.localID }
func (p *Proxy) URI() *uri.URI      { return p.remoteURI }
func (p *Proxy) Descriptor() string { return p.descriptor }

// QueryLocalInterface always returns nil for a Proxy: a Proxy-by-definition
// names a binder that is not locally hosted, so there is no local interface
// to query. Stub-generated wrapper types use this to detect that marshaling
// (rather than the fast local-call path) is required.
func (p *Proxy) QueryLocalInterface(string) any { return nil }

// Transact marshals the call to p's owning plugin.
func (p *Proxy) Transact(what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	return p.plugin.Transact(p.remoteURI, what, data, flags)
}

// Link always fails with IllegalStateError: a Proxy has no persistent
// connection of its own to watch, so death notification is supported only on
// local Binders.
func (p *Proxy) Link(DeathRecipient) error {
	return &IllegalStateError{Message: "death notification is not supported on a Proxy"}
}

// Unlink is the counterpart of Link and always reports false.
func (p *Proxy) Unlink(DeathRecipient) bool { return false }

// Equal implements the proxy-equality-by-remote-URI invariant from spec §3.
func (p *Proxy) Equal(other *Proxy) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.remoteURI.Equal(other.remoteURI)
}
