package core

import (
	"context"

	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// TransportPlugin carries transactions to and from binders that live on
// other nodes. One plugin instance is registered per URI scheme (spec §4.2,
// §4.4); the native mindroid scheme's plugin lives in plugins/tcp, and the
// pack's messaging stacks each get their own alternate-scheme plugin
// (plugins/nats, plugins/kafka, plugins/rabbitmq).
//
// Every plugin is, in effect, the generalized form of the teacher's Broker
// interface (Publish/Subscribe/Close): request/reply correlation in place of
// topic pub/sub, but the same "one implementation per transport, registered
// by name" shape.
type TransportPlugin interface {
	// Scheme returns the URI scheme this plugin answers to.
	Scheme() string

	// Start begins accepting inbound transactions, binding any listening
	// endpoint the plugin's configuration names.
	Start(ctx context.Context) error

	// Stop releases the plugin's resources and fails every in-flight
	// transaction it is holding a Promise for.
	Stop() error

	// Transact sends a transaction addressed at target to its owning node
	// and returns a Promise of the reply parcel.
	Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error)
}

// PluginFactory constructs a TransportPlugin from its configuration. Plugins
// register a factory under their class name via RegisterPlugin so a Runtime
// can be built from configuration alone (adapted from the teacher's
// broker/registry.go Factory pattern).
type PluginFactory func(cfg PluginConfig) (TransportPlugin, error)

// PluginConfig carries the subset of Runtime configuration (spec §6)
// relevant to constructing one plugin instance. Class selects which
// registered implementation answers for Scheme — e.g. class "tcp" for
// scheme "mindroid", class "nats" for scheme "mindroid+nats" — letting a
// scheme be served by more than one candidate implementation.
type PluginConfig struct {
	Class     string
	Scheme    string
	ServerURI string
	NodeID    uint32
	PeerURIs  map[uint32]string

	// Runtime is the Runtime the plugin will serve inbound transactions
	// for — it resolves incoming wire requests against Runtime.GetBinder.
	Runtime *Runtime
}

var pluginFactories = map[string]PluginFactory{}

// RegisterPlugin makes a PluginFactory available under class for later use
// by registry.BuildRuntime. Intended to be called from each plugin
// package's init().
func RegisterPlugin(class string, factory PluginFactory) {
	pluginFactories[class] = factory
}

// NewPlugin constructs the plugin registered for cfg.Class.
func NewPlugin(cfg PluginConfig) (TransportPlugin, error) {
	factory, ok := pluginFactories[cfg.Class]
	if !ok {
		return nil, ErrNoSuchPlugin
	}
	return factory(cfg)
}
