// Package binder provides the top-level API for the binder IPC runtime. It
// re-exports the core, parcel, promise, looper and registry types for
// ergonomic single-import usage, so callers can write:
//
//	cfg, _ := binder.Load("node1.yaml")
//	rt, _ := binder.BuildRuntime(cfg)
//	rt.StartPlugins(ctx)
package binder

import (
	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/registry"
)

// Re-export the core runtime types at the package level for ergonomic
// usage, the same way the teacher's eventmux.go flattens its Router API.
type (
	Runtime         = core.Runtime
	IBinder         = core.IBinder
	Binder          = core.Binder
	Proxy           = core.Proxy
	TransportPlugin = core.TransportPlugin
	PluginConfig    = core.PluginConfig
	OnTransact      = core.OnTransact
	DeathRecipient  = core.DeathRecipient

	Parcel = parcel.Parcel

	Looper        = looper.Looper
	Handler       = looper.Handler
	HandlerThread = looper.HandlerThread

	Config = registry.Config
)

// Promise re-exports the generic Promise type at the package level.
type Promise[T any] = promise.Promise[T]

// FlagOneWay requests a fire-and-forget transaction (spec §4.2).
const FlagOneWay = core.FlagOneWay

// New constructs a Runtime for nodeID. See core.New for options.
func New(nodeID uint32, opts ...core.Option) *Runtime {
	return core.New(nodeID, opts...)
}

// Default returns the process-wide singleton Runtime (node id 1).
func Default() *Runtime {
	return core.Default()
}

// NewBinder attaches a local binder to l (or the caller's current Looper)
// and registers it with rt.
func NewBinder(rt *Runtime, descriptor string, l *Looper, onTransact OnTransact, iface any) (*Binder, error) {
	return core.NewBinder(rt, descriptor, l, onTransact, iface)
}

// Load reads a node's configuration document from path (spec §6).
func Load(path string) (*Config, error) {
	return registry.Load(path)
}

// BuildRuntime constructs a Runtime and its transport plugins from cfg.
func BuildRuntime(cfg *Config) (*Runtime, error) {
	return registry.BuildRuntime(cfg)
}
