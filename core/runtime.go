package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// ReservedServiceRange is the highest local id reserved for well-known
// services assigned by name (spec §3: "local ids 1..N are reserved"). Ids
// above this range come from the monotone counters.
const ReservedServiceRange uint32 = 1000

// DefaultNativeScheme is the URI scheme used when a Runtime is constructed
// without an explicit one.
const DefaultNativeScheme = "mindroid"

// Runtime is the process-wide registry and router described in spec §4.2:
// it assigns binder identity, resolves URIs to local binders or proxies, and
// dispatches Transact calls to the right Looper or transport plugin.
//
// Binders are held strongly only in the service table; the id and URI maps
// hold them weakly (spec §9) via the stdlib weak package, so a registration
// never by itself keeps an otherwise-unreferenced binder alive.
type Runtime struct {
	nodeID       uint32
	nativeScheme string

	nextStubID  atomic.Uint32
	nextProxyID atomic.Uint32

	mu           sync.RWMutex
	bindersByID  map[uint64]weak.Pointer[Binder]
	bindersByURI map[string]weak.Pointer[Binder]
	services     map[string]*Binder
	proxies      map[string]weak.Pointer[Proxy]
	plugins      map[string]TransportPlugin
	reserved     map[string]uint32

	shutdown bool
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithNativeScheme overrides the default "mindroid" native scheme name
// (spec §6: "the native scheme name is a configurable string").
func WithNativeScheme(scheme string) Option {
	return func(rt *Runtime) { rt.nativeScheme = scheme }
}

// WithReservedService pre-assigns a low-range id to a well-known service
// name, per spec §6's service.<name>.id configuration option.
func WithReservedService(name string, id uint32) Option {
	return func(rt *Runtime) { rt.reserved[name] = id }
}

// New constructs a Runtime for nodeID. Most processes need exactly one;
// tests construct several to simulate separate nodes talking over an
// in-process plugin.
func New(nodeID uint32, opts ...Option) *Runtime {
	rt := &Runtime{
		nodeID:       nodeID,
		nativeScheme: DefaultNativeScheme,
		bindersByID:  make(map[uint64]weak.Pointer[Binder]),
		bindersByURI: make(map[string]weak.Pointer[Binder]),
		services:     make(map[string]*Binder),
		proxies:      make(map[string]weak.Pointer[Proxy]),
		plugins:      make(map[string]TransportPlugin),
		reserved:     make(map[string]uint32),
	}
	rt.nextStubID.Store(ReservedServiceRange + 1)
	rt.nextProxyID.Store(1)
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

// Default returns the process-wide Runtime, constructing it with node id 1
// on first use (spec §4.2: "created on first use").
func Default() *Runtime {
	defaultOnce.Do(func() { defaultRT = New(1) })
	return defaultRT
}

func (rt *Runtime) NodeID() uint32        { return rt.nodeID }
func (rt *Runtime) NativeScheme() string  { return rt.nativeScheme }

// nextLocalStubID and nextLocalProxyID allocate the next local id. Proxy ids
// have the high bit of the 32-bit local part set, distinguishing them from
// stub ids at a glance (spec §3).
func (rt *Runtime) nextLocalStubID() uint32 {
	return rt.nextStubID.Add(1) - 1
}

func (rt *Runtime) nextLocalProxyID() uint32 {
	return rt.nextProxyID.Add(1) - 1 | 0x8000_0000
}

func (rt *Runtime) combinedID(localID uint32) uint64 {
	return uint64(rt.nodeID)<<32 | uint64(localID)
}

// RegisterPlugin installs plugin under its own scheme, making it reachable
// from GetBinder/GetProxy/Transact for non-native URIs.
func (rt *Runtime) RegisterPlugin(plugin TransportPlugin) {
	rt.mu.Lock()
	rt.plugins[plugin.Scheme()] = plugin
	rt.mu.Unlock()
}

// StartPlugins calls Start on every registered plugin. On the first
// failure it stops whatever had already started and returns the error.
func (rt *Runtime) StartPlugins(ctx context.Context) error {
	rt.mu.RLock()
	plugins := make([]TransportPlugin, 0, len(rt.plugins))
	for _, p := range rt.plugins {
		plugins = append(plugins, p)
	}
	rt.mu.RUnlock()

	started := make([]TransportPlugin, 0, len(plugins))
	for _, p := range plugins {
		if err := p.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("binder: start plugin %q: %w", p.Scheme(), err)
		}
		started = append(started, p)
	}
	return nil
}

// attachBinder assigns b a local id and native-scheme URI and installs it
// weakly into the id and URI maps. Called by NewBinder.
func (rt *Runtime) attachBinder(b *Binder) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutdown {
		return ErrRuntimeShutdown
	}

	localID := rt.nextLocalStubID()
	b.id = rt.combinedID(localID)
	b.binderURI = uri.NewID(rt.nativeScheme, rt.nodeID, uint64(localID))

	ptr := weak.Make(b)
	rt.bindersByID[b.id] = ptr
	rt.bindersByURI[b.binderURI.String()] = ptr
	return nil
}

// AttachService additionally exposes b under a symbolic service URI (spec
// §4.2) and, if a reserved id was configured for name via
// WithReservedService, assigns that id instead of the next counter value.
// AttachService must be called before the binder is otherwise used; it
// promotes b to strong ownership in the services table.
func (rt *Runtime) AttachService(name string, b *Binder) (*uri.URI, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutdown {
		return nil, ErrRuntimeShutdown
	}

	if reservedID, ok := rt.reserved[name]; ok {
		delete(rt.bindersByID, b.id)
		b.id = rt.combinedID(reservedID)
		b.binderURI = uri.NewID(rt.nativeScheme, rt.nodeID, uint64(reservedID))
		ptr := weak.Make(b)
		rt.bindersByID[b.id] = ptr
		rt.bindersByURI[b.binderURI.String()] = ptr
	}

	serviceURI := uri.NewService(rt.nativeScheme, name)
	rt.services[serviceURI.String()] = b
	return serviceURI, nil
}

// DetachBinder removes b from every registry and notifies its death
// recipients. Safe to call more than once.
func (rt *Runtime) DetachBinder(b *Binder) {
	rt.mu.Lock()
	delete(rt.bindersByID, b.id)
	delete(rt.bindersByURI, b.binderURI.String())
	for name, svc := range rt.services {
		if svc == b {
			delete(rt.services, name)
		}
	}
	rt.mu.Unlock()
	b.detach()
}

// GetBinder resolves target against the service table, then the id/URI map.
// It never constructs a Proxy for a miss on the native scheme — Proxies are
// only minted via GetProxy for a remote scheme.
func (rt *Runtime) GetBinder(target *uri.URI) (*Binder, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if target.IsService() {
		b, ok := rt.services[target.String()]
		return b, ok
	}
	ptr, ok := rt.bindersByURI[target.String()]
	if !ok {
		return nil, false
	}
	b := ptr.Value()
	return b, b != nil
}

// GetProxy returns a cached Proxy for remoteURI, or constructs and weakly
// caches one via the plugin registered for remoteURI's scheme.
func (rt *Runtime) GetProxy(remoteURI *uri.URI, descriptor string) (*Proxy, error) {
	key := remoteURI.String()

	rt.mu.RLock()
	if ptr, ok := rt.proxies[key]; ok {
		if p := ptr.Value(); p != nil {
			rt.mu.RUnlock()
			return p, nil
		}
	}
	rt.mu.RUnlock()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutdown {
		return nil, ErrRuntimeShutdown
	}

	plugin, ok := rt.plugins[remoteURI.Scheme]
	if !ok {
		return nil, ErrNoSuchPlugin
	}

	remoteLocalID, _ := remoteURI.LocalID()
	remoteNodeID, _ := remoteURI.NodeID()
	remoteID := uint64(remoteNodeID)<<32 | remoteLocalID
	localID := rt.combinedID(rt.nextLocalProxyID())

	p := NewProxy(remoteURI, remoteID, localID, descriptor, plugin)
	rt.proxies[key] = weak.Make(p)
	return p, nil
}

// ResolveBinderRef resolves a binder reference read off a Parcel (spec §3:
// "on reception, a binder reference is resolved to either the matching
// local binder or a freshly-minted proxy"). base identifies the sender's own
// transport endpoint and is accepted for symmetry with the wire format but
// is not otherwise validated here. An untyped Proxy (empty descriptor) is
// returned for remote targets; callers that know the expected interface
// should use GetProxy directly instead.
func (rt *Runtime) ResolveBinderRef(base, target string) (IBinder, error) {
	targetURI, err := uri.Parse(target)
	if err != nil {
		return nil, &ParseError{Message: "malformed binder reference: " + target}
	}
	if b, ok := rt.GetBinder(targetURI); ok {
		return b, nil
	}
	return rt.GetProxy(targetURI, "")
}

// Transact routes a call addressed at target: if it names a local binder it
// is submitted to that binder's own queue; otherwise it is resolved to a
// Proxy (minted or cached) and handed to the transport plugin selected by
// the URI's scheme. This is the fast-path decision described in spec §4.2:
// a target that happens to be local never touches the network even when
// addressed by full URI.
func (rt *Runtime) Transact(target *uri.URI, descriptor string, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	if b, ok := rt.GetBinder(target); ok {
		return b.Transact(what, data, flags)
	}
	p, err := rt.GetProxy(target, descriptor)
	if err != nil {
		return nil, err
	}
	return p.Transact(what, data, flags)
}

// Shutdown stops every registered plugin and clears the registries. Further
// use of this Runtime fails with ErrRuntimeShutdown.
func (rt *Runtime) Shutdown() error {
	rt.mu.Lock()
	if rt.shutdown {
		rt.mu.Unlock()
		return nil
	}
	rt.shutdown = true
	plugins := make([]TransportPlugin, 0, len(rt.plugins))
	for _, p := range rt.plugins {
		plugins = append(plugins, p)
	}
	rt.bindersByID = make(map[uint64]weak.Pointer[Binder])
	rt.bindersByURI = make(map[string]weak.Pointer[Binder])
	rt.services = make(map[string]*Binder)
	rt.proxies = make(map[string]weak.Pointer[Proxy])
	rt.mu.Unlock()

	var firstErr error
	for _, p := range plugins {
		if err := p.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
