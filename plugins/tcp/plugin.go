package tcp

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// Plugin is the native-scheme TransportPlugin: a TCP server accepting
// inbound transactions and a pool of per-peer TCP clients carrying
// outbound ones (spec §4.4).
type Plugin struct {
	scheme    string
	nodeID    uint32
	serverURI string
	peerURIs  map[uint32]string
	rt        *core.Runtime
	tracer    trace.Tracer

	server *server

	mu      sync.Mutex
	clients map[uint32]*client
}

// New constructs a Plugin from cfg. Registered under class "tcp" via
// core.RegisterPlugin's init-time hook below.
func New(cfg core.PluginConfig) (*Plugin, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("tcp: PluginConfig.Runtime is required")
	}
	return &Plugin{
		scheme:    cfg.Scheme,
		nodeID:    cfg.NodeID,
		serverURI: cfg.ServerURI,
		peerURIs:  cfg.PeerURIs,
		rt:        cfg.Runtime,
		tracer:    otel.Tracer("binder/plugins/tcp"),
		clients:   make(map[uint32]*client),
	}, nil
}

func init() {
	core.RegisterPlugin("tcp", func(cfg core.PluginConfig) (core.TransportPlugin, error) {
		return New(cfg)
	})
}

func (p *Plugin) Scheme() string { return p.scheme }

// ListenAddr returns the server's actual bound address, useful when
// ServerURI requested an ephemeral port (":0").
func (p *Plugin) ListenAddr() string {
	if p.server == nil || p.server.listener == nil {
		return ""
	}
	return p.server.listener.Addr().String()
}

// Start binds the listening endpoint named by ServerURI, if any. A Plugin
// with no configured server endpoint can still originate outbound
// transactions — this is how a client-only node is configured.
func (p *Plugin) Start(ctx context.Context) error {
	if p.serverURI == "" {
		return nil
	}
	target, err := uri.Parse(p.serverURI)
	if err != nil {
		return fmt.Errorf("tcp: invalid server uri %q: %w", p.serverURI, err)
	}
	p.server = newServer(p.rt, p.scheme)
	return p.server.start(ctx, target.Authority)
}

// Stop shuts down the server, if any, and every peer client connection,
// failing their in-flight transactions.
func (p *Plugin) Stop() error {
	if p.server != nil {
		p.server.shutdown()
	}
	p.mu.Lock()
	clients := make([]*client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.mu.Unlock()
	for _, c := range clients {
		c.shutdown()
	}
	return nil
}

func (p *Plugin) clientFor(nodeID uint32) (*client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[nodeID]; ok {
		return c, nil
	}
	peerURI, ok := p.peerURIs[nodeID]
	if !ok {
		return nil, &core.TransactionFailure{Message: fmt.Sprintf("no known address for node %d", nodeID)}
	}
	target, err := uri.Parse(peerURI)
	if err != nil {
		return nil, &core.TransactionFailure{Message: "invalid peer uri"}
	}
	c := newClient(target.Authority, DefaultTransactionTimeout)
	p.clients[nodeID] = c
	return c, nil
}

// Transact dials (or reuses) a connection to the node named by target's
// authority and carries the transaction there.
func (p *Plugin) Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	_, span := p.tracer.Start(context.Background(), "tcp.transact",
		trace.WithAttributes(
			attribute.String("binder.uri", target.String()),
			attribute.Int("binder.what", int(what)),
		))
	defer span.End()

	nodeID, ok := target.NodeID()
	if !ok {
		return nil, &core.TransactionFailure{Message: "cannot route a symbolic service uri over tcp"}
	}
	c, err := p.clientFor(nodeID)
	if err != nil {
		return nil, err
	}
	return c.transact(target.String(), what, data, flags&core.FlagOneWay != 0)
}
