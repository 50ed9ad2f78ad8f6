// Package nats implements a TransportPlugin carrying transactions over NATS
// core request/reply (spec §4.4's transport abstraction, §6's
// "mindroid+nats" scheme). Each node subscribes on a per-node subject and
// answers inbound requests directly on the request's reply subject — NATS's
// built-in reply-to mechanics replace the transactionId correlation the tcp
// plugin has to do by hand.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// DefaultRequestTimeout bounds how long Transact waits for a reply when the
// caller does not set FlagOneWay.
const DefaultRequestTimeout = 10 * time.Second

// headerWhat and headerStatus carry the binder "what" code and the reply
// outcome on the NATS message headers, since core NATS messages have no
// other structured metadata channel. headerBinderURI carries the target
// binder's uri — the subject only routes to the owning node.
const (
	headerWhat      = "Binder-What"
	headerStatus    = "Binder-Status"
	headerBinderURI = "Binder-Uri"

	statusOK    = "ok"
	statusError = "error"
)

// Plugin is the "mindroid+nats" TransportPlugin: a NATS connection shared by
// the inbound subscription and every outbound request.
type Plugin struct {
	scheme    string
	nodeID    uint32
	serverURL string
	timeout   time.Duration
	rt        *core.Runtime
	tracer    trace.Tracer

	conn *nats.Conn
	sub  *nats.Subscription
}

// New constructs a Plugin from cfg. Registered under class "nats" via the
// init-time hook below. cfg.ServerURI, if set, names the NATS server to
// dial (e.g. "nats://127.0.0.1:4222"); a client-only node may leave it empty
// and rely on cfg.PeerURIs naming the shared server another plugin already
// started.
func New(cfg core.PluginConfig) (*Plugin, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("nats: PluginConfig.Runtime is required")
	}
	serverURL := cfg.ServerURI
	if serverURL == "" {
		for _, peer := range cfg.PeerURIs {
			serverURL = peer
			break
		}
	}
	if serverURL == "" {
		return nil, fmt.Errorf("nats: no server uri configured")
	}
	return &Plugin{
		scheme:    cfg.Scheme,
		nodeID:    cfg.NodeID,
		serverURL: serverURL,
		timeout:   DefaultRequestTimeout,
		rt:        cfg.Runtime,
		tracer:    otel.Tracer("binder/plugins/nats"),
	}, nil
}

func init() {
	core.RegisterPlugin("nats", func(cfg core.PluginConfig) (core.TransportPlugin, error) {
		return New(cfg)
	})
}

func (p *Plugin) Scheme() string { return p.scheme }

func subjectForNode(nodeID uint32) string {
	return fmt.Sprintf("binder.node.%d", nodeID)
}

// Start dials the NATS server and subscribes on this node's inbound
// subject, dispatching received requests against rt.
func (p *Plugin) Start(ctx context.Context) error {
	conn, err := nats.Connect(p.serverURL, nats.Name(fmt.Sprintf("binder-node-%d", p.nodeID)))
	if err != nil {
		return fmt.Errorf("nats: connect %s: %w", p.serverURL, err)
	}
	p.conn = conn

	sub, err := conn.Subscribe(subjectForNode(p.nodeID), p.handleRequest)
	if err != nil {
		conn.Close()
		return fmt.Errorf("nats: subscribe: %w", err)
	}
	p.sub = sub
	return nil
}

// Stop unsubscribes and drains the connection, letting in-flight replies
// flush before the socket closes.
func (p *Plugin) Stop() error {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	if p.conn != nil {
		p.conn.Drain()
	}
	return nil
}

// handleRequest resolves msg's target binder against the runtime and
// replies on msg.Reply with either the transaction's result or an exception
// payload. Requests with no Reply subject are one-way and get no response.
func (p *Plugin) handleRequest(msg *nats.Msg) {
	binderURI, err := uri.Parse(msg.Header.Get(headerBinderURI))
	if err != nil {
		p.reply(msg, statusError, []byte("malformed binder uri"))
		return
	}

	binder, ok := p.rt.GetBinder(binderURI)
	if !ok {
		p.reply(msg, statusError, []byte("Binder transaction failure"))
		return
	}

	var what int32
	fmt.Sscanf(msg.Header.Get(headerWhat), "%d", &what)

	req := parcel.NewFromBytes(msg.Data)
	flags := int32(0)
	if msg.Reply == "" {
		flags = core.FlagOneWay
	}
	result, err := binder.Transact(what, req, flags)
	if err != nil {
		p.reply(msg, statusError, []byte(err.Error()))
		return
	}
	if result == nil {
		return
	}

	result.ThenRun(func() {
		reply, err := result.Get()
		if err != nil {
			p.reply(msg, statusError, []byte(err.Error()))
			return
		}
		p.reply(msg, statusOK, reply.Bytes())
	})
}

func (p *Plugin) reply(msg *nats.Msg, status string, payload []byte) {
	if msg.Reply == "" {
		return
	}
	out := nats.NewMsg(msg.Reply)
	out.Header.Set(headerStatus, status)
	out.Data = payload
	p.conn.PublishMsg(out)
}

// Transact sends target's transaction to its owning node's subject and
// waits for the reply, unless flags carries FlagOneWay.
func (p *Plugin) Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	_, span := p.tracer.Start(context.Background(), "nats.transact",
		trace.WithAttributes(
			attribute.String("binder.uri", target.String()),
			attribute.Int("binder.what", int(what)),
		))
	defer span.End()

	nodeID, ok := target.NodeID()
	if !ok {
		return nil, &core.TransactionFailure{Message: "cannot route a symbolic service uri over nats"}
	}

	req := nats.NewMsg(subjectForNode(nodeID))
	req.Header.Set(headerBinderURI, target.String())
	req.Header.Set(headerWhat, fmt.Sprint(what))
	req.Data = data.Bytes()

	if flags&core.FlagOneWay != 0 {
		if err := p.conn.PublishMsg(req); err != nil {
			return nil, &core.TransactionFailure{Message: err.Error()}
		}
		return nil, nil
	}

	result := promise.New[*parcel.Parcel]()
	go func() {
		reply, err := p.conn.RequestMsg(req, p.timeout)
		if err != nil {
			result.CompleteWith(&core.TransactionFailure{Message: err.Error()})
			return
		}
		if reply.Header.Get(headerStatus) == statusError {
			result.CompleteWith(&core.RemoteException{Message: string(reply.Data)})
			return
		}
		result.Complete(parcel.NewFromBytes(reply.Data))
	}()
	return result, nil
}
