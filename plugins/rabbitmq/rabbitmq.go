// Package rabbitmq implements a TransportPlugin carrying transactions over
// RabbitMQ (spec §4.4's transport abstraction, §6's "mindroid+rabbitmq"
// scheme). Each node declares a durable request queue and consumes it;
// callers publish with ReplyTo set to the broker's amq.rabbitmq.reply-to
// pseudo-queue and CorrelationId set to a transactionId, so replies route
// straight back to the requesting channel without a queue of their own.
package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// directReplyTo is RabbitMQ's built-in pseudo-queue for request/reply
// without declaring a reply queue per caller.
const directReplyTo = "amq.rabbitmq.reply-to"

// DefaultReplyTimeout bounds how long Transact waits for a reply.
const DefaultReplyTimeout = 10 * time.Second

func requestQueue(nodeID uint32) string { return fmt.Sprintf("binder.node.%d.request", nodeID) }

// Plugin is the "mindroid+rabbitmq" TransportPlugin.
type Plugin struct {
	scheme  string
	nodeID  uint32
	opts    options
	timeout time.Duration
	rt      *core.Runtime
	tracer  trace.Tracer

	dialURI string
	conn    *amqp.Connection

	serverCh *amqp.Channel // consumes this node's request queue
	clientCh *amqp.Channel // publishes requests, consumes direct-reply-to

	nextTxnID atomic.Uint32
	mu        sync.Mutex
	pending   map[uint32]*promise.Promise[*parcel.Parcel]
}

// New constructs a Plugin from cfg. Registered under class "rabbitmq" via
// the init-time hook below. cfg.ServerURI (falling back to one entry of
// cfg.PeerURIs; map order decides which when there are several) names the
// AMQP URI to dial.
func New(cfg core.PluginConfig, fns ...Option) (*Plugin, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("rabbitmq: PluginConfig.Runtime is required")
	}
	dialURI := cfg.ServerURI
	if dialURI == "" {
		for _, peer := range cfg.PeerURIs {
			dialURI = peer
			break
		}
	}
	if dialURI == "" {
		return nil, fmt.Errorf("rabbitmq: no broker uri configured")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	return &Plugin{
		scheme:  cfg.Scheme,
		nodeID:  cfg.NodeID,
		opts:    opts,
		timeout: DefaultReplyTimeout,
		rt:      cfg.Runtime,
		tracer:  otel.Tracer("binder/plugins/rabbitmq"),
		pending: make(map[uint32]*promise.Promise[*parcel.Parcel]),
		dialURI: dialURI,
	}, nil
}

func init() {
	core.RegisterPlugin("rabbitmq", func(cfg core.PluginConfig) (core.TransportPlugin, error) {
		return New(cfg)
	})
}

func (p *Plugin) Scheme() string { return p.scheme }

// Start dials the broker, declares this node's request queue and begins
// consuming both it and the direct-reply-to pseudo-queue.
func (p *Plugin) Start(ctx context.Context) error {
	conn, err := amqp.Dial(p.dialURI)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial %q: %w", p.dialURI, err)
	}
	p.conn = conn

	serverCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: open server channel: %w", err)
	}
	if err := serverCh.Qos(p.opts.prefetchCount, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set qos: %w", err)
	}
	queue, err := serverCh.QueueDeclare(requestQueue(p.nodeID), p.opts.durable, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %q: %w", requestQueue(p.nodeID), err)
	}
	requests, err := serverCh.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %q: %w", queue.Name, err)
	}
	p.serverCh = serverCh
	go p.consumeRequests(ctx, requests)

	clientCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open client channel: %w", err)
	}
	replies, err := clientCh.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", directReplyTo, err)
	}
	p.clientCh = clientCh
	go p.consumeReplies(ctx, replies)

	return nil
}

func (p *Plugin) consumeRequests(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			go p.dispatch(d)
		}
	}
}

func (p *Plugin) dispatch(d amqp.Delivery) {
	binderURI, err := uri.Parse(d.Type) // binder uri travels in the AMQP message Type field
	if err != nil {
		p.reply(d, false, []byte("malformed binder uri"))
		d.Ack(false)
		return
	}

	binder, ok := p.rt.GetBinder(binderURI)
	if !ok {
		p.reply(d, false, []byte("Binder transaction failure"))
		d.Ack(false)
		return
	}

	what, _ := strconv.Atoi(d.AppId) // binder "what" code travels in AppId
	flags := int32(0)
	if d.ReplyTo == "" {
		flags = core.FlagOneWay
	}
	result, err := binder.Transact(int32(what), parcel.NewFromBytes(d.Body), flags)
	if err != nil {
		p.reply(d, false, []byte(err.Error()))
		d.Ack(false)
		return
	}
	if result == nil {
		d.Ack(false)
		return
	}
	result.ThenRun(func() {
		reply, err := result.Get()
		if err != nil {
			p.reply(d, false, []byte(err.Error()))
		} else {
			p.reply(d, true, reply.Bytes())
		}
		d.Ack(false)
	})
}

func (p *Plugin) reply(d amqp.Delivery, ok bool, payload []byte) {
	if d.ReplyTo == "" {
		return
	}
	status := "error"
	if ok {
		status = "ok"
	}
	p.clientCh.PublishWithContext(context.Background(), "", d.ReplyTo, false, false, amqp.Publishing{
		CorrelationId: d.CorrelationId,
		Type:          status,
		Body:          payload,
	})
}

func (p *Plugin) consumeReplies(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			p.failAll(&core.TransactionFailure{Message: "reply consumer stopped"})
			return
		case d, ok := <-deliveries:
			if !ok {
				p.failAll(&core.TransactionFailure{Message: "reply consumer stopped"})
				return
			}
			txnID, err := strconv.ParseUint(d.CorrelationId, 10, 32)
			if err != nil {
				continue
			}
			p.mu.Lock()
			result, ok := p.pending[uint32(txnID)]
			if ok {
				delete(p.pending, uint32(txnID))
			}
			p.mu.Unlock()
			if !ok {
				continue
			}
			if d.Type == "error" {
				result.CompleteWith(&core.RemoteException{Message: string(d.Body)})
			} else {
				result.Complete(parcel.NewFromBytes(d.Body))
			}
		}
	}
}

func (p *Plugin) failAll(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[uint32]*promise.Promise[*parcel.Parcel])
	p.mu.Unlock()
	for _, result := range pending {
		result.CompleteWith(err)
	}
}

// Transact publishes target's transaction to its owning node's request
// queue and, unless flags carries FlagOneWay, waits for the direct-reply-to
// response correlated by transaction id.
func (p *Plugin) Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	_, span := p.tracer.Start(context.Background(), "rabbitmq.transact",
		trace.WithAttributes(
			attribute.String("binder.uri", target.String()),
			attribute.Int("binder.what", int(what)),
		))
	defer span.End()

	nodeID, ok := target.NodeID()
	if !ok {
		return nil, &core.TransactionFailure{Message: "cannot route a symbolic service uri over rabbitmq"}
	}

	oneWay := flags&core.FlagOneWay != 0
	pub := amqp.Publishing{
		Type:  target.String(),
		AppId: strconv.Itoa(int(what)),
		Body:  data.Bytes(),
	}

	var result *promise.Promise[*parcel.Parcel]
	var txnID uint32
	if !oneWay {
		txnID = p.nextTxnID.Add(1)
		pub.ReplyTo = directReplyTo
		pub.CorrelationId = strconv.FormatUint(uint64(txnID), 10)
		result = promise.New[*parcel.Parcel]()
		p.mu.Lock()
		p.pending[txnID] = result
		p.mu.Unlock()
	}

	if err := p.clientCh.PublishWithContext(context.Background(), "", requestQueue(nodeID), false, false, pub); err != nil {
		if !oneWay {
			p.mu.Lock()
			delete(p.pending, txnID)
			p.mu.Unlock()
		}
		return nil, &core.TransactionFailure{Message: err.Error()}
	}
	if oneWay {
		return nil, nil
	}

	result.OrTimeout(p.timeout)
	result.ThenRun(func() {
		p.mu.Lock()
		delete(p.pending, txnID)
		p.mu.Unlock()
	})
	return result, nil
}

// Stop tears down both channels and the connection, failing any
// transactions still awaiting a reply.
func (p *Plugin) Stop() error {
	p.failAll(&core.TransactionFailure{Message: "plugin shut down"})

	var errs []error
	if p.serverCh != nil {
		if err := p.serverCh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.clientCh != nil {
		if err := p.clientCh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
