// Package kafka implements a TransportPlugin carrying transactions over
// Apache Kafka (spec §4.4's transport abstraction, §6's "mindroid+kafka"
// scheme). Kafka has no native request/reply primitive, so each node
// consumes its own request topic and its own reply topic (peers publish
// requests to the first and replies to the second), and replies are
// correlated back to the caller's pending Promise via a
// transactionId header — the same correlation shape as plugins/tcp's
// client, just carried in Kafka headers instead of a framed connection.
package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/uri"
)

// DefaultReplyTimeout bounds how long Transact waits for a reply.
const DefaultReplyTimeout = 10 * time.Second

const (
	headerBinderURI = "Binder-Uri"
	headerWhat       = "Binder-What"
	headerTxnID      = "Binder-Txn"
	headerStatus     = "Binder-Status"

	statusOK    = "ok"
	statusError = "error"
)

func requestTopic(nodeID uint32) string { return fmt.Sprintf("binder.node.%d.request", nodeID) }
func replyTopic(nodeID uint32) string   { return fmt.Sprintf("binder.node.%d.reply", nodeID) }

// Plugin is the "mindroid+kafka" TransportPlugin.
type Plugin struct {
	scheme  string
	nodeID  uint32
	brokers []string
	opts    options
	timeout time.Duration
	rt      *core.Runtime
	tracer  trace.Tracer

	writer *kafka.Writer

	requestReader *kafka.Reader
	replyReader   *kafka.Reader

	cancel context.CancelFunc

	nextTxnID atomic.Uint32
	mu        sync.Mutex
	pending   map[uint32]*promise.Promise[*parcel.Parcel]
}

// New constructs a Plugin from cfg. Registered under class "kafka" via the
// init-time hook below. cfg.ServerURI, if set, and cfg.PeerURIs' values are
// all taken as Kafka broker addresses to dial — every node both produces and
// consumes, there is no separate "server" role in this transport.
func New(cfg core.PluginConfig, fns ...Option) (*Plugin, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("kafka: PluginConfig.Runtime is required")
	}
	var brokers []string
	if cfg.ServerURI != "" {
		brokers = append(brokers, cfg.ServerURI)
	}
	for _, peer := range cfg.PeerURIs {
		brokers = append(brokers, peer)
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		Async:        opts.async,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{TLS: opts.dialer.TLS, SASL: opts.dialer.SASLMechanism}
	}

	return &Plugin{
		scheme:  cfg.Scheme,
		nodeID:  cfg.NodeID,
		brokers: brokers,
		opts:    opts,
		timeout: DefaultReplyTimeout,
		rt:      cfg.Runtime,
		tracer:  otel.Tracer("binder/plugins/kafka"),
		writer:  w,
		pending: make(map[uint32]*promise.Promise[*parcel.Parcel]),
	}, nil
}

func init() {
	core.RegisterPlugin("kafka", func(cfg core.PluginConfig) (core.TransportPlugin, error) {
		return New(cfg)
	})
}

func (p *Plugin) Scheme() string { return p.scheme }

func (p *Plugin) readerConfig(topic string) kafka.ReaderConfig {
	cfg := kafka.ReaderConfig{
		Brokers:  p.brokers,
		Topic:    topic,
		GroupID:  fmt.Sprintf("binder-node-%d", p.nodeID),
		MinBytes: p.opts.minBytes,
		MaxBytes: p.opts.maxBytes,
		MaxWait:  p.opts.maxWait,
	}
	if p.opts.dialer != nil {
		cfg.Dialer = p.opts.dialer
	}
	return cfg
}

// Start opens this node's request and reply consumers and begins
// dispatching/correlating in background goroutines.
func (p *Plugin) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.requestReader = kafka.NewReader(p.readerConfig(requestTopic(p.nodeID)))
	p.replyReader = kafka.NewReader(p.readerConfig(replyTopic(p.nodeID)))

	go p.consumeRequests(runCtx)
	go p.consumeReplies(runCtx)
	return nil
}

func (p *Plugin) consumeRequests(ctx context.Context) {
	for {
		msg, err := p.requestReader.FetchMessage(ctx)
		if err != nil {
			return // ctx cancelled, or reader closed
		}
		go p.dispatch(ctx, msg)
		p.requestReader.CommitMessages(ctx, msg)
	}
}

func (p *Plugin) dispatch(ctx context.Context, msg kafka.Message) {
	binderURI, err := uri.Parse(headerValue(msg, headerBinderURI))
	if err != nil {
		p.replyTo(ctx, msg, statusError, []byte("malformed binder uri"))
		return
	}
	binder, ok := p.rt.GetBinder(binderURI)
	if !ok {
		p.replyTo(ctx, msg, statusError, []byte("Binder transaction failure"))
		return
	}

	what, _ := strconv.Atoi(headerValue(msg, headerWhat))
	flags := int32(0)
	if headerValue(msg, headerTxnID) == "" {
		flags = core.FlagOneWay
	}
	result, err := binder.Transact(int32(what), parcel.NewFromBytes(msg.Value), flags)
	if err != nil {
		p.replyTo(ctx, msg, statusError, []byte(err.Error()))
		return
	}
	if result == nil {
		return
	}
	result.ThenRun(func() {
		reply, err := result.Get()
		if err != nil {
			p.replyTo(ctx, msg, statusError, []byte(err.Error()))
			return
		}
		p.replyTo(ctx, msg, statusOK, reply.Bytes())
	})
}

func (p *Plugin) replyTo(ctx context.Context, req kafka.Message, status string, payload []byte) {
	txnID := headerValue(req, headerTxnID)
	if txnID == "" {
		return // one-way request, no reply expected
	}
	replier := headerValue(req, "Binder-Reply-Node")
	nodeID, err := strconv.ParseUint(replier, 10, 32)
	if err != nil {
		return
	}
	p.writer.WriteMessages(ctx, kafka.Message{
		Topic: replyTopic(uint32(nodeID)),
		Headers: []kafka.Header{
			{Key: headerTxnID, Value: []byte(txnID)},
			{Key: headerStatus, Value: []byte(status)},
		},
		Value: payload,
	})
}

func (p *Plugin) consumeReplies(ctx context.Context) {
	for {
		msg, err := p.replyReader.FetchMessage(ctx)
		if err != nil {
			p.failAll(&core.TransactionFailure{Message: "reply consumer stopped"})
			return
		}
		p.replyReader.CommitMessages(ctx, msg)

		txnID, err := strconv.ParseUint(headerValue(msg, headerTxnID), 10, 32)
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

		if headerValue(msg, headerStatus) == statusError {
			result.CompleteWith(&core.RemoteException{Message: string(msg.Value)})
		} else {
			result.Complete(parcel.NewFromBytes(msg.Value))
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
// topic and, unless flags carries FlagOneWay, waits for a reply on this
// node's own reply topic.
func (p *Plugin) Transact(target *uri.URI, what int32, data *parcel.Parcel, flags int32) (*promise.Promise[*parcel.Parcel], error) {
	_, span := p.tracer.Start(context.Background(), "kafka.transact",
		trace.WithAttributes(
			attribute.String("binder.uri", target.String()),
			attribute.Int("binder.what", int(what)),
		))
	defer span.End()

	nodeID, ok := target.NodeID()
	if !ok {
		return nil, &core.TransactionFailure{Message: "cannot route a symbolic service uri over kafka"}
	}

	headers := []kafka.Header{
		{Key: headerBinderURI, Value: []byte(target.String())},
		{Key: headerWhat, Value: []byte(strconv.Itoa(int(what)))},
	}

	oneWay := flags&core.FlagOneWay != 0
	var result *promise.Promise[*parcel.Parcel]
	var txnID uint32
	if !oneWay {
		txnID = p.nextTxnID.Add(1)
		headers = append(headers,
			kafka.Header{Key: headerTxnID, Value: []byte(strconv.FormatUint(uint64(txnID), 10))},
			kafka.Header{Key: "Binder-Reply-Node", Value: []byte(strconv.FormatUint(uint64(p.nodeID), 10))},
		)
		result = promise.New[*parcel.Parcel]()
		p.mu.Lock()
		p.pending[txnID] = result
		p.mu.Unlock()
	}

	err := p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic:   requestTopic(nodeID),
		Headers: headers,
		Value:   data.Bytes(),
	})
	if err != nil {
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

// Stop cancels the consumer loops and closes the writer and readers,
// failing any transactions still awaiting a reply.
func (p *Plugin) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.failAll(&core.TransactionFailure{Message: "plugin shut down"})

	var errs []error
	if err := p.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.requestReader != nil {
		if err := p.requestReader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.replyReader != nil {
		if err := p.replyReader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
