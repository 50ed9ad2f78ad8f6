package tcp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
)

// DefaultTransactionTimeout is the default time a client-side transaction
// waits for a reply before failing, per spec §4.4's recommended 10s.
const DefaultTransactionTimeout = 10 * time.Second

// client owns one connection to a single peer node, correlating replies to
// the Promises held by local callers via a transactionId map. Reconnection
// is lazy: a dead connection is only re-dialed on the next Transact call
// (see DESIGN.md's Open Question decision), matching the spec's
// "reconnection policy is implementation-defined; clients re-create
// connections on demand."
type client struct {
	peerAddr string
	timeout  time.Duration

	mu         sync.Mutex
	conn       *connection
	nextTxnID  atomic.Uint32
	pending    map[uint32]*promise.Promise[*parcel.Parcel]
}

func newClient(peerAddr string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = DefaultTransactionTimeout
	}
	return &client{
		peerAddr: peerAddr,
		timeout:  timeout,
		pending:  make(map[uint32]*promise.Promise[*parcel.Parcel]),
	}
}

func (c *client) dial() (*connection, error) {
	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	raw, err := net.Dial("tcp", c.peerAddr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", c.peerAddr, err)
	}
	conn := newConnection(raw)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return conn, nil
}

func (c *client) readLoop(conn *connection) {
	for {
		f, err := conn.next()
		if err != nil {
			c.failAll(&core.TransactionFailure{Message: "transport disconnected"})
			return
		}

		c.mu.Lock()
		p, ok := c.pending[f.TransactionID]
		if ok {
			delete(c.pending, f.TransactionID)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		switch f.Type {
		case frameTypeTransaction:
			p.Complete(parcel.NewFromBytes(f.Payload))
		default:
			p.CompleteWith(&core.RemoteException{Message: string(f.Payload)})
		}
	}
}

func (c *client) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*promise.Promise[*parcel.Parcel])
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for _, p := range pending {
		p.CompleteWith(err)
	}
}

// transact assigns the next transaction id and writes the request frame. If
// oneWay is set it does not register a pending Promise and returns (nil,
// nil) as soon as the frame is enqueued for writing; otherwise the returned
// Promise is completed by readLoop on reply, or fails with a
// TransactionFailure after c.timeout.
func (c *client) transact(targetURI string, what int32, data *parcel.Parcel, oneWay bool) (*promise.Promise[*parcel.Parcel], error) {
	conn, err := c.dial()
	if err != nil {
		return nil, &core.TransactionFailure{Message: err.Error()}
	}

	txnID := c.nextTxnID.Add(1)

	var result *promise.Promise[*parcel.Parcel]
	if !oneWay {
		result = promise.New[*parcel.Parcel]()
		c.mu.Lock()
		c.pending[txnID] = result
		c.mu.Unlock()
	}

	ok := conn.send(&frame{
		Type:          frameTypeTransaction,
		URI:           targetURI,
		TransactionID: txnID,
		What:          uint32(what),
		Payload:       data.Bytes(),
	})
	if !ok {
		if !oneWay {
			c.mu.Lock()
			delete(c.pending, txnID)
			c.mu.Unlock()
		}
		return nil, &core.TransactionFailure{Message: "transport disconnected"}
	}
	if oneWay {
		return nil, nil
	}

	timer := time.AfterFunc(c.timeout, func() {
		_ = result.CompleteWith(&core.TransactionFailure{Message: "transaction timeout"})
	})
	result.ThenRun(func() {
		timer.Stop()
		c.mu.Lock()
		delete(c.pending, txnID)
		c.mu.Unlock()
	})

	return result, nil
}

func (c *client) shutdown() {
	c.failAll(&core.TransactionFailure{Message: "plugin shut down"})
}
