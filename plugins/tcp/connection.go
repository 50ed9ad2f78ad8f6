package tcp

import (
	"bufio"
	"net"
	"sync"

	"github.com/google/uuid"
)

// connection serializes writes to one TCP socket behind a channel, matching
// the original's split Reader/Writer threads per connection (spec §4.4:
// "reads and writes on one connection are serialized").
type connection struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	outbox    chan *frame
	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(c net.Conn) *connection {
	conn := &connection{
		id:     uuid.NewString(),
		conn:   c,
		reader: bufio.NewReader(c),
		outbox: make(chan *frame, 64),
		closed: make(chan struct{}),
	}
	go conn.writeLoop()
	return conn
}

func (c *connection) writeLoop() {
	for {
		select {
		case f := <-c.outbox:
			if err := writeFrame(c.conn, f); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// send enqueues f for writing. It is safe to call from any goroutine.
func (c *connection) send(f *frame) bool {
	select {
	case c.outbox <- f:
		return true
	case <-c.closed:
		return false
	}
}

// next blocks for the next inbound frame, or returns an error (including
// io.EOF) when the connection is no longer readable.
func (c *connection) next() (*frame, error) {
	return readFrame(c.reader)
}

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}
