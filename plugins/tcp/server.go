package tcp

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/uri"
)

// defaultMaxInFlight bounds concurrent in-flight transactions per server,
// per spec §4.4's "upper bound on concurrent in-flight transactions".
const defaultMaxInFlight = 256

var binderTransactionFailure = []byte("Binder transaction failure")

// server accepts inbound connections at one listening endpoint and
// dispatches their transactions against rt.
type server struct {
	rt       *core.Runtime
	scheme   string
	listener net.Listener
	sem      chan struct{}

	mu    sync.Mutex
	conns map[*connection]struct{}
}

func newServer(rt *core.Runtime, scheme string) *server {
	return &server{
		rt:     rt,
		scheme: scheme,
		sem:    make(chan struct{}, defaultMaxInFlight),
		conns:  make(map[*connection]struct{}),
	}
}

func (s *server) start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	s.listener = ln

	go s.acceptLoop()
	return nil
}

func (s *server) acceptLoop() {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			return
		}
		conn := newConnection(c)
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.serveConnection(conn)
	}
}

func (s *server) serveConnection(conn *connection) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		f, err := conn.next()
		if err != nil {
			return
		}
		s.sem <- struct{}{}
		go s.dispatch(conn, f)
	}
}

func (s *server) dispatch(conn *connection, f *frame) {
	defer func() { <-s.sem }()

	target, err := uri.Parse(f.URI)
	if err != nil {
		s.fail(conn, f, "malformed binder uri")
		return
	}

	binder, ok := s.rt.GetBinder(target)
	if !ok {
		s.fail(conn, f, string(binderTransactionFailure))
		return
	}

	req := parcel.NewFromBytes(f.Payload)
	result, err := binder.Transact(int32(f.What), req, 0)
	if err != nil {
		s.fail(conn, f, err.Error())
		return
	}

	result.ThenRun(func() {
		reply, err := result.Get()
		if err != nil {
			s.fail(conn, f, err.Error())
			return
		}
		conn.send(&frame{
			Type:          frameTypeTransaction,
			URI:           f.URI,
			TransactionID: f.TransactionID,
			What:          f.What,
			Payload:       reply.Bytes(),
		})
	})
}

func (s *server) fail(conn *connection, f *frame, message string) {
	conn.send(&frame{
		Type:          frameTypeExceptionTransaction,
		URI:           f.URI,
		TransactionID: f.TransactionID,
		What:          f.What,
		Payload:       []byte(message),
	})
}

func (s *server) shutdown() error {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			log.Printf("[tcp] listener close: %v", err)
		}
	}
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return nil
}
