package tcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/plugins/tcp"
	"github.com/loopwire/binder/uri"
)

// TestCrossNodeTransaction follows spec §8 scenario 5 with its own test
// service: node 1 hosts a service, node 2 transacts with it through its tcp
// plugin, and the reply arrives within 2s. The client's transactionId map is
// not inspected.
func TestCrossNodeTransaction(t *testing.T) {
	node1 := core.New(1)
	thread1 := looper.NewHandlerThread()
	defer thread1.Quit()

	onTransact := func(what int32, data *parcel.Parcel, result *promise.Promise[*parcel.Parcel]) {
		q, _ := data.GetString()
		reply := parcel.New()
		reply.PutString("answer to: " + q)
		result.Complete(reply)
	}
	binder, err := core.NewBinder(node1, "test.IAsk", thread1.Looper(), onTransact, nil)
	if err != nil {
		t.Fatalf("NewBinder: %v", err)
	}
	if _, err := node1.AttachService("asker", binder); err != nil {
		t.Fatalf("AttachService: %v", err)
	}

	plugin1, err := tcp.New(core.PluginConfig{
		Scheme:    "mindroid",
		ServerURI: "mindroid://127.0.0.1:0",
		NodeID:    1,
		Runtime:   node1,
	})
	if err != nil {
		t.Fatalf("tcp.New (server): %v", err)
	}
	// Port 0 means "pick any free port"; Start binds it, and we read the
	// real address back out for node 2 to dial.
	if err := plugin1.Start(context.Background()); err != nil {
		t.Fatalf("start server plugin: %v", err)
	}
	defer plugin1.Stop()
	node1.RegisterPlugin(plugin1)

	node2 := core.New(2)
	plugin2, err := tcp.New(core.PluginConfig{
		Scheme:   "mindroid",
		NodeID:   2,
		Runtime:  node2,
		PeerURIs: map[uint32]string{1: "mindroid://" + plugin1.ListenAddr()},
	})
	if err != nil {
		t.Fatalf("tcp.New (client): %v", err)
	}
	defer plugin2.Stop()
	node2.RegisterPlugin(plugin2)

	binderID, _ := binder.URI().LocalID()
	targetURI := uri.NewID("mindroid", 1, binderID)

	req := parcel.New()
	req.PutString("hello")
	result, err := plugin2.Transact(targetURI, 1, req, 0)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	reply, err := result.GetTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("transaction did not complete: %v", err)
	}
	got, _ := reply.GetString()
	if got != "answer to: hello" {
		t.Fatalf("got %q", got)
	}
}
