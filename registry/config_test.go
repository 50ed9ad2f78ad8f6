package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/loopwire/binder/core"
	"github.com/loopwire/binder/looper"
	"github.com/loopwire/binder/parcel"
	"github.com/loopwire/binder/promise"
	"github.com/loopwire/binder/registry"
	"github.com/loopwire/binder/uri"
)

type stubPlugin struct{ scheme string }

func (s *stubPlugin) Scheme() string            { return s.scheme }
func (s *stubPlugin) Start(context.Context) error { return nil }
func (s *stubPlugin) Stop() error                 { return nil }
func (s *stubPlugin) Transact(*uri.URI, int32, *parcel.Parcel, int32) (*promise.Promise[*parcel.Parcel], error) {
	return promise.Completed(parcel.New()), nil
}

func init() {
	core.RegisterPlugin("tcp", func(cfg core.PluginConfig) (core.TransportPlugin, error) {
		return &stubPlugin{scheme: cfg.Scheme}, nil
	})
}

const sampleConfig = `
node:
  id: 1
  2:
    uri: "mindroid://localhost:9999"
plugin:
  mindroid:
    class: tcp
    server:
      uri: "mindroid://0.0.0.0:9998"
service:
  serviceManager:
    id: 1
    interface: "mindroid.IServiceManager"
  eliza:
    id: 17
    interface: "eliza.IEliza"
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesNodePluginAndServiceSections(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NodeID != 1 {
		t.Fatalf("NodeID = %d, want 1", cfg.NodeID)
	}
	if got := cfg.Peers[2]; got != "mindroid://localhost:9999" {
		t.Fatalf("Peers[2] = %q, want mindroid://localhost:9999", got)
	}

	plugin, ok := cfg.Plugins["mindroid"]
	if !ok {
		t.Fatal("missing mindroid plugin config")
	}
	if plugin.Class != "tcp" || plugin.ServerURI != "mindroid://0.0.0.0:9998" {
		t.Fatalf("unexpected plugin config: %+v", plugin)
	}

	eliza, ok := cfg.Services["eliza"]
	if !ok {
		t.Fatal("missing eliza service config")
	}
	if eliza.ID != 17 || eliza.Interface != "eliza.IEliza" {
		t.Fatalf("unexpected service config: %+v", eliza)
	}
}

func TestBuildRuntimeReservesConfiguredServiceIDs(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rt, err := registry.BuildRuntime(cfg)
	if err != nil {
		t.Fatalf("BuildRuntime: %v", err)
	}
	if rt.NodeID() != 1 {
		t.Fatalf("NodeID = %d, want 1", rt.NodeID())
	}

	thread := looper.NewHandlerThread()
	defer thread.Quit()
	b, err := core.NewBinder(rt, "eliza.IEliza", thread.Looper(), func(int32, *parcel.Parcel, *promise.Promise[*parcel.Parcel]) {}, nil)
	if err != nil {
		t.Fatalf("NewBinder: %v", err)
	}
	if _, err := rt.AttachService("eliza", b); err != nil {
		t.Fatalf("AttachService: %v", err)
	}
	if localID, _ := b.URI().LocalID(); localID != 17 {
		t.Fatalf("eliza local id = %d, want reserved id 17", localID)
	}
}
