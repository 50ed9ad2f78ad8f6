package registry

import (
	"fmt"

	"github.com/loopwire/binder/core"
)

// BuildRuntime assembles a core.Runtime from cfg: reserved service ids,
// every configured transport plugin (constructed through core.NewPlugin,
// which dispatches on the plugin factories each plugins/* package registers
// via core.RegisterPlugin), and node dial targets for later outbound use.
// It does not call Start on the plugins — callers decide when to begin
// accepting inbound transactions.
func BuildRuntime(cfg *Config) (*core.Runtime, error) {
	opts := make([]core.Option, 0, len(cfg.Services))
	for name, svc := range cfg.Services {
		opts = append(opts, core.WithReservedService(name, svc.ID))
	}
	rt := core.New(cfg.NodeID, opts...)

	for scheme, pc := range cfg.Plugins {
		plugin, err := core.NewPlugin(core.PluginConfig{
			Class:     pc.Class,
			Scheme:    scheme,
			ServerURI: pc.ServerURI,
			NodeID:    cfg.NodeID,
			PeerURIs:  cfg.Peers,
			Runtime:   rt,
		})
		if err != nil {
			return nil, fmt.Errorf("registry: construct plugin %q (class %q): %w", scheme, pc.Class, err)
		}
		rt.RegisterPlugin(plugin)
	}

	return rt, nil
}
