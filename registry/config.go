// Package registry loads the Runtime configuration document described in
// spec §6 and assembles a core.Runtime from it: node identity, one
// TransportPlugin per configured scheme, and reserved ids for well-known
// services. Adapted from the teacher's broker/config.go + broker/registry.go
// pair — Config held broker-agnostic dial settings there; here it holds the
// dotted-key option table the spec defines, loaded with spf13/viper instead
// of the original C++ implementation's tinyxml2-based XML reader.
package registry

import (
	"fmt"
	"strconv"

	"github.com/spf13/viper"
)

// PluginConfig is one plugin.<scheme>.* entry: which plugin class answers
// for a scheme, and the endpoint it should listen on, if any.
type PluginConfig struct {
	Class     string
	ServerURI string
}

// ServiceConfig is one service.<name>.* entry: a well-known service's
// reserved id and declared interface descriptor.
type ServiceConfig struct {
	ID        uint32
	Interface string
}

// Config is the parsed form of the configuration document (spec §6).
type Config struct {
	NodeID   uint32
	Plugins  map[string]PluginConfig  // keyed by scheme
	Peers    map[uint32]string        // node id -> uri to dial on first use
	Services map[string]ServiceConfig // keyed by service name
}

// Load reads and parses the configuration document at path. Any format
// viper supports (YAML, JSON, TOML, ...) is accepted; the examples in this
// module use YAML.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("registry: read config %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper builds a Config from an already-populated viper instance,
// letting callers merge defaults, environment variables, or flags before
// parsing (viper's usual composition model).
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Plugins:  make(map[string]PluginConfig),
		Peers:    make(map[uint32]string),
		Services: make(map[string]ServiceConfig),
	}

	cfg.NodeID = uint32(v.GetUint("node.id"))
	for key := range v.GetStringMap("node") {
		if key == "id" {
			continue
		}
		nodeID, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			continue
		}
		cfg.Peers[uint32(nodeID)] = v.GetString("node." + key + ".uri")
	}

	for scheme := range v.GetStringMap("plugin") {
		cfg.Plugins[scheme] = PluginConfig{
			Class:     v.GetString("plugin." + scheme + ".class"),
			ServerURI: v.GetString("plugin." + scheme + ".server.uri"),
		}
	}

	for name := range v.GetStringMap("service") {
		cfg.Services[name] = ServiceConfig{
			ID:        uint32(v.GetUint("service." + name + ".id")),
			Interface: v.GetString("service." + name + ".interface"),
		}
	}

	return cfg, nil
}
