package main

import (
	"fmt"
	"os"

	"github.com/compbox/compbox/capability"
	"github.com/goccy/go-yaml"
)

// grantsFile is the YAML shape of a capability grants file:
//
//	capabilities:
//	  - kind: file-read
//	    pattern: "/data/*"
//	  - kind: network-in
//	    port: 8080
//	  - kind: process-spawn
//	  - kind: custom
//	    name: gpu.compute
//	    params:
//	      rule: "params.device < 4"
type grantsFile struct {
	Capabilities []grantEntry `yaml:"capabilities"`
}

type grantEntry struct {
	Kind    string         `yaml:"kind"`
	Pattern string         `yaml:"pattern"`
	Port    uint16         `yaml:"port"`
	Name    string         `yaml:"name"`
	Params  map[string]any `yaml:"params"`
}

// loadGrants reads a grants file into a capability set. A missing path
// yields an empty set: deny-by-default needs no file.
func loadGrants(path string) (*capability.Set, error) {
	if path == "" {
		return capability.NewSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grants file: %w", err)
	}

	var gf grantsFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parsing grants file %s: %w", path, err)
	}

	set := capability.NewSet()
	for i, entry := range gf.Capabilities {
		cap, err := entry.capability()
		if err != nil {
			return nil, fmt.Errorf("grants file %s, entry %d: %w", path, i, err)
		}
		set.Grant(cap)
	}
	return set, nil
}

func (e grantEntry) capability() (capability.Capability, error) {
	kind, err := capability.ParseKind(e.Kind)
	if err != nil {
		return capability.Capability{}, err
	}
	switch kind {
	case capability.KindFileRead:
		return capability.FileRead(e.Pattern), nil
	case capability.KindFileWrite:
		return capability.FileWrite(e.Pattern), nil
	case capability.KindNetworkOutbound:
		return capability.NetworkOutbound(e.Pattern), nil
	case capability.KindNetworkInbound:
		return capability.NetworkInbound(e.Port), nil
	case capability.KindStorage:
		return capability.Storage(e.Pattern), nil
	case capability.KindProcessSpawn:
		return capability.ProcessSpawn(), nil
	case capability.KindMessaging:
		return capability.Messaging(e.Pattern), nil
	case capability.KindCustom:
		if e.Name == "" {
			return capability.Capability{}, fmt.Errorf("custom capability needs a name")
		}
		return capability.Custom(e.Name, toAnyMap(e.Params)), nil
	}
	return capability.Capability{}, fmt.Errorf("unhandled capability kind %q", e.Kind)
}

// toAnyMap keeps nil maps nil so structural comparison stays stable.
func toAnyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
