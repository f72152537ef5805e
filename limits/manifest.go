package limits

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

// Manifest is the per-component TOML manifest fragment consumed from an
// external configuration loader:
//
//	[component]
//	name    = "image-resizer"
//	version = "1.2.0"
//
//	[resources.memory]
//	max_bytes = 1048576
//
//	[resources.cpu]
//	max_fuel   = 1000000
//	timeout_ms = 100
//
// The memory section is mandatory; the cpu section and both of its keys are
// optional and default per this package.
type Manifest struct {
	Component ComponentInfo     `toml:"component"`
	Resources ManifestResources `toml:"resources"`
}

// ComponentInfo identifies the component the manifest describes.
type ComponentInfo struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// ManifestResources groups the declared resource bounds.
type ManifestResources struct {
	Memory *MemorySection `toml:"memory"`
	CPU    *CPUSection    `toml:"cpu"`
}

// MemorySection declares the mandatory memory ceiling.
type MemorySection struct {
	MaxBytes *uint64 `toml:"max_bytes"`
}

// CPUSection declares the optional CPU bounds.
type CPUSection struct {
	MaxFuel   *uint64 `toml:"max_fuel"`
	TimeoutMS *uint64 `toml:"timeout_ms"`
}

// ParseManifest decodes a manifest fragment. Malformed TOML and non-numeric
// values surface as a *ConfigError before any invocation is attempted.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &ConfigError{Field: "manifest", Reason: err.Error()}
	}
	if m.Component.Version != "" {
		if _, err := semver.NewVersion(m.Component.Version); err != nil {
			return nil, &ConfigError{
				Field:  "component.version",
				Reason: "not a valid semantic version: " + m.Component.Version,
			}
		}
	}
	return &m, nil
}

// Limits converts the declared resources into validated ResourceLimits,
// applying defaults for omitted CPU keys.
func (m *Manifest) Limits() (ResourceLimits, error) {
	b := NewBuilder()
	if m.Resources.Memory != nil && m.Resources.Memory.MaxBytes != nil {
		b.MaxMemoryBytes(*m.Resources.Memory.MaxBytes)
	}
	if cpu := m.Resources.CPU; cpu != nil {
		if cpu.MaxFuel != nil {
			b.MaxFuel(*cpu.MaxFuel)
		}
		if cpu.TimeoutMS != nil {
			b.MaxExecution(time.Duration(*cpu.TimeoutMS) * time.Millisecond)
		}
	}
	return b.Build()
}
