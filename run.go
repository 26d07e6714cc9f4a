package dofigen

import (
	"github.com/pkg/errors"
)

// Network is a RUN step's network mode.
type Network string

const (
	NetworkDefault Network = "default"
	NetworkNone    Network = "none"
	NetworkHost    Network = "host"
)

// Security is a RUN step's sandboxing mode.
type Security string

const (
	SecuritySandbox  Security = "sandbox"
	SecurityInsecure Security = "insecure"
)

// Run is the set of shell commands and mounts executed by a RUN
// instruction, shared between a stage's inline `run` and its `root`
// (root-user RUN step) block.
type Run struct {
	Run      []string `yaml:"run,omitempty" json:"run,omitempty"`
	Cache    []Cache  `yaml:"cache,omitempty" json:"cache,omitempty"`
	Bind     []Bind   `yaml:"bind,omitempty" json:"bind,omitempty"`
	TmpFs    []TmpFs  `yaml:"tmpfs,omitempty" json:"tmpfs,omitempty"`
	Secret   []Secret `yaml:"secret,omitempty" json:"secret,omitempty"`
	Ssh      []Ssh    `yaml:"ssh,omitempty" json:"ssh,omitempty"`
	Network  Network  `yaml:"network,omitempty" json:"network,omitempty"`
	Security Security `yaml:"security,omitempty" json:"security,omitempty"`
	Shell    []string `yaml:"shell,omitempty" json:"shell,omitempty"`
}

// fillDefaults applies default mount IDs and the default network mode.
func (r *Run) fillDefaults() {
	if r.Network == "" {
		r.Network = NetworkDefault
	}
	for i := range r.Secret {
		r.Secret[i].fillDefaults(i)
	}
	for i := range r.Ssh {
		r.Ssh[i].fillDefaults(i)
	}
}

func (r *Run) validate() error {
	switch r.Network {
	case "", NetworkDefault, NetworkNone, NetworkHost:
	default:
		return errors.Errorf("invalid network mode %q", r.Network)
	}
	switch r.Security {
	case "", SecuritySandbox, SecurityInsecure:
	default:
		return errors.Errorf("invalid security mode %q", r.Security)
	}
	for i, c := range r.Cache {
		if c.Target == "" {
			return errors.Errorf("cache[%d]: mount requires a target", i)
		}
	}
	for i, b := range r.Bind {
		if b.Target == "" {
			return errors.Errorf("bind[%d]: mount requires a target", i)
		}
	}
	for i, t := range r.TmpFs {
		if t.Target == "" {
			return errors.Errorf("tmpfs[%d]: mount requires a target", i)
		}
	}
	return nil
}
