package dofigen

import (
	"encoding/json"
)

// Descriptor is the root of a parsed build description: the root stage
// fields plus the image-level instructions and the named builder
// stages it may depend on.
type Descriptor struct {
	Stage `yaml:",inline"`

	Context     []string          `yaml:"context,omitempty" json:"context,omitempty"`
	Ignore      []string          `yaml:"ignore,omitempty" json:"ignore,omitempty"`
	Builders    []NamedStage      `yaml:"builders,omitempty" json:"builders,omitempty"`
	Entrypoint  []string          `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Cmd         []string          `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Volume      []string          `yaml:"volume,omitempty" json:"volume,omitempty"`
	Expose      []Port            `yaml:"expose,omitempty" json:"expose,omitempty"`
	Healthcheck *Healthcheck      `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`
	GlobalArg   map[string]string `yaml:"globalArg,omitempty" json:"globalArg,omitempty"`
	Extend      []Resource        `yaml:"extend,omitempty" json:"extend,omitempty"`
}

// NamedStage pairs a builder stage with its declared name, preserving
// a stable order (a plain map would not).
type NamedStage struct {
	Name  string
	Stage Stage
}

// UnmarshalAny decodes a single document by reading it as a patch and
// folding that patch onto an empty descriptor, so the direct-parse path
// and the extend-chain path share one decode implementation.
func (d *Descriptor) UnmarshalAny(v any) error {
	var p DescriptorPatch
	if err := p.UnmarshalAny(v); err != nil {
		return err
	}
	folded := p.Apply(&Descriptor{})
	folded.Extend = p.Extend
	*d = *folded
	return nil
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.UnmarshalAny(v)
}

// fillDefaults applies defaults across the descriptor and all its
// builder stages.
func (d *Descriptor) fillDefaults() {
	d.Stage.fillDefaults()
	for i := range d.Builders {
		d.Builders[i].Stage.fillDefaults()
	}
	for i := range d.Expose {
		d.Expose[i].fillDefaults()
	}
	if d.Healthcheck != nil {
		d.Healthcheck.fillDefaults()
	}
}
