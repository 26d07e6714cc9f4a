package dofigen

import (
	"regexp"

	"github.com/dofigen/dofigen/internal/patch"
	"github.com/pkg/errors"
)

var stageNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Stage is a single build stage: an origin plus the filesystem and
// metadata operations layered on top of it. The root stage additionally
// carries the image-level fields handled by Descriptor.
type Stage struct {
	From    FromContext       `yaml:"from" json:"from"`
	User    *User             `yaml:"user,omitempty" json:"user,omitempty"`
	Workdir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Arg     map[string]string `yaml:"arg,omitempty" json:"arg,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Label   NestedMap         `yaml:"label,omitempty" json:"label,omitempty"`
	Copy    []CopyResource    `yaml:"copy,omitempty" json:"copy,omitempty"`
	Root    *Run              `yaml:"root,omitempty" json:"root,omitempty"`
	Run     `yaml:",inline"`
}

// NestedMap is a dotted/nested string-keyed map, used for labels.
// "com.example.foo: bar" and "com: {example: {foo: bar}}" are both
// accepted; each keeps the shape it was written in, and both flatten to
// the same dotted key on emit. It is
// the same type the patch algebra folds `label` patches with, so both
// share one merge/flatten implementation.
type NestedMap = patch.NestedMap

// ValidateStageName reports whether s is a legal stage identifier.
func ValidateStageName(s string) error {
	if !stageNamePattern.MatchString(s) {
		return errors.Errorf("invalid stage name %q: must match %s", s, stageNamePattern.String())
	}
	return nil
}

// fillDefaults applies stage-level defaults: numeric default user in
// non-scratch stages and mount-list defaults inherited from Run.
func (s *Stage) fillDefaults() {
	if s.User == nil && !s.isScratch() {
		s.User = &User{User: "1000"}
	}
	s.Run.fillDefaults()
	if s.Root != nil {
		s.Root.fillDefaults()
	}
}

// isScratch reports whether the stage starts from the empty image, in
// which case no user exists to default to.
func (s *Stage) isScratch() bool {
	return s.From.Image != nil && s.From.Image.Path == "scratch"
}

// validate checks the stage's own invariants (the resolver checks
// cross-stage ones).
func (s *Stage) validate() error {
	for i, c := range s.Copy {
		if err := c.validate(); err != nil {
			return errors.Wrapf(err, "copy[%d]", i)
		}
	}
	if err := s.Run.validate(); err != nil {
		return err
	}
	if s.Root != nil {
		if err := s.Root.validate(); err != nil {
			return errors.Wrap(err, "root")
		}
	}
	return nil
}
