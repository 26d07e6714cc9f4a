package dofigen

import (
	"context"

	"github.com/moby/buildkit/frontend/dockerfile/shell"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/dofigen/dofigen/internal/graphutil"
)

// Resolver turns a folded Descriptor into one ready for emission:
// names validated, stage dependencies ordered, defaults filled in, and
// every floating image tag pinned through the Lock Store.
type Resolver struct {
	Store *LockStore
}

// Resolve validates and normalizes desc in place, returning the
// dependency-ordered list of builder names (the root stage always
// resolves last).
func (r *Resolver) Resolve(ctx context.Context, desc *Descriptor) ([]string, error) {
	if err := r.validate(desc); err != nil {
		return nil, err
	}

	order, err := r.stageOrder(desc)
	if err != nil {
		return nil, err
	}

	desc.fillDefaults()

	args, err := r.collectGlobalArgs(desc)
	if err != nil {
		return nil, err
	}
	desc.GlobalArg = args

	if err := r.pinImages(ctx, desc); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Resolver) validate(desc *Descriptor) error {
	seen := map[string]bool{}
	for _, b := range desc.Builders {
		if err := ValidateStageName(b.Name); err != nil {
			return &SchemaViolationError{Field: "builders", Err: err}
		}
		if seen[b.Name] {
			return &SchemaViolationError{
				Field:       "builders." + b.Name,
				Remediation: "builder stage names must be unique",
				Err:         errors.Errorf("duplicate builder stage name %q", b.Name),
			}
		}
		seen[b.Name] = true
	}

	if err := desc.Stage.validate(); err != nil {
		return &SchemaViolationError{Err: err}
	}
	for _, b := range desc.Builders {
		if err := b.Stage.validate(); err != nil {
			return &SchemaViolationError{Field: "builders." + b.Name, Err: err}
		}
	}
	if desc.Healthcheck != nil {
		if err := desc.Healthcheck.validate(); err != nil {
			return &SchemaViolationError{Field: "healthcheck", Err: err}
		}
	}

	if err := r.validatePlatforms(desc); err != nil {
		return err
	}
	return nil
}

// validatePlatforms parses every declared image platform into its OCI
// form so a bad platform string fails at resolve time, not inside
// BuildKit.
func (r *Resolver) validatePlatforms(desc *Descriptor) error {
	check := func(s Stage, scope string) error {
		if s.From.Image == nil {
			return nil
		}
		if _, err := s.From.Image.OCIPlatform(); err != nil {
			return &SchemaViolationError{Field: scope, Err: err}
		}
		return nil
	}
	if err := check(desc.Stage, "from"); err != nil {
		return err
	}
	for _, b := range desc.Builders {
		if err := check(b.Stage, "builders."+b.Name+".from"); err != nil {
			return err
		}
	}
	return nil
}

// stageOrder computes a dependency-first ordering of builder stages.
// A builder depends on another through its `from.fromBuilder`, through
// any cache/bind mount that names a builder, and through any copy whose
// `from` names a builder. Cycles are reported as StageCycleError.
func (r *Resolver) stageOrder(desc *Descriptor) ([]string, error) {
	names := map[string]bool{}
	for _, b := range desc.Builders {
		names[b.Name] = true
	}

	depsOf := func(s Stage) ([]string, error) {
		var deps []string
		add := func(ref string) error {
			if !names[ref] {
				return &UnknownReferenceError{Reference: ref, Remediation: "declare the referenced builder stage"}
			}
			deps = append(deps, ref)
			return nil
		}
		if s.From.Kind() == FromContextBuilderStage {
			if err := add(s.From.Builder); err != nil {
				return nil, err
			}
		}
		for _, mounts := range []Run{s.Run, derefRun(s.Root)} {
			for _, c := range mounts.Cache {
				if c.From != nil && c.From.Builder != "" {
					if err := add(c.From.Builder); err != nil {
						return nil, err
					}
				}
			}
			for _, b := range mounts.Bind {
				if b.From != nil && b.From.Builder != "" {
					if err := add(b.From.Builder); err != nil {
						return nil, err
					}
				}
			}
		}
		for _, c := range s.Copy {
			if c.Copy != nil && c.Copy.From != nil && c.Copy.From.Builder != "" {
				if err := add(c.Copy.From.Builder); err != nil {
					return nil, err
				}
			}
		}
		return deps, nil
	}

	nodes := make([]graphutil.Node, 0, len(desc.Builders))
	for _, b := range desc.Builders {
		deps, err := depsOf(b.Stage)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, graphutil.Node{Name: b.Name, Depends: deps})
	}

	if _, err := depsOf(desc.Stage); err != nil {
		return nil, err
	}

	order, err := graphutil.TopoSort(nodes)
	if err != nil {
		var cyc *graphutil.Cycle
		if errors.As(err, &cyc) {
			return nil, &StageCycleError{Chain: cyc.Members}
		}
		return nil, err
	}
	return order, nil
}

func derefRun(r *Run) Run {
	if r == nil {
		return Run{}
	}
	return *r
}

type envGetterMap map[string]string

func (m envGetterMap) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m envGetterMap) Keys() []string {
	return maps.Keys(m)
}

// collectGlobalArgs unions the declared globalArg table with every
// variable a run command references without a stage-level declaration,
// using the Dockerfile shell lexer so quoting and escaping behave
// exactly as BuildKit will interpret them. The TARGETPLATFORM opt-in
// arg is added whenever a stage pins a platform.
func (r *Resolver) collectGlobalArgs(desc *Descriptor) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range desc.GlobalArg {
		out[k] = v
	}

	lex := shell.NewLex('\\')
	lex.SkipUnsetEnv = true

	scan := func(s Stage) error {
		declared := envGetterMap{}
		for k, v := range s.Arg {
			declared[k] = v
		}
		for k, v := range s.Env {
			declared[k] = v
		}
		for _, runs := range []Run{s.Run, derefRun(s.Root)} {
			for _, cmd := range runs.Run {
				result, err := lex.ProcessWordWithMatches(cmd, declared)
				if err != nil {
					return errors.Wrapf(err, "scanning %q for build args", cmd)
				}
				for name := range result.Unmatched {
					if _, ok := out[name]; !ok {
						out[name] = ""
					}
				}
			}
		}
		return nil
	}

	if err := scan(desc.Stage); err != nil {
		return nil, err
	}
	for _, b := range desc.Builders {
		if err := scan(b.Stage); err != nil {
			return nil, err
		}
	}

	if anyPlatformSet(desc) {
		if _, ok := out["TARGETPLATFORM"]; !ok {
			out["TARGETPLATFORM"] = ""
		}
	}
	return out, nil
}

func anyPlatformSet(desc *Descriptor) bool {
	if desc.Stage.From.Image != nil && desc.Stage.From.Image.Platform != "" {
		return true
	}
	for _, b := range desc.Builders {
		if b.Stage.From.Image != nil && b.Stage.From.Image.Platform != "" {
			return true
		}
	}
	return false
}

// pinImages resolves every `fromImage` reference in the descriptor
// that does not already carry a digest, through the Lock Store.
func (r *Resolver) pinImages(ctx context.Context, desc *Descriptor) error {
	pin := func(s *Stage) error {
		if s.From.Image == nil || s.From.Image.Digest != "" || s.isScratch() {
			return nil
		}
		pinned, err := r.Store.PinImage(ctx, *s.From.Image)
		if err != nil {
			return err
		}
		s.From.Image = &pinned
		return nil
	}

	if err := pin(&desc.Stage); err != nil {
		return err
	}
	for i := range desc.Builders {
		if err := pin(&desc.Builders[i].Stage); err != nil {
			return err
		}
	}
	return nil
}
