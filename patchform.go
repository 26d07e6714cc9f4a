package dofigen

import (
	"github.com/dofigen/dofigen/internal/patch"
	"github.com/pkg/errors"
)

// This file defines the patch form of every descriptor entity: the
// shape a single document (or extend-chain fragment) decodes into
// before the chain is folded. Folding applies each patch in turn onto
// the accumulated resolved value, so sequence indices in a patch always
// refer to the base list as it stood before that patch.

// RunPatch is the patch form of Run.
type RunPatch struct {
	Run      patch.VecPatch[string]
	Cache    patch.VecPatch[Cache]
	Bind     patch.VecPatch[Bind]
	TmpFs    patch.VecPatch[TmpFs]
	Secret   patch.VecPatch[Secret]
	Ssh      patch.VecPatch[Ssh]
	Network  patch.Field[Network]
	Security patch.Field[Security]
	Shell    patch.VecPatch[string]
}

// UnmarshalAny accepts the `root:` shorthand forms: a bare string or
// list is the command list, a mapping carries the full Run fields.
func (p *RunPatch) UnmarshalAny(v any) error {
	switch val := v.(type) {
	case string, []any:
		return p.Run.UnmarshalAny(val)
	case map[string]any:
		return decodeRunPatchFields(val, p)
	default:
		return errors.Errorf("cannot decode run from %T", v)
	}
}

func decodeRunPatchFields(m map[string]any, p *RunPatch) error {
	fields := []struct {
		key    string
		target patch.AnyUnmarshaler
	}{
		{"run", &p.Run},
		{"cache", &p.Cache},
		{"bind", &p.Bind},
		{"tmpfs", &p.TmpFs},
		{"secret", &p.Secret},
		{"ssh", &p.Ssh},
		{"network", &p.Network},
		{"security", &p.Security},
		{"shell", &p.Shell},
	}
	for _, f := range fields {
		raw, ok := m[f.key]
		if !ok {
			continue
		}
		if err := f.target.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, f.key)
		}
	}
	return nil
}

// Apply folds the patch onto base.
func (p RunPatch) Apply(base Run) Run {
	out := base
	out.Run = p.Run.Apply(base.Run)
	out.Cache = p.Cache.Apply(base.Cache)
	out.Bind = p.Bind.Apply(base.Bind)
	out.TmpFs = p.TmpFs.Apply(base.TmpFs)
	out.Secret = p.Secret.Apply(base.Secret)
	out.Ssh = p.Ssh.Apply(base.Ssh)
	out.Network = p.Network.Apply(base.Network)
	out.Security = p.Security.Apply(base.Security)
	out.Shell = p.Shell.Apply(base.Shell)
	return out
}

// StagePatch is the patch form of Stage. Run fields are inlined, the
// same way the resolved Stage inlines Run.
type StagePatch struct {
	From    patch.Field[FromContext]
	User    patch.Field[*User]
	Workdir patch.Field[string]
	Arg     patch.HashMapPatch[string, string]
	Env     patch.HashMapPatch[string, string]
	Label   patch.NestedMap
	Copy    patch.VecDeepPatch[CopyResource, CopyResource]
	Root    patch.Field[*RunPatch]
	RunPatch
}

func (p *StagePatch) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("cannot decode stage from %T", v)
	}
	return decodeStagePatchFields(m, p)
}

func decodeStagePatchFields(m map[string]any, p *StagePatch) error {
	// `from: {fromImage: ...}` and the flattened `fromImage: ...` spell
	// the same thing; the flattened form wraps itself back up here.
	if raw, ok := m["from"]; ok {
		if err := p.From.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "from")
		}
	}
	for _, key := range []string{"fromImage", "fromBuilder", "fromContext"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		if err := p.From.UnmarshalAny(map[string]any{key: raw}); err != nil {
			return errors.Wrap(err, key)
		}
	}
	if raw, ok := m["user"]; ok {
		if err := p.User.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "user")
		}
	}
	if raw, ok := m["workdir"]; ok {
		if err := p.Workdir.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "workdir")
		}
	}
	if raw, ok := m["arg"]; ok {
		if err := p.Arg.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "arg")
		}
	}
	if raw, ok := m["env"]; ok {
		if err := p.Env.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "env")
		}
	}
	if raw, ok := m["label"]; ok {
		if err := p.Label.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "label")
		}
	}
	if raw, ok := m["copy"]; ok {
		if err := p.Copy.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "copy")
		}
	}
	if raw, ok := m["root"]; ok {
		if raw == nil {
			p.Root = patch.Set[*RunPatch](nil)
		} else {
			var rp RunPatch
			if err := rp.UnmarshalAny(raw); err != nil {
				return errors.Wrap(err, "root")
			}
			p.Root = patch.Set(&rp)
		}
	}
	return decodeRunPatchFields(m, &p.RunPatch)
}

// Apply folds the patch onto base.
func (p StagePatch) Apply(base Stage) Stage {
	out := base
	if p.From.IsSet() {
		out.From = p.From.Value
	}
	if p.User.IsSet() {
		out.User = p.User.Value
	}
	out.Workdir = p.Workdir.Apply(base.Workdir)
	out.Arg = p.Arg.Apply(base.Arg)
	out.Env = p.Env.Apply(base.Env)
	out.Label = p.Label.Merge(base.Label)
	out.Copy = p.Copy.Apply(base.Copy, mergeCopyResource)
	if p.Root.IsSet() {
		if p.Root.Value == nil {
			out.Root = nil
		} else {
			var baseRoot Run
			if base.Root != nil {
				baseRoot = *base.Root
			}
			merged := p.Root.Value.Apply(baseRoot)
			out.Root = &merged
		}
	}
	out.Run = p.RunPatch.Apply(base.Run)
	return out
}

// mergeCopyResource deep-merges an "N<" copy patch into a base element.
// When the patch and the base are both Copy, or both CopyContent,
// non-zero patch fields override field by field. In every other case
// (two AddGitRepo values, two Add values, different variants, or an
// empty base slot) the patch replaces the element outright.
func mergeCopyResource(base, overlay CopyResource) CopyResource {
	switch {
	case overlay.Copy != nil && base.Copy != nil:
		merged := *base.Copy
		o := overlay.Copy
		if o.From != nil {
			merged.From = o.From
		}
		if len(o.Paths) > 0 {
			merged.Paths = o.Paths
		}
		if len(o.Exclude) > 0 {
			merged.Exclude = o.Exclude
		}
		if o.Parents {
			merged.Parents = true
		}
		if o.Link != nil {
			merged.Link = o.Link
		}
		if o.Chown != "" {
			merged.Chown = o.Chown
		}
		if o.Chmod != "" {
			merged.Chmod = o.Chmod
		}
		if o.Target != "" {
			merged.Target = o.Target
		}
		return CopyResource{Copy: &merged}
	case overlay.CopyContent != nil && base.CopyContent != nil:
		merged := *base.CopyContent
		o := overlay.CopyContent
		if o.Content != "" {
			merged.Content = o.Content
		}
		if o.Substitute {
			merged.Substitute = true
		}
		if o.Target != "" {
			merged.Target = o.Target
		}
		if o.Chown != "" {
			merged.Chown = o.Chown
		}
		if o.Chmod != "" {
			merged.Chmod = o.Chmod
		}
		if o.Link != nil {
			merged.Link = o.Link
		}
		return CopyResource{CopyContent: &merged}
	default:
		return overlay
	}
}

// HealthcheckPatch is the patch form of Healthcheck; struct fields are
// merged recursively, the command list is a sequence patch.
type HealthcheckPatch struct {
	Cmd         patch.VecPatch[string]
	Interval    patch.Field[string]
	Timeout     patch.Field[string]
	StartPeriod patch.Field[string]
	Retries     patch.Field[int]
	None        patch.Field[bool]
}

func (p *HealthcheckPatch) UnmarshalAny(v any) error {
	if s, ok := v.(string); ok {
		if s == "none" {
			p.None = patch.Set(true)
			return nil
		}
		return p.Cmd.UnmarshalAny(s)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("cannot decode healthcheck from %T", v)
	}
	fields := []struct {
		key    string
		target patch.AnyUnmarshaler
	}{
		{"cmd", &p.Cmd},
		{"interval", &p.Interval},
		{"timeout", &p.Timeout},
		{"startPeriod", &p.StartPeriod},
		{"retries", &p.Retries},
		{"none", &p.None},
	}
	for _, f := range fields {
		raw, ok := m[f.key]
		if !ok {
			continue
		}
		if err := f.target.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, f.key)
		}
	}
	return nil
}

// Apply folds the patch onto base (which may be nil).
func (p HealthcheckPatch) Apply(base *Healthcheck) *Healthcheck {
	var out Healthcheck
	if base != nil {
		out = *base
	}
	out.Cmd = p.Cmd.Apply(out.Cmd)
	out.Interval = p.Interval.Apply(out.Interval)
	out.Timeout = p.Timeout.Apply(out.Timeout)
	out.StartPeriod = p.StartPeriod.Apply(out.StartPeriod)
	out.Retries = p.Retries.Apply(out.Retries)
	out.None = p.None.Apply(out.None)
	return &out
}

// DescriptorPatch is the patch form of Descriptor: the root stage patch
// plus the image-level fields and the extend chain.
type DescriptorPatch struct {
	StagePatch

	Context     patch.VecPatch[string]
	Ignore      patch.VecPatch[string]
	Builders    patch.HashMapDeepPatch[string, Stage, StagePatch]
	Entrypoint  patch.VecPatch[string]
	Cmd         patch.VecPatch[string]
	Volume      patch.VecPatch[string]
	Expose      patch.VecPatch[Port]
	Healthcheck patch.Field[*HealthcheckPatch]
	GlobalArg   patch.HashMapPatch[string, string]
	Extend      []Resource
}

func (p *DescriptorPatch) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("cannot decode descriptor from %T", v)
	}

	fields := []struct {
		key    string
		target patch.AnyUnmarshaler
	}{
		{"context", &p.Context},
		{"ignore", &p.Ignore},
		{"builders", &p.Builders},
		{"entrypoint", &p.Entrypoint},
		{"cmd", &p.Cmd},
		{"volume", &p.Volume},
		{"expose", &p.Expose},
		{"globalArg", &p.GlobalArg},
	}
	for _, f := range fields {
		raw, ok := m[f.key]
		if !ok {
			continue
		}
		if err := f.target.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, f.key)
		}
	}

	if raw, ok := m["healthcheck"]; ok {
		if raw == nil {
			p.Healthcheck = patch.Set[*HealthcheckPatch](nil)
		} else {
			var hp HealthcheckPatch
			if err := hp.UnmarshalAny(raw); err != nil {
				return errors.Wrap(err, "healthcheck")
			}
			p.Healthcheck = patch.Set(&hp)
		}
	}

	if raw, ok := m["extend"]; ok {
		items, ok := raw.([]any)
		if !ok {
			items = []any{raw}
		}
		p.Extend = make([]Resource, len(items))
		for i, item := range items {
			if err := p.Extend[i].UnmarshalAny(item); err != nil {
				return errors.Wrapf(err, "extend[%d]", i)
			}
		}
	}

	return decodeStagePatchFields(m, &p.StagePatch)
}

// Apply folds the patch onto base, producing a new Descriptor. The
// extend chain itself is not carried over: by the time patches are
// applied the chain has already been flattened by the Loader.
func (p *DescriptorPatch) Apply(base *Descriptor) *Descriptor {
	out := *base
	out.Stage = p.StagePatch.Apply(base.Stage)
	out.Context = p.Context.Apply(base.Context)
	out.Ignore = p.Ignore.Apply(base.Ignore)
	out.Builders = p.applyBuilders(base.Builders)
	out.Entrypoint = p.Entrypoint.Apply(base.Entrypoint)
	out.Cmd = p.Cmd.Apply(base.Cmd)
	out.Volume = p.Volume.Apply(base.Volume)
	out.Expose = p.Expose.Apply(base.Expose)
	if p.Healthcheck.IsSet() {
		if p.Healthcheck.Value == nil {
			out.Healthcheck = nil
		} else {
			out.Healthcheck = p.Healthcheck.Value.Apply(base.Healthcheck)
		}
	}
	out.GlobalArg = p.GlobalArg.Apply(base.GlobalArg)
	out.Extend = nil
	return &out
}

// applyBuilders folds the builders patch into the ordered builder list:
// existing names are deep-merged in place, deleted names dropped, and
// new names appended in sorted order (declaration order within a single
// document is not observable through the generic map decode; the
// resolver's topological sort recovers any ordering that matters).
func (p *DescriptorPatch) applyBuilders(base []NamedStage) []NamedStage {
	out := make([]NamedStage, 0, len(base))
	index := map[string]int{}
	for _, b := range base {
		if p.Builders.Deleted(b.Name) {
			continue
		}
		index[b.Name] = len(out)
		out = append(out, b)
	}
	for _, name := range p.Builders.Keys() {
		sp, _ := p.Builders.Patch(name)
		if i, ok := index[name]; ok {
			out[i].Stage = sp.Apply(out[i].Stage)
			continue
		}
		out = append(out, NamedStage{Name: name, Stage: sp.Apply(Stage{})})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
