package dofigen

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// FromContext describes the origin of a stage, a mount, or a copy: a
// registry image, a previously declared builder stage, or a named build
// context (e.g. the BuildKit "context" input or another client-named
// context).
type FromContext struct {
	Image   *ImageName `yaml:"-" json:"-"`
	Builder string     `yaml:"-" json:"-"`
	Context string     `yaml:"-" json:"-"`
}

// FromContextKind enumerates FromContext's variants.
type FromContextKind int

const (
	FromContextImage FromContextKind = iota
	FromContextBuilderStage
	FromContextNamedContext
)

// Kind reports which variant is populated.
func (f FromContext) Kind() FromContextKind {
	switch {
	case f.Image != nil:
		return FromContextImage
	case f.Builder != "":
		return FromContextBuilderStage
	default:
		return FromContextNamedContext
	}
}

func (f *FromContext) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		if s, ok := v.(string); ok {
			img, err := ParseImageName(s)
			if err != nil {
				return err
			}
			*f = FromContext{Image: &img}
			return nil
		}
		return errors.Errorf("cannot decode from-context from %T", v)
	}

	if raw, ok := m["fromImage"]; ok {
		var img ImageName
		if err := img.UnmarshalAny(raw); err != nil {
			return errors.Wrap(err, "fromImage")
		}
		*f = FromContext{Image: &img}
		return nil
	}
	if raw, ok := m["fromBuilder"]; ok {
		name, ok := raw.(string)
		if !ok {
			return errors.New("fromBuilder must be a string")
		}
		*f = FromContext{Builder: name}
		return nil
	}
	if raw, ok := m["fromContext"]; ok {
		name, _ := raw.(string)
		*f = FromContext{Context: name}
		return nil
	}
	return errors.New("from must set exactly one of fromImage, fromBuilder, fromContext")
}

func (f *FromContext) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return f.UnmarshalAny(v)
}

// CacheSharing is the locking mode of a cache mount.
type CacheSharing string

const (
	CacheShared  CacheSharing = "shared"
	CachePrivate CacheSharing = "private"
	CacheLocked  CacheSharing = "locked"
)

// Cache is a `--mount=type=cache` descriptor.
type Cache struct {
	Target   string       `yaml:"target" json:"target"`
	ID       string       `yaml:"id,omitempty" json:"id,omitempty"`
	Sharing  CacheSharing `yaml:"sharing,omitempty" json:"sharing,omitempty"`
	Readonly bool         `yaml:"readonly,omitempty" json:"readonly,omitempty"`
	From     *FromContext `yaml:"from,omitempty" json:"from,omitempty"`
	Source   string       `yaml:"source,omitempty" json:"source,omitempty"`
	Chown    string       `yaml:"chown,omitempty" json:"chown,omitempty"`
	Chmod    string       `yaml:"chmod,omitempty" json:"chmod,omitempty"`
}

// ParseCache parses the compact "key=value,..." grammar for cache
// mounts. A bare path is shorthand for "target=<path>".
func ParseCache(s string) (Cache, error) {
	kv, flags, positional := parseCompactKV(s)
	c := Cache{}
	if positional != "" {
		c.Target = positional
		return c, nil
	}

	c.Target = kv["target"]
	c.ID = kv["id"]
	c.Source = kv["source"]
	c.Chown = kv["chown"]
	c.Chmod = kv["chmod"]
	if v, ok := kv["sharing"]; ok {
		switch CacheSharing(v) {
		case CacheShared, CachePrivate, CacheLocked:
			c.Sharing = CacheSharing(v)
		default:
			return Cache{}, errors.Errorf("invalid cache sharing mode %q", v)
		}
	}
	if v, ok := kv["from"]; ok {
		c.From = &FromContext{Builder: v}
	}
	if flags["readonly"] {
		c.Readonly = true
	}
	if c.Target == "" {
		return Cache{}, errors.New("cache mount requires a target")
	}
	return c, nil
}

func (c *Cache) UnmarshalAny(v any) error {
	if s, ok := v.(string); ok {
		parsed, err := ParseCache(s)
		if err != nil {
			return &InvalidShortcutError{Shortcut: s, Err: err, Remediation: "use the key=value cache mount grammar or a bare target path"}
		}
		*c = parsed
		return nil
	}
	type plain Cache
	var p plain
	if err := decodeStruct(v, &p); err != nil {
		return err
	}
	*c = Cache(p)
	return nil
}

func (c *Cache) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return c.UnmarshalAny(v)
}

// Bind is a `--mount=type=bind` descriptor.
type Bind struct {
	Target    string       `yaml:"target" json:"target"`
	From      *FromContext `yaml:"from,omitempty" json:"from,omitempty"`
	Source    string       `yaml:"source,omitempty" json:"source,omitempty"`
	ReadWrite bool         `yaml:"rw,omitempty" json:"rw,omitempty"`
}

// ParseBind parses the compact grammar for bind mounts.
func ParseBind(s string) (Bind, error) {
	kv, flags, positional := parseCompactKV(s)
	b := Bind{}
	if positional != "" {
		b.Target = positional
		return b, nil
	}
	b.Target = kv["target"]
	b.Source = kv["source"]
	if v, ok := kv["from"]; ok {
		b.From = &FromContext{Builder: v}
	}
	if flags["rw"] {
		b.ReadWrite = true
	}
	if b.Target == "" {
		return Bind{}, errors.New("bind mount requires a target")
	}
	return b, nil
}

func (b *Bind) UnmarshalAny(v any) error {
	if s, ok := v.(string); ok {
		parsed, err := ParseBind(s)
		if err != nil {
			return &InvalidShortcutError{Shortcut: s, Err: err, Remediation: "use the key=value bind mount grammar or a bare target path"}
		}
		*b = parsed
		return nil
	}
	type plain Bind
	var p plain
	if err := decodeStruct(v, &p); err != nil {
		return err
	}
	*b = Bind(p)
	return nil
}

func (b *Bind) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return b.UnmarshalAny(v)
}

// TmpFs is a `--mount=type=tmpfs` descriptor.
type TmpFs struct {
	Target string `yaml:"target" json:"target"`
	Size   string `yaml:"size,omitempty" json:"size,omitempty"`
}

func (t *TmpFs) UnmarshalAny(v any) error {
	if s, ok := v.(string); ok {
		*t = TmpFs{Target: s}
		return nil
	}
	type plain TmpFs
	var p plain
	if err := decodeStruct(v, &p); err != nil {
		return err
	}
	*t = TmpFs(p)
	return nil
}

func (t *TmpFs) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return t.UnmarshalAny(v)
}

// Secret is a `--mount=type=secret` descriptor.
type Secret struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Target   string `yaml:"target,omitempty" json:"target,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Env      string `yaml:"env,omitempty" json:"env,omitempty"`
}

func (s *Secret) UnmarshalAny(v any) error {
	if str, ok := v.(string); ok {
		s.ID = str
		s.Target = str
		return nil
	}
	type plain Secret
	var p plain
	if err := decodeStruct(v, &p); err != nil {
		return err
	}
	*s = Secret(p)
	return nil
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return s.UnmarshalAny(v)
}

func (s *Secret) fillDefaults(index int) {
	if s.ID == "" {
		if s.Target != "" {
			s.ID = s.Target
		} else {
			s.ID = defaultMountID("secret", index)
		}
	}
}

// Ssh is a `--mount=type=ssh` descriptor.
type Ssh struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Target   string `yaml:"target,omitempty" json:"target,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

func (s *Ssh) UnmarshalAny(v any) error {
	if str, ok := v.(string); ok {
		s.ID = str
		return nil
	}
	type plain Ssh
	var p plain
	if err := decodeStruct(v, &p); err != nil {
		return err
	}
	*s = Ssh(p)
	return nil
}

func (s *Ssh) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return s.UnmarshalAny(v)
}

func (s *Ssh) fillDefaults(index int) {
	if s.ID == "" {
		s.ID = defaultMountID("ssh", index)
	}
}

func defaultMountID(kind string, index int) string {
	if index == 0 {
		return "default"
	}
	return kind + "-" + strconv.Itoa(index)
}

// decodeStruct is the struct-literal branch shared by the mount types'
// UnmarshalAny: re-encode the generic value as JSON and decode into a
// locally aliased (method-free) copy of the concrete type, so the
// round-trip can't re-enter the type's own UnmarshalJSON.
func decodeStruct(v any, out any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("cannot decode %T from %T", out, v)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
