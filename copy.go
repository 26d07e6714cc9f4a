package dofigen

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// CopyResource is the sum type behind a stage's `copy` list: a
// filesystem copy from another stage/context, inline content written to
// a file, a fetched-and-unpacked archive, or a cloned git repository.
type CopyResource struct {
	Copy        *Copy        `yaml:"-" json:"-"`
	CopyContent *CopyContent `yaml:"-" json:"-"`
	AddGitRepo  *AddGitRepo  `yaml:"-" json:"-"`
	Add         *Add         `yaml:"-" json:"-"`
}

// Copy copies paths from another stage, build context, or named context.
type Copy struct {
	From    *FromContext `yaml:"from,omitempty" json:"from,omitempty"`
	Paths   []string     `yaml:"paths" json:"paths"`
	Exclude []string     `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Parents bool         `yaml:"parents,omitempty" json:"parents,omitempty"`
	Link    *bool        `yaml:"link,omitempty" json:"link,omitempty"`
	Chown   string       `yaml:"chown,omitempty" json:"chown,omitempty"`
	Chmod   string       `yaml:"chmod,omitempty" json:"chmod,omitempty"`
	Target  string       `yaml:"target,omitempty" json:"target,omitempty"`
}

// CopyContent writes literal inline content to a file, with optional
// ARG/ENV-style variable substitution.
type CopyContent struct {
	Content    string `yaml:"content" json:"content"`
	Substitute bool   `yaml:"substitute,omitempty" json:"substitute,omitempty"`
	Target     string `yaml:"target" json:"target"`
	Chown      string `yaml:"chown,omitempty" json:"chown,omitempty"`
	Chmod      string `yaml:"chmod,omitempty" json:"chmod,omitempty"`
	Link       *bool  `yaml:"link,omitempty" json:"link,omitempty"`
}

// AddGitRepo clones a git repository into the image.
type AddGitRepo struct {
	Repo       string   `yaml:"repo" json:"repo"`
	KeepGitDir bool     `yaml:"keepGitDir,omitempty" json:"keepGitDir,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Chown      string   `yaml:"chown,omitempty" json:"chown,omitempty"`
	Chmod      string   `yaml:"chmod,omitempty" json:"chmod,omitempty"`
	Link       *bool    `yaml:"link,omitempty" json:"link,omitempty"`
	Target     string   `yaml:"target,omitempty" json:"target,omitempty"`
	Checksum   string   `yaml:"checksum,omitempty" json:"checksum,omitempty"`
}

// Add fetches one or more remote files (ADD semantics: URL fetch and,
// for recognized archive types, automatic unpack).
type Add struct {
	Files    []string `yaml:"files" json:"files"`
	Checksum string   `yaml:"checksum,omitempty" json:"checksum,omitempty"`
	Unpack   bool     `yaml:"unpack,omitempty" json:"unpack,omitempty"`
	Chown    string   `yaml:"chown,omitempty" json:"chown,omitempty"`
	Chmod    string   `yaml:"chmod,omitempty" json:"chmod,omitempty"`
	Link     *bool    `yaml:"link,omitempty" json:"link,omitempty"`
	Target   string   `yaml:"target,omitempty" json:"target,omitempty"`
}

// parseCopyShortcut implements the "SRC[ SRC...][ DST]" string grammar:
// the last whitespace-separated token is the target unless there is
// only one token, in which case that token is the sole source and the
// target defaults to ".". The classifier then picks the variant from
// the shape of the first source.
func parseCopyShortcut(s string) (CopyResource, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return CopyResource{}, &InvalidShortcutError{Shortcut: s, Remediation: "provide at least one source path"}
	}

	var sources []string
	var target string
	if len(fields) == 1 {
		sources = fields
		target = "."
	} else {
		sources = fields[:len(fields)-1]
		target = fields[len(fields)-1]
	}

	kind := classifyCopyShortcut(sources[0])
	switch kind {
	case "add":
		return CopyResource{Add: &Add{Files: sources, Target: target}}, nil
	case "addgit":
		if len(sources) != 1 {
			return CopyResource{}, errors.New("addGitRepo accepts exactly one repository")
		}
		return CopyResource{AddGitRepo: &AddGitRepo{Repo: sources[0], Target: target}}, nil
	default:
		return CopyResource{Copy: &Copy{Paths: sources, Target: target}}, nil
	}
}

func (c *CopyResource) UnmarshalAny(v any) error {
	if s, ok := v.(string); ok {
		parsed, err := parseCopyShortcut(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("cannot decode copy resource from %T", v)
	}

	// single scalar where a list is expected
	for _, key := range []string{"paths", "files", "exclude"} {
		if s, ok := m[key].(string); ok {
			m[key] = []any{s}
		}
	}

	switch {
	case hasAny(m, "content"):
		var cc CopyContent
		if err := decodeStruct(m, &cc); err != nil {
			return err
		}
		*c = CopyResource{CopyContent: &cc}
	case hasAny(m, "repo"):
		var g AddGitRepo
		if err := decodeStruct(m, &g); err != nil {
			return err
		}
		*c = CopyResource{AddGitRepo: &g}
	case hasAny(m, "files", "checksum", "unpack"):
		var a Add
		if err := decodeStruct(m, &a); err != nil {
			return err
		}
		*c = CopyResource{Add: &a}
	default:
		var cp Copy
		if raw, ok := m["from"]; ok {
			var fc FromContext
			if err := fc.UnmarshalAny(raw); err != nil {
				return errors.Wrap(err, "copy.from")
			}
			cp.From = &fc
			delete(m, "from")
		}
		// the origin may also be spelled flat, the way a stage's is
		for _, key := range []string{"fromImage", "fromBuilder", "fromContext"} {
			raw, ok := m[key]
			if !ok {
				continue
			}
			var fc FromContext
			if err := fc.UnmarshalAny(map[string]any{key: raw}); err != nil {
				return errors.Wrap(err, "copy."+key)
			}
			cp.From = &fc
			delete(m, key)
		}
		if err := decodeStruct(m, &cp); err != nil {
			return err
		}
		*c = CopyResource{Copy: &cp}
	}
	return nil
}

// validate enforces the per-variant invariants: inline content needs an
// explicit target, every other variant needs a non-empty source set.
func (c *CopyResource) validate() error {
	switch {
	case c.CopyContent != nil:
		if c.CopyContent.Target == "" {
			return errors.New("content copy requires a target")
		}
	case c.Copy != nil:
		if len(c.Copy.Paths) == 0 {
			return errors.New("copy requires at least one source path")
		}
	case c.AddGitRepo != nil:
		if c.AddGitRepo.Repo == "" {
			return errors.New("git add requires a repository")
		}
	case c.Add != nil:
		if len(c.Add.Files) == 0 {
			return errors.New("add requires at least one source file")
		}
	default:
		return errors.New("empty copy entry")
	}
	return nil
}

// LinkEnabled reports the effective value of a copy entry's --link
// flag, which defaults to on.
func LinkEnabled(link *bool) bool {
	return link == nil || *link
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func (c *CopyResource) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return c.UnmarshalAny(v)
}
