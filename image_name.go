package dofigen

import (
	"encoding/json"
	"fmt"
	"strings"

	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// ImageName is a parsed Docker image reference, optionally qualified by
// registry host/port and a platform.
//
// Textual grammar: `[host[:port]/]path[:tag|@digest]`.
type ImageName struct {
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     string `yaml:"port,omitempty" json:"port,omitempty"`
	Path     string `yaml:"path" json:"path"`
	Tag      string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Digest   string `yaml:"digest,omitempty" json:"digest,omitempty"`
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`
}

// String renders the canonical textual form.
func (n ImageName) String() string {
	var b strings.Builder
	if n.Host != "" {
		b.WriteString(n.Host)
		if n.Port != "" {
			b.WriteString(":")
			b.WriteString(n.Port)
		}
		b.WriteString("/")
	}
	b.WriteString(n.Path)
	if n.Tag != "" {
		b.WriteString(":")
		b.WriteString(n.Tag)
	}
	if n.Digest != "" {
		b.WriteString("@")
		b.WriteString(n.Digest)
	}
	return b.String()
}

// HasTagOrDigest reports whether the reference is already pinned.
func (n ImageName) HasTagOrDigest() bool {
	return n.Tag != "" || n.Digest != ""
}

// OCIPlatform parses the reference's platform string ("os/arch" or
// "os/arch/variant") into its OCI form. A reference with no platform
// returns nil.
func (n ImageName) OCIPlatform() (*ocispecs.Platform, error) {
	if n.Platform == "" {
		return nil, nil
	}
	parts := strings.Split(n.Platform, "/")
	switch len(parts) {
	case 2:
		return &ocispecs.Platform{OS: parts[0], Architecture: parts[1]}, nil
	case 3:
		return &ocispecs.Platform{OS: parts[0], Architecture: parts[1], Variant: parts[2]}, nil
	default:
		return nil, errors.Errorf("invalid platform %q: expected os/arch[/variant]", n.Platform)
	}
}

// ParseImageName parses the permissive textual form of an image
// reference: `[host[:port]/]path[:tag|@digest]`.
func ParseImageName(s string) (ImageName, error) {
	var n ImageName

	rest := s
	if at := strings.LastIndex(rest, "@"); at != -1 {
		n.Digest = rest[at+1:]
		rest = rest[:at]
	} else if colon := strings.LastIndex(rest, ":"); colon != -1 && !strings.Contains(rest[colon:], "/") {
		n.Tag = rest[colon+1:]
		rest = rest[:colon]
	}

	if slash := strings.Index(rest, "/"); slash != -1 {
		candidate := rest[:slash]
		if looksLikeHost(candidate) {
			n.Host = candidate
			rest = rest[slash+1:]
			if hp := strings.LastIndex(n.Host, ":"); hp != -1 {
				n.Port = n.Host[hp+1:]
				n.Host = n.Host[:hp]
			}
		}
	}

	if rest == "" {
		return ImageName{}, errors.Errorf("invalid image reference %q: missing path", s)
	}
	n.Path = rest
	return n, nil
}

// looksLikeHost distinguishes a registry host segment ("docker.io",
// "localhost:5000") from the first path segment of an unqualified image
// name ("library"): a host segment contains a dot, a colon, or is
// exactly "localhost".
func looksLikeHost(s string) bool {
	return s == "localhost" || strings.ContainsAny(s, ".:")
}

func (n *ImageName) UnmarshalAny(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := ParseImageName(val)
		if err != nil {
			return err
		}
		*n = parsed
		return nil
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		type plain ImageName
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*n = ImageName(p)
		return nil
	default:
		return errors.Errorf("cannot decode image name from %T", v)
	}
}

func (n *ImageName) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return n.UnmarshalAny(raw)
}

var _ fmt.Stringer = ImageName{}
