package dofigen

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Port is an EXPOSE'd port, parsed from "N[/tcp|udp]".
type Port struct {
	Port     int    `yaml:"port" json:"port"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

const defaultPortProtocol = "tcp"

// String renders the canonical "N/proto" textual form.
func (p Port) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = defaultPortProtocol
	}
	return strconv.Itoa(p.Port) + "/" + proto
}

// ParsePort parses the "N[/tcp|udp]" shortcut grammar.
func ParsePort(s string) (Port, error) {
	numPart, proto, hasProto := strings.Cut(s, "/")
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return Port{}, errors.Errorf("invalid port %q: %v", s, err)
	}
	if hasProto {
		switch proto {
		case "tcp", "udp":
		default:
			return Port{}, errors.Errorf("invalid port protocol %q", proto)
		}
		return Port{Port: n, Protocol: proto}, nil
	}
	return Port{Port: n}, nil
}

func (p *Port) UnmarshalAny(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := ParsePort(val)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case int, int64, uint64, float64:
		n, _ := asInt(val)
		*p = Port{Port: n}
		return nil
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		type plain Port
		var pp plain
		if err := json.Unmarshal(data, &pp); err != nil {
			return err
		}
		*p = Port(pp)
		return nil
	default:
		return errors.Errorf("cannot decode port from %T", v)
	}
}

func (p *Port) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return p.UnmarshalAny(raw)
}

// fillDefaults applies the default protocol.
func (p *Port) fillDefaults() {
	if p.Protocol == "" {
		p.Protocol = defaultPortProtocol
	}
}
