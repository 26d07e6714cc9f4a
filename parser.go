package dofigen

import (
	goyaml "github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/pkg/errors"
)

// Parse decodes a build description in permissive mode: unknown top
// level fields are ignored, matching the behavior a reader expects
// from a tool that must stay forward compatible with newer schemas.
func Parse(data []byte) (*Descriptor, error) {
	return parse(data, false)
}

// ParseStrict decodes a build description like Parse, but rejects an
// unknown top-level field with a SchemaViolationError instead of
// ignoring it. Only top-level keys are checked, and the permissive
// shortcut forms are accepted as in Parse.
func ParseStrict(data []byte) (*Descriptor, error) {
	return parse(data, true)
}

func parse(data []byte, strict bool) (*Descriptor, error) {
	p, err := parsePatch(data, strict)
	if err != nil {
		return nil, err
	}
	return p.Apply(&Descriptor{}), nil
}

// ParseAny decodes a document already held as a generic tree (the
// shape EffectiveDoc produces), sharing the descriptor decode path
// with Parse.
func ParseAny(tree any) (*Descriptor, error) {
	var desc Descriptor
	if err := desc.UnmarshalAny(tree); err != nil {
		return nil, &ParseError{Err: err, Remediation: "check the field names and types against the schema"}
	}
	return &desc, nil
}

// ParsePatch decodes a single document into its patch form without
// folding, for callers (the extend Loader) that compose several
// documents before materializing a Descriptor.
func ParsePatch(data []byte) (*DescriptorPatch, error) {
	return parsePatch(data, false)
}

func parsePatch(data []byte, strict bool) (*DescriptorPatch, error) {
	tree, pos, err := decodeGenericTree(data)
	if err != nil {
		return nil, &ParseError{Pos: pos, Err: err}
	}

	if strict {
		if err := rejectUnknownFields(tree); err != nil {
			return nil, err
		}
	}

	var p DescriptorPatch
	if err := p.UnmarshalAny(tree); err != nil {
		return nil, &ParseError{Pos: pos, Err: err, Remediation: "check the field names and types against the schema"}
	}
	return &p, nil
}

// decodeGenericTree decodes data (YAML or, since YAML is a JSON
// superset, also plain JSON) into the string/bool/float64/[]any/
// map[string]any tree shape shared by every UnmarshalAny implementation
// in this package, along with the position of the document's root node
// for error reporting.
func decodeGenericTree(data []byte) (any, *Position, error) {
	file, err := goparse(data)
	if err != nil {
		return nil, nil, err
	}
	if len(file.Docs) == 0 {
		return map[string]any{}, nil, nil
	}
	root := file.Docs[0].Body

	var v any
	if err := goyaml.NodeToValue(root, &v); err != nil {
		return nil, nodePosition(root), errors.Wrap(err, "decoding document")
	}
	return v, nodePosition(root), nil
}

func goparse(data []byte) (*ast.File, error) {
	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	return file, nil
}

func nodePosition(n ast.Node) *Position {
	if n == nil {
		return nil
	}
	tok := n.GetToken()
	if tok == nil {
		return nil
	}
	return &Position{
		Line:   tok.Position.Line,
		Column: tok.Position.Column,
	}
}

// knownTopLevelFields mirrors Descriptor's and Stage's recognized keys,
// used only by ParseStrict.
var knownTopLevelFields = map[string]bool{
	"context": true, "ignore": true, "builders": true, "entrypoint": true,
	"cmd": true, "volume": true, "expose": true, "healthcheck": true,
	"globalArg": true, "extend": true,
	"from": true, "fromImage": true, "fromBuilder": true, "fromContext": true,
	"user": true, "workdir": true, "arg": true, "env": true,
	"label": true, "copy": true, "root": true,
	"run": true, "cache": true, "bind": true, "tmpfs": true, "secret": true,
	"ssh": true, "network": true, "security": true, "shell": true,
}

func rejectUnknownFields(tree any) error {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil
	}
	for k := range m {
		if !knownTopLevelFields[k] {
			return &SchemaViolationError{
				Field:       k,
				Remediation: "remove the field or check for a typo",
			}
		}
	}
	return nil
}

