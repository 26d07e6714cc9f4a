package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	goyaml "github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/dofigen/dofigen"
)

func runEffective(args []string) error {
	fs := flag.NewFlagSet("effective", flag.ContinueOnError)
	var input, format string
	fs.StringVar(&input, "f", "", "path to the build description (default: first of dofigen.{yml,yaml,json})")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input = resolveInputPath(input)

	ctx := context.Background()
	desc, _, _, _, err := loadAndResolve(ctx, input, dofigen.LockModeUnlocked)
	if err != nil {
		return err
	}

	doc := desc.EffectiveDoc()
	var data []byte
	switch format {
	case "yaml":
		data, err = goyaml.Marshal(doc)
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	default:
		return errors.Errorf("unknown format %q: expected yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, string(data))
	return nil
}
