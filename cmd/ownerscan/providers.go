package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hurttlocker/ownerscan/internal/config"
)

func runProviders(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\nusage: ownerscan providers [--json]", err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("usage: ownerscan providers [--json]")
	}

	cfg, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	reg := engine.Registry()
	def, _ := reg.Default()

	if *asJSON {
		type entry struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Default bool   `json:"default"`
		}
		out := make([]entry, 0, reg.Len())
		for _, p := range reg.All() {
			out = append(out, entry{ID: p.ID, Name: p.Name, Default: p.ID == def.ID})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\t")
	for _, p := range reg.All() {
		mark := ""
		if p.ID == def.ID {
			mark = "(default)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, mark)
	}
	return tw.Flush()
}
