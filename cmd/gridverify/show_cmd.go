package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/registry"
)

// runShowCmd implements `gridverify show`: load the packs in a directory
// and print one action's contract as JSON.
func runShowCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("show", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dir    string
		action string
	)
	cmd.StringVar(&dir, "dir", "contracts", "Directory containing contract pack YAML files")
	cmd.StringVar(&action, "action", "", "Action name to show (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if action == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --action is required")
		return 2
	}

	reg := registry.NewFSRegistry(dir)
	if err := reg.Load(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	contract, err := reg.Get(action)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: no contract for action %q in %s\n", action, dir)
		return 1
	}

	data, err := json.MarshalIndent(contract, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}
