package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/config"
)

// runProfilesCmd implements `gridverify profiles`: list the verification
// profiles in a directory with their key policy settings.
func runProfilesCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("profiles", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dir        string
		jsonOutput bool
	)
	cmd.StringVar(&dir, "dir", "profiles", "Directory containing profile YAML files")
	cmd.BoolVar(&jsonOutput, "json", false, "Output profiles as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	profiles, err := config.LoadAllProfiles(dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(profiles) == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: no profiles found in %s\n", dir)
		return 1
	}

	codes := make([]string, 0, len(profiles))
	for code := range profiles {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	if jsonOutput {
		ordered := make([]*config.VerificationProfile, 0, len(codes))
		for _, code := range codes {
			ordered = append(ordered, profiles[code])
		}
		data, _ := json.MarshalIndent(ordered, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	for _, code := range codes {
		p := profiles[code]
		mode := p.Unverified.Mode
		if mode == "" {
			mode = "allow"
		}
		_, _ = fmt.Fprintf(stdout, "%s%-10s%s %s (store=%s, unverified=%s, rollback_on_exec_error=%t)\n",
			ColorBold, code, ColorReset, p.Name, p.Store.Backend, mode, p.Engine.RollbackOnExecutionError)
	}
	return 0
}
