package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/registry"
)

// CheckResult is one lint finding.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

// LintReport is the structured output of `gridverify lint`.
type LintReport struct {
	Dir       string        `json:"dir"`
	Files     int           `json:"files"`
	Contracts int           `json:"contracts"`
	Passed    bool          `json:"passed"`
	Checks    []CheckResult `json:"checks"`
}

// runLintCmd implements `gridverify lint`.
//
// Validates every pack file in a directory: schema shape, schema version,
// per-contract validation, and reference hygiene in rollback args,
// persisted where clauses and fromArg bindings.
//
// Exit codes:
//
//	0 = all packs valid
//	1 = lint findings
//	2 = runtime error
func runLintCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("lint", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dir        string
		jsonOutput bool
	)
	cmd.StringVar(&dir, "dir", "contracts", "Directory containing contract pack YAML files")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	report, err := lintDir(dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		if report.Passed {
			_, _ = fmt.Fprintf(stdout, "✅ %d contracts in %d pack files OK\n", report.Contracts, report.Files)
		} else {
			_, _ = fmt.Fprintf(stdout, "❌ lint failed for %s\n", dir)
			for _, c := range report.Checks {
				if !c.Pass {
					_, _ = fmt.Fprintf(stdout, "  - %s: %s\n", c.Name, c.Reason)
				}
			}
		}
	}

	if !report.Passed {
		return 1
	}
	return 0
}

func lintDir(dir string) (*LintReport, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	more, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	matches = append(matches, more...)
	sort.Strings(matches)

	if len(matches) == 0 {
		return nil, fmt.Errorf("no pack files found in %s", dir)
	}

	report := &LintReport{Dir: dir, Files: len(matches), Passed: true}
	for _, path := range matches {
		base := filepath.Base(path)
		pack, err := registry.LoadPackFile(path)
		if err != nil {
			report.Checks = append(report.Checks, CheckResult{
				Name:   base,
				Reason: err.Error(),
			})
			report.Passed = false
			continue
		}

		report.Contracts += len(pack.Contracts)
		for i := range pack.Contracts {
			c := &pack.Contracts[i]
			for _, check := range lintContract(c) {
				report.Checks = append(report.Checks, CheckResult{
					Name:   fmt.Sprintf("%s:%s", base, c.Action),
					Reason: check,
				})
				report.Passed = false
			}
		}
	}
	return report, nil
}

// lintContract flags reference strings that look malformed: fromArg
// bindings outside args., and where or rollback values that carry an
// unknown prefix.
func lintContract(c *contracts.Contract) []string {
	var issues []string

	checkAssertions := func(phase string, as []contracts.Assertion) {
		for _, a := range as {
			if a.FromArg != "" && !strings.HasPrefix(a.FromArg, refpath.PrefixArgs) {
				issues = append(issues, fmt.Sprintf("%s %s: from_arg %q must start with %q", phase, a.ID, a.FromArg, refpath.PrefixArgs))
			}
		}
	}
	checkAssertions("precondition", c.Preconditions)
	checkAssertions("postcondition", c.Postconditions)
	checkAssertions("invariant", c.Invariants)

	for _, pa := range c.PersistedAssertions {
		for col, ref := range pa.Where {
			if looksLikeBrokenReference(ref) {
				issues = append(issues, fmt.Sprintf("persisted %s: where %s=%q has an unknown reference prefix", pa.ID, col, ref))
			}
		}
	}
	for arg, ref := range c.RollbackArgs {
		if looksLikeBrokenReference(ref) {
			issues = append(issues, fmt.Sprintf("rollback arg %s=%q has an unknown reference prefix", arg, ref))
		}
	}
	return issues
}

// looksLikeBrokenReference reports dotted values that resemble a
// reference but carry none of the known prefixes. Plain literals pass.
func looksLikeBrokenReference(ref string) bool {
	if refpath.IsReference(ref) {
		return false
	}
	root, _, found := strings.Cut(ref, ".")
	if !found {
		return false
	}
	switch root {
	case "results", "arg", "entity", "output", "outputs", "step":
		return true
	}
	return false
}
