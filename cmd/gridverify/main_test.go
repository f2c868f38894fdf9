package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const goodPack = `
schema_version: "1.0.0"
description: quoting contracts
contracts:
  - action: create_quote
    preconditions:
      - id: customer_exists
        kind: entity_exists
        entity: customer
        field: id
    postconditions:
      - id: quote_id_assigned
        kind: entity_exists
        entity: result
        field: id
    rollback_action: delete_quote
    rollback_args:
      quote_id: result.id
`

const badRefPack = `
schema_version: "1.0.0"
contracts:
  - action: send_invoice
    postconditions:
      - id: invoice_sent
        kind: field_equals
        entity: result
        field: status
        value: sent
    rollback_action: void_invoice
    rollback_args:
      invoice_id: results.id
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRunNoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify"}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "help"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "lint") {
		t.Errorf("usage missing lint: %q", out.String())
	}
}

func TestLintCleanPack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quotes.yaml", goodPack)

	var out, errOut bytes.Buffer
	code := Run([]string{"gridverify", "lint", "--dir", dir}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}
	if !strings.Contains(out.String(), "1 contracts") {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestLintFlagsBrokenReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "invoices.yaml", badRefPack)

	var out, errOut bytes.Buffer
	code := Run([]string{"gridverify", "lint", "--dir", dir, "--json"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}

	var report LintReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if report.Passed {
		t.Fatal("expected lint failure")
	}
	found := false
	for _, c := range report.Checks {
		if strings.Contains(c.Reason, "results.id") {
			found = true
		}
	}
	if !found {
		t.Errorf("no finding for results.id: %+v", report.Checks)
	}
}

func TestLintEmptyDir(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "lint", "--dir", t.TempDir()}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestShowContract(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quotes.yaml", goodPack)

	var out, errOut bytes.Buffer
	code := Run([]string{"gridverify", "show", "--dir", dir, "--action", "create_quote"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d (stderr: %s)", code, errOut.String())
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if decoded["action"] != "create_quote" {
		t.Errorf("action = %v", decoded["action"])
	}
}

func TestShowMissingAction(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quotes.yaml", goodPack)

	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "show", "--dir", dir, "--action", "nope"}, &out, &errOut); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}

func TestShowRequiresAction(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "show", "--dir", t.TempDir()}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestProfilesList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "profile_prod.yaml", "name: Production\ncode: prod\nstore:\n  backend: postgres\nunverified:\n  mode: deny\n")

	var out, errOut bytes.Buffer
	code := Run([]string{"gridverify", "profiles", "--dir", dir}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d (stderr: %s)", code, errOut.String())
	}
	if !strings.Contains(out.String(), "prod") || !strings.Contains(out.String(), "deny") {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestProfilesEmptyDir(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"gridverify", "profiles", "--dir", t.TempDir()}, &out, &errOut); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}
