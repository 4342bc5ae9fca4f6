package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RULES_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddUserThenReconcile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ctl.db")

	out, err := runCtl(t, "--db", db, "adduser", "--name", "Dana", "--email", "Dana@Example.com", "--password", "long enough password", "--admin")
	if err != nil {
		t.Fatalf("adduser failed: %v", err)
	}
	if !strings.Contains(out, "Dana <dana@example.com> [admin]: 20 coins") {
		t.Errorf("unexpected adduser output: %q", out)
	}

	out, err = runCtl(t, "--db", db, "reconcile", "--email", "dana@example.com")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("unexpected reconcile output: %q", out)
	}

	out, err = runCtl(t, "--db", db, "purge")
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if !strings.Contains(out, "Purged 0 message(s)") {
		t.Errorf("unexpected purge output: %q", out)
	}
}

func TestAddUserRejectsShortPassword(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ctl.db")
	if _, err := runCtl(t, "--db", db, "adduser", "--name", "Eve", "--email", "eve@example.com", "--password", "short"); err == nil {
		t.Fatal("expected error for short password")
	}
}
