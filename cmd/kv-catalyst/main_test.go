package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"-h"}, stdout, stderr)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%q", exitCode, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Usage of kv-catalyst") {
		t.Fatalf("stdout %q missing usage text", stdout.String())
	}
}

func TestRunNoCommand(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), nil, stdout, stderr)
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Fatalf("stderr %q missing command list", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"frobnicate"}, stdout, stderr)
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("stderr %q missing unknown command error", stderr.String())
	}
}

func TestRunPutGetDelSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	base := []string{"-backend", "sqlite", "-sqlite-path", dbPath}

	runOK(t, append(base, "put", "user1", "age", "30", "name", "alice"))

	out := runOK(t, append(base, "get", "user1[a:n]"))
	if !strings.Contains(out, "age\t30") {
		t.Fatalf("get output %q missing age entry", out)
	}
	if strings.Contains(out, "name") {
		t.Fatalf("get output %q includes column outside [a:n)", out)
	}

	runOK(t, append(base, "del", "user1", "age"))
	out = runOK(t, append(base, "get", "user1"))
	if strings.Contains(out, "age") {
		t.Fatalf("get output %q still has deleted column", out)
	}
	if !strings.Contains(out, "name\talice") {
		t.Fatalf("get output %q missing surviving column", out)
	}

	runOK(t, append(base, "del", "user1"))
	out = runOK(t, append(base, "get", "user1"))
	if strings.TrimSpace(out) != "" {
		t.Fatalf("get after drop returned %q, want nothing", out)
	}
}

func TestRunMGetSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mget.db")
	base := []string{"-backend", "sqlite", "-sqlite-path", dbPath}

	runOK(t, append(base, "put", "u1", "a", "1"))
	runOK(t, append(base, "put", "u2", "a", "2"))

	out := runOK(t, append(base, "mget", "u1", "u2", "u3"))
	if !strings.Contains(out, "u1\ta\t1") || !strings.Contains(out, "u2\ta\t2") {
		t.Fatalf("mget output %q missing expected rows", out)
	}
	if strings.Contains(out, "u3") {
		t.Fatalf("mget output %q has row for absent key", out)
	}
}

func TestRunBench(t *testing.T) {
	out := runOK(t, []string{"bench", "200"})
	if !strings.Contains(out, "retrievals=200") {
		t.Fatalf("bench output %q missing retrieval count", out)
	}
	if !strings.Contains(out, "hit_ratio=") {
		t.Fatalf("bench output %q missing hit ratio", out)
	}
}

func TestRunConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "kv.toml")
	content := "backend = \"memory\"\n\n[cache]\ncache_time = \"2s\"\nexpiration_grace_period = \"100ms\"\nmaximum_byte_size = 1048576\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out := runOK(t, []string{"-config", configPath, "get", "user1"})
	if strings.TrimSpace(out) != "" {
		t.Fatalf("get on empty store returned %q, want nothing", out)
	}
}

func TestRunBadConfig(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"-backend", "sqlite", "get", "user1"}, stdout, stderr)
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "sqlite_path") {
		t.Fatalf("stderr %q missing field error", stderr.String())
	}
}

func runOK(t *testing.T, args []string) string {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exitCode := run(context.Background(), args, stdout, stderr)
	if exitCode != 0 {
		t.Fatalf("run(%v) exit code = %d; stderr=%q", args, exitCode, stderr.String())
	}
	return stdout.String()
}
