package cli

import (
	"errors"
	"flag"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	opts, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if opts.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty", opts.ConfigPath)
	}
	if opts.Backend != "" {
		t.Fatalf("Backend = %q, want empty", opts.Backend)
	}
	if opts.Verbose {
		t.Fatalf("Verbose = true, want false")
	}
	if len(opts.Args) != 0 {
		t.Fatalf("Args = %v, want empty slice", opts.Args)
	}
}

func TestParseOverrides(t *testing.T) {
	args := []string{
		"-config", "kv.toml",
		"-backend", "sqlite",
		"-sqlite-path", "data.db",
		"-verbose",
		"get", "user1[a:n]",
	}
	opts, err := Parse(args)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if opts.ConfigPath != "kv.toml" {
		t.Fatalf("ConfigPath = %q, want %q", opts.ConfigPath, "kv.toml")
	}
	if opts.Backend != "sqlite" {
		t.Fatalf("Backend = %q, want %q", opts.Backend, "sqlite")
	}
	if opts.SQLitePath != "data.db" {
		t.Fatalf("SQLitePath = %q, want %q", opts.SQLitePath, "data.db")
	}
	if !opts.Verbose {
		t.Fatalf("Verbose = false, want true")
	}
	want := []string{"get", "user1[a:n]"}
	if len(opts.Args) != len(want) || opts.Args[0] != want[0] || opts.Args[1] != want[1] {
		t.Fatalf("Args = %v, want %v", opts.Args, want)
	}
}

func TestParseHelp(t *testing.T) {
	_, err := Parse([]string{"-h"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("Parse(-h) = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(err.Error(), "Usage of kv-catalyst") {
		t.Fatalf("help error missing usage text: %q", err.Error())
	}
}

func TestParseUnknownFlag(t *testing.T) {
	_, err := Parse([]string{"-definitely-not-a-flag"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
