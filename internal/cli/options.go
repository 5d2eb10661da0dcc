// Package cli parses command-line options for the kv-catalyst binary.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

type Options struct {
	ConfigPath  string
	Backend     string
	SQLitePath  string
	PostgresURL string
	Verbose     bool
	Args        []string
}

func Parse(args []string) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("kv-catalyst", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml, .yaml or .yml)")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (.toml, .yaml or .yml)")
	fs.StringVar(&opts.Backend, "backend", "", "Override the configured backend (memory, sqlite, postgres)")
	fs.StringVar(&opts.SQLitePath, "sqlite-path", "", "Override the configured SQLite database path")
	fs.StringVar(&opts.PostgresURL, "postgres-url", "", "Override the configured PostgreSQL connection URL")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		usage := Usage(fs)
		if errors.Is(err, flag.ErrHelp) {
			return Options{}, fmt.Errorf("%w\n\n%s", err, usage)
		}
		return Options{}, fmt.Errorf("%w\n\n%s", err, usage)
	}

	opts.Args = fs.Args()
	return opts, nil
}

func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
