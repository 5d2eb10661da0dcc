// Package main implements the kv-catalyst CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/electwix/kv-catalyst/internal/cache"
	"github.com/electwix/kv-catalyst/internal/cli"
	"github.com/electwix/kv-catalyst/internal/config"
	"github.com/electwix/kv-catalyst/internal/kcv"
	"github.com/electwix/kv-catalyst/internal/logging"
	"github.com/electwix/kv-catalyst/internal/metrics"
	"github.com/electwix/kv-catalyst/internal/sliceexpr"
	"github.com/electwix/kv-catalyst/internal/storage/memory"
	"github.com/electwix/kv-catalyst/internal/storage/postgres"
	"github.com/electwix/kv-catalyst/internal/storage/sqlite"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	logger := logging.NewSlogAdapter(logging.New(logging.Options{
		Verbose: opts.Verbose,
		Writer:  stderr,
	}))

	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if len(opts.Args) == 0 {
		_, _ = fmt.Fprintln(stderr, commandUsage)
		return 1
	}
	command, rest := opts.Args[0], opts.Args[1:]

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	counters := metrics.NewCounters("kv-catalyst")
	c, err := cache.New(backend, cache.Options{
		Name:                     "kv-catalyst",
		CacheTime:                cfg.Cache.CacheTime.Std(),
		ExpirationGracePeriod:    cfg.Cache.ExpirationGracePeriod.Std(),
		MaximumByteSize:          cfg.Cache.MaximumByteSize,
		ShardCount:               cfg.Cache.ShardCount,
		InvalidationSamplingRate: cfg.Cache.InvalidationSamplingRate,
		Logger:                   logger,
		Metrics:                  counters,
	})
	if err != nil {
		_ = backend.Close()
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("close cache", "error", err)
		}
	}()

	if err := dispatch(ctx, c, counters, command, rest, stdout); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

const commandUsage = `Commands:
  get EXPR             read one slice, e.g. get 'user1[a:n]#10'
  mget EXPR KEY...     read the same slice for several keys
  put KEY COL VAL ...  write column/value pairs through the cache
  del KEY [COL...]     delete columns, or the whole key when no columns given
  bench [OPS]          run a read workload and report cache hit ratio`

func loadConfig(opts cli.Options) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Backend != "" {
		cfg.Backend = config.Backend(opts.Backend)
	}
	if opts.SQLitePath != "" {
		cfg.SQLitePath = opts.SQLitePath
	}
	if opts.PostgresURL != "" {
		cfg.PostgresURL = opts.PostgresURL
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openBackend(ctx context.Context, cfg config.Config) (kcv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func dispatch(ctx context.Context, c *cache.Cache, counters *metrics.Counters, command string, args []string, stdout io.Writer) error {
	switch command {
	case "get":
		return runGet(ctx, c, args, stdout)
	case "mget":
		return runMGet(ctx, c, args, stdout)
	case "put":
		return runPut(ctx, c, args, stdout)
	case "del":
		return runDel(ctx, c, args, stdout)
	case "bench":
		return runBench(ctx, c, counters, args, stdout)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, commandUsage)
	}
}

func runGet(ctx context.Context, c *cache.Cache, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: get EXPR")
	}
	q, err := sliceexpr.Parse(args[0])
	if err != nil {
		return err
	}
	entries, err := c.GetSlice(ctx, q, kcv.NewTransaction())
	if err != nil {
		return err
	}
	printEntries(stdout, "", entries)
	return nil
}

func runMGet(ctx context.Context, c *cache.Cache, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: mget EXPR KEY...")
	}
	q, err := sliceexpr.Parse(args[0])
	if err != nil {
		return err
	}
	keys := []kcv.Key{q.Key}
	for _, arg := range args[1:] {
		keys = append(keys, kcv.Key(arg))
	}
	results, err := c.GetSlices(ctx, keys, q.Slice, kcv.NewTransaction())
	if err != nil {
		return err
	}
	for _, key := range keys {
		printEntries(stdout, string(key)+"\t", results[key])
	}
	return nil
}

func runPut(ctx context.Context, c *cache.Cache, args []string, stdout io.Writer) error {
	if len(args) < 3 || len(args)%2 != 1 {
		return errors.New("usage: put KEY COL VAL [COL VAL...]")
	}
	key := kcv.Key(args[0])
	var additions kcv.EntryList
	for i := 1; i < len(args); i += 2 {
		additions = append(additions, kcv.Entry{
			Column: kcv.Key(args[i]),
			Value:  kcv.Key(args[i+1]),
		})
	}
	if err := c.Apply(ctx, key, additions, nil, kcv.NewTransaction()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "put %d entries for %s\n", len(additions), key)
	return nil
}

func runDel(ctx context.Context, c *cache.Cache, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: del KEY [COL...]")
	}
	key := kcv.Key(args[0])
	if len(args) == 1 {
		if err := c.Drop(ctx, key, kcv.NewTransaction()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "dropped %s\n", key)
		return nil
	}
	deletions := make([]kcv.Key, 0, len(args)-1)
	for _, arg := range args[1:] {
		deletions = append(deletions, kcv.Key(arg))
	}
	if err := c.Apply(ctx, key, nil, deletions, kcv.NewTransaction()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "deleted %d columns from %s\n", len(deletions), key)
	return nil
}

// runBench seeds the cache's backend through Apply and then hammers
// GetSlice from a few goroutines, reporting the observed hit ratio.
func runBench(ctx context.Context, c *cache.Cache, counters *metrics.Counters, args []string, stdout io.Writer) error {
	reads := 10000
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("bench: invalid operation count %q", args[0])
		}
		reads = parsed
	}

	const keySpace = 64
	for i := 0; i < keySpace; i++ {
		key := kcv.Key(fmt.Sprintf("bench/%02d", i))
		entries := kcv.EntryList{
			{Column: "a", Value: kcv.Key(fmt.Sprintf("value-%d", i))},
			{Column: "b", Value: kcv.Key(fmt.Sprintf("value-%d", i*2))},
		}
		if err := c.Apply(ctx, key, entries, nil, kcv.NewTransaction()); err != nil {
			return err
		}
	}
	c.Clear()

	g, ctx := errgroup.WithContext(ctx)
	workers := 4
	for w := 0; w < workers; w++ {
		share := reads / workers
		if w == 0 {
			share += reads % workers
		}
		g.Go(func() error {
			tx := kcv.NewTransaction()
			for n := 0; n < share; n++ {
				key := kcv.Key(fmt.Sprintf("bench/%02d", rand.Intn(keySpace)))
				if _, err := c.GetSlice(ctx, kcv.SliceQuery{}.ForKey(key), tx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	retrievals := counters.Retrievals()
	misses := counters.Misses()
	ratio := 0.0
	if retrievals > 0 {
		ratio = float64(retrievals-misses) / float64(retrievals)
	}
	stats := c.Stats()
	_, _ = fmt.Fprintf(stdout, "retrievals=%d misses=%d hit_ratio=%.3f records=%d weight=%d\n",
		retrievals, misses, ratio, stats.Records, stats.Weight)
	return nil
}

func printEntries(w io.Writer, prefix string, entries kcv.EntryList) {
	for _, entry := range entries {
		_, _ = fmt.Fprintf(w, "%s%s\t%s\n", prefix, entry.Column, entry.Value)
	}
}
